// Package plughost is the control plane of an audio plugin host.
//
// An Engine owns a fixed capacity registry of plugin instances that the audio
// driver's processing goroutine runs once per buffer, while control callers
// add, remove, replace, clone, rename and reorder them. Structural changes are
// handed to the processing goroutine through a single pending action, so the
// registry is never torn and the processing side never waits on control code.
package plughost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/plughost/bridge"
	"github.com/shaban/plughost/devices"
	"github.com/shaban/plughost/engine/action"
	"github.com/shaban/plughost/engine/worker"
	"github.com/shaban/plughost/logging"
	"github.com/shaban/plughost/naming"
	"github.com/shaban/plughost/plugins"
	"github.com/shaban/plughost/registry"
)

// threadStopTimeout bounds how long mutating calls wait for the maintenance
// worker to pause.
const threadStopTimeout = 500 * time.Millisecond

// DefaultIdleInterval is the period of the maintenance idle sweep.
const DefaultIdleInterval = 30 * time.Millisecond

// noReplace marks the replace cursor as disarmed.
const noReplace = -1

// Engine hosts plugin instances for one audio driver.
type Engine struct {
	id     uuid.UUID
	logger logging.Logger

	errorHandler ErrorHandler

	optMu sync.RWMutex
	opts  EngineOptions

	// opMu serializes control operations. Concurrent control calls are
	// rejected, never interleaved.
	opMu sync.Mutex

	registry atomic.Pointer[registry.Registry]
	coord    *action.Coordinator
	factory  *plugins.Factory
	loaders  map[plugins.PluginType]plugins.Loader

	resourceDir  string
	replaceID    atomic.Int32
	isIdling     atomic.Bool
	aboutToClose atomic.Bool
	lastErr      lastError
	listeners    listeners

	catalog    *devices.Catalog
	monitor    *devices.Monitor
	driverMu   sync.RWMutex
	driver     devices.Driver
	driverName string
	clientName string
	running    atomic.Bool

	bufferSize atomic.Int64
	sampleRate atomic.Uint64

	worker       *worker.Worker
	idleInterval time.Duration

	control    ControlClient
	graph      Graph
	bridger    plugins.Bridger
	supervisor *bridge.Supervisor
	lookupEnv  func(string) (string, bool)

	transport     transport
	transportMode atomic.Int32
}

// New creates a stopped engine. Plugins can be added before Init; they are
// processed once a driver runs.
func New(opts EngineOptions, options ...Option) *Engine {
	e := &Engine{
		id:           uuid.New(),
		opts:         opts,
		loaders:      make(map[plugins.PluginType]plugins.Loader),
		idleInterval: DefaultIdleInterval,
		lookupEnv:    os.LookupEnv,
	}
	for _, o := range options {
		o(e)
	}
	if e.logger == nil {
		e.logger = logging.New(logging.DefaultConfig())
	}
	e.logger = logging.With(e.logger, "engine", e.id.String())
	if e.errorHandler == nil {
		e.errorHandler = &DefaultErrorHandler{Logger: e.logger}
	}
	if e.catalog == nil {
		e.catalog = devices.NewCatalog(e.logger, devices.DummyFamily{})
	}
	if e.control == nil {
		e.control = nopControl{}
	}
	if e.graph == nil {
		e.graph = NewMemoryGraph()
	}
	if e.bridger == nil {
		e.supervisor = bridge.NewSupervisor(bridge.WithLogger(e.logger))
		e.bridger = &bridge.Launcher{
			Supervisor: e.supervisor,
			ControlURL: func() string { return e.control.URL() },
			Logger:     e.logger,
			OnExit:     e.bridgeExited,
		}
	}

	e.factory = plugins.NewFactory(opts.ResourceDir)
	e.resourceDir = opts.ResourceDir
	e.factory.Bridger = e.bridger
	for t, l := range e.loaders {
		e.factory.Register(t, l)
	}

	e.coord = action.New(action.ApplierFunc(e.applyAction), e.logger)
	e.worker = worker.New(16,
		worker.WithLogger(e.logger),
		worker.WithTick(e.idleInterval, func(context.Context) { e.Idle() }),
	)
	e.monitor = devices.NewMonitor(e.catalog, e.logger)
	e.monitor.OnChange(func(c devices.Change) {
		added := 0
		if c.Added {
			added = 1
		}
		e.emit(Event{Opcode: CallbackDevicesChanged, Value1: added, ValueStr: c.Driver + ":" + c.Device})
	})

	e.registry.Store(registry.New(opts.resolved().MaxPlugins))
	e.replaceID.Store(noReplace)
	e.transportMode.Store(int32(opts.TransportMode))
	e.bufferSize.Store(int64(opts.resolved().BufferSize))
	e.sampleRate.Store(math.Float64bits(opts.resolved().SampleRate))
	return e
}

// ID returns the engine's UUID.
func (e *Engine) ID() uuid.UUID { return e.id }

// Logger returns the engine logger.
func (e *Engine) Logger() logging.Logger { return e.logger }

func (e *Engine) reg() *registry.Registry { return e.registry.Load() }

// IsRunning reports whether a driver is processing.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Name returns the client name passed to Init.
func (e *Engine) Name() string {
	e.driverMu.RLock()
	defer e.driverMu.RUnlock()
	return e.clientName
}

// CurrentDriverName returns the name of the open driver, "" when stopped.
func (e *Engine) CurrentDriverName() string {
	e.driverMu.RLock()
	defer e.driverMu.RUnlock()
	return e.driverName
}

// BufferSize returns the current buffer size in frames.
func (e *Engine) BufferSize() int { return int(e.bufferSize.Load()) }

// SampleRate returns the current sample rate.
func (e *Engine) SampleRate() float64 { return math.Float64frombits(e.sampleRate.Load()) }

// MaxClientNameSize returns the driver's client name limit, 255 without a driver.
func (e *Engine) MaxClientNameSize() int {
	e.driverMu.RLock()
	defer e.driverMu.RUnlock()
	if e.driver == nil {
		return 255
	}
	return e.driver.MaxClientNameSize()
}

// beginOp takes the operation lock for a mutating control call and checks
// that no idle callback or pending action is in progress.
func (e *Engine) beginOp() (func(), error) {
	if e.isIdling.Load() {
		return nil, precondition(msgBusy)
	}
	if !e.opMu.TryLock() {
		return nil, precondition(msgBusy)
	}
	if !e.coord.Idle() {
		e.opMu.Unlock()
		return nil, precondition(msgActionPending)
	}
	return e.opMu.Unlock, nil
}

// Init creates the registry for the configured process mode, opens and starts
// driverName and starts the maintenance worker.
func (e *Engine) Init(driverName, clientName string) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()
	return e.fail(e.init(driverName, clientName))
}

func (e *Engine) init(driverName, clientName string) error {
	if e.IsRunning() {
		return precondition("engine is already running")
	}
	if e.reg().Count() != 0 {
		return precondition("plugins must be removed before init")
	}
	opts := e.Options()
	res := opts.resolved()

	drv, err := e.catalog.Open(driverName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	cfg := devices.Config{
		Device:     opts.AudioDevice,
		ClientName: clientName,
		BufferSize: res.BufferSize,
		SampleRate: res.SampleRate,
		NumPeriods: res.NumPeriods,
	}
	if err := drv.Open(cfg, e.process); err != nil {
		return fmt.Errorf("open driver %s: %w", driverName, err)
	}

	e.registry.Store(registry.New(res.MaxPlugins))
	e.replaceID.Store(noReplace)
	e.bufferSize.Store(int64(drv.BufferSize()))
	e.sampleRate.Store(math.Float64bits(drv.SampleRate()))

	if err := drv.Start(); err != nil {
		_ = drv.Close()
		return fmt.Errorf("start driver %s: %w", driverName, err)
	}
	e.driverMu.Lock()
	e.driver, e.driverName, e.clientName = drv, driverName, clientName
	e.driverMu.Unlock()

	e.aboutToClose.Store(false)
	e.running.Store(true)
	e.worker.Start()
	if err := e.monitor.Start(context.Background()); err != nil {
		e.logger.Warn("device monitor not started", "error", err)
	}

	e.logger.Info("engine started", "driver", driverName, "client", clientName,
		"process_mode", res.ProcessMode.String(), "buffer_size", drv.BufferSize(), "sample_rate", drv.SampleRate())
	e.emit(Event{
		Opcode:   CallbackEngineStarted,
		Value1:   int(opts.ProcessMode),
		Value2:   int(opts.TransportMode),
		ValueStr: driverName,
	})
	return nil
}

// Close removes all plugins, stops the worker and the driver and tells the
// control client to exit. The engine can be initialized again afterwards.
func (e *Engine) Close() error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	var errs []error
	e.replaceID.Store(noReplace)
	if e.reg().Count() != 0 {
		e.aboutToClose.Store(true)
		if err := e.removeAll(); err != nil {
			errs = append(errs, err)
		}
	}
	e.control.Exit()
	e.monitor.Stop()
	if !e.worker.Stop(threadStopTimeout) {
		e.logger.Warn("worker did not stop in time", "timeout", threadStopTimeout)
	}

	e.driverMu.Lock()
	drv := e.driver
	e.driver, e.driverName = nil, ""
	e.driverMu.Unlock()
	if drv != nil {
		if err := drv.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop driver: %w", err))
		}
		if err := drv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close driver: %w", err))
		}
	}
	e.running.Store(false)
	if e.supervisor != nil {
		e.supervisor.Shutdown(bridge.DefaultStopTimeout)
		e.supervisor = bridge.NewSupervisor(bridge.WithLogger(e.logger))
		if l, ok := e.bridger.(*bridge.Launcher); ok {
			l.Supervisor = e.supervisor
		}
	}
	e.aboutToClose.Store(false)

	e.logger.Info("engine stopped")
	e.emit(Event{Opcode: CallbackEngineStopped})
	return e.fail(errors.Join(errs...))
}

// Idle runs the maintenance sweep: Idle on every enabled plugin in slot order.
// It is skipped while an action is pending or a replace is armed. A panicking
// plugin is reported and the sweep continues.
func (e *Engine) Idle() {
	if !e.coord.Idle() || e.replaceID.Load() != noReplace {
		return
	}
	for _, p := range e.reg().Plugins() {
		if p.Enabled() {
			e.idlePlugin(p)
		}
	}
}

func (e *Engine) idlePlugin(p plugins.Plugin) {
	defer func() {
		if r := recover(); r != nil {
			e.errorHandler.HandleError(fmt.Errorf("plugin %d %q idle: %v", p.ID(), p.Name(), r))
		}
	}()
	p.Idle()
}

// pauseWorker stops the maintenance worker before a structural change. A
// worker that does not stop in time is logged and the change proceeds.
func (e *Engine) pauseWorker() {
	if !e.worker.Stop(threadStopTimeout) {
		e.logger.Warn("worker did not stop in time", "timeout", threadStopTimeout)
	}
}

func (e *Engine) resumeWorker() {
	if e.IsRunning() && !e.aboutToClose.Load() {
		e.worker.Start()
	}
}

// lockWait reports whether actions are handed to the processing goroutine.
func (e *Engine) lockWait() bool {
	return e.IsRunning() && e.Options().ProcessMode != ProcessMultipleClients
}

// process runs one processing cycle. It is called by the driver.
func (e *Engine) process(buf [][]float32, frames int) {
	e.coord.Consume()
	e.transport.advance(frames, TransportMode(e.transportMode.Load()) == TransportInternal)

	reg := e.reg()
	ok := reg.TryRange(func(id int, p plugins.Plugin) {
		if !p.Enabled() {
			return
		}
		in := peaks(buf, frames)
		e.processPlugin(p, buf, frames)
		reg.SetPeaks(id, in, peaks(buf, frames))
	})
	if !ok {
		for _, ch := range buf {
			clear(ch)
		}
	}
}

func (e *Engine) processPlugin(p plugins.Plugin, buf [][]float32, frames int) {
	defer func() {
		if r := recover(); r != nil {
			if b, ok := p.(interface{ SetEnabled(bool) }); ok {
				b.SetEnabled(false)
			}
			e.errorHandler.HandleError(fmt.Errorf("plugin %d %q process: %v", p.ID(), p.Name(), r))
		}
	}()
	p.Process(buf, frames)
}

// peaks returns the absolute peak of the first two channels. A mono buffer
// reports the same peak on both sides.
func peaks(buf [][]float32, frames int) [2]float32 {
	var out [2]float32
	for c := 0; c < 2 && c < len(buf); c++ {
		ch := buf[c]
		n := min(frames, len(ch))
		var peak float32
		for _, s := range ch[:n] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		out[c] = peak
	}
	if len(buf) == 1 {
		out[1] = out[0]
	}
	return out
}

// InputPeak returns the last input peak of plugin id.
func (e *Engine) InputPeak(id int, left bool) float32 { return e.reg().InputPeak(id, left) }

// OutputPeak returns the last output peak of plugin id.
func (e *Engine) OutputPeak(id int, left bool) float32 { return e.reg().OutputPeak(id, left) }

// BufferSizeChanged is called by the driver when the buffer size changed.
func (e *Engine) BufferSizeChanged(size int) {
	e.bufferSize.Store(int64(size))
	for _, p := range e.reg().Plugins() {
		if p.Enabled() {
			p.BufferSizeChanged(size)
		}
	}
	e.emit(Event{Opcode: CallbackBufferSizeChanged, Value1: size})
}

// SampleRateChanged is called by the driver when the sample rate changed.
func (e *Engine) SampleRateChanged(rate float64) {
	e.sampleRate.Store(math.Float64bits(rate))
	for _, p := range e.reg().Plugins() {
		if p.Enabled() {
			p.SampleRateChanged(rate)
		}
	}
	e.emit(Event{Opcode: CallbackSampleRateChanged, Value3: float32(rate)})
}

// OfflineModeChanged is called by the driver when rendering switches between
// realtime and offline.
func (e *Engine) OfflineModeChanged(offline bool) {
	for _, p := range e.reg().Plugins() {
		if p.Enabled() {
			p.OfflineModeChanged(offline)
		}
	}
	v := 0
	if offline {
		v = 1
	}
	e.emit(Event{Opcode: CallbackOfflineModeChanged, Value1: v})
}

// bridgeExited is called from the supervisor when a bridge process exits on
// its own. The event is delivered from the worker when it runs.
func (e *Engine) bridgeExited(p *bridge.Plugin, err error) {
	e.errorHandler.HandleError(fmt.Errorf("bridge for plugin %d %q exited: %w", p.ID(), p.Name(), err))
	ev := Event{Opcode: CallbackPluginUnavailable, PluginID: p.ID(), ValueStr: err.Error()}
	op := worker.Func(func(context.Context) error {
		e.emit(ev)
		return nil
	})
	if e.worker.Enqueue(op) != nil {
		e.emit(ev)
	}
}

// allocator returns the name allocator for the current driver and options.
func (e *Engine) allocator() naming.Allocator {
	return naming.Allocator{
		MaxClientNameSize: e.MaxClientNameSize(),
		FixedPoint:        e.Options().StrictUniqueNames,
	}
}
