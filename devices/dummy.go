package devices

import (
	"errors"
	"sync"
	"time"
)

// DummyDriverName is the name of the timer driven driver.
const DummyDriverName = "Dummy"

// DummyDevice is the only device of the dummy driver.
const DummyDevice = "Default"

var (
	dummyBufferSizes = []int{64, 128, 256, 512, 1024, 2048, 4096}
	dummySampleRates = []int{22050, 32000, 44100, 48000, 88200, 96000}
)

// DummyFamily provides the Dummy driver, which produces silence on a timer
// at the configured buffer period.
type DummyFamily struct {
	// MIDIPorts enumerates MIDI port names for DeviceInfo. Defaults to MIDIPortNames.
	MIDIPorts func() (ins, outs []string)
}

func (DummyFamily) DriverNames() []string { return []string{DummyDriverName} }

func (DummyFamily) DeviceNames(driver string) []string {
	if driver != DummyDriverName {
		return nil
	}
	return []string{DummyDevice}
}

func (f DummyFamily) DeviceInfo(driver, device string) (DeviceInfo, bool) {
	if driver != DummyDriverName || device != DummyDevice {
		return DeviceInfo{}, false
	}
	ports := f.MIDIPorts
	if ports == nil {
		ports = MIDIPortNames
	}
	ins, outs := ports()
	return DeviceInfo{
		Device:               Device{Name: DummyDevice, UID: "dummy:default", IsOnline: true},
		Hints:                HintVariableBufferSize | HintVariableSampleRate,
		InputChannelCount:    2,
		OutputChannelCount:   2,
		SupportedBufferSizes: append([]int(nil), dummyBufferSizes...),
		SupportedSampleRates: append([]int(nil), dummySampleRates...),
		MIDIInputs:           ins,
		MIDIOutputs:          outs,
	}, true
}

func (DummyFamily) Open(driver string) (Driver, bool) {
	if driver != DummyDriverName {
		return nil, false
	}
	return &DummyDriver{}, true
}

// DummyDriver calls the process function from its own goroutine once per
// buffer period.
type DummyDriver struct {
	mu      sync.Mutex
	cfg     Config
	process ProcessFunc
	opened  bool
	stop    chan struct{}
	done    chan struct{}
}

var (
	errNotOpen   = errors.New("driver not open")
	errNoProcess = errors.New("nil process function")
)

func (d *DummyDriver) Name() string { return DummyDriverName }

func (d *DummyDriver) Open(cfg Config, process ProcessFunc) error {
	if process == nil {
		return errNoProcess
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.process = process
	d.opened = true
	return nil
}

func (d *DummyDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return errNotOpen
	}
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	period := time.Duration(float64(time.Second) * float64(d.cfg.BufferSize) / d.cfg.SampleRate)
	go d.run(period, d.cfg.BufferSize, d.process, d.stop, d.done)
	return nil
}

func (d *DummyDriver) run(period time.Duration, frames int, process ProcessFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := [][]float32{make([]float32, frames), make([]float32, frames)}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, ch := range buf {
				clear(ch)
			}
			process(buf, frames)
		}
	}
}

func (d *DummyDriver) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (d *DummyDriver) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	d.opened = false
	d.process = nil
	d.mu.Unlock()
	return nil
}

func (d *DummyDriver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *DummyDriver) BufferSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.BufferSize
}

func (d *DummyDriver) SampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.SampleRate
}

func (d *DummyDriver) MaxClientNameSize() int { return 64 }
