package testutil

import (
	"errors"
	"sync"

	"github.com/shaban/plughost/devices"
)

// ManualDriverName is the driver name served by ManualFamily.
const ManualDriverName = "Manual"

// ManualFamily serves a single driver whose processing cycles are run by the
// test through Cycle instead of a clock.
type ManualFamily struct {
	Driver *ManualDriver
}

// NewManualFamily returns a family with a fresh stereo driver.
func NewManualFamily() *ManualFamily {
	return &ManualFamily{Driver: &ManualDriver{NameLimit: 64}}
}

func (f *ManualFamily) DriverNames() []string { return []string{ManualDriverName} }

func (f *ManualFamily) DeviceNames(driver string) []string {
	if driver != ManualDriverName {
		return nil
	}
	return []string{"Manual"}
}

func (f *ManualFamily) DeviceInfo(driver, device string) (devices.DeviceInfo, bool) {
	if driver != ManualDriverName {
		return devices.DeviceInfo{}, false
	}
	return devices.DeviceInfo{
		Device:               devices.Device{Name: device, UID: "manual:" + device, IsOnline: true},
		InputChannelCount:    2,
		OutputChannelCount:   2,
		SupportedBufferSizes: []int{64, 128, 256, 512},
		SupportedSampleRates: []int{44100, 48000},
	}, true
}

func (f *ManualFamily) Open(driver string) (devices.Driver, bool) {
	if driver != ManualDriverName {
		return nil, false
	}
	return f.Driver, true
}

var errClosed = errors.New("manual driver is not open")

// ManualDriver records its configuration and runs the process callback on demand.
type ManualDriver struct {
	NameLimit int
	// FailOpen makes Open fail with this error.
	FailOpen error

	mu      sync.Mutex
	cfg     devices.Config
	process devices.ProcessFunc
	running bool
	cycles  int
}

func (d *ManualDriver) Name() string { return ManualDriverName }

func (d *ManualDriver) Open(cfg devices.Config, process devices.ProcessFunc) error {
	if d.FailOpen != nil {
		return d.FailOpen
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 512
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	d.cfg, d.process = cfg, process
	return nil
}

func (d *ManualDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.process == nil {
		return errClosed
	}
	d.running = true
	return nil
}

func (d *ManualDriver) Stop() error {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return nil
}

func (d *ManualDriver) Close() error {
	d.mu.Lock()
	d.process = nil
	d.mu.Unlock()
	return nil
}

func (d *ManualDriver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *ManualDriver) BufferSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.BufferSize
}

func (d *ManualDriver) SampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.SampleRate
}

func (d *ManualDriver) MaxClientNameSize() int { return d.NameLimit }

// Config returns the configuration passed to Open.
func (d *ManualDriver) Config() devices.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Cycles returns how many cycles ran.
func (d *ManualDriver) Cycles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycles
}

// Cycle runs one processing cycle over buf and reports whether the driver was
// running. buf is processed in place.
func (d *ManualDriver) Cycle(buf [][]float32) bool {
	d.mu.Lock()
	process, running := d.process, d.running
	if running {
		d.cycles++
	}
	frames := d.cfg.BufferSize
	d.mu.Unlock()
	if !running || process == nil {
		return false
	}
	if len(buf) > 0 && len(buf[0]) < frames {
		frames = len(buf[0])
	}
	process(buf, frames)
	return true
}

// Buffer returns a stereo buffer of frames samples filled with v.
func Buffer(frames int, v float32) [][]float32 {
	buf := make([][]float32, 2)
	for c := range buf {
		buf[c] = make([]float32, frames)
		for i := range buf[c] {
			buf[c][i] = v
		}
	}
	return buf
}
