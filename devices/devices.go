// Package devices enumerates audio drivers and their devices and opens the
// driver that runs the engine's processing goroutine.
package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shaban/plughost/logging"
)

// ErrUnknownDriver is returned by Catalog.Open for names no family provides.
var ErrUnknownDriver = errors.New("unknown driver")

// Device represents the common properties of any device
type Device struct {
	Name     string `json:"name"`
	UID      string `json:"uid"`
	IsOnline bool   `json:"isOnline"`
}

// DeviceHints describe device capabilities.
type DeviceHints uint32

const (
	HintHasControlPanel DeviceHints = 1 << iota
	HintVariableBufferSize
	HintVariableSampleRate
)

// DeviceInfo describes one device of a driver.
type DeviceInfo struct {
	Device
	Hints                DeviceHints `json:"hints"`
	InputChannelCount    int         `json:"inputChannelCount"`
	OutputChannelCount   int         `json:"outputChannelCount"`
	SupportedBufferSizes []int       `json:"supportedBufferSizes"`
	SupportedSampleRates []int       `json:"supportedSampleRates"`
	MIDIInputs           []string    `json:"midiInputs,omitempty"`
	MIDIOutputs          []string    `json:"midiOutputs,omitempty"`
}

func (d DeviceInfo) CanInput() bool  { return d.InputChannelCount > 0 }
func (d DeviceInfo) CanOutput() bool { return d.OutputChannelCount > 0 }

// CommonSampleRates returns sample rates supported by both devices
func (d DeviceInfo) CommonSampleRates(other DeviceInfo) []int {
	otherRates := make(map[int]bool, len(other.SupportedSampleRates))
	for _, rate := range other.SupportedSampleRates {
		otherRates[rate] = true
	}
	common := []int{}
	for _, rate := range d.SupportedSampleRates {
		if otherRates[rate] {
			common = append(common, rate)
		}
	}
	return common
}

// SupportsSampleRate reports whether rate is listed for the device.
func (d DeviceInfo) SupportsSampleRate(rate int) bool {
	for _, r := range d.SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Config is passed to Driver.Open.
type Config struct {
	Device     string
	ClientName string
	BufferSize int
	SampleRate float64
	NumPeriods int
}

// ProcessFunc runs one processing cycle of frames samples per channel. buf
// holds one slice per channel and is reused between cycles.
type ProcessFunc func(buf [][]float32, frames int)

// Driver runs the processing goroutine.
type Driver interface {
	Name() string
	Open(cfg Config, process ProcessFunc) error
	Start() error
	Stop() error
	Close() error
	IsRunning() bool
	BufferSize() int
	SampleRate() float64
	MaxClientNameSize() int
}

// Family groups drivers backed by one API.
type Family interface {
	DriverNames() []string
	DeviceNames(driver string) []string
	DeviceInfo(driver, device string) (DeviceInfo, bool)
	Open(driver string) (Driver, bool)
}

// Catalog concatenates families in registration order and addresses drivers by
// a flat index.
type Catalog struct {
	mu       sync.RWMutex
	families []Family
	logger   logging.Logger
}

// NewCatalog returns a catalog over families.
func NewCatalog(logger logging.Logger, families ...Family) *Catalog {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Catalog{families: families, logger: logger}
}

// Register appends a family.
func (c *Catalog) Register(f Family) {
	c.mu.Lock()
	c.families = append(c.families, f)
	c.mu.Unlock()
}

func (c *Catalog) locate(index int) (Family, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= 0 {
		i := index
		for _, f := range c.families {
			names := f.DriverNames()
			if i < len(names) {
				return f, names[i], true
			}
			i -= len(names)
		}
	}
	c.logger.Warn("driver index out of range", "index", index)
	return nil, "", false
}

// Count returns the total number of drivers.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, f := range c.families {
		n += len(f.DriverNames())
	}
	return n
}

// Name returns the name of driver index, "" when out of range.
func (c *Catalog) Name(index int) string {
	_, name, _ := c.locate(index)
	return name
}

// DeviceNames returns the devices of driver index, nil when out of range.
func (c *Catalog) DeviceNames(index int) []string {
	f, name, ok := c.locate(index)
	if !ok {
		return nil
	}
	return f.DeviceNames(name)
}

// DeviceInfo returns device details, the zero value when unknown.
func (c *Catalog) DeviceInfo(index int, device string) DeviceInfo {
	f, name, ok := c.locate(index)
	if !ok {
		return DeviceInfo{}
	}
	info, ok := f.DeviceInfo(name, device)
	if !ok {
		c.logger.Warn("unknown device", "driver", name, "device", device)
		return DeviceInfo{}
	}
	return info
}

// Open returns a new driver instance by name.
func (c *Catalog) Open(name string) (Driver, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.families {
		if d, ok := f.Open(name); ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
}
