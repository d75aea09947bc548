package plughost

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shaban/plughost/devices"
	"github.com/shaban/plughost/engine/spec"
	"github.com/shaban/plughost/logging"
	"github.com/shaban/plughost/plugins"
)

// ProcessMode selects how plugins are exposed to the audio driver.
type ProcessMode = spec.ProcessMode

const (
	ProcessSingleClient    = spec.ProcessSingleClient
	ProcessMultipleClients = spec.ProcessMultipleClients
	ProcessContinuousRack  = spec.ProcessContinuousRack
	ProcessPatchbay        = spec.ProcessPatchbay
	ProcessBridge          = spec.ProcessBridge
)

// TransportMode selects the transport source.
type TransportMode = spec.TransportMode

const (
	TransportInternal = spec.TransportInternal
	TransportDriver   = spec.TransportDriver
	TransportPlugin   = spec.TransportPlugin
	TransportBridge   = spec.TransportBridge
)

// EngineOption identifies one setting for SetOption.
type EngineOption int

const (
	OptionProcessMode EngineOption = iota
	OptionTransportMode
	OptionForceStereo
	OptionPreferPluginBridges
	OptionPreferUIBridges
	OptionUIsAlwaysOnTop
	OptionMaxParameters
	OptionUIBridgesTimeout
	OptionAudioNumPeriods
	OptionAudioBufferSize
	OptionAudioSampleRate
	OptionAudioDevice
	OptionPathBinaries
	OptionPathResources
	OptionFrontendWinID
	OptionStrictUniqueNames
)

var optionNames = [...]string{
	OptionProcessMode:         "ProcessMode",
	OptionTransportMode:       "TransportMode",
	OptionForceStereo:         "ForceStereo",
	OptionPreferPluginBridges: "PreferPluginBridges",
	OptionPreferUIBridges:     "PreferUIBridges",
	OptionUIsAlwaysOnTop:      "UIsAlwaysOnTop",
	OptionMaxParameters:       "MaxParameters",
	OptionUIBridgesTimeout:    "UIBridgesTimeout",
	OptionAudioNumPeriods:     "AudioNumPeriods",
	OptionAudioBufferSize:     "AudioBufferSize",
	OptionAudioSampleRate:     "AudioSampleRate",
	OptionAudioDevice:         "AudioDevice",
	OptionPathBinaries:        "PathBinaries",
	OptionPathResources:       "PathResources",
	OptionFrontendWinID:       "FrontendWinID",
	OptionStrictUniqueNames:   "StrictUniqueNames",
}

func (o EngineOption) String() string {
	if o >= 0 && int(o) < len(optionNames) {
		return optionNames[o]
	}
	return fmt.Sprintf("EngineOption(%d)", int(o))
}

// EngineOptions holds the engine configuration.
type EngineOptions struct {
	ProcessMode         ProcessMode
	TransportMode       TransportMode
	ForceStereo         bool
	PreferPluginBridges bool
	PreferUIBridges     bool
	UIsAlwaysOnTop      bool
	MaxParameters       int
	UIBridgesTimeout    int // milliseconds
	AudioNumPeriods     int
	AudioBufferSize     int
	AudioSampleRate     int
	AudioDevice         string
	BinaryDir           string
	ResourceDir         string
	FrontendWinID       uint64
	// StrictUniqueNames makes the name allocator repeat until no collision remains.
	StrictUniqueNames bool
}

// DefaultOptions returns the options a new engine starts from.
func DefaultOptions() EngineOptions {
	return EngineOptions{
		ProcessMode:      ProcessContinuousRack,
		TransportMode:    TransportInternal,
		PreferUIBridges:  true,
		UIsAlwaysOnTop:   true,
		MaxParameters:    200,
		UIBridgesTimeout: 4000,
		AudioNumPeriods:  spec.DefaultNumPeriods,
		AudioBufferSize:  spec.DefaultBufferSize,
		AudioSampleRate:  spec.DefaultSampleRate,
	}
}

// resolved maps the options onto the audio spec.
func (o EngineOptions) resolved() spec.Resolved {
	return spec.Resolve(spec.Options{
		ProcessMode: o.ProcessMode,
		BufferSize:  o.AudioBufferSize,
		SampleRate:  float64(o.AudioSampleRate),
		NumPeriods:  o.AudioNumPeriods,
	})
}

// Options returns a copy of the current options.
func (e *Engine) Options() EngineOptions {
	e.optMu.RLock()
	defer e.optMu.RUnlock()
	return e.opts
}

func setBool(dst *bool, opt EngineOption, value int) error {
	if value != 0 && value != 1 {
		return precondition(fmt.Sprintf("%s expects 0 or 1, got %d", opt, value))
	}
	*dst = value == 1
	return nil
}

// SetOption validates and stores one option. ProcessMode, AudioNumPeriods and
// AudioDevice cannot change while the engine is running.
func (e *Engine) SetOption(opt EngineOption, value int, str string) error {
	return e.fail(e.setOption(opt, value, str))
}

func (e *Engine) setOption(opt EngineOption, value int, str string) error {
	if e.IsRunning() && (opt == OptionProcessMode || opt == OptionAudioNumPeriods || opt == OptionAudioDevice) {
		return precondition(fmt.Sprintf("%s: %s", msgRunningOption, opt))
	}
	invalid := func() error {
		return precondition(fmt.Sprintf("invalid value for %s: %d %q", opt, value, str))
	}

	e.optMu.Lock()
	defer e.optMu.Unlock()
	o := &e.opts
	switch opt {
	case OptionProcessMode:
		if !ProcessMode(value).Valid() {
			return invalid()
		}
		o.ProcessMode = ProcessMode(value)
	case OptionTransportMode:
		if !TransportMode(value).Valid() {
			return invalid()
		}
		o.TransportMode = TransportMode(value)
		e.transportMode.Store(int32(value))
	case OptionForceStereo:
		return setBool(&o.ForceStereo, opt, value)
	case OptionPreferPluginBridges:
		return setBool(&o.PreferPluginBridges, opt, value)
	case OptionPreferUIBridges:
		return setBool(&o.PreferUIBridges, opt, value)
	case OptionUIsAlwaysOnTop:
		return setBool(&o.UIsAlwaysOnTop, opt, value)
	case OptionStrictUniqueNames:
		return setBool(&o.StrictUniqueNames, opt, value)
	case OptionMaxParameters:
		if value < 0 {
			return invalid()
		}
		o.MaxParameters = value
	case OptionUIBridgesTimeout:
		if value < 0 {
			return invalid()
		}
		o.UIBridgesTimeout = value
	case OptionAudioNumPeriods:
		if value < 2 || value > 3 {
			return invalid()
		}
		o.AudioNumPeriods = value
	case OptionAudioBufferSize:
		if value < 8 {
			return invalid()
		}
		o.AudioBufferSize = value
	case OptionAudioSampleRate:
		if value < 22050 {
			return invalid()
		}
		o.AudioSampleRate = value
	case OptionAudioDevice:
		o.AudioDevice = str
	case OptionPathBinaries:
		if str == "" {
			return invalid()
		}
		o.BinaryDir = str
	case OptionPathResources:
		if str == "" {
			return invalid()
		}
		o.ResourceDir = str
	case OptionFrontendWinID:
		if str == "" {
			return invalid()
		}
		id, perr := strconv.ParseInt(str, 16, 64)
		if perr != nil || id < 0 {
			return invalid()
		}
		o.FrontendWinID = uint64(id)
	default:
		return precondition(fmt.Sprintf("unknown option %s", opt))
	}
	return nil
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to JSON on stderr at info level.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithErrorHandler sets the handler for suppressed faults.
func WithErrorHandler(h ErrorHandler) Option {
	return func(e *Engine) { e.errorHandler = h }
}

// WithCatalog replaces the driver catalog. The default only has the Dummy driver.
func WithCatalog(c *devices.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithControlClient sets the control protocol client.
func WithControlClient(c ControlClient) Option {
	return func(e *Engine) { e.control = c }
}

// WithGraph sets the routing graph used for patchbay connections.
func WithGraph(g Graph) Option {
	return func(e *Engine) { e.graph = g }
}

// WithLoader registers an in-process loader for t, replacing the built-in one.
func WithLoader(t plugins.PluginType, l plugins.Loader) Option {
	return func(e *Engine) { e.loaders[t] = l }
}

// WithBridger replaces the process based bridge launcher.
func WithBridger(b plugins.Bridger) Option {
	return func(e *Engine) { e.bridger = b }
}

// WithLookupEnv replaces os.LookupEnv for session manager detection.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(e *Engine) { e.lookupEnv = fn }
}

// WithIdleInterval sets the period of the maintenance idle sweep.
func WithIdleInterval(d time.Duration) Option {
	return func(e *Engine) { e.idleInterval = d }
}
