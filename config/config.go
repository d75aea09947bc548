// Package config loads engine settings from TOML or YAML files and the
// environment, and applies them to an engine through SetOption.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/shaban/plughost"
	"github.com/shaban/plughost/engine/spec"
	"github.com/shaban/plughost/logging"
)

// EnvPrefix is the default prefix of environment overrides.
const EnvPrefix = "PLUGHOST_"

var (
	ErrUnknownFormat = errors.New("unknown config format")
	ErrInvalidValue  = errors.New("invalid config value")
)

// Settings is the on-disk configuration.
type Settings struct {
	Driver     string `toml:"driver" yaml:"driver"`
	ClientName string `toml:"client_name" yaml:"client_name"`

	Engine Engine `toml:"engine" yaml:"engine"`
	Audio  Audio  `toml:"audio" yaml:"audio"`
	Paths  Paths  `toml:"paths" yaml:"paths"`
	Log    Log    `toml:"log" yaml:"log"`
}

// Engine holds the engine behaviour options.
type Engine struct {
	ProcessMode         string `toml:"process_mode" yaml:"process_mode"`
	TransportMode       string `toml:"transport_mode" yaml:"transport_mode"`
	ForceStereo         bool   `toml:"force_stereo" yaml:"force_stereo"`
	PreferPluginBridges bool   `toml:"prefer_plugin_bridges" yaml:"prefer_plugin_bridges"`
	PreferUIBridges     bool   `toml:"prefer_ui_bridges" yaml:"prefer_ui_bridges"`
	UIsAlwaysOnTop      bool   `toml:"uis_always_on_top" yaml:"uis_always_on_top"`
	MaxParameters       int    `toml:"max_parameters" yaml:"max_parameters"`
	UIBridgesTimeout    int    `toml:"ui_bridges_timeout" yaml:"ui_bridges_timeout"`
	FrontendWinID       string `toml:"frontend_win_id" yaml:"frontend_win_id"`
	StrictUniqueNames   bool   `toml:"strict_unique_names" yaml:"strict_unique_names"`
	// Strict panics on plugin and listener faults instead of isolating them.
	Strict              bool   `toml:"strict" yaml:"strict"`
}

// Audio holds the driver options.
type Audio struct {
	Device     string `toml:"device" yaml:"device"`
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"`
	SampleRate int    `toml:"sample_rate" yaml:"sample_rate"`
	NumPeriods int    `toml:"num_periods" yaml:"num_periods"`
}

type Paths struct {
	Binaries  string `toml:"binaries" yaml:"binaries"`
	Resources string `toml:"resources" yaml:"resources"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Defaults returns the settings matching plughost.DefaultOptions.
func Defaults() *Settings {
	o := plughost.DefaultOptions()
	return &Settings{
		Driver:     "Dummy",
		ClientName: "plughost",
		Engine: Engine{
			ProcessMode:       o.ProcessMode.String(),
			TransportMode:     o.TransportMode.String(),
			PreferUIBridges:   o.PreferUIBridges,
			UIsAlwaysOnTop:    o.UIsAlwaysOnTop,
			MaxParameters:     o.MaxParameters,
			UIBridgesTimeout:  o.UIBridgesTimeout,
			StrictUniqueNames: o.StrictUniqueNames,
		},
		Audio: Audio{
			BufferSize: o.AudioBufferSize,
			SampleRate: o.AudioSampleRate,
			NumPeriods: o.AudioNumPeriods,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks the fields that SetOption cannot check itself.
func (s *Settings) Validate() error {
	var errs []error
	if _, ok := spec.ParseProcessMode(s.Engine.ProcessMode); !ok {
		errs = append(errs, fmt.Errorf("%w: process_mode %q", ErrInvalidValue, s.Engine.ProcessMode))
	}
	if _, ok := spec.ParseTransportMode(s.Engine.TransportMode); !ok {
		errs = append(errs, fmt.Errorf("%w: transport_mode %q", ErrInvalidValue, s.Engine.TransportMode))
	}
	switch s.Log.Format {
	case "", "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalidValue, s.Log.Format))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides settings from prefixed environment variables such as
// PLUGHOST_BUFFER_SIZE.
func (s *Settings) ApplyEnv(prefix string) error {
	return s.applyEnv(prefix, os.LookupEnv)
}

func (s *Settings) applyEnv(prefix string, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(prefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(prefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, prefix, key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(prefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, prefix, key, v))
				return
			}
			*dst = b
		}
	}

	str("DRIVER", &s.Driver)
	str("CLIENT_NAME", &s.ClientName)
	str("PROCESS_MODE", &s.Engine.ProcessMode)
	str("TRANSPORT_MODE", &s.Engine.TransportMode)
	flag("FORCE_STEREO", &s.Engine.ForceStereo)
	flag("PREFER_PLUGIN_BRIDGES", &s.Engine.PreferPluginBridges)
	flag("PREFER_UI_BRIDGES", &s.Engine.PreferUIBridges)
	flag("STRICT_UNIQUE_NAMES", &s.Engine.StrictUniqueNames)
	flag("STRICT", &s.Engine.Strict)
	num("MAX_PARAMETERS", &s.Engine.MaxParameters)
	str("DEVICE", &s.Audio.Device)
	num("BUFFER_SIZE", &s.Audio.BufferSize)
	num("SAMPLE_RATE", &s.Audio.SampleRate)
	num("NUM_PERIODS", &s.Audio.NumPeriods)
	str("BINARY_DIR", &s.Paths.Binaries)
	str("RESOURCE_DIR", &s.Paths.Resources)
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)

	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by the log section.
func (s *Settings) Logger(w io.Writer) logging.Logger {
	return logging.New(logging.Config{
		Level:     logging.ParseLevel(s.Log.Level),
		Format:    s.Log.Format,
		Output:    w,
		Component: "plughost",
	})
}

// ErrorHandler builds the engine's handler for suppressed faults: faults are
// logged to l and, in strict mode, escalated to a panic.
func (s *Settings) ErrorHandler(l logging.Logger) *plughost.LoggingErrorHandler {
	var next plughost.ErrorHandler
	if s.Engine.Strict {
		next = plughost.PanicErrorHandler{}
	}
	return plughost.NewLoggingErrorHandler(l, next)
}

// Target is the engine surface settings are applied to.
type Target interface {
	Options() plughost.EngineOptions
	SetOption(opt plughost.EngineOption, value int, str string) error
}

// Apply sets every option that differs from the target's current value.
// Failures do not stop the remaining options; they are returned joined.
func (s *Settings) Apply(t Target) error {
	cur := t.Options()
	var errs []error
	set := func(opt plughost.EngineOption, value int, str string) {
		if err := t.SetOption(opt, value, str); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", opt, err))
		}
	}
	setBool := func(opt plughost.EngineOption, want, have bool) {
		if want != have {
			set(opt, boolInt(want), "")
		}
	}
	setInt := func(opt plughost.EngineOption, want, have int) {
		if want != have {
			set(opt, want, "")
		}
	}
	setStr := func(opt plughost.EngineOption, want, have string) {
		if want != "" && want != have {
			set(opt, 0, want)
		}
	}

	if m, ok := spec.ParseProcessMode(s.Engine.ProcessMode); !ok {
		errs = append(errs, fmt.Errorf("%w: process_mode %q", ErrInvalidValue, s.Engine.ProcessMode))
	} else if m != cur.ProcessMode {
		set(plughost.OptionProcessMode, int(m), "")
	}
	if m, ok := spec.ParseTransportMode(s.Engine.TransportMode); !ok {
		errs = append(errs, fmt.Errorf("%w: transport_mode %q", ErrInvalidValue, s.Engine.TransportMode))
	} else if m != cur.TransportMode {
		set(plughost.OptionTransportMode, int(m), "")
	}
	setBool(plughost.OptionForceStereo, s.Engine.ForceStereo, cur.ForceStereo)
	setBool(plughost.OptionPreferPluginBridges, s.Engine.PreferPluginBridges, cur.PreferPluginBridges)
	setBool(plughost.OptionPreferUIBridges, s.Engine.PreferUIBridges, cur.PreferUIBridges)
	setBool(plughost.OptionUIsAlwaysOnTop, s.Engine.UIsAlwaysOnTop, cur.UIsAlwaysOnTop)
	setBool(plughost.OptionStrictUniqueNames, s.Engine.StrictUniqueNames, cur.StrictUniqueNames)
	setInt(plughost.OptionMaxParameters, s.Engine.MaxParameters, cur.MaxParameters)
	setInt(plughost.OptionUIBridgesTimeout, s.Engine.UIBridgesTimeout, cur.UIBridgesTimeout)
	setInt(plughost.OptionAudioNumPeriods, s.Audio.NumPeriods, cur.AudioNumPeriods)
	setInt(plughost.OptionAudioBufferSize, s.Audio.BufferSize, cur.AudioBufferSize)
	setInt(plughost.OptionAudioSampleRate, s.Audio.SampleRate, cur.AudioSampleRate)
	setStr(plughost.OptionAudioDevice, s.Audio.Device, cur.AudioDevice)
	setStr(plughost.OptionPathBinaries, s.Paths.Binaries, cur.BinaryDir)
	setStr(plughost.OptionPathResources, s.Paths.Resources, cur.ResourceDir)
	if s.Engine.FrontendWinID != "" {
		id, err := strconv.ParseUint(s.Engine.FrontendWinID, 16, 64)
		if err != nil || id != cur.FrontendWinID {
			set(plughost.OptionFrontendWinID, 0, s.Engine.FrontendWinID)
		}
	}
	return errors.Join(errs...)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
