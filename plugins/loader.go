package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Request describes a plugin to instantiate.
type Request struct {
	ID         int
	BinaryType BinaryType
	Type       PluginType
	Filename   string
	Name       string
	Label      string
	UniqueID   int64
	Extra      string

	// Env holds environment overrides scoped to this load. It is consulted by
	// loaders (search paths) and passed to bridge processes; the process
	// environment is never modified.
	Env map[string]string
}

// Loader instantiates plugins of one format in-process.
type Loader interface {
	Load(ctx context.Context, req Request) (Plugin, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, req Request) (Plugin, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, req Request) (Plugin, error) { return f(ctx, req) }

// searchPathVars maps formats to the environment variable listing their search paths.
var searchPathVars = map[PluginType]string{
	TypeLADSPA: "LADSPA_PATH",
	TypeDSSI:   "DSSI_PATH",
	TypeLV2:    "LV2_PATH",
	TypeVST:    "VST_PATH",
	TypeVST3:   "VST3_PATH",
}

// lookupEnv reads key from the request scope first, then the process environment.
func (r Request) lookupEnv(key string) string {
	if v, ok := r.Env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// Resolve returns the absolute on-disk location of req.Filename. Relative names are
// searched in the format's search path variable; the first existing match wins.
func Resolve(req Request) (string, error) {
	if req.Filename == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidRequest)
	}
	if filepath.IsAbs(req.Filename) {
		if _, err := os.Stat(req.Filename); err != nil {
			return "", err
		}
		return req.Filename, nil
	}
	if v, ok := searchPathVars[req.Type]; ok {
		for _, dir := range filepath.SplitList(req.lookupEnv(v)) {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, req.Filename)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	abs, err := filepath.Abs(req.Filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Generic is the in-process instance produced by the file format loaders. It
// carries metadata and parameter state and processes as a volume stage.
type Generic struct {
	Base
	Path string
}

// FileLoader loads binary/bundle formats (LADSPA, DSSI, LV2, VST, VST3, AU).
func FileLoader(params Parameters) Loader {
	return LoaderFunc(func(ctx context.Context, req Request) (Plugin, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := Resolve(req)
		if err != nil {
			return nil, fmt.Errorf("%s binary %q: %w", req.Type, req.Filename, err)
		}
		info := InfoFromRequest(req)
		info.Filename = path
		if info.Name == "" {
			info.Name = defaultName(req, path)
		}
		info.Hints |= HintCanDryWet | HintCanVolume
		g := &Generic{Path: path}
		g.Init(req.ID, info, params)
		return g, nil
	})
}

var soundBankExts = map[PluginType][]string{
	TypeGIG: {".gig"},
	TypeSF2: {".sf2", ".sf3"},
	TypeSFZ: {".sfz"},
}

// SoundBank is a sample based instrument.
type SoundBank struct {
	Base
	Path    string
	Outputs int
}

// SoundBankLoader loads GIG/SF2/SFZ banks. Extra "true" selects 16 stereo outputs.
func SoundBankLoader() Loader {
	return LoaderFunc(func(ctx context.Context, req Request) (Plugin, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exts, ok := soundBankExts[req.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a sound bank", ErrInvalidRequest, req.Type)
		}
		ext := strings.ToLower(filepath.Ext(req.Filename))
		matched := false
		for _, e := range exts {
			if e == ext {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%s bank %q: unexpected extension %q", req.Type, req.Filename, ext)
		}
		path, err := Resolve(req)
		if err != nil {
			return nil, fmt.Errorf("%s bank %q: %w", req.Type, req.Filename, err)
		}
		info := InfoFromRequest(req)
		info.Filename = path
		info.Hints |= HintIsSynth | HintCanVolume | HintCanBalance
		outs := 1
		if req.Extra == "true" {
			info.Hints |= HintUses16Outs
			outs = 16
		}
		if info.Name == "" {
			info.Name = defaultName(req, path)
			if outs == 16 {
				info.Name += " (16 outs)"
			}
		}
		sb := &SoundBank{Path: path, Outputs: outs}
		sb.Init(req.ID, info, Parameters{
			{DisplayName: "Program", Identifier: "program", MinValue: 0, MaxValue: 127, IsWritable: true},
		})
		return sb, nil
	})
}

func defaultName(req Request, path string) string {
	if req.Label != "" {
		return req.Label
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
