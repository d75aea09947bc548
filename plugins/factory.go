package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultDSSIVSTPath is the dssi-vst wrapper used to host Windows VSTs on Linux
// when no bridge is available.
const DefaultDSSIVSTPath = "/usr/lib/dssi/dssi-vst.so"

// Bridger instantiates a plugin out-of-process through a bridge executable.
type Bridger interface {
	Bridge(ctx context.Context, req Request, exe string) (Plugin, error)
}

// Factory creates plugin instances. The zero value has no loaders; use NewFactory.
type Factory struct {
	// BinaryDir holds the bridge executables. Empty disables bridging.
	BinaryDir string
	// PreferBridges bridges native binaries too when a bridge executable exists.
	PreferBridges bool
	// DSSIVSTPath overrides DefaultDSSIVSTPath.
	DSSIVSTPath string
	// Bridger launches bridged instances. Nil disables bridging.
	Bridger Bridger

	loaders map[PluginType]Loader
	goos    string
}

// NewFactory returns a factory with the built-in loaders registered.
func NewFactory(resourceDir string) *Factory {
	f := &Factory{loaders: make(map[PluginType]Loader), goos: runtime.GOOS}
	f.Register(TypeInternal, InternalLoader{ResourceDir: resourceDir})
	files := FileLoader(nil)
	for _, t := range []PluginType{TypeLADSPA, TypeDSSI, TypeLV2, TypeVST, TypeVST3, TypeAU} {
		f.Register(t, files)
	}
	banks := SoundBankLoader()
	for _, t := range []PluginType{TypeGIG, TypeSF2, TypeSFZ} {
		f.Register(t, banks)
	}
	return f
}

// Register installs or replaces the in-process loader for t. A nil loader removes it.
func (f *Factory) Register(t PluginType, l Loader) {
	if f.loaders == nil {
		f.loaders = make(map[PluginType]Loader)
	}
	if l == nil {
		delete(f.loaders, t)
		return
	}
	f.loaders[t] = l
}

// New instantiates req. Dispatch order: internal plugins in-process (never
// bridged); foreign binaries, or any binary when PreferBridges is set and a
// bridge exists, through a bridge; otherwise the registered in-process loader.
func (f *Factory) New(ctx context.Context, req Request) (Plugin, error) {
	if req.BinaryType == BinaryNone || req.Type == TypeNone {
		return nil, fmt.Errorf("%w: binary and plugin type are required", ErrInvalidRequest)
	}
	if req.Type == TypeInternal {
		return f.load(ctx, req)
	}

	exe := f.BridgeBinary(req.BinaryType)
	if req.BinaryType != NativeBinary() || (f.PreferBridges && exe != "") {
		if exe != "" && f.Bridger != nil {
			p, err := f.Bridger.Bridge(ctx, req, exe)
			if err != nil {
				return nil, fmt.Errorf("%w: %s bridge: %w", ErrLoadFailure, req.Type, err)
			}
			if p == nil {
				return nil, fmt.Errorf("%w: %s bridge returned no instance", ErrLoadFailure, req.Type)
			}
			return p, nil
		}
		if req.BinaryType != NativeBinary() {
			if req.BinaryType == BinaryWin32 && f.goos == "linux" {
				return f.load(ctx, f.legacyDSSIVST(req))
			}
			return nil, fmt.Errorf("%w: This build cannot handle this binary", ErrUnsupported)
		}
	}
	return f.load(ctx, req)
}

func (f *Factory) load(ctx context.Context, req Request) (Plugin, error) {
	l, ok := f.loaders[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no loader for %s plugins", ErrUnsupported, req.Type)
	}
	p, err := l.Load(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s loader returned no instance", ErrLoadFailure, req.Type)
	}
	return p, nil
}

// legacyDSSIVST rewrites a Win32 VST request to go through the dssi-vst wrapper.
// The wrapper expects the plugin path as label with spaces escaped as '*', and
// finds the plugin through VST_PATH, which is set only for this request.
func (f *Factory) legacyDSSIVST(req Request) Request {
	abs, err := filepath.Abs(req.Filename)
	if err != nil {
		abs = req.Filename
	}
	wrapper := f.DSSIVSTPath
	if wrapper == "" {
		wrapper = DefaultDSSIVSTPath
	}
	env := make(map[string]string, len(req.Env)+1)
	for k, v := range req.Env {
		env[k] = v
	}
	env["VST_PATH"] = filepath.Dir(abs)

	out := req
	out.Type = TypeDSSI
	out.BinaryType = NativeBinary()
	out.Filename = wrapper
	out.Label = strings.ReplaceAll(abs, " ", "*")
	out.Env = env
	return out
}

// BridgeBinary returns the bridge executable for btype in BinaryDir, or "" when
// BinaryDir is empty or the executable is missing.
func (f *Factory) BridgeBinary(btype BinaryType) string {
	if f.BinaryDir == "" {
		return ""
	}
	var name string
	switch btype {
	case NativeBinary():
		name = "plughost-bridge-native"
	case BinaryPosix32:
		name = "plughost-bridge-posix32"
	case BinaryPosix64:
		name = "plughost-bridge-posix64"
	case BinaryWin32:
		name = "plughost-bridge-win32.exe"
	case BinaryWin64:
		name = "plughost-bridge-win64.exe"
	default:
		return ""
	}
	path := filepath.Join(f.BinaryDir, name)
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return ""
	}
	return path
}
