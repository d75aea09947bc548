package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBridger struct {
	calls []Request
	exes  []string
	err   error
}

func (b *recordingBridger) Bridge(ctx context.Context, req Request, exe string) (Plugin, error) {
	b.calls = append(b.calls, req)
	b.exes = append(b.exes, exe)
	if b.err != nil {
		return nil, b.err
	}
	info := InfoFromRequest(req)
	info.Hints |= HintIsBridge
	return NewBase(req.ID, info, nil), nil
}

func recordingLoader(got *[]Request) Loader {
	return LoaderFunc(func(ctx context.Context, req Request) (Plugin, error) {
		*got = append(*got, req)
		return NewBase(req.ID, InfoFromRequest(req), nil), nil
	})
}

func writeFile(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o755))
	return path
}

func foreignBinary() BinaryType {
	if NativeBinary() == BinaryWin32 {
		return BinaryWin64
	}
	return BinaryWin32
}

func TestFactoryInternalNeverBridged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "plughost-bridge-native"))

	b := &recordingBridger{}
	f := NewFactory("")
	f.BinaryDir = dir
	f.PreferBridges = true
	f.Bridger = b

	p, err := f.New(context.Background(), Request{ID: 0, BinaryType: NativeBinary(), Type: TypeInternal, Label: LabelGain})
	require.NoError(t, err)
	assert.Empty(t, b.calls)
	assert.Equal(t, "gain", p.Name())
	assert.True(t, p.Hints().Has(HintIsRTSafe))
}

func TestFactoryPreferBridges(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, filepath.Join(dir, "plugins", "synth.so"))
	exe := writeFile(t, filepath.Join(dir, "plughost-bridge-native"))

	b := &recordingBridger{}
	f := NewFactory("")
	f.BinaryDir = dir
	f.PreferBridges = true
	f.Bridger = b

	p, err := f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeLV2, Filename: lib})
	require.NoError(t, err)
	require.Len(t, b.calls, 1)
	assert.Equal(t, exe, b.exes[0])
	assert.True(t, p.Hints().Has(HintIsBridge))

	// Without the preference the native binary loads in-process.
	f.PreferBridges = false
	p, err = f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeLV2, Filename: lib})
	require.NoError(t, err)
	assert.Len(t, b.calls, 1)
	assert.False(t, p.Hints().Has(HintIsBridge))
	assert.Equal(t, "synth", p.Name())
}

func TestFactoryForeignBinaryBridged(t *testing.T) {
	dir := t.TempDir()
	name := "plughost-bridge-win32.exe"
	if foreignBinary() == BinaryWin64 {
		name = "plughost-bridge-win64.exe"
	}
	writeFile(t, filepath.Join(dir, name))

	b := &recordingBridger{}
	f := NewFactory("")
	f.BinaryDir = dir
	f.Bridger = b

	_, err := f.New(context.Background(), Request{BinaryType: foreignBinary(), Type: TypeVST, Filename: `C:\synth.dll`})
	require.NoError(t, err)
	require.Len(t, b.calls, 1)

	b.err = errors.New("exec failed")
	_, err = f.New(context.Background(), Request{BinaryType: foreignBinary(), Type: TypeVST, Filename: `C:\synth.dll`})
	assert.ErrorIs(t, err, ErrLoadFailure)
}

func TestFactoryLegacyDSSIVSTFallback(t *testing.T) {
	var got []Request
	f := NewFactory("")
	f.goos = "linux"
	f.Register(TypeDSSI, recordingLoader(&got))

	req := Request{
		BinaryType: BinaryWin32,
		Type:       TypeVST,
		Filename:   "/opt/win plugins/My Synth.dll",
		Env:        map[string]string{"OTHER": "1"},
	}
	if NativeBinary() == BinaryWin32 {
		t.Skip("host is win32")
	}
	_, err := f.New(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, TypeDSSI, r.Type)
	assert.Equal(t, DefaultDSSIVSTPath, r.Filename)
	assert.Equal(t, "/opt/win*plugins/My*Synth.dll", r.Label)
	assert.Equal(t, "/opt/win plugins", r.Env["VST_PATH"])
	assert.Equal(t, "1", r.Env["OTHER"])
	// The caller's map is not modified.
	_, leaked := req.Env["VST_PATH"]
	assert.False(t, leaked)
	_, set := os.LookupEnv("VST_PATH")
	if set {
		assert.NotEqual(t, "/opt/win plugins", os.Getenv("VST_PATH"))
	}
}

func TestFactoryUnsupported(t *testing.T) {
	f := NewFactory("")
	f.goos = "darwin"

	_, err := f.New(context.Background(), Request{BinaryType: BinaryWin64, Type: TypeVST, Filename: "a.dll"})
	if NativeBinary() != BinaryWin64 {
		assert.ErrorIs(t, err, ErrUnsupported)
	}

	f.Register(TypeAU, nil)
	_, err = f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeAU, Filename: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = f.New(context.Background(), Request{BinaryType: BinaryNone, Type: TypeLV2, Filename: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFactoryLoadFailure(t *testing.T) {
	f := NewFactory("")
	_, err := f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeLADSPA, Filename: filepath.Join(t.TempDir(), "missing.so")})
	assert.ErrorIs(t, err, ErrLoadFailure)

	f.Register(TypeVST3, LoaderFunc(func(context.Context, Request) (Plugin, error) { return nil, nil }))
	_, err = f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeVST3, Filename: "x.vst3"})
	assert.ErrorIs(t, err, ErrLoadFailure)

	_, err = f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeInternal, Label: "nope"})
	assert.ErrorIs(t, err, ErrLoadFailure)
}

func TestBridgeBinaryResolution(t *testing.T) {
	dir := t.TempDir()
	f := &Factory{BinaryDir: dir}
	assert.Empty(t, f.BridgeBinary(BinaryWin64))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "plughost-bridge-win64.exe"), 0o755))
	assert.Empty(t, f.BridgeBinary(BinaryWin64), "directories are not executables")

	exe := writeFile(t, filepath.Join(dir, "plughost-bridge-win32.exe"))
	if NativeBinary() != BinaryWin32 {
		assert.Equal(t, exe, f.BridgeBinary(BinaryWin32))
	}

	f.BinaryDir = ""
	assert.Empty(t, f.BridgeBinary(BinaryWin32))
}

func TestResolveSearchPath(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, filepath.Join(dir, "reverb.so"))

	got, err := Resolve(Request{Type: TypeLADSPA, Filename: "reverb.so", Env: map[string]string{"LADSPA_PATH": dir}})
	require.NoError(t, err)
	assert.Equal(t, lib, got)

	_, err = Resolve(Request{Type: TypeLADSPA, Filename: "reverb.so", Env: map[string]string{"LADSPA_PATH": t.TempDir()}})
	assert.Error(t, err)
}

func TestSoundBankLoader(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, filepath.Join(dir, "Piano.sf2"))
	f := NewFactory("")

	p, err := f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeSF2, Filename: bank, Extra: "true"})
	require.NoError(t, err)
	assert.Equal(t, "Piano (16 outs)", p.Name())
	assert.True(t, p.Hints().Has(HintUses16Outs))
	assert.Equal(t, 16, p.(*SoundBank).Outputs)

	_, err = f.New(context.Background(), Request{BinaryType: NativeBinary(), Type: TypeGIG, Filename: bank})
	assert.ErrorIs(t, err, ErrLoadFailure)
}
