package plughost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/plughost/internal/testutil"
	"github.com/shaban/plughost/plugins"
	"github.com/shaban/plughost/project"
)

// buildSession loads an LV2 bundle and an internal gain plugin and records one connection.
func buildSession(t *testing.T, e *Engine, g *MemoryGraph) string {
	t.Helper()
	bundle := filepath.Join(t.TempDir(), "amp.lv2")
	require.NoError(t, os.Mkdir(bundle, 0o755))

	require.NoError(t, e.AddPlugin(plugins.NativeBinary(), plugins.TypeLV2, bundle, "A", "urn:amp", 0, ""))
	addInternal(t, e, "B", plugins.LabelGain)
	require.NoError(t, e.GetPluginUnchecked(1).SetParameterValue(0, 2.5))
	e.GetPluginUnchecked(1).SetVolume(0.75)
	require.NoError(t, g.RestoreConnection("A:out_1", "B:in_1"))
	return bundle
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".phproj", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			srcGraph := NewMemoryGraph()
			src := newFixture(t, DefaultOptions(), WithGraph(srcGraph)).engine
			bundle := buildSession(t, src, srcGraph)

			path := filepath.Join(t.TempDir(), "session"+ext)
			require.NoError(t, src.SaveProject(path))

			dstGraph := NewMemoryGraph()
			f := newFixture(t, DefaultOptions(), WithGraph(dstGraph))
			dst := f.engine
			require.NoError(t, dst.LoadProject(path))

			require.Equal(t, 2, dst.PluginCount())
			a, b := dst.GetPluginUnchecked(0), dst.GetPluginUnchecked(1)
			assert.Equal(t, "A", a.Name())
			assert.Equal(t, plugins.TypeLV2, a.Type())
			assert.Equal(t, bundle, a.Filename())
			assert.Equal(t, "urn:amp", a.Label())
			assert.Equal(t, "B", b.Name())
			assert.Equal(t, plugins.TypeInternal, b.Type())
			v, err := b.ParameterValue(0)
			require.NoError(t, err)
			assert.InDelta(t, 2.5, v, 1e-6)
			assert.InDelta(t, 0.75, b.Volume(), 1e-6)

			assert.Equal(t, []project.Connection{{Source: "A:out_1", Target: "B:in_1"}}, dstGraph.Connections())
			// one before each plugin and one after the last
			assert.Equal(t, 3, f.events.count(CallbackIdle))
		})
	}
}

func TestSaveSkipsDisabledPlugins(t *testing.T) {
	g := NewMemoryGraph()
	e := newFixture(t, DefaultOptions(), WithGraph(g)).engine
	buildSession(t, e, g)
	e.GetPluginUnchecked(0).(*plugins.Generic).SetEnabled(false)

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, e.SaveProject(path))
	doc, err := project.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Plugins, 1)
	assert.Equal(t, "B", doc.Plugins[0].Name)
}

func TestSessionManagerOwnsConnections(t *testing.T) {
	tests := []struct {
		name  string
		mode  ProcessMode
		env   map[string]string
		saved bool
	}{
		{"no session manager", ProcessContinuousRack, nil, true},
		{"nsm", ProcessContinuousRack, map[string]string{"NSM_URL": "osc.udp://localhost:1234/"}, false},
		{"ladish", ProcessContinuousRack, map[string]string{"LADISH_APP_NAME": "plughost"}, false},
		{"opt out", ProcessContinuousRack, map[string]string{"PLUGHOST_DONT_MANAGE_CONNECTIONS": ""}, false},
		{"patchbay ignores session manager", ProcessPatchbay, map[string]string{"NSM_URL": "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.ProcessMode = tt.mode
			g := NewMemoryGraph()
			e := newFixture(t, opts, WithGraph(g), WithLookupEnv(testutil.Env(tt.env))).engine
			buildSession(t, e, g)

			path := filepath.Join(t.TempDir(), "session.phproj")
			require.NoError(t, e.SaveProject(path))
			doc, err := project.ReadFile(path)
			require.NoError(t, err)
			if tt.saved {
				assert.Len(t, doc.Connections, 1)
			} else {
				assert.Empty(t, doc.Connections)
			}
		})
	}
}

func TestLoadPresetStopsAfterFirstPlugin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warm.phpreset")
	doc := &project.Document{
		Version: project.Version,
		Preset:  true,
		Plugins: []plugins.StateSave{{Type: "INTERNAL", Name: "Warm", Label: plugins.LabelGain, Volume: 0.5, DryWet: 1}},
	}
	require.NoError(t, project.WriteFile(path, doc))

	e := newFixture(t, DefaultOptions()).engine
	require.NoError(t, e.LoadFile(path))
	require.Equal(t, 1, e.PluginCount())
	assert.Equal(t, "Warm", e.GetPluginUnchecked(0).Name())
	assert.InDelta(t, 0.5, e.GetPluginUnchecked(0).Volume(), 1e-6)
}

func TestLoadProjectSkipsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	doc := project.New()
	doc.Plugins = []plugins.StateSave{
		{Type: "LV2", Name: "gone", Binary: "/nowhere/gone.lv2"},
		{Type: "INTERNAL", BinaryType: "BOGUS", Name: "odd", Label: plugins.LabelGain},
		{Type: "INTERNAL", Name: "kept", Label: plugins.LabelPassthrough},
	}
	require.NoError(t, project.WriteFile(path, doc))

	e := newFixture(t, DefaultOptions()).engine
	require.NoError(t, e.LoadProject(path))
	assert.Equal(t, []string{"kept"}, names(e))
}

func TestLoadProjectErrors(t *testing.T) {
	e := newFixture(t, DefaultOptions()).engine
	assert.ErrorIs(t, e.LoadProject(""), ErrPrecondition)
	assert.ErrorIs(t, e.LoadProject(filepath.Join(t.TempDir(), "missing.phproj")), ErrPrecondition)

	bad := filepath.Join(t.TempDir(), "bad.phproj")
	require.NoError(t, os.WriteFile(bad, []byte("<OTHER-PROJECT/>"), 0o644))
	err := e.LoadProject(bad)
	assert.ErrorIs(t, err, project.ErrNotProject)
	assert.Zero(t, e.PluginCount())
}

func TestSixteenOutsBank(t *testing.T) {
	dir := t.TempDir()
	bank := filepath.Join(dir, "piano.sf2")
	require.NoError(t, os.WriteFile(bank, []byte("RIFF"), 0o644))
	path := filepath.Join(dir, "bank.json")
	doc := project.New()
	doc.Plugins = []plugins.StateSave{{Type: "SF2", Name: "Piano", Label: "piano (16 outs)", Binary: bank, Volume: 1, DryWet: 1}}
	require.NoError(t, project.WriteFile(path, doc))

	e := newFixture(t, DefaultOptions()).engine
	require.NoError(t, e.LoadProject(path))
	require.Equal(t, 1, e.PluginCount())
	sb, ok := e.GetPluginUnchecked(0).(*plugins.SoundBank)
	require.True(t, ok)
	assert.Equal(t, 16, sb.Outputs)
	assert.Equal(t, "true", sb.Extra())
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
		return p
	}

	tests := []struct {
		file  string
		ptype plugins.PluginType
		label string
	}{
		{"loop.wav", plugins.TypeInternal, plugins.LabelAudioFile},
		{"take.FLAC", plugins.TypeInternal, plugins.LabelAudioFile},
		{"song.mid", plugins.TypeInternal, plugins.LabelMIDIFile},
		{"strings.sfz", plugins.TypeSFZ, "strings.sfz"},
		{"organ.gig", plugins.TypeGIG, "organ.gig"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			e := newFixture(t, DefaultOptions()).engine
			path := touch(tt.file)
			require.NoError(t, e.LoadFile(path))
			require.Equal(t, 1, e.PluginCount())
			p := e.GetPluginUnchecked(0)
			assert.Equal(t, tt.ptype, p.Type())
			assert.Equal(t, tt.label, p.Label())
			assert.Equal(t, tt.file, p.Name())
			if tt.ptype == plugins.TypeInternal {
				file, ok := p.(*plugins.FilePlayer).CustomValue("file")
				require.True(t, ok)
				assert.Equal(t, path, file)
			}
		})
	}

	e := newFixture(t, DefaultOptions()).engine
	assert.ErrorIs(t, e.LoadFile(touch("notes.txt")), ErrUnsupported)
	assert.Contains(t, e.LastError(), msgUnknownFileExt)
	assert.ErrorIs(t, e.LoadFile(""), ErrPrecondition)
	assert.ErrorIs(t, e.LoadFile(filepath.Join(dir, "nope.wav")), ErrPrecondition)
	assert.Contains(t, e.LastError(), msgMissingFile)
	assert.ErrorIs(t, e.LoadFile(dir), ErrPrecondition)
}

func TestSaveProjectUnknownExtension(t *testing.T) {
	e := newFixture(t, DefaultOptions()).engine
	assert.ErrorIs(t, e.SaveProject(filepath.Join(t.TempDir(), "session.doc")), ErrUnsupported)
}
