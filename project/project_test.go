package project

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/plughost/plugins"
)

func sampleDoc() *Document {
	doc := New()
	doc.Plugins = []plugins.StateSave{
		{
			Type:     "LV2",
			Name:     "A",
			Label:    "urn:a",
			Binary:   "/usr/lib/lv2/a.lv2",
			UniqueID: 7,
			Active:   true,
			DryWet:   0.5,
			Volume:   1,
			Parameters: []plugins.ParamValue{
				{Index: 0, Symbol: "gain", Value: 0.25},
			},
		},
		{
			Type:       "INTERNAL",
			Name:       "B",
			Label:      "audiofile",
			DryWet:     1,
			Volume:     1,
			CustomData: []plugins.CustomData{{Type: plugins.CustomDataString, Key: "file", Value: "/tmp/a.wav"}},
		},
	}
	doc.Connections = []Connection{{Source: "A:out_1", Target: "B:in_1"}}
	return doc
}

func TestRoundTripAllFormats(t *testing.T) {
	for _, f := range []Format{FormatXML, FormatJSON, FormatYAML} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sampleDoc(), f))
			got, err := Decode(&buf, f)
			require.NoError(t, err)
			assert.Equal(t, sampleDoc(), got)
		})
	}
}

func TestXMLLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleDoc(), FormatXML))
	out := buf.String()
	assert.Contains(t, out, `<PLUGHOST-PROJECT VERSION="2.0">`)
	assert.Contains(t, out, "<Plugin>")
	assert.Contains(t, out, "<Info>")
	assert.Contains(t, out, "<Patchbay>")
	assert.Contains(t, out, "<Source>A:out_1</Source>")
}

func TestPresetXML(t *testing.T) {
	doc := &Document{Version: Version, Preset: true, Plugins: sampleDoc().Plugins[:1]}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, FormatXML))
	assert.Contains(t, buf.String(), `<PLUGHOST-PRESET VERSION="2.0">`)
	assert.NotContains(t, buf.String(), "<Plugin>")

	got, err := Decode(&buf, FormatXML)
	require.NoError(t, err)
	assert.True(t, got.Preset)
	require.Len(t, got.Plugins, 1)
	assert.Equal(t, "A", got.Plugins[0].Name)
	assert.Equal(t, plugins.TypeLV2, got.Plugins[0].PluginType())

	doc.Plugins = nil
	assert.ErrorIs(t, Encode(&buf, doc, FormatXML), ErrNotProject)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format Format
		want   error
	}{
		{"unknown root", `<?xml version="1.0"?><SOMETHING/>`, FormatXML, ErrNotProject},
		{"garbage xml", `not xml`, FormatXML, ErrNotProject},
		{"json without version", `{"plugins":[]}`, FormatJSON, ErrNotProject},
		{"bad json", `{`, FormatJSON, ErrNotProject},
		{"future version", `{"version":"3.0","plugins":[]}`, FormatJSON, ErrIncompatibleVersion},
		{"old xml version", `<PLUGHOST-PROJECT VERSION="1.0"></PLUGHOST-PROJECT>`, FormatXML, ErrIncompatibleVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), tt.format)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateConnections(t *testing.T) {
	doc := sampleDoc()
	doc.Connections = append(doc.Connections, Connection{Source: "x"})
	assert.Error(t, doc.Validate())
}

func TestFormatFor(t *testing.T) {
	tests := map[string]struct {
		format Format
		ok     bool
	}{
		"song.phproj":  {FormatXML, true},
		"a.PHPRESET":   {FormatXML, true},
		"a.xml":        {FormatXML, true},
		"a.json":       {FormatJSON, true},
		"a.yml":        {FormatYAML, true},
		"a.yaml":       {FormatYAML, true},
		"a.wav":        {0, false},
		"no-extension": {0, false},
	}
	for path, tt := range tests {
		f, ok := FormatFor(path)
		assert.Equal(t, tt.ok, ok, path)
		if ok {
			assert.Equal(t, tt.format, f, path)
		}
	}
	assert.True(t, IsProjectFile("x.phproj"))
	assert.False(t, IsProjectFile("x.sf2"))
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.phproj")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFile(path, sampleDoc()))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleDoc(), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")

	assert.ErrorIs(t, WriteFile(filepath.Join(dir, "x.txt"), sampleDoc()), ErrUnknownFormat)
	_, err = ReadFile(filepath.Join(dir, "x.txt"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsCompatible(t *testing.T) {
	assert.True(t, IsCompatible("2.0"))
	assert.True(t, IsCompatible("2.1"))
	assert.False(t, IsCompatible("1.0"))
	assert.False(t, IsCompatible(""))
}
