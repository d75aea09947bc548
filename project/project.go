// Package project reads and writes plughost project and preset files.
//
// A Document is format independent; the codec is picked from the file
// extension. XML is the native format, JSON and YAML carry the same data.
package project

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaban/plughost/plugins"
)

// Version is the document format version written by Encode.
const Version = "2.0"

const (
	rootProject = "PLUGHOST-PROJECT"
	rootPreset  = "PLUGHOST-PRESET"
)

var (
	ErrNotProject          = errors.New("not a valid project file")
	ErrUnknownFormat       = errors.New("unknown project format")
	ErrIncompatibleVersion = errors.New("incompatible project version")
)

// Format is an on-disk encoding.
type Format int

const (
	FormatXML Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFor returns the format for path's extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".phproj", ".phpreset", ".xml":
		return FormatXML, true
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return 0, false
	}
}

// IsProjectFile reports whether path has a project or preset extension.
func IsProjectFile(path string) bool {
	_, ok := FormatFor(path)
	return ok
}

// Connection is one patchbay connection between two port names.
type Connection struct {
	Source string `json:"source" yaml:"source" xml:"Source"`
	Target string `json:"target" yaml:"target" xml:"Target"`
}

// Document is the content of a project or preset file. A preset holds a
// single plugin and no connections.
type Document struct {
	Version     string              `json:"version" yaml:"version"`
	Preset      bool                `json:"preset,omitempty" yaml:"preset,omitempty"`
	Plugins     []plugins.StateSave `json:"plugins" yaml:"plugins"`
	Connections []Connection        `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// New returns an empty project document of the current version.
func New() *Document {
	return &Document{Version: Version}
}

// IsCompatible reports whether a document of version can be read. Only the
// major version has to match.
func IsCompatible(version string) bool {
	major, _, _ := strings.Cut(version, ".")
	want, _, _ := strings.Cut(Version, ".")
	return major == want
}

// Validate checks the document structure.
func (d *Document) Validate() error {
	if !IsCompatible(d.Version) {
		return fmt.Errorf("%w: %q", ErrIncompatibleVersion, d.Version)
	}
	if d.Preset && len(d.Plugins) != 1 {
		return fmt.Errorf("%w: preset holds %d plugins", ErrNotProject, len(d.Plugins))
	}
	for i, c := range d.Connections {
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("connection %d: empty port name", i)
		}
	}
	return nil
}

type xmlProject struct {
	XMLName     xml.Name            `xml:"PLUGHOST-PROJECT"`
	Version     string              `xml:"VERSION,attr"`
	Plugins     []plugins.StateSave `xml:"Plugin"`
	Connections []Connection        `xml:"Patchbay>Connection"`
}

type xmlPreset struct {
	XMLName xml.Name `xml:"PLUGHOST-PRESET"`
	Version string   `xml:"VERSION,attr"`
	plugins.StateSave
}

// Encode writes doc to w in format.
func Encode(w io.Writer, doc *Document, format Format) error {
	if doc.Version == "" {
		doc.Version = Version
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	switch format {
	case FormatXML:
		var v any
		if doc.Preset {
			v = xmlPreset{Version: doc.Version, StateSave: doc.Plugins[0]}
		} else {
			v = xmlProject{Version: doc.Version, Plugins: doc.Plugins, Connections: doc.Connections}
		}
		if _, err := io.WriteString(w, xml.Header+"<!DOCTYPE PLUGHOST-PROJECT>\n"); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", " ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode project: %w", err)
		}
		_, err := io.WriteString(w, "\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode project: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode project: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
}

// Decode reads a document in format from r.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc *Document
	switch format {
	case FormatXML:
		doc, err = decodeXML(data)
	case FormatJSON:
		doc = &Document{}
		if err = json.Unmarshal(data, doc); err != nil {
			err = fmt.Errorf("%w: %v", ErrNotProject, err)
		}
	case FormatYAML:
		doc = &Document{}
		if err = yaml.Unmarshal(data, doc); err != nil {
			err = fmt.Errorf("%w: %v", ErrNotProject, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrNotProject)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeXML(data []byte) (*Document, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}
	switch root {
	case rootProject:
		var p xmlProject
		if err := xml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode project: %w", err)
		}
		return &Document{Version: p.Version, Plugins: p.Plugins, Connections: p.Connections}, nil
	case rootPreset:
		var p xmlPreset
		if err := xml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode preset: %w", err)
		}
		return &Document{Version: p.Version, Preset: true, Plugins: []plugins.StateSave{p.StateSave}}, nil
	default:
		return nil, fmt.Errorf("%w: root element %q", ErrNotProject, root)
	}
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotProject, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// ReadFile decodes the file at path using its extension.
func ReadFile(path string) (*Document, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile encodes doc to path, replacing any existing file atomically.
func WriteFile(path string, doc *Document) error {
	format, ok := FormatFor(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, doc, format); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
