package plughost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaban/plughost/plugins"
	"github.com/shaban/plughost/project"
)

// sessionManagerVars mark a session manager that owns the connections.
var sessionManagerVars = []string{"PLUGHOST_DONT_MANAGE_CONNECTIONS", "LADISH_APP_NAME", "NSM_URL"}

// sixteenOuts is appended to the names of GIG and SF2 banks loaded with 16 outputs.
const sixteenOuts = " (16 outs)"

// managesConnections reports whether projects carry patchbay connections.
func (e *Engine) managesConnections() bool {
	if e.Options().ProcessMode == ProcessPatchbay {
		return true
	}
	for _, key := range sessionManagerVars {
		if _, ok := e.lookupEnv(key); ok {
			return false
		}
	}
	return true
}

// LoadFile loads path by extension: projects and presets, sound banks, audio
// files and MIDI files.
func (e *Engine) LoadFile(path string) error {
	if path == "" {
		return e.fail(precondition(msgInvalidFilename))
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return e.fail(precondition(msgMissingFile))
	}
	if project.IsProjectFile(path) {
		return e.LoadProject(path)
	}

	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	base := filepath.Base(path)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	native := plugins.NativeBinary()
	req := plugins.Request{BinaryType: native, Filename: path, Name: base, Label: base}

	switch ext {
	case "gig":
		req.Type = plugins.TypeGIG
	case "sf2":
		req.Type = plugins.TypeSF2
	case "sfz":
		req.Type = plugins.TypeSFZ
	case "aiff", "flac", "oga", "ogg", "w64", "wav":
		return e.fail(e.loadFilePlayer(base, plugins.LabelAudioFile, path))
	case "mid", "midi":
		return e.fail(e.loadFilePlayer(base, plugins.LabelMIDIFile, path))
	default:
		return e.fail(fmt.Errorf("%w: %s", ErrUnsupported, msgUnknownFileExt))
	}
	_, err = e.addPlugin(req)
	return e.fail(err)
}

func (e *Engine) loadFilePlayer(name, label, path string) error {
	id, err := e.addPlugin(plugins.Request{
		BinaryType: plugins.NativeBinary(),
		Type:       plugins.TypeInternal,
		Name:       name,
		Label:      label,
	})
	if err != nil {
		return err
	}
	e.reg().Unchecked(id).SetCustomData(plugins.CustomDataString, "file", path)
	return nil
}

// LoadProject adds every plugin of the project or preset at path and restores
// its state. Plugins that fail to load are logged and skipped.
func (e *Engine) LoadProject(path string) error {
	if path == "" {
		return e.fail(precondition(msgInvalidFilename))
	}
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	doc, err := project.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e.fail(precondition(msgMissingFile))
		}
		return e.fail(fmt.Errorf("load project: %w", err))
	}

	loaded := 0
	for i, state := range doc.Plugins {
		e.emit(Event{Opcode: CallbackIdle})
		if e.loadState(state) {
			loaded++
		} else {
			e.logger.Warn("skipping plugin from project", "index", i, "name", state.Name, "type", state.Type)
		}
		if doc.Preset {
			break
		}
	}
	e.emit(Event{Opcode: CallbackIdle})

	if e.managesConnections() {
		for _, c := range doc.Connections {
			if err := e.graph.RestoreConnection(c.Source, c.Target); err != nil {
				e.logger.Warn("connection not restored", "source", c.Source, "target", c.Target, "error", err)
			}
		}
	}
	e.logger.Info("project loaded", "path", path, "plugins", loaded, "of", len(doc.Plugins))
	return nil
}

// loadState adds the plugin described by state and restores it.
func (e *Engine) loadState(state plugins.StateSave) bool {
	btype := plugins.NativeBinary()
	if state.BinaryType != "" {
		bt, err := plugins.BinaryTypeFromString(state.BinaryType)
		if err != nil {
			e.logger.Warn("unknown binary type", "binary_type", state.BinaryType, "error", err)
			return false
		}
		btype = bt
	}
	ptype := state.PluginType()
	extra := ""
	if (ptype == plugins.TypeGIG || ptype == plugins.TypeSF2) && strings.HasSuffix(state.Label, sixteenOuts) {
		extra = "true"
	}
	id, err := e.addPlugin(plugins.Request{
		BinaryType: btype,
		Type:       ptype,
		Filename:   state.Binary,
		Name:       state.Name,
		Label:      state.Label,
		UniqueID:   state.UniqueID,
		Extra:      extra,
	})
	if err != nil {
		e.logger.Warn("plugin load failed", "name", state.Name, "error", err)
		return false
	}
	if err := e.reg().Unchecked(id).LoadState(state); err != nil {
		e.logger.Warn("plugin state not restored", "id", id, "error", err)
	}
	return true
}

// SaveProject writes the enabled plugins in slot order and, unless a session
// manager owns them, the patchbay connections.
func (e *Engine) SaveProject(path string) error {
	if path == "" {
		return e.fail(precondition(msgInvalidFilename))
	}
	doc := project.New()
	for _, p := range e.reg().Plugins().Enabled() {
		doc.Plugins = append(doc.Plugins, p.State())
	}
	if e.managesConnections() {
		doc.Connections = e.graph.Connections()
	}
	if err := project.WriteFile(path, doc); err != nil {
		if errors.Is(err, project.ErrUnknownFormat) {
			return e.fail(fmt.Errorf("%w: %s", ErrUnsupported, msgUnknownFileExt))
		}
		return e.fail(fmt.Errorf("save project: %w", err))
	}
	e.logger.Info("project saved", "path", path, "plugins", len(doc.Plugins))
	return nil
}
