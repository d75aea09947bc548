package plughost

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shaban/plughost/engine/action"
	"github.com/shaban/plughost/plugins"
	"github.com/shaban/plughost/registry"
)

// AddPlugin instantiates a plugin and publishes it. When a replace is armed
// the new instance takes over the armed slot instead of a new one.
func (e *Engine) AddPlugin(btype plugins.BinaryType, ptype plugins.PluginType, filename, name, label string, uniqueID int64, extra string) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()
	_, err = e.addPlugin(plugins.Request{
		BinaryType: btype,
		Type:       ptype,
		Filename:   filename,
		Name:       name,
		Label:      label,
		UniqueID:   uniqueID,
		Extra:      extra,
	})
	return e.fail(err)
}

// addPlugin runs with the operation lock held and returns the slot id.
func (e *Engine) addPlugin(req plugins.Request) (int, error) {
	if req.BinaryType == plugins.BinaryNone {
		return -1, precondition("Invalid plugin binary type")
	}
	if req.Type == plugins.TypeNone {
		return -1, precondition("Invalid plugin type")
	}
	if req.Filename == "" && req.Label == "" {
		return -1, precondition("Invalid plugin filename and label")
	}

	reg := e.reg()
	count := reg.Count()
	id := count
	replacing := false
	if cursor := int(e.replaceID.Swap(noReplace)); cursor != noReplace && cursor < count {
		id = cursor
		replacing = true
	}
	if !replacing && id == reg.Capacity() {
		return -1, fmt.Errorf("%w: %s", ErrResourceExhausted, msgMaxPlugins)
	}

	candidate := req.Name
	if candidate == "" {
		candidate = req.Label
	}
	if candidate == "" {
		candidate = filepath.Base(req.Filename)
	}
	existing := reg.Names()
	if replacing {
		// the outgoing instance does not count as a collision
		existing = append(existing[:id:id], existing[id+1:]...)
	}
	req.Name = e.allocator().Unique(candidate, existing, e.IsRunning())
	req.ID = id

	e.configureFactory()
	p, err := e.factory.New(context.Background(), req)
	if err != nil {
		e.logger.Warn("plugin load failed", "type", req.Type.String(), "filename", req.Filename, "label", req.Label, "error", err)
		return -1, err
	}
	p.SetName(req.Name)
	p.SetID(id)
	p.BufferSizeChanged(e.BufferSize())
	p.SampleRateChanged(e.SampleRate())
	e.control.RegisterPlugin(id, p)

	if replacing {
		e.completeReplace(id, p)
		return id, nil
	}

	var appendErr error
	reg.Mutate(func(tx *registry.Tx) {
		id, appendErr = tx.Append(p)
	})
	if appendErr != nil {
		e.control.UnregisterPlugin(req.ID)
		_ = p.Close()
		return -1, fmt.Errorf("%w: %s", ErrResourceExhausted, msgMaxPlugins)
	}
	e.logger.Info("plugin added", "id", id, "name", p.Name(), "type", p.Type().String())
	e.emit(Event{Opcode: CallbackPluginAdded, PluginID: id, ValueStr: p.Name()})
	return id, nil
}

// completeReplace swaps p into slot id, carries over the old instance's mix
// settings and active state, and destroys the old instance.
func (e *Engine) completeReplace(id int, p plugins.Plugin) {
	e.pauseWorker()
	defer e.resumeWorker()

	reg := e.reg()
	old, _ := reg.Get(id)
	var (
		active         bool
		dryWet, volume float32 = 1, 1
	)
	if old != nil {
		active, dryWet, volume = old.Active(), old.DryWet(), old.Volume()
	}
	reg.Mutate(func(tx *registry.Tx) {
		old = tx.Replace(id, p)
	})
	if old != nil {
		if err := old.Close(); err != nil {
			e.logger.Warn("closing replaced plugin", "id", id, "error", err)
		}
	}
	if p.Hints().Has(plugins.HintCanDryWet) {
		p.SetDryWet(dryWet)
	}
	if p.Hints().Has(plugins.HintCanVolume) {
		p.SetVolume(volume)
	}
	p.SetActive(active)

	e.logger.Info("plugin replaced", "id", id, "name", p.Name())
	e.emit(Event{Opcode: CallbackReloadAll, PluginID: id})
}

// configureFactory copies the current options into the factory.
func (e *Engine) configureFactory() {
	opts := e.Options()
	e.factory.BinaryDir = opts.BinaryDir
	e.factory.PreferBridges = opts.PreferPluginBridges
	if opts.ResourceDir != e.resourceDir {
		e.resourceDir = opts.ResourceDir
		if _, custom := e.loaders[plugins.TypeInternal]; !custom {
			e.factory.Register(plugins.TypeInternal, plugins.InternalLoader{ResourceDir: opts.ResourceDir})
		}
	}
}

// RemovePlugin destroys plugin id. Following plugins move down one slot.
func (e *Engine) RemovePlugin(id int) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()
	return e.fail(e.removePlugin(id))
}

func (e *Engine) removePlugin(id int) error {
	reg := e.reg()
	count := reg.Count()
	if count == 0 {
		return precondition("No plugins loaded")
	}
	p, err := reg.Get(id)
	if err != nil {
		return precondition(msgInvalidID)
	}

	e.pauseWorker()
	defer e.resumeWorker()

	if err := e.lockAction(action.Action{Op: action.RemoveOne, A: id, Wait: e.lockWait()}); err != nil {
		return err
	}

	e.control.UnregisterPlugin(count - 1)
	for i, q := range reg.Plugins()[id:] {
		e.control.RegisterPlugin(id+i, q)
	}
	if cursor := int(e.replaceID.Load()); cursor != noReplace && cursor >= reg.Count() {
		e.replaceID.Store(noReplace)
	}
	if err := p.Close(); err != nil {
		e.logger.Warn("closing removed plugin", "id", id, "error", err)
	}

	e.logger.Info("plugin removed", "id", id, "name", p.Name())
	e.emit(Event{Opcode: CallbackPluginRemoved, PluginID: id})
	return nil
}

// RemoveAllPlugins destroys every plugin. Listeners receive an Idle event
// before the registry is drained and after each destroyed instance.
func (e *Engine) RemoveAllPlugins() error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()
	return e.fail(e.removeAll())
}

func (e *Engine) removeAll() error {
	reg := e.reg()
	if reg.Count() == 0 {
		return nil
	}
	if e.replaceID.Load() != noReplace {
		return precondition("Cannot remove all plugins while a replace is pending")
	}

	e.pauseWorker()
	defer e.resumeWorker()

	list := reg.Plugins()
	if err := e.lockAction(action.Action{Op: action.RemoveAll, Wait: e.IsRunning()}); err != nil {
		return err
	}
	e.emit(Event{Opcode: CallbackIdle})

	for i, p := range list {
		e.control.UnregisterPlugin(i)
		if err := p.Close(); err != nil {
			e.logger.Warn("closing plugin", "id", i, "error", err)
		}
		e.emit(Event{Opcode: CallbackIdle})
	}
	e.logger.Info("all plugins removed", "count", len(list))
	return nil
}

// RenamePlugin gives plugin id a unique name derived from newName and returns it.
func (e *Engine) RenamePlugin(id int, newName string) (string, error) {
	done, err := e.beginOp()
	if err != nil {
		return "", e.fail(err)
	}
	defer done()

	if newName == "" {
		return "", e.fail(precondition("Invalid plugin name"))
	}
	reg := e.reg()
	p, err := reg.Get(id)
	if err != nil {
		return "", e.fail(precondition(msgInvalidID))
	}
	names := reg.Names()
	names = append(names[:id:id], names[id+1:]...)
	name := e.allocator().Unique(newName, names, e.IsRunning())
	p.SetName(name)

	e.emit(Event{Opcode: CallbackPluginRenamed, PluginID: id, ValueStr: name})
	return name, nil
}

// ClonePlugin adds a new instance with the identity and state of plugin id.
func (e *Engine) ClonePlugin(id int) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	if e.replaceID.Load() != noReplace {
		return e.fail(precondition("Cannot clone while a replace is pending"))
	}
	p, err := e.reg().Get(id)
	if err != nil {
		return e.fail(precondition(msgInvalidID))
	}
	state := p.State()
	newID, err := e.addPlugin(plugins.Request{
		BinaryType: p.BinaryType(),
		Type:       p.Type(),
		Filename:   p.Filename(),
		Name:       p.Name(),
		Label:      p.Label(),
		UniqueID:   p.UniqueID(),
		Extra:      p.Extra(),
	})
	if err != nil {
		return e.fail(err)
	}
	if err := e.reg().Unchecked(newID).LoadState(state); err != nil {
		e.logger.Warn("clone state not restored", "id", newID, "error", err)
	}
	return nil
}

// ReplacePlugin arms the next AddPlugin to take over slot id. Passing the
// current count or the capacity disarms a pending replace.
func (e *Engine) ReplacePlugin(id int) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	reg := e.reg()
	count := reg.Count()
	if count == 0 {
		return e.fail(precondition("No plugins loaded"))
	}
	switch {
	case id == count || id == reg.Capacity():
		e.replaceID.Store(noReplace)
	case id < 0 || id > count:
		return e.fail(precondition(msgInvalidID))
	default:
		e.replaceID.Store(int32(id))
	}
	return nil
}

// ReplaceTarget returns the armed replace slot, or -1.
func (e *Engine) ReplaceTarget() int { return int(e.replaceID.Load()) }

// SwitchPlugins exchanges the slots of plugins a and b.
func (e *Engine) SwitchPlugins(a, b int) error {
	done, err := e.beginOp()
	if err != nil {
		return e.fail(err)
	}
	defer done()

	count := e.reg().Count()
	if count < 2 {
		return e.fail(precondition("Not enough plugins to switch"))
	}
	if a == b {
		return e.fail(precondition("Cannot switch a plugin with itself"))
	}
	if a < 0 || b < 0 || a >= count || b >= count {
		return e.fail(precondition(msgInvalidID))
	}

	e.pauseWorker()
	defer e.resumeWorker()

	if err := e.lockAction(action.Action{Op: action.SwitchTwo, A: a, B: b, Wait: e.lockWait()}); err != nil {
		return e.fail(err)
	}
	reg := e.reg()
	e.control.RegisterPlugin(a, reg.Unchecked(a))
	e.control.RegisterPlugin(b, reg.Unchecked(b))

	e.emit(Event{Opcode: CallbackPluginsSwitched, PluginID: a, Value1: b})
	return nil
}

// GetPlugin returns plugin id. It fails while a registry action is pending.
func (e *Engine) GetPlugin(id int) (plugins.Plugin, error) {
	if !e.coord.Idle() {
		return nil, e.fail(precondition(msgActionPending))
	}
	p, err := e.reg().Get(id)
	if err != nil {
		return nil, e.fail(precondition(msgInvalidID))
	}
	return p, nil
}

// GetPluginUnchecked returns plugin id without validation. id must be below PluginCount.
func (e *Engine) GetPluginUnchecked(id int) plugins.Plugin { return e.reg().Unchecked(id) }

// Plugins returns the hosted plugins in slot order.
func (e *Engine) Plugins() plugins.List { return e.reg().Plugins() }

// PluginCount returns the number of occupied slots.
func (e *Engine) PluginCount() int { return e.reg().Count() }

// MaxPluginNumber returns the registry capacity.
func (e *Engine) MaxPluginNumber() int { return e.reg().Capacity() }

// UniquePluginName returns the name a plugin called name would get now.
func (e *Engine) UniquePluginName(name string) (string, error) {
	if name == "" {
		return "", e.fail(precondition("Invalid plugin name"))
	}
	return e.allocator().Unique(name, e.reg().Names(), e.IsRunning()), nil
}
