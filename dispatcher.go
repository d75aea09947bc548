package plughost

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shaban/plughost/engine/action"
	"github.com/shaban/plughost/registry"
)

// Callback identifies an engine event.
type Callback int

const (
	CallbackDebug Callback = iota
	CallbackPluginAdded
	CallbackPluginRemoved
	CallbackPluginRenamed
	CallbackPluginsSwitched
	CallbackPluginUnavailable
	CallbackReloadAll
	CallbackEngineStarted
	CallbackEngineStopped
	CallbackIdle
	CallbackBufferSizeChanged
	CallbackSampleRateChanged
	CallbackOfflineModeChanged
	CallbackDevicesChanged
)

func (c Callback) String() string {
	switch c {
	case CallbackDebug:
		return "Debug"
	case CallbackPluginAdded:
		return "PluginAdded"
	case CallbackPluginRemoved:
		return "PluginRemoved"
	case CallbackPluginRenamed:
		return "PluginRenamed"
	case CallbackPluginsSwitched:
		return "PluginsSwitched"
	case CallbackPluginUnavailable:
		return "PluginUnavailable"
	case CallbackReloadAll:
		return "ReloadAll"
	case CallbackEngineStarted:
		return "EngineStarted"
	case CallbackEngineStopped:
		return "EngineStopped"
	case CallbackIdle:
		return "Idle"
	case CallbackBufferSizeChanged:
		return "BufferSizeChanged"
	case CallbackSampleRateChanged:
		return "SampleRateChanged"
	case CallbackOfflineModeChanged:
		return "OfflineModeChanged"
	case CallbackDevicesChanged:
		return "DevicesChanged"
	default:
		return fmt.Sprintf("Callback(%d)", int(c))
	}
}

// Event is one engine notification.
type Event struct {
	Opcode   Callback
	PluginID int
	Value1   int
	Value2   int
	Value3   float32
	ValueStr string
}

// Listener receives engine events on the goroutine that caused them.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

type listeners struct {
	mu   sync.RWMutex
	next uint64
	set  map[uint64]Listener
}

// AddListener registers l and returns a function removing it.
func (e *Engine) AddListener(l Listener) (remove func()) {
	e.listeners.mu.Lock()
	if e.listeners.set == nil {
		e.listeners.set = make(map[uint64]Listener)
	}
	id := e.listeners.next
	e.listeners.next++
	e.listeners.set[id] = l
	e.listeners.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.listeners.mu.Lock()
			delete(e.listeners.set, id)
			e.listeners.mu.Unlock()
		})
	}
}

// subscription forwards events to a channel without blocking. Events are
// dropped while the channel is full.
type subscription struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscription) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Subscribe returns a channel receiving events and a function that
// unsubscribes and closes it.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	s := &subscription{ch: make(chan Event, buffer)}
	remove := e.AddListener(s)
	return s.ch, func() {
		remove()
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		s.mu.Unlock()
	}
}

// emit delivers ev to every listener in registration order. Idle events mark
// the engine as idling, which rejects mutating calls made from the listener.
func (e *Engine) emit(ev Event) {
	if ev.Opcode == CallbackIdle {
		e.isIdling.Store(true)
		defer e.isIdling.Store(false)
	}

	e.listeners.mu.RLock()
	ids := make([]uint64, 0, len(e.listeners.set))
	for id := range e.listeners.set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = e.listeners.set[id]
	}
	e.listeners.mu.RUnlock()

	for _, l := range ls {
		e.deliver(l, ev)
	}
}

func (e *Engine) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.errorHandler.HandleError(fmt.Errorf("listener panic on %s: %v", ev.Opcode, r))
		}
	}()
	l.OnEvent(ev)
}

// applyAction performs a on the registry. With block false it only takes the
// registry if it is free.
func (e *Engine) applyAction(a action.Action, block bool) bool {
	reg := e.reg()
	fn := func(tx *registry.Tx) {
		switch a.Op {
		case action.RemoveOne:
			tx.RemoveCompact(a.A)
		case action.RemoveAll:
			tx.Drain()
		case action.SwitchTwo:
			tx.Switch(a.A, a.B)
		}
	}
	if block {
		reg.Mutate(fn)
		return true
	}
	return reg.TryMutate(fn)
}

// ActionStats reports how long registry actions took to apply.
func (e *Engine) ActionStats() action.Stats {
	return e.coord.Stats()
}

// lockAction arms a and waits until it is applied, translating coordinator
// errors into engine errors.
func (e *Engine) lockAction(a action.Action) error {
	lock, err := e.coord.Lock(a)
	if err != nil {
		if errors.Is(err, action.ErrBusy) {
			return precondition(msgActionPending)
		}
		return err
	}
	defer lock.Release()
	return nil
}
