// Package action coordinates structural registry mutations between control
// callers and the processing goroutine.
//
// A control caller arms one action at a time. When the engine is processing,
// the action is applied by the processing goroutine at the top of its next
// cycle (Consume) and the caller waits for it; otherwise the caller applies it
// directly. At most one action is armed at any time.
package action

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaban/plughost/logging"
)

// Opcode identifies a structural mutation.
type Opcode int

const (
	None Opcode = iota
	RemoveOne
	RemoveAll
	SwitchTwo
)

func (o Opcode) String() string {
	switch o {
	case None:
		return "none"
	case RemoveOne:
		return "remove-one"
	case RemoveAll:
		return "remove-all"
	case SwitchTwo:
		return "switch-two"
	default:
		return fmt.Sprintf("opcode(%d)", int(o))
	}
}

// Action is one pending mutation. A and B are plugin ids; B is only used by SwitchTwo.
// Wait selects hand-off to the processing goroutine.
type Action struct {
	Op   Opcode
	A    int
	B    int
	Wait bool
}

// State is the lifecycle of the armed action.
type State int32

const (
	Idle State = iota
	Pending
	Applying
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Applying:
		return "applying"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// WaitTimeout bounds how long Lock waits for the processing goroutine.
const WaitTimeout = 2 * time.Second

// slowApply is the apply duration above which a warning is logged.
const slowApply = 300 * time.Millisecond

var (
	// ErrBusy is returned when another action is already armed.
	ErrBusy = errors.New("another action is pending")
	// ErrTimeout is returned when the processing goroutine did not pick up the
	// action in time. The action was withdrawn and nothing was applied.
	ErrTimeout = errors.New("timed out waiting for the processing thread")
	// ErrNoAction is returned for actions with opcode None.
	ErrNoAction = errors.New("no action")
)

// Applier performs an action on the registry. With block false it must not
// wait for locks and returns false when it could not apply right now.
type Applier interface {
	Apply(a Action, block bool) bool
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(a Action, block bool) bool

func (f ApplierFunc) Apply(a Action, block bool) bool { return f(a, block) }

// Stats reports apply durations.
type Stats struct {
	Last    time.Duration
	Max     time.Duration
	Applied uint64
}

// Coordinator arms, hands off and applies actions.
type Coordinator struct {
	applier Applier
	logger  logging.Logger
	timeout time.Duration

	owned  atomic.Bool
	state  atomic.Int32
	action atomic.Pointer[Action]
	done   atomic.Pointer[chan struct{}]

	lastNanos atomic.Int64
	maxNanos  atomic.Int64
	applied   atomic.Uint64
}

// New returns a coordinator applying actions through applier.
func New(applier Applier, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{applier: applier, logger: logger, timeout: WaitTimeout}
}

// ScopedLock holds the armed action until Release.
type ScopedLock struct {
	c    *Coordinator
	a    Action
	once sync.Once
}

// Action returns the action this lock holds.
func (l *ScopedLock) Action() Action { return l.a }

// Release clears the action and returns the coordinator to Idle. Safe to call
// more than once.
func (l *ScopedLock) Release() {
	if l == nil {
		return
	}
	l.once.Do(l.c.reset)
}

func (c *Coordinator) reset() {
	c.action.Store(nil)
	c.state.Store(int32(Idle))
	c.owned.Store(false)
}

// Lock arms a and returns once it has been applied. The caller must Release
// the returned lock, typically with defer.
func (c *Coordinator) Lock(a Action) (*ScopedLock, error) {
	if a.Op == None {
		return nil, ErrNoAction
	}
	if !c.owned.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	c.action.Store(&a)
	lock := &ScopedLock{c: c, a: a}

	if !a.Wait {
		c.state.Store(int32(Applying))
		c.apply(a, true)
		c.state.Store(int32(Done))
		c.checkSlow(a)
		return lock, nil
	}

	done := make(chan struct{})
	c.done.Store(&done)
	c.state.Store(int32(Pending))

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-done:
		c.checkSlow(a)
		return lock, nil
	case <-timer.C:
	}

	for {
		if c.state.CompareAndSwap(int32(Pending), int32(Idle)) {
			c.logger.Warn("action withdrawn, processing thread did not respond",
				"op", a.Op.String(), "timeout", c.timeout)
			lock.Release()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, a.Op)
		}
		// The processing goroutine picked it up; the apply itself is bounded.
		select {
		case <-done:
			c.checkSlow(a)
			return lock, nil
		case <-time.After(time.Millisecond):
		}
	}
}

// Consume applies the pending action, if any. It is called by the processing
// goroutine at the top of every cycle and never blocks.
func (c *Coordinator) Consume() {
	if State(c.state.Load()) != Pending {
		return
	}
	if !c.state.CompareAndSwap(int32(Pending), int32(Applying)) {
		return
	}
	a := c.action.Load()
	if a == nil {
		c.state.Store(int32(Pending))
		return
	}
	if !c.apply(*a, false) {
		// Registry busy; retry next cycle.
		c.state.Store(int32(Pending))
		return
	}
	c.state.Store(int32(Done))
	if done := c.done.Load(); done != nil {
		close(*done)
	}
}

func (c *Coordinator) apply(a Action, block bool) bool {
	start := time.Now()
	ok := c.applier.Apply(a, block)
	if !ok {
		return false
	}
	d := time.Since(start)
	c.lastNanos.Store(int64(d))
	for {
		cur := c.maxNanos.Load()
		if int64(d) <= cur || c.maxNanos.CompareAndSwap(cur, int64(d)) {
			break
		}
	}
	c.applied.Add(1)
	return true
}

func (c *Coordinator) checkSlow(a Action) {
	if last := time.Duration(c.lastNanos.Load()); last > slowApply {
		c.logger.Warn("action apply exceeded target", "op", a.Op.String(), "duration", last, "target", slowApply)
	}
}

// State returns the current state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Idle reports whether no action is armed.
func (c *Coordinator) Idle() bool { return !c.owned.Load() }

// Pending returns the armed action, or the zero Action when idle.
func (c *Coordinator) Pending() Action {
	if a := c.action.Load(); a != nil {
		return *a
	}
	return Action{}
}

// Stats returns apply duration statistics.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Last:    time.Duration(c.lastNanos.Load()),
		Max:     time.Duration(c.maxNanos.Load()),
		Applied: c.applied.Load(),
	}
}
