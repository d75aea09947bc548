// Package registry holds the fixed-capacity slot arena of hosted plugins.
//
// Slots [0, Count) are occupied and slot i holds the plugin whose ID is i;
// slots [Count, Capacity) are empty. The backing slice is allocated once.
//
// Structural mutation happens only inside a transaction (Mutate on the control
// side, TryMutate on the processing side). Processing-side readers use
// TryRange, which never blocks: when a transaction is in progress the caller
// outputs silence for that cycle.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/shaban/plughost/plugins"
)

var (
	// ErrInvalidID is returned for ids outside [0, Count).
	ErrInvalidID = errors.New("invalid plugin id")
	// ErrFull is returned by Append when every slot is occupied.
	ErrFull = errors.New("registry full")
)

// Slot holds one plugin and its last measured peaks.
type Slot struct {
	plugin   plugins.Plugin
	inPeaks  [2]atomic.Uint32
	outPeaks [2]atomic.Uint32
}

func (s *Slot) resetPeaks() {
	for i := range s.inPeaks {
		s.inPeaks[i].Store(0)
		s.outPeaks[i].Store(0)
	}
}

// Registry is the slot arena.
type Registry struct {
	mu    sync.RWMutex
	slots []Slot
	count atomic.Int32
}

// New returns a registry with capacity slots. capacity below 1 is raised to 1.
func New(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{slots: make([]Slot, capacity)}
}

// Capacity returns the fixed number of slots.
func (r *Registry) Capacity() int { return len(r.slots) }

// Count returns the number of occupied slots.
func (r *Registry) Count() int { return int(r.count.Load()) }

// Get returns the plugin in slot id.
func (r *Registry) Get(id int) (plugins.Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= r.Count() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return r.slots[id].plugin, nil
}

// Unchecked returns the plugin in slot id without checking occupancy. It
// returns nil for ids outside the backing array and for empty slots.
func (r *Registry) Unchecked(id int) plugins.Plugin {
	if id < 0 || id >= len(r.slots) {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[id].plugin
}

// Names returns the names of the occupied slots in slot order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.Count()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, r.slots[i].plugin.Name())
	}
	return names
}

// Plugins returns a snapshot of the occupied slots in slot order.
func (r *Registry) Plugins() plugins.List {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.Count()
	out := make(plugins.List, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.slots[i].plugin)
	}
	return out
}

// SetPeaks stores the peaks measured for slot id. Lock free.
func (r *Registry) SetPeaks(id int, in, out [2]float32) {
	if id < 0 || id >= len(r.slots) {
		return
	}
	s := &r.slots[id]
	for i := 0; i < 2; i++ {
		s.inPeaks[i].Store(math.Float32bits(in[i]))
		s.outPeaks[i].Store(math.Float32bits(out[i]))
	}
}

// InputPeak returns the left or right input peak of slot id, 0 when out of range.
func (r *Registry) InputPeak(id int, left bool) float32 {
	if id < 0 || id >= len(r.slots) {
		return 0
	}
	return math.Float32frombits(r.slots[id].inPeaks[channel(left)].Load())
}

// OutputPeak returns the left or right output peak of slot id, 0 when out of range.
func (r *Registry) OutputPeak(id int, left bool) float32 {
	if id < 0 || id >= len(r.slots) {
		return 0
	}
	return math.Float32frombits(r.slots[id].outPeaks[channel(left)].Load())
}

// ResetPeaks zeroes the peaks of slot id.
func (r *Registry) ResetPeaks(id int) {
	if id < 0 || id >= len(r.slots) {
		return
	}
	r.slots[id].resetPeaks()
}

func channel(left bool) int {
	if left {
		return 0
	}
	return 1
}

// Mutate runs fn inside a transaction, blocking until the registry is free.
func (r *Registry) Mutate(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// TryMutate runs fn inside a transaction if the registry is free right now and
// reports whether it ran.
func (r *Registry) TryMutate(fn func(tx *Tx)) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()
	fn(&Tx{r: r})
	return true
}

// TryRange calls fn for every occupied slot in order. It returns false without
// calling fn when a transaction holds the registry.
func (r *Registry) TryRange(fn func(id int, p plugins.Plugin)) bool {
	if !r.mu.TryRLock() {
		return false
	}
	defer r.mu.RUnlock()
	n := r.Count()
	for i := 0; i < n; i++ {
		fn(i, r.slots[i].plugin)
	}
	return true
}

// Tx is a registry transaction. It is only valid inside the function passed to
// Mutate or TryMutate.
type Tx struct {
	r *Registry
}

// Count returns the number of occupied slots.
func (tx *Tx) Count() int { return tx.r.Count() }

// Get returns the plugin in slot id or nil.
func (tx *Tx) Get(id int) plugins.Plugin {
	if id < 0 || id >= tx.r.Count() {
		return nil
	}
	return tx.r.slots[id].plugin
}

// Append publishes p in the first empty slot, assigns its id and returns it.
func (tx *Tx) Append(p plugins.Plugin) (int, error) {
	n := tx.r.Count()
	if n >= len(tx.r.slots) {
		return -1, ErrFull
	}
	s := &tx.r.slots[n]
	s.resetPeaks()
	s.plugin = p
	p.SetID(n)
	tx.r.count.Store(int32(n + 1))
	return n, nil
}

// Replace swaps the plugin in occupied slot id for p and returns the old one.
// It returns nil and leaves the slot untouched for invalid ids.
func (tx *Tx) Replace(id int, p plugins.Plugin) plugins.Plugin {
	if id < 0 || id >= tx.r.Count() {
		return nil
	}
	s := &tx.r.slots[id]
	old := s.plugin
	s.plugin = p
	p.SetID(id)
	s.resetPeaks()
	return old
}

// RemoveCompact removes slot id, shifts the following slots down by one and
// renumbers their plugins. It returns the removed plugin, nil for invalid ids.
func (tx *Tx) RemoveCompact(id int) plugins.Plugin {
	n := tx.r.Count()
	if id < 0 || id >= n {
		return nil
	}
	slots := tx.r.slots
	removed := slots[id].plugin
	for i := id; i < n-1; i++ {
		p := slots[i+1].plugin
		slots[i].plugin = p
		p.SetID(i)
		for c := 0; c < 2; c++ {
			slots[i].inPeaks[c].Store(slots[i+1].inPeaks[c].Load())
			slots[i].outPeaks[c].Store(slots[i+1].outPeaks[c].Load())
		}
	}
	slots[n-1].plugin = nil
	slots[n-1].resetPeaks()
	tx.r.count.Store(int32(n - 1))
	return removed
}

// Switch exchanges the plugins in slots a and b and renumbers both so that each
// slot keeps its id. Applying it twice restores the original mapping.
func (tx *Tx) Switch(a, b int) bool {
	n := tx.r.Count()
	if a < 0 || b < 0 || a >= n || b >= n || a == b {
		return false
	}
	slots := tx.r.slots
	slots[a].plugin, slots[b].plugin = slots[b].plugin, slots[a].plugin
	slots[a].plugin.SetID(a)
	slots[b].plugin.SetID(b)
	slots[a].resetPeaks()
	slots[b].resetPeaks()
	return true
}

// Drain empties the registry and returns the removed plugins in slot order.
func (tx *Tx) Drain() []plugins.Plugin {
	n := tx.r.Count()
	out := make([]plugins.Plugin, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tx.r.slots[i].plugin)
		tx.r.slots[i].plugin = nil
		tx.r.slots[i].resetPeaks()
	}
	tx.r.count.Store(0)
	return out
}
