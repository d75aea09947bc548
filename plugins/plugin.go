package plugins

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// Parameter describes one automatable plugin parameter.
type Parameter struct {
	DisplayName  string  `json:"displayName"`
	Identifier   string  `json:"identifier"`
	MinValue     float32 `json:"minValue"`
	MaxValue     float32 `json:"maxValue"`
	DefaultValue float32 `json:"defaultValue"`
	Unit         string  `json:"unit,omitempty"`
	IsWritable   bool    `json:"isWritable"`
	CanRamp      bool    `json:"canRamp"`
}

// Clamp limits v to the parameter range.
func (p Parameter) Clamp(v float32) float32 {
	if p.MaxValue <= p.MinValue {
		return v
	}
	if v < p.MinValue {
		return p.MinValue
	}
	if v > p.MaxValue {
		return p.MaxValue
	}
	return v
}

// Parameters is a parameter list with filtering helpers.
type Parameters []Parameter

// ByUnit returns parameters of a specific unit type
func (params Parameters) ByUnit(unit string) Parameters {
	var filtered Parameters
	for _, p := range params {
		if p.Unit == unit {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Writable returns only writable parameters
func (params Parameters) Writable() Parameters {
	var filtered Parameters
	for _, p := range params {
		if p.IsWritable {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Plugin is a hosted plugin instance.
//
// Identity accessors are only mutated by the control side while it holds the
// registry write lock. The state read by the processing side (enabled, active,
// dry/wet, volume) is atomic.
type Plugin interface {
	ID() int
	SetID(id int)
	Name() string
	SetName(name string)
	Label() string
	Filename() string
	UniqueID() int64
	Extra() string
	BinaryType() BinaryType
	Type() PluginType
	Hints() Hints

	Enabled() bool
	Active() bool
	SetActive(active bool)
	DryWet() float32
	SetDryWet(v float32)
	Volume() float32
	SetVolume(v float32)

	Parameters() Parameters
	ParameterValue(index int) (float32, error)
	SetParameterValue(index int, v float32) error
	CustomData() []CustomData
	SetCustomData(typ, key, value string)

	// Process runs one processing cycle in place over buf (one slice per channel).
	Process(buf [][]float32, frames int)
	// Idle performs non-realtime housekeeping. Called from the engine idle sweep.
	Idle()

	BufferSizeChanged(size int)
	SampleRateChanged(rate float64)
	OfflineModeChanged(offline bool)

	State() StateSave
	LoadState(s StateSave) error
	Close() error
}

// Info is the immutable identity of an instance.
type Info struct {
	Name       string
	Label      string
	Filename   string
	UniqueID   int64
	Extra      string
	BinaryType BinaryType
	Type       PluginType
	Hints      Hints
}

// InfoFromRequest copies the identity fields of a request.
func InfoFromRequest(req Request) Info {
	return Info{
		Name:       req.Name,
		Label:      req.Label,
		Filename:   req.Filename,
		UniqueID:   req.UniqueID,
		Extra:      req.Extra,
		BinaryType: req.BinaryType,
		Type:       req.Type,
	}
}

// Base implements the format independent part of Plugin. Concrete instances
// embed it and override Process, Idle and the notifications they care about.
type Base struct {
	id   atomic.Int64
	info Info

	enabled atomic.Bool
	active  atomic.Bool
	dryWet  atomic.Uint32
	volume  atomic.Uint32

	bufferSize atomic.Int64
	sampleRate atomic.Uint64
	offline    atomic.Bool

	mu         sync.RWMutex
	name       string
	params     Parameters
	values     []float32
	customData []CustomData
	chunk      string
}

// NewBase returns a Base for info with the given parameters at their defaults.
func NewBase(id int, info Info, params Parameters) *Base {
	b := &Base{}
	b.Init(id, info, params)
	return b
}

// Init initializes an embedded Base in place.
func (b *Base) Init(id int, info Info, params Parameters) {
	b.id.Store(int64(id))
	b.info = info
	b.name = info.Name
	b.params = append(Parameters(nil), params...)
	b.values = make([]float32, len(params))
	for i, p := range params {
		b.values[i] = p.DefaultValue
	}
	b.enabled.Store(true)
	b.dryWet.Store(math.Float32bits(1))
	b.volume.Store(math.Float32bits(1))
}

func (b *Base) ID() int          { return int(b.id.Load()) }
func (b *Base) SetID(id int)     { b.id.Store(int64(id)) }
func (b *Base) Label() string    { return b.info.Label }
func (b *Base) Filename() string { return b.info.Filename }
func (b *Base) UniqueID() int64  { return b.info.UniqueID }
func (b *Base) Extra() string    { return b.info.Extra }

func (b *Base) BinaryType() BinaryType { return b.info.BinaryType }
func (b *Base) Type() PluginType       { return b.info.Type }
func (b *Base) Hints() Hints           { return b.info.Hints }

// AddHints sets extra capability bits. Only valid before the instance is published.
func (b *Base) AddHints(h Hints) { b.info.Hints |= h }

func (b *Base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *Base) SetName(name string) {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
}

func (b *Base) Enabled() bool           { return b.enabled.Load() }
func (b *Base) SetEnabled(enabled bool) { b.enabled.Store(enabled) }
func (b *Base) Active() bool            { return b.active.Load() }
func (b *Base) SetActive(active bool)   { b.active.Store(active) }

func (b *Base) DryWet() float32 { return math.Float32frombits(b.dryWet.Load()) }

func (b *Base) SetDryWet(v float32) {
	b.dryWet.Store(math.Float32bits(clamp01(v)))
}

func (b *Base) Volume() float32 { return math.Float32frombits(b.volume.Load()) }

// SetVolume stores v clamped to 0..1.27.
func (b *Base) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1.27 {
		v = 1.27
	}
	b.volume.Store(math.Float32bits(v))
}

func (b *Base) Parameters() Parameters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append(Parameters(nil), b.params...)
}

func (b *Base) ParameterValue(index int) (float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.values) {
		return 0, fmt.Errorf("parameter index %d out of range", index)
	}
	return b.values[index], nil
}

func (b *Base) SetParameterValue(index int, v float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.values) {
		return fmt.Errorf("parameter index %d out of range", index)
	}
	b.values[index] = b.params[index].Clamp(v)
	return nil
}

func (b *Base) CustomData() []CustomData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]CustomData(nil), b.customData...)
}

// SetCustomData stores or overwrites the value for (typ, key).
func (b *Base) SetCustomData(typ, key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.customData {
		if b.customData[i].Type == typ && b.customData[i].Key == key {
			b.customData[i].Value = value
			return
		}
	}
	b.customData = append(b.customData, CustomData{Type: typ, Key: key, Value: value})
}

// CustomValue returns the value stored under key.
func (b *Base) CustomValue(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, cd := range b.customData {
		if cd.Key == key {
			return cd.Value, true
		}
	}
	return "", false
}

func (b *Base) SetChunk(chunk string) {
	b.mu.Lock()
	b.chunk = chunk
	b.mu.Unlock()
}

// Process applies volume to buf. Formats with real DSP override it.
func (b *Base) Process(buf [][]float32, frames int) {
	vol := b.Volume()
	if vol == 1 {
		return
	}
	for _, ch := range buf {
		n := frames
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			ch[i] *= vol
		}
	}
}

func (b *Base) Idle() {}

func (b *Base) BufferSizeChanged(size int)      { b.bufferSize.Store(int64(size)) }
func (b *Base) SampleRateChanged(rate float64)  { b.sampleRate.Store(math.Float64bits(rate)) }
func (b *Base) OfflineModeChanged(offline bool) { b.offline.Store(offline) }
func (b *Base) BufferSize() int                 { return int(b.bufferSize.Load()) }
func (b *Base) SampleRate() float64             { return math.Float64frombits(b.sampleRate.Load()) }
func (b *Base) Offline() bool                   { return b.offline.Load() }

// State captures the persisted state of the instance.
func (b *Base) State() StateSave {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := StateSave{
		Type:       b.info.Type.String(),
		BinaryType: b.info.BinaryType.String(),
		Name:       b.name,
		Label:      b.info.Label,
		Binary:     b.info.Filename,
		UniqueID:   b.info.UniqueID,
		Active:     b.Active(),
		DryWet:     b.DryWet(),
		Volume:     b.Volume(),
		Chunk:      b.chunk,
	}
	for i, p := range b.params {
		s.Parameters = append(s.Parameters, ParamValue{
			Index:  i,
			Name:   p.DisplayName,
			Symbol: p.Identifier,
			Value:  b.values[i],
		})
	}
	s.CustomData = append(s.CustomData, b.customData...)
	return s
}

// LoadState restores parameters, custom data, chunk and mixer state. Parameters are
// matched by symbol first, then by index. Identity fields in s are ignored.
func (b *Base) LoadState(s StateSave) error {
	b.mu.Lock()
	for _, pv := range s.Parameters {
		idx := -1
		if pv.Symbol != "" {
			for i, p := range b.params {
				if p.Identifier == pv.Symbol {
					idx = i
					break
				}
			}
		}
		if idx < 0 && pv.Index >= 0 && pv.Index < len(b.params) {
			idx = pv.Index
		}
		if idx < 0 {
			continue
		}
		b.values[idx] = b.params[idx].Clamp(pv.Value)
	}
	b.chunk = s.Chunk
	b.mu.Unlock()

	for _, cd := range s.CustomData {
		b.SetCustomData(cd.Type, cd.Key, cd.Value)
	}
	b.SetDryWet(s.DryWet)
	b.SetVolume(s.Volume)
	b.SetActive(s.Active)
	return nil
}

func (b *Base) Close() error {
	b.enabled.Store(false)
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// List is a snapshot of hosted instances with filtering helpers.
type List []Plugin

// ByType returns plugins of the given format
func (l List) ByType(t PluginType) List {
	var filtered List
	for _, p := range l {
		if p.Type() == t {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// ByName returns plugins matching a name pattern (case-insensitive)
func (l List) ByName(pattern string) List {
	var filtered List
	for _, p := range l {
		if matchesPattern(p.Name(), pattern) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Enabled returns only enabled plugins
func (l List) Enabled() List {
	var filtered List
	for _, p := range l {
		if p.Enabled() {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func matchesPattern(name, pattern string) bool {
	return strings.Contains(strings.ToUpper(name), strings.ToUpper(pattern))
}
