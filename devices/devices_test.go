package devices

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/plughost/logging"
)

type staticFamily struct {
	mu      sync.Mutex
	drivers map[string][]string
	order   []string
}

func newStaticFamily(order ...string) *staticFamily {
	f := &staticFamily{drivers: make(map[string][]string), order: order}
	for _, d := range order {
		f.drivers[d] = nil
	}
	return f
}

func (f *staticFamily) setDevices(driver string, devs ...string) {
	f.mu.Lock()
	f.drivers[driver] = devs
	f.mu.Unlock()
}

func (f *staticFamily) DriverNames() []string { return f.order }

func (f *staticFamily) DeviceNames(driver string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.drivers[driver]...)
}

func (f *staticFamily) DeviceInfo(driver, device string) (DeviceInfo, bool) {
	for _, d := range f.DeviceNames(driver) {
		if d == device {
			return DeviceInfo{Device: Device{Name: device}}, true
		}
	}
	return DeviceInfo{}, false
}

func (f *staticFamily) Open(string) (Driver, bool) { return nil, false }

func noPorts() (ins, outs []string) { return []string{"Keys"}, []string{"Synth"} }

func TestCatalogConcatenatesFamilies(t *testing.T) {
	ext := newStaticFamily("JACK", "ALSA")
	ext.setDevices("ALSA", "hw:0", "hw:1")
	c := NewCatalog(logging.Nop(), DummyFamily{MIDIPorts: noPorts}, ext)

	require.Equal(t, 3, c.Count())
	assert.Equal(t, "Dummy", c.Name(0))
	assert.Equal(t, "JACK", c.Name(1))
	assert.Equal(t, "ALSA", c.Name(2))
	assert.Equal(t, []string{"Default"}, c.DeviceNames(0))
	assert.Equal(t, []string{"hw:0", "hw:1"}, c.DeviceNames(2))

	info := c.DeviceInfo(0, "Default")
	assert.True(t, info.CanOutput())
	assert.True(t, info.SupportsSampleRate(48000))
	assert.Contains(t, info.SupportedBufferSizes, 512)
	assert.Equal(t, []string{"Keys"}, info.MIDIInputs)
	assert.Equal(t, []string{"Synth"}, info.MIDIOutputs)
}

func TestCatalogOutOfRange(t *testing.T) {
	c := NewCatalog(nil, DummyFamily{MIDIPorts: noPorts})
	for _, i := range []int{-1, 1, 42} {
		assert.Empty(t, c.Name(i))
		assert.Nil(t, c.DeviceNames(i))
		assert.Equal(t, DeviceInfo{}, c.DeviceInfo(i, "Default"))
	}
	assert.Equal(t, DeviceInfo{}, c.DeviceInfo(0, "nope"))

	_, err := c.Open("CoreAudio")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestCommonSampleRates(t *testing.T) {
	a := DeviceInfo{SupportedSampleRates: []int{44100, 48000, 96000}}
	b := DeviceInfo{SupportedSampleRates: []int{48000, 96000, 192000}}
	assert.Equal(t, []int{48000, 96000}, a.CommonSampleRates(b))
	assert.Empty(t, a.CommonSampleRates(DeviceInfo{}))
}

func TestDummyDriverRunsProcess(t *testing.T) {
	c := NewCatalog(nil, DummyFamily{MIDIPorts: noPorts})
	d, err := c.Open(DummyDriverName)
	require.NoError(t, err)

	assert.Error(t, d.Start(), "start before open")
	assert.Error(t, d.Open(Config{}, nil))

	var cycles atomic.Int32
	var frames atomic.Int32
	require.NoError(t, d.Open(Config{BufferSize: 64, SampleRate: 48000}, func(buf [][]float32, n int) {
		frames.Store(int32(n))
		if len(buf) == 2 && len(buf[0]) == n {
			cycles.Add(1)
		}
	}))
	assert.Equal(t, 64, d.BufferSize())
	assert.Equal(t, 48000.0, d.SampleRate())

	require.NoError(t, d.Start())
	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())
	require.Eventually(t, func() bool { return cycles.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(64), frames.Load())

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())
	stopped := cycles.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, cycles.Load())

	require.NoError(t, d.Close())
	assert.Error(t, d.Start())
	assert.Equal(t, 64, d.MaxClientNameSize())
}

func TestDummyDriverDefaults(t *testing.T) {
	d := &DummyDriver{}
	require.NoError(t, d.Open(Config{}, func([][]float32, int) {}))
	assert.Equal(t, 512, d.BufferSize())
	assert.Equal(t, 48000.0, d.SampleRate())
}

func TestMIDIPortsFilters(t *testing.T) {
	ports := MIDIPorts{
		{Device: Device{Name: "Keystation 49"}, IsInput: true},
		{Device: Device{Name: "Synth Out"}, IsOutput: true},
		{Device: Device{Name: "Through"}, IsInput: true, IsOutput: true},
	}
	assert.Len(t, ports.Inputs(), 2)
	assert.Len(t, ports.Outputs(), 2)
	assert.Len(t, ports.ByName("synth"), 1)
	assert.Empty(t, ports.ByName("missing"))
}

func TestMonitorReportsChanges(t *testing.T) {
	fam := newStaticFamily("ALSA")
	fam.setDevices("ALSA", "hw:0")
	m := NewMonitor(NewCatalog(nil, fam), nil)

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrMonitorRunning)
	m.Stop()
	assert.False(t, m.IsRunning())

	var mu sync.Mutex
	var seen []Change
	m.OnChange(func(c Change) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})

	fam.setDevices("ALSA", "hw:1")
	changes := m.Check()
	assert.ElementsMatch(t, []Change{
		{Driver: "ALSA", Device: "hw:1", Added: true},
		{Driver: "ALSA", Device: "hw:0"},
	}, changes)
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()

	assert.Empty(t, m.Check())
	_, _, n := m.PerformanceStats()
	assert.Equal(t, int64(2), n)
}

func TestMonitorAdaptiveInterval(t *testing.T) {
	fam := newStaticFamily("ALSA")
	m := NewMonitor(NewCatalog(nil, fam), nil)
	m.known = m.snapshot()

	assert.Error(t, m.SetPollingInterval(time.Millisecond))
	require.NoError(t, m.SetPollingInterval(20*time.Millisecond))

	for i := 0; i < 40; i++ {
		m.Check()
	}
	assert.Equal(t, 200*time.Millisecond, m.PollingInterval())

	fam.setDevices("ALSA", "hw:2")
	m.Check()
	assert.Equal(t, 20*time.Millisecond, m.PollingInterval())
}

func TestMonitorPollsInBackground(t *testing.T) {
	fam := newStaticFamily("ALSA")
	m := NewMonitor(NewCatalog(nil, fam), nil)
	require.NoError(t, m.SetPollingInterval(10*time.Millisecond))

	var added atomic.Bool
	m.OnChange(func(c Change) {
		if c.Added && c.Device == "usb" {
			added.Store(true)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	fam.setDevices("ALSA", "usb")
	require.Eventually(t, added.Load, 2*time.Second, 5*time.Millisecond)
}
