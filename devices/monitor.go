package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shaban/plughost/logging"
)

// ErrMonitorRunning is returned by Monitor.Start when the monitor is already polling.
var ErrMonitorRunning = errors.New("device monitor is already running")

// Change is one device appearing or disappearing on a driver.
type Change struct {
	Driver string
	Device string
	Added  bool
}

// Monitor polls a Catalog for device changes. The interval backs off while
// nothing changes and resets to the base interval on the first change.
type Monitor struct {
	catalog *Catalog
	logger  logging.Logger

	mu              sync.RWMutex
	cancel          context.CancelFunc
	done            chan struct{}
	baseInterval    time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration
	noChangeCount   int
	lastChangeTime  time.Time
	known           map[string]map[string]bool
	onChange        func(Change)

	// Performance tracking
	averageCheckTime time.Duration
	maxCheckTime     time.Duration
	checkCount       int64
}

// NewMonitor creates a monitor over catalog polling every 50ms at best and
// 200ms when idle.
func NewMonitor(catalog *Catalog, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Monitor{
		catalog:         catalog,
		logger:          logger,
		baseInterval:    50 * time.Millisecond,
		maxInterval:     200 * time.Millisecond,
		currentInterval: 50 * time.Millisecond,
		lastChangeTime:  time.Now(),
	}
}

// OnChange sets the callback invoked for every added or removed device.
func (m *Monitor) OnChange(fn func(Change)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetPollingInterval updates the base polling interval (minimum 10ms)
func (m *Monitor) SetPollingInterval(interval time.Duration) error {
	if interval < 10*time.Millisecond {
		return fmt.Errorf("polling interval cannot be less than 10ms")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseInterval = interval
	if m.maxInterval < interval {
		m.maxInterval = interval
	}
	m.currentInterval = interval
	return nil
}

// PollingInterval returns the current adaptive interval.
func (m *Monitor) PollingInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentInterval
}

// Start takes the initial snapshot and begins polling until ctx is done or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrMonitorRunning
	}
	m.known = m.snapshot()
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning returns whether device monitoring is active
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	interval := m.PollingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
			if next := m.PollingInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (m *Monitor) snapshot() map[string]map[string]bool {
	snap := make(map[string]map[string]bool)
	for i, n := 0, m.catalog.Count(); i < n; i++ {
		name := m.catalog.Name(i)
		devs := make(map[string]bool)
		for _, d := range m.catalog.DeviceNames(i) {
			devs[d] = true
		}
		snap[name] = devs
	}
	return snap
}

// Check compares the catalog against the last snapshot, reports changes and
// adapts the polling interval. It returns the changes found.
func (m *Monitor) Check() []Change {
	start := time.Now()
	current := m.snapshot()

	m.mu.Lock()
	var changes []Change
	for drv, devs := range current {
		for d := range devs {
			if !m.known[drv][d] {
				changes = append(changes, Change{Driver: drv, Device: d, Added: true})
			}
		}
	}
	for drv, devs := range m.known {
		for d := range devs {
			if !current[drv][d] {
				changes = append(changes, Change{Driver: drv, Device: d})
			}
		}
	}
	m.known = current
	m.updateStats(time.Since(start))
	if len(changes) == 0 {
		m.slowdown()
	} else {
		m.speedup()
	}
	fn := m.onChange
	m.mu.Unlock()

	for _, c := range changes {
		m.logger.Info("device change", "driver", c.Driver, "device", c.Device, "added", c.Added)
		if fn != nil {
			fn(c)
		}
	}
	return changes
}

func (m *Monitor) updateStats(elapsed time.Duration) {
	m.checkCount++
	if m.checkCount == 1 {
		m.averageCheckTime = elapsed
	} else {
		// EMA with alpha = 0.1
		m.averageCheckTime = time.Duration(float64(m.averageCheckTime)*0.9 + float64(elapsed)*0.1)
	}
	if elapsed > m.maxCheckTime {
		m.maxCheckTime = elapsed
	}
	if elapsed > 5*time.Millisecond {
		m.logger.Warn("slow device check", "elapsed", elapsed)
	}
}

// After 10 unchanged checks the interval grows by 10% per check up to maxInterval.
func (m *Monitor) slowdown() {
	m.noChangeCount++
	if m.noChangeCount > 10 {
		next := time.Duration(float64(m.currentInterval) * 1.1)
		if next > m.maxInterval {
			next = m.maxInterval
		}
		m.currentInterval = next
	}
}

func (m *Monitor) speedup() {
	m.noChangeCount = 0
	m.lastChangeTime = time.Now()
	m.currentInterval = m.baseInterval
}

// PerformanceStats returns device monitoring performance statistics
func (m *Monitor) PerformanceStats() (avgTime, maxTime time.Duration, checkCount int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageCheckTime, m.maxCheckTime, m.checkCount
}
