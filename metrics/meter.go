package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Meter measures loop throughput: frames processed between Start and Stop
// and the resulting frames per second.
type Meter struct {
	mu      sync.Mutex
	clk     clock.Clock
	started time.Time
	stopped time.Time
	frames  int64
}

// NewMeter creates a meter on the wall clock.
func NewMeter() *Meter {
	return NewMeterWithClock(clock.New())
}

// NewMeterWithClock creates a meter on a caller-supplied clock.
func NewMeterWithClock(clk clock.Clock) *Meter {
	return &Meter{clk: clk}
}

// Start begins the measurement window.
func (m *Meter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = m.clk.Now()
	m.stopped = time.Time{}
	m.frames = 0
}

// Update counts one processed frame.
func (m *Meter) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
}

// Stop ends the measurement window.
func (m *Meter) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = m.clk.Now()
}

// Elapsed returns the measured window duration. Before Stop it measures up
// to the current time.
func (m *Meter) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started.IsZero() {
		return 0
	}
	end := m.stopped
	if end.IsZero() {
		end = m.clk.Now()
	}
	return end.Sub(m.started)
}

// FPS returns the approximate frames per second over the measured window.
func (m *Meter) FPS() float64 {
	elapsed := m.Elapsed().Seconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.frames) / elapsed
}
