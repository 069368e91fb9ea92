package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// tickFrame advances the mock clock by interval, begins a frame and ticks
// every given identity.
func tickFrame(clk *clock.Mock, a *Aggregator, interval time.Duration, ids ...int) {
	clk.Add(interval)
	a.BeginFrame()
	for _, id := range ids {
		a.Tick(id)
	}
}

func TestSingleIdentityAccrual(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	for i := 0; i < 3; i++ {
		tickFrame(clk, a, time.Second, 7)
	}

	elapsed, err := a.ElapsedFor(7)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, elapsed)

	s := a.Summary()
	require.Equal(t, 1, s.Count)
	require.Equal(t, 3*time.Second, s.Total)
	require.Equal(t, 3*time.Second, s.Avg)
	require.Equal(t, 3*time.Second, s.Max)
}

func TestTwoIdentitySummary(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	tickFrame(clk, a, time.Second, 1, 2)
	tickFrame(clk, a, time.Second, 1)
	tickFrame(clk, a, time.Second, 1)

	s := a.Summary()
	require.Equal(t, 2, s.Count)
	require.Equal(t, 4*time.Second, s.Total)
	require.Equal(t, 2*time.Second, s.Avg)
	require.Equal(t, 3*time.Second, s.Max)
}

func TestElapsedMonotonic(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	var prev time.Duration
	for i := 0; i < 50; i++ {
		tickFrame(clk, a, 33*time.Millisecond, 3)
		elapsed, err := a.ElapsedFor(3)
		require.NoError(t, err)
		require.GreaterOrEqual(t, elapsed, prev)
		prev = elapsed
	}
}

func TestCountSurvivesDeregistration(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	tickFrame(clk, a, time.Second, 1, 2, 3)

	// Identities 2 and 3 disappear; their records stay frozen.
	for i := 0; i < 10; i++ {
		tickFrame(clk, a, time.Second, 1)
	}

	s := a.Summary()
	require.Equal(t, 3, s.Count)
	require.Equal(t, 11*time.Second, s.Max)
}

func TestZeroStateSummary(t *testing.T) {
	a := NewAggregator()

	s := a.Summary()
	require.Equal(t, 0, s.Count)
	require.Equal(t, time.Duration(0), s.Total)
	require.Equal(t, time.Duration(0), s.Avg)
	require.Equal(t, time.Duration(0), s.Max)
}

func TestUnknownIdentity(t *testing.T) {
	a := NewAggregator()

	_, err := a.ElapsedFor(42)
	require.True(t, errors.Is(err, ErrUnknownIdentity))
}

func TestFirstFrameHasZeroDelta(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(time.Hour) // arbitrary process start time
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	a.Tick(1)

	elapsed, err := a.ElapsedFor(1)
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), elapsed)
}

func TestRoundTripPreservesSummary(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)

	a.BeginFrame()
	tickFrame(clk, a, time.Second, 1, 2)
	tickFrame(clk, a, 2*time.Second, 2)

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	restored := NewAggregatorWithClock(clock.NewMock())
	require.NoError(t, json.Unmarshal(raw, restored))
	require.Equal(t, a.Summary(), restored.Summary())
}

func TestRestoredAggregatorAccruesNoDowntime(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregatorWithClock(clk)
	a.BeginFrame()
	tickFrame(clk, a, time.Second, 1)

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	// Simulate a long gap between shutdown and restart.
	clk2 := clock.NewMock()
	clk2.Add(24 * time.Hour)
	restored := NewAggregatorWithClock(clk2)
	require.NoError(t, json.Unmarshal(raw, restored))

	restored.BeginFrame()
	restored.Tick(1)

	elapsed, err := restored.ElapsedFor(1)
	require.NoError(t, err)
	require.Equal(t, time.Second, elapsed)
}
