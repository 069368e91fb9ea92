// Package metrics owns the per-identity dwell-time records and the derived
// session statistics: how many distinct people have been seen, how long each
// stayed in view, and the running total, average and maximum.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrUnknownIdentity is returned when elapsed time is requested for an
// identity that was never ticked. That is a caller contract violation, not
// an expected runtime condition.
var ErrUnknownIdentity = errors.New("metrics: unknown identity")

// DwellRecord accumulates visible time for one tracked identity. Records are
// created on first observation and never deleted; a deregistered identity's
// record stays frozen at its final dwell time.
type DwellRecord struct {
	FirstSeen time.Time     `json:"first_seen"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Summary is the session-wide statistic set, recomputed on demand.
type Summary struct {
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
}

// Aggregator owns the identity-to-DwellRecord mapping for the session.
// Dwell time accrues one frame delta per tick, where the frame delta is the
// wall-clock gap between consecutive BeginFrame calls.
type Aggregator struct {
	mu         sync.Mutex
	clk        clock.Clock
	records    map[int]*DwellRecord
	frameStart time.Time
	frameDelta time.Duration
}

// NewAggregator creates an aggregator on the wall clock.
func NewAggregator() *Aggregator {
	return NewAggregatorWithClock(clock.New())
}

// NewAggregatorWithClock creates an aggregator on a caller-supplied clock.
func NewAggregatorWithClock(clk clock.Clock) *Aggregator {
	return &Aggregator{
		clk:     clk,
		records: make(map[int]*DwellRecord),
	}
}

// BeginFrame marks the start of a new aggregation frame. The gap since the
// previous BeginFrame becomes the accrual delta for every tick in this
// frame. The first frame after construction or restore has a zero delta, so
// process downtime never counts as dwell time.
func (a *Aggregator) BeginFrame() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clk.Now()
	if a.frameStart.IsZero() {
		a.frameDelta = 0
	} else {
		a.frameDelta = now.Sub(a.frameStart)
	}
	a.frameStart = now
}

// Tick records that the identity is present in the current frame, creating
// its DwellRecord on first observation and accruing one frame delta.
func (a *Aggregator) Tick(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[id]
	if !ok {
		rec = &DwellRecord{FirstSeen: a.frameStart}
		a.records[id] = rec
	}
	rec.Elapsed += a.frameDelta
}

// ElapsedFor returns the accumulated visible time for a known identity.
func (a *Aggregator) ElapsedFor(id int) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}
	return rec.Elapsed, nil
}

// Summary computes the session statistics over every record ever created.
// With no records it returns all zeros.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Count: len(a.records)}
	for _, rec := range a.records {
		s.Total += rec.Elapsed
		if rec.Elapsed > s.Max {
			s.Max = rec.Elapsed
		}
	}
	if s.Count > 0 {
		s.Avg = s.Total / time.Duration(s.Count)
	}
	return s
}

// aggregatorState is the serialized form; frame bookkeeping is deliberately
// excluded so a restored aggregator starts with a fresh zero-delta frame.
type aggregatorState struct {
	Records map[int]*DwellRecord `json:"records"`
}

// MarshalJSON serializes the dwell records for checkpointing.
func (a *Aggregator) MarshalJSON() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.Marshal(aggregatorState{Records: a.records})
}

// UnmarshalJSON restores the dwell records from a checkpoint. The clock set
// at construction is retained.
func (a *Aggregator) UnmarshalJSON(data []byte) error {
	var st aggregatorState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = st.Records
	if a.records == nil {
		a.records = make(map[int]*DwellRecord)
	}
	a.frameStart = time.Time{}
	a.frameDelta = 0
	return nil
}
