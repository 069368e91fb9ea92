// Package tracking implements a centroid tracker: detections are associated
// with persistent integer identities by nearest-centroid matching, and an
// identity is retired after a configured number of consecutive missed frames.
// Identities are never reused within a session; a person who leaves and
// re-enters the view is assigned a fresh identity.
package tracking

import (
	"encoding/json"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"dwellcam/detection"
)

// trackedObject is the registry entry for one live identity.
type trackedObject struct {
	Centroid image.Point `json:"centroid"`
	Missing  int         `json:"missing"`
}

// Tracker matches per-frame detections against a persistent registry of
// tracked identities. The registry survives process restarts through
// Marshal/Unmarshal round trips.
type Tracker struct {
	mu               sync.Mutex
	nextID           int
	objects          map[int]*trackedObject
	deregisterFrames int
	maxDistance      float64
	logger           zerolog.Logger
}

// New creates a tracker. deregisterFrames is the number of consecutive
// frames an identity may be absent before it is retired; maxDistance is the
// maximum centroid distance for a match.
func New(deregisterFrames int, maxDistance float64, logger zerolog.Logger) *Tracker {
	return &Tracker{
		objects:          make(map[int]*trackedObject),
		deregisterFrames: deregisterFrames,
		maxDistance:      maxDistance,
		logger:           logger.With().Str("component", "tracker").Logger(),
	}
}

// Update matches the frame's detections against the registry and returns the
// identity-to-detection mapping for this frame. Detections that match no
// existing identity register a new one; identities with no detection age
// toward deregistration and are excluded from the returned map.
func (t *Tracker) Update(preds []*detection.Prediction) map[int]*detection.Prediction {
	t.mu.Lock()
	defer t.mu.Unlock()

	assigned := make(map[int]*detection.Prediction)

	if len(preds) == 0 {
		t.ageAll()
		return assigned
	}

	if len(t.objects) == 0 {
		for _, p := range preds {
			assigned[t.register(p.Center())] = p
		}
		return assigned
	}

	type candidate struct {
		id   int
		pred int
		dist float64
	}
	var candidates []candidate
	for id, obj := range t.objects {
		for i, p := range preds {
			candidates = append(candidates, candidate{id: id, pred: i, dist: distance(obj.Centroid, p.Center())})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	usedIDs := make(map[int]bool)
	usedPreds := make(map[int]bool)
	for _, c := range candidates {
		if usedIDs[c.id] || usedPreds[c.pred] || c.dist > t.maxDistance {
			continue
		}
		obj := t.objects[c.id]
		obj.Centroid = preds[c.pred].Center()
		obj.Missing = 0
		assigned[c.id] = preds[c.pred]
		usedIDs[c.id] = true
		usedPreds[c.pred] = true
	}

	for id, obj := range t.objects {
		if usedIDs[id] {
			continue
		}
		obj.Missing++
		if obj.Missing > t.deregisterFrames {
			t.deregister(id)
		}
	}

	for i, p := range preds {
		if !usedPreds[i] {
			assigned[t.register(p.Center())] = p
		}
	}

	return assigned
}

// ActiveCount returns the number of identities currently in the registry,
// including ones aging toward deregistration.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}

func (t *Tracker) register(centroid image.Point) int {
	id := t.nextID
	t.nextID++
	t.objects[id] = &trackedObject{Centroid: centroid}
	t.logger.Debug().Int("id", id).Msg("registered identity")
	return id
}

func (t *Tracker) deregister(id int) {
	delete(t.objects, id)
	t.logger.Debug().Int("id", id).Msg("deregistered identity")
}

func (t *Tracker) ageAll() {
	for id, obj := range t.objects {
		obj.Missing++
		if obj.Missing > t.deregisterFrames {
			t.deregister(id)
		}
	}
}

func distance(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Hypot(dx, dy)
}

// trackerState is the serialized form of the registry.
type trackerState struct {
	NextID  int                    `json:"next_id"`
	Objects map[int]*trackedObject `json:"objects"`
}

// MarshalJSON serializes the registry for checkpointing.
func (t *Tracker) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(trackerState{NextID: t.nextID, Objects: t.objects})
}

// UnmarshalJSON restores the registry from a checkpoint. Configuration
// (deregister frames, max distance, logger) is left as constructed.
func (t *Tracker) UnmarshalJSON(data []byte) error {
	var st trackerState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID = st.NextID
	t.objects = st.Objects
	if t.objects == nil {
		t.objects = make(map[int]*trackedObject)
	}
	return nil
}
