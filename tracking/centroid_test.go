package tracking

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/rs/zerolog"

	"dwellcam/detection"
)

func personAt(x, y int) *detection.Prediction {
	return &detection.Prediction{
		Box:        image.Rect(x-10, y-20, x+10, y+20),
		Label:      "person",
		Confidence: 0.9,
	}
}

func newTestTracker() *Tracker {
	return New(3, 50, zerolog.Nop())
}

func TestRegisterAssignsSequentialIdentities(t *testing.T) {
	tr := newTestTracker()

	objects := tr.Update([]*detection.Prediction{personAt(100, 100), personAt(300, 100)})
	if len(objects) != 2 {
		t.Fatalf("expected 2 tracked objects, got %d", len(objects))
	}
	for _, id := range []int{0, 1} {
		if _, ok := objects[id]; !ok {
			t.Fatalf("expected identity %d in tracker output", id)
		}
	}
}

func TestStableIdentityAcrossSmallMovement(t *testing.T) {
	tr := newTestTracker()

	tr.Update([]*detection.Prediction{personAt(100, 100)})
	objects := tr.Update([]*detection.Prediction{personAt(120, 110)})

	if len(objects) != 1 {
		t.Fatalf("expected 1 tracked object, got %d", len(objects))
	}
	if _, ok := objects[0]; !ok {
		t.Fatalf("expected identity 0 to survive small movement, got %v", objects)
	}
}

func TestDistantDetectionRegistersNewIdentity(t *testing.T) {
	tr := newTestTracker()

	tr.Update([]*detection.Prediction{personAt(100, 100)})
	objects := tr.Update([]*detection.Prediction{personAt(500, 400)})

	if _, ok := objects[1]; !ok {
		t.Fatalf("expected a fresh identity beyond max distance, got %v", objects)
	}
	if _, ok := objects[0]; ok {
		t.Fatalf("identity 0 had no detection this frame, must not appear in output")
	}
}

func TestDeregistrationAfterMissedFrames(t *testing.T) {
	tr := newTestTracker()

	tr.Update([]*detection.Prediction{personAt(100, 100)})
	for i := 0; i < 4; i++ {
		if objects := tr.Update(nil); len(objects) != 0 {
			t.Fatalf("expected empty output during absence, got %v", objects)
		}
	}

	if got := tr.ActiveCount(); got != 0 {
		t.Fatalf("expected identity to be deregistered, registry has %d entries", got)
	}
}

func TestIdentitiesNeverReused(t *testing.T) {
	tr := newTestTracker()

	tr.Update([]*detection.Prediction{personAt(100, 100)})
	for i := 0; i < 4; i++ {
		tr.Update(nil)
	}

	objects := tr.Update([]*detection.Prediction{personAt(100, 100)})
	if _, ok := objects[1]; !ok {
		t.Fatalf("expected re-entering person to get identity 1, got %v", objects)
	}
}

func TestMissedIdentityRecovers(t *testing.T) {
	tr := newTestTracker()

	tr.Update([]*detection.Prediction{personAt(100, 100)})
	tr.Update(nil)
	tr.Update(nil)

	objects := tr.Update([]*detection.Prediction{personAt(110, 100)})
	if _, ok := objects[0]; !ok {
		t.Fatalf("expected identity 0 to recover within deregister window, got %v", objects)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	tr := newTestTracker()
	tr.Update([]*detection.Prediction{personAt(100, 100), personAt(300, 100)})

	raw, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal registry: %v", err)
	}

	restored := newTestTracker()
	if err := json.Unmarshal(raw, restored); err != nil {
		t.Fatalf("unmarshal registry: %v", err)
	}

	if got := restored.ActiveCount(); got != 2 {
		t.Fatalf("expected 2 restored identities, got %d", got)
	}

	// A continuing person keeps their identity across the restart.
	objects := restored.Update([]*detection.Prediction{personAt(105, 100)})
	if _, ok := objects[0]; !ok {
		t.Fatalf("expected identity 0 after restore, got %v", objects)
	}

	// A new person continues the identity sequence, never reusing.
	objects = restored.Update([]*detection.Prediction{personAt(105, 100), personAt(600, 400)})
	if _, ok := objects[2]; !ok {
		t.Fatalf("expected next identity 2 after restore, got %v", objects)
	}
}
