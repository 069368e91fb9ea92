package detection

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestFilterByLabel(t *testing.T) {
	preds := []*Prediction{
		{Label: "person", Confidence: 0.9},
		{Label: "dog", Confidence: 0.95},
		{Label: "person", Confidence: 0.82},
		{Label: "chair", Confidence: 0.88},
	}

	people := FilterByLabel(preds, "person")
	if len(people) != 2 {
		t.Fatalf("expected 2 person predictions, got %d", len(people))
	}
	for _, p := range people {
		if p.Label != "person" {
			t.Fatalf("unexpected label %q", p.Label)
		}
	}

	if got := FilterByLabel(preds, "bicycle"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestPredictionCenter(t *testing.T) {
	p := &Prediction{Box: image.Rect(100, 200, 140, 280)}
	if c := p.Center(); c.X != 120 || c.Y != 240 {
		t.Fatalf("Center() = %v, want (120, 240)", c)
	}
}

func TestModelFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"mobilenet_ssd.caffemodel", "mobilenet_ssd.prototxt", "mobilenet_ssd.names"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	weights, config, names, err := ModelFiles(dir, "mobilenet_ssd")
	if err != nil {
		t.Fatalf("ModelFiles: %v", err)
	}
	if filepath.Base(weights) != "mobilenet_ssd.caffemodel" {
		t.Fatalf("unexpected weights path %s", weights)
	}
	if filepath.Base(config) != "mobilenet_ssd.prototxt" {
		t.Fatalf("unexpected config path %s", config)
	}
	if filepath.Base(names) != "mobilenet_ssd.names" {
		t.Fatalf("unexpected names path %s", names)
	}
}

func TestModelFilesDarknet(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"yolo_v3_tiny.weights", "yolo_v3_tiny.cfg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	weights, config, _, err := ModelFiles(dir, "yolo_v3_tiny")
	if err != nil {
		t.Fatalf("ModelFiles: %v", err)
	}
	if filepath.Base(weights) != "yolo_v3_tiny.weights" || filepath.Base(config) != "yolo_v3_tiny.cfg" {
		t.Fatalf("unexpected paths %s, %s", weights, config)
	}
}

func TestModelFilesMissing(t *testing.T) {
	if _, _, _, err := ModelFiles(t.TempDir(), "mobilenet_ssd"); err == nil {
		t.Fatalf("expected an error for a missing model")
	}
}
