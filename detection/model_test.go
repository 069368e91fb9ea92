package detection

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func TestSpecForWeights(t *testing.T) {
	yolo := specForWeights("models/yolo_v3_tiny.weights")
	if yolo.inputSize != 416 || !yolo.swapRB {
		t.Fatalf("darknet weights got spec inputSize=%d swapRB=%v, want YOLO preprocessing", yolo.inputSize, yolo.swapRB)
	}

	ssd := specForWeights("models/mobilenet_ssd.caffemodel")
	if ssd.inputSize != 300 || ssd.swapRB {
		t.Fatalf("caffe weights got spec inputSize=%d swapRB=%v, want SSD preprocessing", ssd.inputSize, ssd.swapRB)
	}

	if tf := specForWeights("models/mobilenet_ssd.pb"); tf.inputSize != 300 {
		t.Fatalf("tensorflow weights got spec inputSize=%d, want SSD preprocessing", tf.inputSize)
	}
}

// yoloRow fills a region-output row: box center/size, objectness, then the
// per-class scores.
func yoloRow(output *gocv.Mat, row int, cx, cy, w, h, obj float32, scores []float32) {
	output.SetFloatAt(row, 0, cx)
	output.SetFloatAt(row, 1, cy)
	output.SetFloatAt(row, 2, w)
	output.SetFloatAt(row, 3, h)
	output.SetFloatAt(row, 4, obj)
	for i, s := range scores {
		output.SetFloatAt(row, 5+i, s)
	}
}

func TestParseYOLOOutput(t *testing.T) {
	output := gocv.NewMatWithSize(2, 7, gocv.MatTypeCV32F)
	defer output.Close()

	yoloRow(&output, 0, 0.5, 0.5, 0.2, 0.4, 0.9, []float32{0.1, 0.95})
	yoloRow(&output, 1, 0.2, 0.2, 0.1, 0.1, 0.3, []float32{0.2, 0.1})

	preds := parseYOLOOutput(output, 200, 100, 0.5, []string{"dog", "person"})
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction above threshold, got %d", len(preds))
	}

	p := preds[0]
	if p.Label != "person" {
		t.Fatalf("unexpected label %q", p.Label)
	}
	if p.Confidence != float64(float32(0.95)) {
		t.Fatalf("unexpected confidence %v", p.Confidence)
	}
	want := image.Rect(80, 30, 120, 70)
	if p.Box != want {
		t.Fatalf("Box = %v, want %v", p.Box, want)
	}
}

func TestParseYOLOOutputClampsBox(t *testing.T) {
	output := gocv.NewMatWithSize(1, 6, gocv.MatTypeCV32F)
	defer output.Close()

	// Box centered near the right edge spills past the frame.
	yoloRow(&output, 0, 0.95, 0.5, 0.3, 0.4, 0.9, []float32{0.9})

	preds := parseYOLOOutput(output, 200, 100, 0.5, []string{"person"})
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	if max := preds[0].Box.Max.X; max > 200 {
		t.Fatalf("box not clamped to frame, Max.X = %d", max)
	}
}

func TestParseYOLOOutputUnknownClass(t *testing.T) {
	output := gocv.NewMatWithSize(1, 8, gocv.MatTypeCV32F)
	defer output.Close()

	// Best score lands on a class index past the names list.
	yoloRow(&output, 0, 0.5, 0.5, 0.2, 0.2, 0.9, []float32{0.1, 0.2, 0.9})

	if preds := parseYOLOOutput(output, 200, 100, 0.5, []string{"dog", "person"}); len(preds) != 0 {
		t.Fatalf("expected no predictions for an unknown class, got %d", len(preds))
	}
}
