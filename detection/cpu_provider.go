package detection

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// CPUProvider runs DNN inference on the OpenCV CPU backend.
type CPUProvider struct {
	net        gocv.Net
	spec       modelSpec
	classNames []string
	mu         sync.Mutex
}

// Initialize loads the network and class names onto the CPU backend.
func (cp *CPUProvider) Initialize(weightsPath, configPath, namesPath string) error {
	cp.net = gocv.ReadNet(weightsPath, configPath)
	if cp.net.Empty() {
		return fmt.Errorf("failed to load network from %s and %s", weightsPath, configPath)
	}

	cp.net.SetPreferableBackend(gocv.NetBackendDefault)
	cp.net.SetPreferableTarget(gocv.NetTargetCPU)
	cp.spec = specForWeights(weightsPath)

	names, err := loadClassNames(namesPath)
	if err != nil {
		return err
	}
	cp.classNames = names

	return nil
}

// Detect performs object detection on a frame using the CPU.
func (cp *CPUProvider) Detect(frame gocv.Mat, minConfidence float64) (*Result, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	start := time.Now()

	blob := gocv.BlobFromImage(frame, cp.spec.scale, image.Pt(cp.spec.inputSize, cp.spec.inputSize),
		cp.spec.mean, cp.spec.swapRB, false)
	defer blob.Close()

	cp.net.SetInput(blob, "")
	output := cp.net.Forward("")
	defer output.Close()

	preds := cp.spec.decode(output, frame.Cols(), frame.Rows(), minConfidence, cp.classNames)

	return &Result{Predictions: preds, Duration: time.Since(start)}, nil
}

// Info returns backend information.
func (cp *CPUProvider) Info() ProviderInfo {
	return ProviderInfo{Type: "CPU", Backend: "CPU"}
}

// Close releases the network.
func (cp *CPUProvider) Close() error {
	return cp.net.Close()
}

// loadClassNames reads one class label per line.
func loadClassNames(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read class names: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(raw), "\n") {
		names = append(names, strings.TrimSpace(line))
	}
	return names, nil
}

// parseSSDOutput decodes the 1x1xNx7 SSD detection tensor. Each row is
// [batch, classID, confidence, left, top, right, bottom] with normalized
// box coordinates.
func parseSSDOutput(output gocv.Mat, frameWidth, frameHeight int, minConfidence float64, classNames []string) []*Prediction {
	var preds []*Prediction

	for i := 0; i < output.Total(); i += 7 {
		confidence := float64(output.GetFloatAt(0, i+2))
		if confidence < minConfidence {
			continue
		}

		classID := int(output.GetFloatAt(0, i+1))
		if classID < 0 || classID >= len(classNames) {
			continue
		}

		left := int(output.GetFloatAt(0, i+3) * float32(frameWidth))
		top := int(output.GetFloatAt(0, i+4) * float32(frameHeight))
		right := int(output.GetFloatAt(0, i+5) * float32(frameWidth))
		bottom := int(output.GetFloatAt(0, i+6) * float32(frameHeight))

		box := image.Rect(left, top, right, bottom).Intersect(image.Rect(0, 0, frameWidth, frameHeight))
		if box.Empty() {
			continue
		}

		preds = append(preds, &Prediction{
			Box:        box,
			Label:      classNames[classID],
			Confidence: confidence,
		})
	}

	return preds
}
