package detection

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// GPUProvider runs DNN inference on the OpenCV CUDA backend.
type GPUProvider struct {
	net        gocv.Net
	spec       modelSpec
	classNames []string
	mu         sync.Mutex
}

// Initialize loads the network and class names onto the CUDA backend.
func (gp *GPUProvider) Initialize(weightsPath, configPath, namesPath string) error {
	gp.net = gocv.ReadNet(weightsPath, configPath)
	if gp.net.Empty() {
		return fmt.Errorf("failed to load network from %s and %s", weightsPath, configPath)
	}

	gp.net.SetPreferableBackend(gocv.NetBackendCUDA)
	gp.net.SetPreferableTarget(gocv.NetTargetCUDA)
	gp.spec = specForWeights(weightsPath)

	names, err := loadClassNames(namesPath)
	if err != nil {
		return err
	}
	gp.classNames = names

	return nil
}

// Detect performs object detection on a frame using CUDA.
func (gp *GPUProvider) Detect(frame gocv.Mat, minConfidence float64) (*Result, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	start := time.Now()

	blob := gocv.BlobFromImage(frame, gp.spec.scale, image.Pt(gp.spec.inputSize, gp.spec.inputSize),
		gp.spec.mean, gp.spec.swapRB, false)
	defer blob.Close()

	gp.net.SetInput(blob, "")
	output := gp.net.Forward("")
	defer output.Close()

	preds := gp.spec.decode(output, frame.Cols(), frame.Rows(), minConfidence, gp.classNames)

	return &Result{Predictions: preds, Duration: time.Since(start)}, nil
}

// Info returns backend information.
func (gp *GPUProvider) Info() ProviderInfo {
	return ProviderInfo{Type: "GPU", Backend: "CUDA"}
}

// Close releases the network.
func (gp *GPUProvider) Close() error {
	return gp.net.Close()
}
