package detection

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Prediction is a single detected object. Label starts out as the raw class
// name and is rewritten by the caller to the rendered per-person caption.
type Prediction struct {
	Box        image.Rectangle
	Label      string
	Confidence float64
}

// Center returns the centroid of the prediction's bounding box.
func (p *Prediction) Center() image.Point {
	return image.Point{
		X: p.Box.Min.X + p.Box.Dx()/2,
		Y: p.Box.Min.Y + p.Box.Dy()/2,
	}
}

// Result is the output of one inference pass over a frame.
type Result struct {
	Predictions []*Prediction
	Duration    time.Duration
}

// Provider defines the interface for DNN inference backends.
type Provider interface {
	Initialize(weightsPath, configPath, namesPath string) error
	Detect(frame gocv.Mat, minConfidence float64) (*Result, error)
	Close() error
	Info() ProviderInfo
}

// ProviderInfo describes the active inference backend.
type ProviderInfo struct {
	Type     string // "GPU" or "CPU"
	Backend  string // "CUDA" or "CPU"
	InitTime time.Duration
}

// Manager selects and owns the best available inference provider.
type Manager struct {
	provider Provider
	info     ProviderInfo
	logger   zerolog.Logger
}

// NewManager creates a provider manager with auto-detection.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger.With().Str("component", "detection").Logger()}
}

// Initialize tries the GPU backend first and falls back to CPU.
func (m *Manager) Initialize(weightsPath, configPath, namesPath string) error {
	if hasGPUCapability() {
		m.logger.Info().Msg("GPU capability detected, attempting CUDA initialization")
		gpu := &GPUProvider{}

		start := time.Now()
		if err := gpu.Initialize(weightsPath, configPath, namesPath); err == nil {
			if testProvider(gpu) {
				m.provider = gpu
				m.info = gpu.Info()
				m.info.InitTime = time.Since(start)
				m.logger.Info().Dur("init_time", m.info.InitTime).Msg("GPU provider initialized")
				return nil
			}
			m.logger.Warn().Msg("GPU test inference failed, falling back to CPU")
			gpu.Close()
		} else {
			m.logger.Warn().Err(err).Msg("GPU initialization failed, falling back to CPU")
		}
	} else {
		m.logger.Debug().Msg("no GPU capability detected")
	}

	cpu := &CPUProvider{}
	start := time.Now()
	if err := cpu.Initialize(weightsPath, configPath, namesPath); err != nil {
		return fmt.Errorf("both GPU and CPU providers failed: %w", err)
	}

	m.provider = cpu
	m.info = cpu.Info()
	m.info.InitTime = time.Since(start)
	m.logger.Info().Dur("init_time", m.info.InitTime).Msg("CPU provider initialized")
	return nil
}

// Detect runs inference through the active provider.
func (m *Manager) Detect(frame gocv.Mat, minConfidence float64) (*Result, error) {
	return m.provider.Detect(frame, minConfidence)
}

// Info returns information about the active provider.
func (m *Manager) Info() ProviderInfo {
	return m.info
}

// Close releases the active provider.
func (m *Manager) Close() error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Close()
}

// FilterByLabel returns only the predictions carrying the given class label.
func FilterByLabel(preds []*Prediction, label string) []*Prediction {
	var out []*Prediction
	for _, p := range preds {
		if p.Label == label {
			out = append(out, p)
		}
	}
	return out
}

// ModelFiles resolves the weights, config and class-name files for a named
// model inside dir, trying the known framework extensions in order.
func ModelFiles(dir, model string) (weights, config, names string, err error) {
	pairs := [][2]string{
		{".caffemodel", ".prototxt"},
		{".weights", ".cfg"},
		{".pb", ".pbtxt"},
	}
	for _, pair := range pairs {
		w := filepath.Join(dir, model+pair[0])
		if _, statErr := os.Stat(w); statErr == nil {
			return w, filepath.Join(dir, model+pair[1]), filepath.Join(dir, model+".names"), nil
		}
	}
	return "", "", "", fmt.Errorf("no weights found for model %q in %s", model, dir)
}

// hasGPUCapability checks if CUDA inference is worth attempting.
func hasGPUCapability() bool {
	if !hasNVIDIAGPU() {
		return false
	}
	return hasNVIDIADriver()
}

// hasNVIDIAGPU checks if an NVIDIA GPU is present.
func hasNVIDIAGPU() bool {
	out, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "nvidia")
}

// hasNVIDIADriver checks if NVIDIA drivers are loaded.
func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider performs a quick test inference to verify the provider works.
func testProvider(p Provider) bool {
	testFrame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer testFrame.Close()

	_, err := p.Detect(testFrame, 0.5)
	return err == nil
}
