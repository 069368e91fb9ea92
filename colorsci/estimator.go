// Package colorsci extracts a dominant body color from a person detection by
// clustering the pixels of an estimated torso band.
package colorsci

import (
	"image"

	"gocv.io/x/gocv"
)

// BGR is a color triple in OpenCV channel order.
type BGR struct {
	B uint8 `json:"b"`
	G uint8 `json:"g"`
	R uint8 `json:"r"`
}

// Estimator computes a single dominant color per qualifying detection via
// k=1 k-means clustering over a cropped torso band. The geometry fields are
// tunable heuristics, not load-bearing semantics.
type Estimator struct {
	// MinAspect is the minimum height-to-width ratio for a box to qualify.
	// Roughly head-to-foot boxes of a standing person pass; wide or square
	// boxes are skipped entirely.
	MinAspect float64

	// TopInset is the fraction of box height skipped below the box top
	// before the band begins.
	TopInset float64

	// BandExtent is the fraction of box height covered by the band.
	BandExtent float64

	// Iterations and Epsilon form the k-means stopping criterion.
	Iterations int
	Epsilon    float64
}

// NewEstimator returns an estimator with the default torso heuristics.
func NewEstimator() *Estimator {
	return &Estimator{
		MinAspect:  1.8,
		TopInset:   0.10,
		BandExtent: 0.60,
		Iterations: 10,
		Epsilon:    1.0,
	}
}

// Qualifies reports whether the box shape passes the standing-person
// pre-filter.
func (e *Estimator) Qualifies(box image.Rectangle) bool {
	return float64(box.Dy()) > e.MinAspect*float64(box.Dx())
}

// TorsoBand returns the crop region for a qualifying box, clamped to the
// frame bounds. ok is false when the clamped region is empty, in which case
// no color should be estimated.
func (e *Estimator) TorsoBand(box image.Rectangle, bounds image.Rectangle) (image.Rectangle, bool) {
	h := float64(box.Dy())
	startY := box.Min.Y + int(e.TopInset*h)
	endY := startY + int(e.BandExtent*h)

	band := image.Rect(box.Min.X, startY, box.Max.X, endY).Intersect(bounds)
	if band.Empty() {
		return image.Rectangle{}, false
	}
	return band, true
}

// Estimate returns the dominant color of the detection's torso band. ok is
// false when the box fails the pre-filter or the crop is degenerate; that is
// not an error and must not abort frame processing.
func (e *Estimator) Estimate(frame gocv.Mat, box image.Rectangle) (BGR, bool) {
	if !e.Qualifies(box) {
		return BGR{}, false
	}

	band, ok := e.TorsoBand(box, image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if !ok {
		return BGR{}, false
	}

	roi := frame.Region(band)
	defer roi.Close()

	// Region returns a view into the frame; clustering needs a contiguous
	// N x 3 float sample matrix.
	crop := roi.Clone()
	defer crop.Close()

	flat := crop.Reshape(1, band.Dx()*band.Dy())
	defer flat.Close()

	samples := gocv.NewMat()
	defer samples.Close()
	flat.ConvertTo(&samples, gocv.MatTypeCV32F)

	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	criteria := gocv.NewTermCriteria(gocv.MaxIter+gocv.EPS, e.Iterations, e.Epsilon)
	gocv.KMeans(samples, 1, &labels, criteria, e.Iterations, gocv.KMeansRandomCenters, &centers)

	if centers.Rows() < 1 || centers.Cols() < 3 {
		return BGR{}, false
	}

	return BGR{
		B: clampChannel(centers.GetFloatAt(0, 0)),
		G: clampChannel(centers.GetFloatAt(0, 1)),
		R: clampChannel(centers.GetFloatAt(0, 2)),
	}, true
}

func clampChannel(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
