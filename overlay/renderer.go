// Package overlay draws detection boxes, per-person captions and the
// session statistics block onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"dwellcam/colorsci"
	"dwellcam/detection"
)

// Renderer handles frame annotation.
type Renderer struct {
	boxColor  color.RGBA
	textColor color.RGBA
}

// NewRenderer creates a renderer with the default palette.
func NewRenderer() *Renderer {
	return &Renderer{
		boxColor:  color.RGBA{R: 0x11, G: 0x8a, B: 0x28, A: 255},
		textColor: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Caption formats the per-person label attached to a tracked detection.
// Identities are zero-based internally; display is one-based.
func Caption(id int, elapsed time.Duration) string {
	return fmt.Sprintf("Person %d | %d sec", id+1, int(elapsed.Seconds()))
}

// DrawPrediction draws the bounding box and caption for one tracked person.
// When a dominant-color estimate exists a filled swatch is drawn beside the
// box top.
func (r *Renderer) DrawPrediction(img *gocv.Mat, pred *detection.Prediction, dominant *colorsci.BGR) {
	gocv.Rectangle(img, pred.Box, r.boxColor, 2)

	labelPos := image.Point{X: pred.Box.Min.X, Y: pred.Box.Min.Y - 8}
	if labelPos.Y < 15 {
		labelPos.Y = pred.Box.Max.Y + 20
	}
	gocv.PutText(img, pred.Label, labelPos, gocv.FontHersheySimplex, 0.5, r.boxColor, 2)

	if dominant != nil {
		swatch := image.Rect(pred.Box.Max.X+4, pred.Box.Min.Y, pred.Box.Max.X+24, pred.Box.Min.Y+20)
		fill := color.RGBA{R: dominant.R, G: dominant.G, B: dominant.B, A: 255}
		gocv.Rectangle(img, swatch, fill, -1)
		gocv.Rectangle(img, swatch, r.textColor, 1)
	}
}

// DrawStats draws the statistics block in the upper-left corner, one line
// per entry.
func (r *Renderer) DrawStats(img *gocv.Mat, lines []string) {
	y := 24
	for _, line := range lines {
		if line != "" {
			gocv.PutText(img, line, image.Point{X: 10, Y: y}, gocv.FontHersheySimplex, 0.5, r.textColor, 1)
		}
		y += 20
	}
}
