package detection

import (
	"image"
	"path/filepath"

	"gocv.io/x/gocv"
)

// modelSpec describes one supported network family: how a frame becomes an
// input blob and how the output tensor is decoded into predictions.
type modelSpec struct {
	inputSize int
	scale     float64
	mean      gocv.Scalar
	swapRB    bool
	decode    func(output gocv.Mat, frameWidth, frameHeight int, minConfidence float64, classNames []string) []*Prediction
}

var ssdSpec = modelSpec{
	inputSize: 300,
	scale:     1.0 / 127.5,
	mean:      gocv.NewScalar(127.5, 127.5, 127.5, 0),
	swapRB:    false,
	decode:    parseSSDOutput,
}

var yoloSpec = modelSpec{
	inputSize: 416,
	scale:     1.0 / 255.0,
	mean:      gocv.NewScalar(0, 0, 0, 0),
	swapRB:    true,
	decode:    parseYOLOOutput,
}

// specForWeights selects the model family from the weights file extension.
// Darknet .weights files carry YOLO region output; caffe and tensorflow
// weights here are SSD detection networks.
func specForWeights(weightsPath string) modelSpec {
	if filepath.Ext(weightsPath) == ".weights" {
		return yoloSpec
	}
	return ssdSpec
}

// parseYOLOOutput decodes a YOLO region tensor: one row per candidate box,
// [centerX, centerY, width, height, objectness, classScore...] with box
// coordinates normalized to the frame. The best class score is the
// candidate's confidence.
func parseYOLOOutput(output gocv.Mat, frameWidth, frameHeight int, minConfidence float64, classNames []string) []*Prediction {
	var preds []*Prediction

	cols := output.Cols()
	for i := 0; i < output.Rows(); i++ {
		classID := -1
		confidence := float32(0)
		for j := 5; j < cols; j++ {
			if score := output.GetFloatAt(i, j); score > confidence {
				confidence = score
				classID = j - 5
			}
		}
		if float64(confidence) < minConfidence || classID < 0 || classID >= len(classNames) {
			continue
		}

		centerX := output.GetFloatAt(i, 0) * float32(frameWidth)
		centerY := output.GetFloatAt(i, 1) * float32(frameHeight)
		width := output.GetFloatAt(i, 2) * float32(frameWidth)
		height := output.GetFloatAt(i, 3) * float32(frameHeight)

		left := int(centerX - width/2)
		top := int(centerY - height/2)
		box := image.Rect(left, top, left+int(width), top+int(height)).
			Intersect(image.Rect(0, 0, frameWidth, frameHeight))
		if box.Empty() {
			continue
		}

		preds = append(preds, &Prediction{
			Box:        box,
			Label:      classNames[classID],
			Confidence: float64(confidence),
		})
	}

	return preds
}
