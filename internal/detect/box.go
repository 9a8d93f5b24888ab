// Package detect locates the pill region in a photo.
//
// The primary detector is a pretrained YOLO network run through OpenCV's DNN
// module. When it finds nothing at the production confidence it is retried at
// a relaxed one, and when that also fails a segmentation fallback takes the
// bounding box of the largest foreground blob. The strategy that produced the
// crop is reported so callers can weigh the result.
package detect

import (
	"errors"

	"pillscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrExtractionFailed reports that no pill region could be located by any
// strategy. Terminal for the request; only a different photo can recover.
var ErrExtractionFailed = errors.New("pill region extraction failed")

// DetectionBox is one candidate region from the detector.
type DetectionBox struct {
	Rect       geometry.RectInt
	Confidence float32
}

// Area returns the box area in pixels.
func (b DetectionBox) Area() int {
	return b.Rect.Area()
}

// Source identifies which strategy produced the crop.
type Source string

const (
	SourceDetectorHighConf     Source = "detector_high_conf"
	SourceDetectorLowConf      Source = "detector_low_conf"
	SourceSegmentationFallback Source = "segmentation_fallback"
)

// BoxDetector is the model seam: the YOLO wrapper implements it in
// production and tests substitute fakes.
type BoxDetector interface {
	Detect(img gocv.Mat, conf, iou float32) ([]DetectionBox, error)
}
