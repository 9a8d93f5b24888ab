package detect

import (
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"pillscan/internal/config"
	"pillscan/pkg/geometry"
)

type fakeDetector struct {
	// minConf is the lowest confidence at which boxes are "found".
	minConf float32
	boxes   []DetectionBox
	err     error
	calls   []float32
}

func (f *fakeDetector) Detect(img gocv.Mat, conf, iou float32) ([]DetectionBox, error) {
	f.calls = append(f.calls, conf)
	if f.err != nil {
		return nil, f.err
	}
	if conf < f.minConf {
		return nil, nil
	}
	return f.boxes, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func detectorSettings() config.DetectorSettings {
	cfg := config.Default().Detector
	cfg.SaliencyPath = ""
	return cfg
}

// pillOnBlack draws a bright filled square on a black frame; enough contrast
// for the threshold-based segmentation fallback.
func pillOnBlack(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(400, 400, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(150, 150, 250, 250), color.RGBA{R: 230, G: 230, B: 230, A: 255}, -1)
	return img
}

func TestLocateHighConfidenceWins(t *testing.T) {
	det := &fakeDetector{
		minConf: 0,
		boxes:   []DetectionBox{{Rect: geometry.RectInt{X: 160, Y: 160, Width: 80, Height: 80}, Confidence: 0.9}},
	}
	loc := NewLocator(det, NewSegmenter("", 0.001), detectorSettings(), testLogger())

	img := pillOnBlack(t)
	defer img.Close()

	res, err := loc.Locate(img)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	defer res.Image.Close()

	if res.Source != SourceDetectorHighConf {
		t.Errorf("source = %s, want %s", res.Source, SourceDetectorHighConf)
	}
	if len(det.calls) != 1 {
		t.Errorf("detector called %d times, want 1", len(det.calls))
	}
}

func TestLocateRelaxedConfidenceSecondPass(t *testing.T) {
	cfg := detectorSettings()
	boxes := []DetectionBox{{Rect: geometry.RectInt{X: 160, Y: 160, Width: 80, Height: 80}, Confidence: 0.2}}
	// Boxes appear only on the relaxed second pass.
	loc := NewLocator(detectFunc(func(img gocv.Mat, conf, iou float32) ([]DetectionBox, error) {
		if conf >= cfg.PrimaryConf {
			return nil, nil
		}
		return boxes, nil
	}), NewSegmenter("", 0.001), cfg, testLogger())

	img := pillOnBlack(t)
	defer img.Close()

	res, err := loc.Locate(img)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	defer res.Image.Close()

	if res.Source != SourceDetectorLowConf {
		t.Errorf("source = %s, want %s", res.Source, SourceDetectorLowConf)
	}
}

func TestLocateSegmentationFallback(t *testing.T) {
	det := &fakeDetector{minConf: 2.0} // never finds anything
	loc := NewLocator(det, NewSegmenter("", 0.001), detectorSettings(), testLogger())

	img := pillOnBlack(t)
	defer img.Close()

	res, err := loc.Locate(img)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	defer res.Image.Close()

	if res.Source != SourceSegmentationFallback {
		t.Errorf("source = %s, want %s", res.Source, SourceSegmentationFallback)
	}
	if len(det.calls) != 2 {
		t.Errorf("detector called %d times, want both passes", len(det.calls))
	}
	// The blob sits at 150..250; the rect should cover it.
	if res.Rect.X > 150 || res.Rect.Y > 150 || res.Rect.X+res.Rect.Width < 250 {
		t.Errorf("fallback rect %+v does not cover the blob", res.Rect)
	}
}

func TestLocateDetectorErrorsDegrade(t *testing.T) {
	det := &fakeDetector{err: errors.New("model exploded")}
	loc := NewLocator(det, NewSegmenter("", 0.001), detectorSettings(), testLogger())

	img := pillOnBlack(t)
	defer img.Close()

	res, err := loc.Locate(img)
	if err != nil {
		t.Fatalf("detector errors must not surface when the fallback works: %v", err)
	}
	defer res.Image.Close()

	if res.Source != SourceSegmentationFallback {
		t.Errorf("source = %s, want %s", res.Source, SourceSegmentationFallback)
	}
}

func TestLocateAllStrategiesFail(t *testing.T) {
	det := &fakeDetector{minConf: 2.0}
	loc := NewLocator(det, NewSegmenter("", 0.001), detectorSettings(), testLogger())

	// A featureless black frame gives segmentation nothing to find.
	img := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer img.Close()

	_, err := loc.Locate(img)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("err = %v, want ErrExtractionFailed", err)
	}
}

// detectFunc adapts a function to the BoxDetector interface.
type detectFunc func(img gocv.Mat, conf, iou float32) ([]DetectionBox, error)

func (f detectFunc) Detect(img gocv.Mat, conf, iou float32) ([]DetectionBox, error) {
	return f(img, conf, iou)
}
