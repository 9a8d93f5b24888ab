package pipeline

import (
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"pillscan/internal/config"
	"pillscan/internal/detect"
	"pillscan/internal/imageio"
	"pillscan/internal/ocr"
	"pillscan/internal/pillcolor"
	"pillscan/internal/shape"
)

type noBoxDetector struct{}

func (noBoxDetector) Detect(img gocv.Mat, conf, iou float32) ([]detect.DetectionBox, error) {
	return nil, nil
}

type fixedRecognizer struct {
	spans []ocr.Span
}

func (f fixedRecognizer) Recognize(img gocv.Mat) ([]ocr.Span, error) {
	return f.spans, nil
}

func testPipeline(t *testing.T, rec ocr.Recognizer) *Pipeline {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.OCR.MinSpanScore = 0.5

	return NewFromParts(cfg,
		detect.NewLocator(noBoxDetector{}, detect.NewSegmenter("", 0.001), cfg.Detector, logger),
		shape.NewClassifier(cfg.Shape),
		pillcolor.NewClassifier(cfg.Color, config.DefaultColorRules()),
		ocr.NewReader(rec, cfg.OCR, logger),
		logger)
}

// whitePillPhoto encodes a photo of a bright round blob on a dark background.
func whitePillPhoto(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(400, 400, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(30, 30, 30, 0))
	gocv.Circle(&img, image.Pt(200, 200), 120, color.RGBA{R: 245, G: 245, B: 245, A: 255}, -1)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestProcessFallsBackToSegmentation(t *testing.T) {
	p := testPipeline(t, fixedRecognizer{spans: []ocr.Span{{Text: "AB12", Confidence: 0.9}}})

	res, err := p.Process(whitePillPhoto(t))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Source != detect.SourceSegmentationFallback {
		t.Errorf("detection source = %s, want %s", res.Source, detect.SourceSegmentationFallback)
	}
	if res.Shape != string(shape.Circle) {
		t.Errorf("shape = %s, want %s", res.Shape, shape.Circle)
	}
	if len(res.Colors) == 0 || res.Colors[0] != string(pillcolor.White) {
		t.Errorf("colors = %v, want 白色 first", res.Colors)
	}
	if len(res.Tokens) != 1 || res.Tokens[0] != "AB12" {
		t.Errorf("tokens = %v, want [AB12]", res.Tokens)
	}
	if len(res.CroppedJPEG) == 0 {
		t.Error("cropped JPEG missing")
	}
}

func TestProcessUndetectablePhoto(t *testing.T) {
	p := testPipeline(t, fixedRecognizer{})

	// Featureless frame: nothing to segment either.
	img := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()

	_, err = p.Process(append([]byte(nil), buf.GetBytes()...))
	if !errors.Is(err, detect.ErrExtractionFailed) {
		t.Errorf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestProcessBadBytes(t *testing.T) {
	p := testPipeline(t, fixedRecognizer{})
	_, err := p.Process([]byte("not an image"))
	if !errors.Is(err, imageio.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestWarmupWithoutDetectorIsNoop(t *testing.T) {
	p := testPipeline(t, fixedRecognizer{})
	if err := p.Warmup(); err != nil {
		t.Errorf("Warmup: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
