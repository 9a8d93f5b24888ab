// Package pipeline runs the single-photo identification chain: decode,
// locate, classify shape and color, read imprint text.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"pillscan/internal/config"
	"pillscan/internal/detect"
	"pillscan/internal/imageio"
	"pillscan/internal/ocr"
	"pillscan/internal/pillcolor"
	"pillscan/internal/shape"
	"pillscan/pkg/geometry"
)

// Result is the extraction output for one photo.
type Result struct {
	Tokens        []string
	VariantName   string
	OCRConfidence float64
	Colors        []string
	Shape         string
	CroppedJPEG   []byte
	Rect          geometry.RectInt
	Source        detect.Source
}

// Pipeline owns the per-stage components. Stages run sequentially; each
// depends on the crop produced before it. The pipeline itself is safe for
// concurrent Process calls as long as its components are (the locator and
// OCR engine serialize internally).
type Pipeline struct {
	cfg config.Settings
	log *logrus.Logger

	locator *detect.Locator
	shapes  *shape.Classifier
	colors  *pillcolor.Classifier
	reader  *ocr.Reader

	detector *detect.YOLODetector
	engine   *ocr.Engine

	warmOnce sync.Once
	warmErr  error
}

// New assembles the full pipeline from configuration. Models are loaded
// lazily; call Warmup at startup to pay that cost before the first request.
func New(cfg config.Settings, log *logrus.Logger) (*Pipeline, error) {
	rules := config.DefaultColorRules()
	if cfg.Color.RulesPath != "" {
		loaded, err := config.LoadColorRules(cfg.Color.RulesPath)
		if err != nil {
			log.WithError(err).WithField("path", cfg.Color.RulesPath).
				Warn("color rules not loaded, using defaults")
		} else {
			rules = loaded
		}
	}

	engine, err := ocr.NewEngine(cfg.OCR.Language)
	if err != nil {
		return nil, fmt.Errorf("init ocr engine: %w", err)
	}

	detector := detect.NewYOLODetector(cfg.Detector.ModelPath, cfg.Detector.InputSize)
	segmenter := detect.NewSegmenter(cfg.Detector.SaliencyPath, cfg.Detector.MinMaskRatio)

	p := NewFromParts(cfg,
		detect.NewLocator(detector, segmenter, cfg.Detector, log),
		shape.NewClassifier(cfg.Shape),
		pillcolor.NewClassifier(cfg.Color, rules),
		ocr.NewReader(engine, cfg.OCR, log),
		log)
	p.detector = detector
	p.engine = engine
	return p, nil
}

// NewFromParts wires pre-built components; used by tests to substitute
// fakes for the model-backed stages.
func NewFromParts(cfg config.Settings, loc *detect.Locator, sh *shape.Classifier,
	col *pillcolor.Classifier, rd *ocr.Reader, log *logrus.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log, locator: loc, shapes: sh, colors: col, reader: rd}
}

// Warmup loads the detector model once so the first request does not pay
// model-load latency. A missing model file is logged, not fatal: the
// segmentation fallback still works without it.
func (p *Pipeline) Warmup() error {
	p.warmOnce.Do(func() {
		if p.detector == nil {
			return
		}
		if err := p.detector.Warmup(); err != nil {
			p.log.WithError(err).Warn("detector warmup failed, relying on segmentation fallback")
			p.warmErr = err
		}
	})
	return p.warmErr
}

// Close releases model resources.
func (p *Pipeline) Close() error {
	var first error
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			first = err
		}
	}
	if p.engine != nil {
		if err := p.engine.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Process decodes raw image bytes and runs the extraction chain.
func (p *Pipeline) Process(data []byte) (*Result, error) {
	img, err := imageio.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return p.run(&img)
}

// ProcessFile runs the chain on an image file on disk.
func (p *Pipeline) ProcessFile(path string) (*Result, error) {
	img, err := imageio.ReadImage(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return p.run(&img)
}

func (p *Pipeline) run(img *gocv.Mat) (*Result, error) {
	imageio.Normalize(img, p.cfg.Detector.MaxInputSide)

	crop, err := p.locator.Locate(*img)
	if err != nil {
		return nil, err
	}
	defer crop.Image.Close()

	res := &Result{
		Shape:  string(p.shapes.Classify(crop.Image)),
		Rect:   crop.Rect,
		Source: crop.Source,
	}
	for _, label := range p.colors.Classify(crop.Image) {
		res.Colors = append(res.Colors, string(label))
	}

	// OCR failure degrades to an empty token list; the matcher's no-text
	// path still yields attribute-only candidates.
	hyp, err := p.reader.Read(crop.Image)
	if err != nil {
		p.log.WithError(err).Warn("ocr stage failed, continuing without text")
	} else {
		res.Tokens = hyp.Tokens
		res.VariantName = hyp.VariantName
		res.OCRConfidence = hyp.AvgScore
	}

	if buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop.Image); err == nil {
		res.CroppedJPEG = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
	} else {
		p.log.WithError(err).Warn("crop encode failed")
	}

	p.log.WithFields(logrus.Fields{
		"source": crop.Source,
		"shape":  res.Shape,
		"colors": res.Colors,
		"tokens": res.Tokens,
	}).Info("photo processed")
	return res, nil
}
