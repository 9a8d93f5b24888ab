package detect

import (
	"github.com/sirupsen/logrus"

	"pillscan/internal/config"
	"pillscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// CropResult is the selected pill region.
type CropResult struct {
	Image  gocv.Mat         // owned by the caller
	Rect   geometry.RectInt // in source-image coordinates
	Source Source
}

// Locator runs the ordered fallback chain: detector at the primary
// confidence, detector at the relaxed confidence, then segmentation.
type Locator struct {
	detector  BoxDetector
	segmenter *Segmenter
	cfg       config.DetectorSettings
	log       *logrus.Logger
}

// NewLocator assembles the chain.
func NewLocator(det BoxDetector, seg *Segmenter, cfg config.DetectorSettings, log *logrus.Logger) *Locator {
	return &Locator{detector: det, segmenter: seg, cfg: cfg, log: log}
}

// Locate finds and crops the pill region. Detector errors degrade to the next
// strategy; only total failure of all three returns ErrExtractionFailed.
func (l *Locator) Locate(img gocv.Mat) (CropResult, error) {
	passes := []struct {
		conf   float32
		source Source
	}{
		{l.cfg.PrimaryConf, SourceDetectorHighConf},
		{l.cfg.SecondaryConf, SourceDetectorLowConf},
	}

	for _, pass := range passes {
		boxes, err := l.detector.Detect(img, pass.conf, l.cfg.IoUThreshold)
		if err != nil {
			l.log.WithError(err).WithField("conf", pass.conf).Warn("detector pass failed")
			continue
		}
		rect, ok := SelectBestRect(boxes, img.Cols(), img.Rows(), l.cfg.CropPadRatio)
		if !ok {
			continue
		}
		l.log.WithFields(logrus.Fields{"source": pass.source, "boxes": len(boxes)}).Debug("pill located")
		return CropResult{Image: Crop(img, rect), Rect: rect, Source: pass.source}, nil
	}

	if l.segmenter != nil {
		if rect, ok := l.segmenter.Segment(img); ok {
			l.log.WithField("source", SourceSegmentationFallback).Debug("pill located")
			return CropResult{Image: Crop(img, rect), Rect: rect, Source: SourceSegmentationFallback}, nil
		}
	}

	return CropResult{}, ErrExtractionFailed
}
