package ocr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"pillscan/internal/config"

	"gocv.io/x/gocv"
)

// Hypothesis is the outcome of one (variant, angle) recognition run.
type Hypothesis struct {
	VariantName string
	Angle       float64
	Tokens      []string
	AvgScore    float64
}

// Score is total recognized length × average span confidence. Longer,
// more confident readings win.
func (h Hypothesis) Score() float64 {
	total := 0
	for _, t := range h.Tokens {
		total += len(t)
	}
	return float64(total) * h.AvgScore
}

// Reader sweeps the hypothesis space for a crop and keeps the best reading.
type Reader struct {
	rec Recognizer
	cfg config.OCRSettings
	log *logrus.Logger
}

// NewReader builds a Reader around a Recognizer.
func NewReader(rec Recognizer, cfg config.OCRSettings, log *logrus.Logger) *Reader {
	if len(cfg.Angles) == 0 {
		cfg.Angles = []float64{0, 90, 180, 270}
	}
	return &Reader{rec: rec, cfg: cfg, log: log}
}

// Read runs recognition over every variant×angle combination and returns the
// best hypothesis. Recognition errors on individual combinations degrade to
// empty results; Read itself only fails on an unusable input.
func (r *Reader) Read(crop gocv.Mat) (Hypothesis, error) {
	if crop.Empty() {
		return Hypothesis{}, fmt.Errorf("ocr: empty crop")
	}

	variants := generateVariants(crop)
	defer closeVariants(variants)

	best := Hypothesis{VariantName: "none"}
	for _, v := range variants {
		for _, angle := range r.cfg.Angles {
			h := r.runOne(v, angle)
			if h.Score() > best.Score() {
				best = h
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"variant": best.VariantName,
		"angle":   best.Angle,
		"tokens":  best.Tokens,
		"score":   best.AvgScore,
	}).Debug("ocr hypothesis selected")
	return best, nil
}

func (r *Reader) runOne(v Variant, angle float64) Hypothesis {
	rotated := rotateByAngle(v.Image, angle)
	defer rotated.Close()

	spans, err := r.rec.Recognize(rotated)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"variant": v.Name, "angle": angle,
		}).Warn("ocr pass failed")
		return Hypothesis{VariantName: v.Name, Angle: angle}
	}

	tokens, avg := FilterSpans(spans, r.cfg.MinSpanScore)
	return Hypothesis{VariantName: v.Name, Angle: angle, Tokens: tokens, AvgScore: avg}
}

var nonImprint = regexp.MustCompile(`[^A-Z0-9-]`)

// NormalizeToken uppercases and strips everything outside the imprint
// alphabet (letters, digits, hyphen).
func NormalizeToken(s string) string {
	return nonImprint.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

// FilterSpans drops spans under minScore, normalizes the survivors and
// returns them with their average confidence.
func FilterSpans(spans []Span, minScore float64) ([]string, float64) {
	var tokens []string
	var sum float64
	var kept int
	for _, sp := range spans {
		if sp.Confidence < minScore {
			continue
		}
		token := NormalizeToken(sp.Text)
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
		sum += sp.Confidence
		kept++
	}
	if kept == 0 {
		return nil, 0
	}
	return tokens, sum / float64(kept)
}
