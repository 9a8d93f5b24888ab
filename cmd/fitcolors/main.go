// Command fitcolors refits the HSV color-classification boundaries from a
// labelled swatch tree. Each subdirectory of the root is named after a color
// label and holds cropped pill images of that color; the dominant cluster of
// each image becomes one calibration sample.
//
// Usage: fitcolors -swatches <dir> [-out color_rules.json] [-min 5]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"pillscan/internal/config"
	"pillscan/internal/imageio"
	"pillscan/internal/pillcolor"
	"pillscan/pkg/log"
)

// samples holds the dominant-cluster HSV values observed for one label.
type samples struct {
	h, s, v []float64
}

func main() {
	swatchRoot := flag.String("swatches", "", "labelled swatch tree: <root>/<color label>/*.jpg")
	outPath := flag.String("out", "color_rules.json", "calibration output path")
	minSamples := flag.Int("min", 5, "minimum samples before a label's bounds are refit")
	flag.Parse()

	if *swatchRoot == "" {
		fmt.Fprintln(os.Stderr, "fitcolors: -swatches is required")
		os.Exit(2)
	}

	logger := log.NewLogger()
	cfg := config.Default()
	classifier := pillcolor.NewClassifier(cfg.Color, config.DefaultColorRules())

	byLabel, err := collect(*swatchRoot, classifier)
	if err != nil {
		logger.WithError(err).Fatal("collect samples")
	}

	rules := config.DefaultColorRules()
	for label, s := range byLabel {
		if len(s.h) < *minSamples {
			logger.WithField("label", label).WithField("samples", len(s.h)).
				Warn("too few samples, keeping default bounds")
			continue
		}
		fit(&rules, label, s)
		logger.WithField("label", label).WithField("samples", len(s.h)).Info("bounds refit")
	}

	if err := rules.Save(*outPath); err != nil {
		logger.WithError(err).Fatal("write rules")
	}
	fmt.Printf("wrote %s (%d labels refit)\n", *outPath, len(byLabel))
}

func collect(root string, classifier *pillcolor.Classifier) (map[string]*samples, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	byLabel := map[string]*samples{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		dir := filepath.Join(root, label)
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			switch strings.ToLower(filepath.Ext(f.Name())) {
			case ".jpg", ".jpeg", ".png":
			default:
				continue
			}
			img, err := imageio.ReadImage(filepath.Join(dir, f.Name()))
			if err != nil {
				continue
			}
			clusters := classifier.Clusters(img)
			img.Close()
			if len(clusters) == 0 {
				continue
			}

			dom := clusters[0].HSV
			if byLabel[label] == nil {
				byLabel[label] = &samples{}
			}
			s := byLabel[label]
			s.h = append(s.h, dom.H)
			s.s = append(s.s, dom.S)
			s.v = append(s.v, dom.V)
		}
	}
	return byLabel, nil
}

// fit rewrites the bounds for one label from its observed samples, leaving
// every other label untouched.
func fit(rules *config.ColorRules, label string, s *samples) {
	switch pillcolor.Label(label) {
	case pillcolor.Black:
		rules.Black.VMax = quantile(0.95, s.v)
	case pillcolor.White:
		rules.White.SMax = quantile(0.95, s.s)
		rules.White.VMin = quantile(0.05, s.v)
	case pillcolor.Gray:
		rules.Gray.SMax = quantile(0.95, s.s)
		rules.Gray.VMax = quantile(0.95, s.v)
	case pillcolor.Transparent:
		rules.Transparent.SMax = quantile(0.95, s.s)
		rules.Transparent.VMin = quantile(0.05, s.v)
	case pillcolor.SkinTone:
		rules.SkinLike.HMin = quantile(0.05, s.h)
		rules.SkinLike.HMax = quantile(0.95, s.h)
		rules.SkinLike.SMax = quantile(0.95, s.s)
		rules.SkinLike.VMin = quantile(0.05, s.v)
	case pillcolor.Brown:
		rules.BrownVMax = quantile(0.95, s.v)
	default:
		fitHueBand(rules, label, s)
	}
}

func fitHueBand(rules *config.ColorRules, label string, s *samples) {
	for i := range rules.HueRanges {
		band := &rules.HueRanges[i]
		if band.Name != label {
			continue
		}

		h := append([]float64(nil), s.h...)
		// Red straddles 0°; shift the upper arc negative so quantiles
		// see one contiguous run.
		wraps := band.HMin > band.HMax
		if wraps {
			for j, v := range h {
				if v >= 180 {
					h[j] = v - 360
				}
			}
		}
		lo := quantile(0.05, h)
		hi := quantile(0.95, h)
		if wraps {
			lo = mod360(lo)
			hi = mod360(hi)
		}
		band.HMin = lo
		band.HMax = hi
		band.SMin = quantile(0.05, s.s)
		return
	}
}

func quantile(p float64, data []float64) float64 {
	x := append([]float64(nil), data...)
	sort.Float64s(x)
	return stat.Quantile(p, stat.Empirical, x, nil)
}

func mod360(v float64) float64 {
	for v < 0 {
		v += 360
	}
	for v >= 360 {
		v -= 360
	}
	return v
}
