// Package config holds the tunable settings of the recognition pipeline.
//
// Every threshold the pipeline consults lives here as a named field with a
// default matching production behavior. A YAML settings file can override any
// of them; environment variables override the paths so deployments can move
// model and data files without editing config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DetectorSettings configures the region detector and its fallback chain.
type DetectorSettings struct {
	ModelPath     string  `yaml:"model_path"`     // YOLO ONNX weights
	SaliencyPath  string  `yaml:"saliency_path"`  // optional background-removal ONNX weights
	InputSize     int     `yaml:"input_size"`     // square network input, pixels
	PrimaryConf   float32 `yaml:"primary_conf"`   // first detection pass
	SecondaryConf float32 `yaml:"secondary_conf"` // relaxed retry
	IoUThreshold  float32 `yaml:"iou_threshold"`  // NMS overlap cutoff
	MinMaskRatio  float64 `yaml:"min_mask_ratio"` // reject fallback blobs below this share of the image
	CropPadRatio  float64 `yaml:"crop_pad_ratio"` // padding around the chosen box
	MaxInputSide  int     `yaml:"max_input_side"` // downscale larger photos before detection
}

// ShapeSettings holds the ellipse aspect-ratio cutoffs.
type ShapeSettings struct {
	CircleLo  float64 `yaml:"circle_lo"`
	CircleHi  float64 `yaml:"circle_hi"`
	EllipseHi float64 `yaml:"ellipse_hi"`
}

// ColorSettings configures center-region sampling and clustering.
type ColorSettings struct {
	RulesPath       string  `yaml:"rules_path"` // calibration JSON; defaults used when empty
	CenterSize      int     `yaml:"center_size"`
	MarginRatio     float64 `yaml:"margin_ratio"`
	BrightnessBoost int     `yaml:"brightness_boost"`
	Clusters        int     `yaml:"clusters"`
	MinClusterRatio float64 `yaml:"min_cluster_ratio"`
	BlackVMax       float64 `yaml:"black_v_max"`
	MaxLabels       int     `yaml:"max_labels"`
}

// OCRSettings configures the multi-hypothesis text recognition sweep.
type OCRSettings struct {
	Angles       []float64 `yaml:"angles"`
	MinSpanScore float64   `yaml:"min_span_score"`
	Language     string    `yaml:"language"`
}

// MatchSettings holds the fuzzy-matching thresholds.
type MatchSettings struct {
	HardThreshold float64  `yaml:"hard_threshold"`
	MinTop1Accept float64  `yaml:"min_top1_accept"`
	TopN          int      `yaml:"top_n"`
	Keywords      []string `yaml:"keywords"`
}

// Settings is the full pipeline configuration.
type Settings struct {
	Detector DetectorSettings `yaml:"detector"`
	Shape    ShapeSettings    `yaml:"shape"`
	Color    ColorSettings    `yaml:"color"`
	OCR      OCRSettings      `yaml:"ocr"`
	Match    MatchSettings    `yaml:"match"`

	CatalogPath string `yaml:"catalog_path"`
	PhotoDir    string `yaml:"photo_dir"`
	ListenAddr  string `yaml:"listen_addr"`
}

// Default returns the production settings.
func Default() Settings {
	return Settings{
		Detector: DetectorSettings{
			ModelPath:     "models/pill_yolo.onnx",
			SaliencyPath:  "",
			InputSize:     640,
			PrimaryConf:   0.25,
			SecondaryConf: 0.10,
			IoUThreshold:  0.7,
			MinMaskRatio:  0.001,
			CropPadRatio:  0.08,
			MaxInputSide:  1920,
		},
		Shape: ShapeSettings{
			CircleLo:  1.00,
			CircleHi:  1.20,
			EllipseHi: 3.80,
		},
		Color: ColorSettings{
			CenterSize:      200,
			MarginRatio:     0.06,
			BrightnessBoost: 20,
			Clusters:        3,
			MinClusterRatio: 0.35,
			BlackVMax:       40,
			MaxLabels:       3,
		},
		OCR: OCRSettings{
			Angles:       []float64{0, 90, 180, 270},
			MinSpanScore: 0.8,
			Language:     "eng",
		},
		Match: MatchSettings{
			HardThreshold: 0.80,
			MinTop1Accept: 0.30,
			TopN:          4,
			Keywords:      []string{"ACETYLCYSTEINE", "ACTEIN"},
		},
		CatalogPath: "data/TESTData.xlsx",
		PhotoDir:    "data/pictures",
		ListenAddr:  ":8080",
	}
}

// Load reads settings from path, layered over the defaults. A missing file is
// not an error; environment variables win over both.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &s); err != nil {
				return s, fmt.Errorf("parse settings %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return s, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	applyEnv(&s)
	return s, nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("PILL_MODEL_PATH"); v != "" {
		s.Detector.ModelPath = v
	}
	if v := os.Getenv("PILL_SALIENCY_PATH"); v != "" {
		s.Detector.SaliencyPath = v
	}
	if v := os.Getenv("PILL_CATALOG_PATH"); v != "" {
		s.CatalogPath = v
	}
	if v := os.Getenv("PILL_PHOTO_DIR"); v != "" {
		s.PhotoDir = v
	}
	if v := os.Getenv("PILL_COLOR_RULES"); v != "" {
		s.Color.RulesPath = v
	}
	if v := os.Getenv("PILL_LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
}
