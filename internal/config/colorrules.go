package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// NeutralRule bounds a low-saturation color family (white, gray, transparent,
// skin tone). Zero-valued limits are treated as "unbounded".
type NeutralRule struct {
	HMin float64 `json:"h_min,omitempty"`
	HMax float64 `json:"h_max,omitempty"`
	SMax float64 `json:"s_max,omitempty"`
	VMin float64 `json:"v_min,omitempty"`
	VMax float64 `json:"v_max,omitempty"`
}

// HueRange names a chromatic band on the hue circle. HMin > HMax means the
// band wraps through 360 (red).
type HueRange struct {
	Name string  `json:"name"`
	HMin float64 `json:"h_min"`
	HMax float64 `json:"h_max"`
	SMin float64 `json:"s_min"`
	VMin float64 `json:"v_min"`
}

// ColorRules is the data-driven HSV classification table. The boundaries were
// empirically tuned; cmd/fitcolors refits them from logged samples and the
// runtime consumes whatever the file says, so numbers here are only defaults.
type ColorRules struct {
	Black       NeutralRule `json:"black"`
	White       NeutralRule `json:"white"`
	Gray        NeutralRule `json:"gray"`
	Transparent NeutralRule `json:"transparent"`
	SkinLike    NeutralRule `json:"skin_like"`
	BrownVMax   float64     `json:"brown_v_max"`
	HueRanges   []HueRange  `json:"hue_ranges"`
}

// DefaultColorRules mirrors the tuned production boundaries.
func DefaultColorRules() ColorRules {
	return ColorRules{
		Black:       NeutralRule{VMax: 40},
		White:       NeutralRule{SMax: 40, VMin: 170},
		Gray:        NeutralRule{SMax: 40, VMax: 170},
		Transparent: NeutralRule{SMax: 25, VMin: 200},
		SkinLike:    NeutralRule{HMin: 40, HMax: 55, SMax: 120, VMin: 150},
		BrownVMax:   150,
		HueRanges: []HueRange{
			{Name: "紅色", HMin: 330, HMax: 10, SMin: 90, VMin: 0},
			{Name: "橘色", HMin: 10, HMax: 40, SMin: 40, VMin: 0},
			{Name: "黃色", HMin: 40, HMax: 65, SMin: 40, VMin: 0},
			{Name: "綠色", HMin: 65, HMax: 170, SMin: 40, VMin: 0},
			{Name: "藍色", HMin: 170, HMax: 250, SMin: 40, VMin: 0},
			{Name: "紫色", HMin: 250, HMax: 300, SMin: 40, VMin: 0},
			{Name: "粉紅色", HMin: 300, HMax: 330, SMin: 40, VMin: 0},
		},
	}
}

// LoadColorRules reads a calibration file produced by cmd/fitcolors. An empty
// path returns the defaults.
func LoadColorRules(path string) (ColorRules, error) {
	if path == "" {
		return DefaultColorRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return DefaultColorRules(), fmt.Errorf("read color rules %s: %w", path, err)
	}
	rules := DefaultColorRules()
	if err := json.Unmarshal(raw, &rules); err != nil {
		return DefaultColorRules(), fmt.Errorf("parse color rules %s: %w", path, err)
	}
	if len(rules.HueRanges) == 0 {
		rules.HueRanges = DefaultColorRules().HueRanges
	}
	return rules, nil
}

// Save writes the rules as indented JSON.
func (r ColorRules) Save(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
