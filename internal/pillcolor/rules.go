// Package pillcolor determines the dominant color names of a cropped pill.
//
// Per-pixel naming is dominated by anti-aliased edges and specular
// highlights, so the classifier clusters the center region first, merges
// near-duplicate clusters, drops the small ones, and only then names the
// surviving centroids through the calibration rules.
package pillcolor

import (
	"pillscan/internal/config"
	"pillscan/pkg/colorutil"
)

// Label is the closed color vocabulary, using the reference catalog's tokens.
type Label string

const (
	White       Label = "白色"
	Transparent Label = "透明"
	Black       Label = "黑色"
	Brown       Label = "棕色"
	Red         Label = "紅色"
	Orange      Label = "橘色"
	SkinTone    Label = "皮膚色"
	Yellow      Label = "黃色"
	Green       Label = "綠色"
	Blue        Label = "藍色"
	Purple      Label = "紫色"
	Pink        Label = "粉紅色"
	Gray        Label = "灰色"
	Other       Label = "其他"
)

// Cluster is one k-means color cluster of the sampled region.
type Cluster struct {
	RGB   colorutil.RGB
	HSV   colorutil.HSV
	Count int
}

// similar reports whether two cluster colors are visually the same family:
// close hue with moderate saturation/value spread, or both near-gray with a
// tolerant value gap. Collapses shading and anti-aliasing duplicates.
func similar(a, b colorutil.HSV) bool {
	dh := colorutil.HueDistance(a.H, b.H)
	ds := abs(a.S - b.S)
	dv := abs(a.V - b.V)

	if dh <= 20 && ds <= 70 && dv <= 70 {
		return true
	}
	if a.S < 30 && b.S < 30 && dv < 120 {
		return true
	}
	return false
}

// mergeClusters folds visually similar clusters together, keeping the first
// cluster's centroid and summing pixel counts. Input order (frequency order)
// is preserved.
func mergeClusters(clusters []Cluster) []Cluster {
	var merged []Cluster
	for _, c := range clusters {
		folded := false
		for i := range merged {
			if similar(c.HSV, merged[i].HSV) {
				merged[i].Count += c.Count
				folded = true
				break
			}
		}
		if !folded {
			merged = append(merged, c)
		}
	}
	return merged
}

// filterByRatio keeps clusters holding at least minRatio of the pixels. If
// that removes everything the largest cluster survives as a safeguard.
func filterByRatio(clusters []Cluster, minRatio float64) []Cluster {
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	if total == 0 {
		return nil
	}

	var kept []Cluster
	for _, c := range clusters {
		if float64(c.Count)/float64(total) >= minRatio {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		largest := clusters[0]
		for _, c := range clusters[1:] {
			if c.Count > largest.Count {
				largest = c
			}
		}
		kept = []Cluster{largest}
	}
	return kept
}

// classifyHSV names a centroid through the calibration rules. Rule order
// matters: neutrals are checked before the hue bands so a washed-out pink
// does not land in the red bucket.
func classifyHSV(hsv colorutil.HSV, rules config.ColorRules) Label {
	h, s, v := hsv.H, hsv.S, hsv.V

	if matchNeutral(hsv, rules.Black) {
		return Black
	}
	if matchNeutral(hsv, rules.White) {
		return White
	}
	if matchNeutral(hsv, rules.Transparent) {
		return Transparent
	}
	if matchNeutral(hsv, rules.SkinLike) {
		return SkinTone
	}
	if matchNeutral(hsv, rules.Gray) {
		return Gray
	}

	for _, band := range rules.HueRanges {
		if !colorutil.HueInRange(h, band.HMin, band.HMax) {
			continue
		}
		if s < band.SMin || v < band.VMin {
			continue
		}
		// Dark warm hues read as brown, not orange/red.
		if rules.BrownVMax > 0 && v < rules.BrownVMax && colorutil.HueInRange(h, 0, 40) {
			return Brown
		}
		return Label(band.Name)
	}
	return Other
}

func matchNeutral(hsv colorutil.HSV, r config.NeutralRule) bool {
	if r == (config.NeutralRule{}) {
		return false
	}
	if r.SMax > 0 && hsv.S >= r.SMax {
		return false
	}
	if r.VMin > 0 && hsv.V < r.VMin {
		return false
	}
	if r.VMax > 0 && hsv.V >= r.VMax {
		return false
	}
	if r.HMin != 0 || r.HMax != 0 {
		if !colorutil.HueInRange(hsv.H, r.HMin, r.HMax) {
			return false
		}
	}
	return true
}

// dedupe removes duplicate labels preserving first-seen order and caps the
// result length.
func dedupe(labels []Label, maxLabels int) []Label {
	seen := make(map[Label]bool, len(labels))
	var out []Label
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
		if maxLabels > 0 && len(out) >= maxLabels {
			break
		}
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
