// Package colorutil provides shared color conversions for the pill scanner.
//
// Two HSV conventions are in play: gocv Mats carry OpenCV HSV (H 0-180,
// S/V 0-255), while the calibration rules work in degrees (H 0-360) with
// S/V still 0-255. HSV is the degree-domain type; conversions between the
// two are explicit.
package colorutil

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSV is a color in the degree domain: H in [0,360), S and V in [0,255].
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// RGB is an 8-bit RGB triple.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as "#RRGGBB".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ToHSV converts to the degree-domain HSV representation.
func (c RGB) ToHSV() HSV {
	cf := colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
	h, s, v := cf.Hsv()
	return HSV{H: h, S: s * 255.0, V: v * 255.0}
}

// RGBToHSVOpenCV converts RGB (0-255) to OpenCV-convention HSV
// (H 0-180, S 0-255, V 0-255), matching what gocv.CvtColor produces.
func RGBToHSVOpenCV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0
	}

	if diff == 0 {
		h = 0
	} else if maxC == r {
		h = 60 * math.Mod((g-b)/diff, 6)
	} else if maxC == g {
		h = 60 * ((b-r)/diff + 2)
	} else {
		h = 60 * ((r-g)/diff + 4)
	}

	if h < 0 {
		h += 360
	}

	return h / 2, s, v
}

// HueDistance returns the circular distance between two hue angles in degrees.
func HueDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// HueInRange reports whether hue h falls inside [lo,hi), treating lo>hi as a
// range that wraps through 360 (the red band).
func HueInRange(h, lo, hi float64) bool {
	if lo <= hi {
		return h >= lo && h < hi
	}
	return h >= lo || h < hi
}
