package ocr

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Variant is one preprocessed rendering of the crop.
type Variant struct {
	Name  string
	Image gocv.Mat
}

// Close releases all variant Mats.
func closeVariants(variants []Variant) {
	for _, v := range variants {
		v.Image.Close()
	}
}

// generateVariants produces the preprocessing hypotheses for a crop. The lean
// set is {original, contrast-enhanced + desaturated}; richer sets were tried
// and did not pay for their latency in batch evaluation.
func generateVariants(crop gocv.Mat) []Variant {
	enhanced := enhanceContrast(crop, 1.5, 1.5, -0.5)
	defer enhanced.Close()
	flattened := desaturate(enhanced)

	return []Variant{
		{Name: "original", Image: crop.Clone()},
		{Name: "enhanced_desat", Image: flattened},
	}
}

// enhanceContrast applies CLAHE on the LAB lightness channel, then sharpens
// by subtracting a Gaussian blur (alpha/beta are the addWeighted weights).
func enhanceContrast(img gocv.Mat, clipLimit, alpha, beta float64) gocv.Mat {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(8, 8))
	defer clahe.Close()

	enhanced := gocv.NewMat()
	clahe.Apply(channels[0], &enhanced)
	enhanced.CopyTo(&channels[0])
	enhanced.Close()

	gocv.Merge(channels, &lab)
	for _, ch := range channels {
		ch.Close()
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(lab, &bgr, gocv.ColorLabToBGR)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(bgr, &blurred, image.Pt(5, 5), 3.0, 3.0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.AddWeighted(bgr, alpha, blurred, beta, 0, &out)
	return out
}

// desaturate zeroes the saturation channel, leaving a luminance-only image.
func desaturate(img gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	channels[1].SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Merge(channels, &hsv)
	for _, ch := range channels {
		ch.Close()
	}

	out := gocv.NewMat()
	gocv.CvtColor(hsv, &out, gocv.ColorHSVToBGR)
	return out
}

// rotateByAngle rotates around the image center, keeping the frame size and
// replicating the border. Right angles take the cheap path.
func rotateByAngle(img gocv.Mat, angle float64) gocv.Mat {
	out := gocv.NewMat()
	switch math.Mod(angle+360, 360) {
	case 0:
		return img.Clone()
	case 90:
		gocv.Rotate(img, &out, gocv.Rotate90Clockwise)
		return out
	case 180:
		gocv.Rotate(img, &out, gocv.Rotate180Clockwise)
		return out
	case 270:
		gocv.Rotate(img, &out, gocv.Rotate90CounterClockwise)
		return out
	}

	center := image.Pt(img.Cols()/2, img.Rows()/2)
	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()
	gocv.WarpAffineWithParams(img, &out, m, image.Pt(img.Cols(), img.Rows()),
		gocv.InterpolationLinear, gocv.BorderReplicate, gocv.NewScalar(0, 0, 0, 0))
	return out
}
