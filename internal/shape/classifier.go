// Package shape classifies the cropped pill outline.
//
// The crop is binarized after illumination correction, the largest external
// contour gets an ellipse fit, and the major/minor axis ratio decides between
// circle, oval and other. The ratio cutoffs are configuration: they were
// tuned empirically and batch evaluation re-tunes them.
package shape

import (
	"image"

	"pillscan/internal/config"

	"gocv.io/x/gocv"
)

// Label is the closed shape vocabulary, using the reference catalog's tokens.
type Label string

const (
	Circle Label = "圓形"
	Oval   Label = "橢圓形"
	Other  Label = "其他"
)

// Classifier holds the ratio cutoffs.
type Classifier struct {
	cfg config.ShapeSettings
}

// NewClassifier creates a classifier with the given cutoffs.
func NewClassifier(cfg config.ShapeSettings) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify determines the outline shape of a cropped pill image. Always
// returns exactly one label; ambiguity and failures map to Other.
func (c *Classifier) Classify(cropped gocv.Mat) Label {
	if cropped.Empty() {
		return Other
	}

	binary := correctAndBinarize(cropped)
	defer binary.Close()

	contour, ok := largestContour(binary)
	if !ok {
		// Shadow-corrected image washed out; retry on the raw crop with a
		// fixed threshold.
		fallback := plainBinarize(cropped)
		defer fallback.Close()
		contour, ok = largestContour(fallback)
		if !ok {
			return Other
		}
	}
	defer contour.Close()

	ratio, ok := ellipseAxisRatio(contour)
	if !ok {
		return Other
	}
	return c.ClassifyRatio(ratio)
}

// ClassifyRatio maps a major/minor axis ratio to a label.
func (c *Classifier) ClassifyRatio(ratio float64) Label {
	switch {
	case ratio >= c.cfg.CircleLo && ratio <= c.cfg.CircleHi:
		return Circle
	case ratio <= c.cfg.EllipseHi:
		return Oval
	default:
		return Other
	}
}

// correctAndBinarize separates pill from background under uneven lighting.
// Two Gaussian background estimates at different scales are divided out of
// the grayscale image and averaged, which flattens both soft shadows and
// broad gradients before Otsu picks the threshold.
func correctAndBinarize(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	corrected1 := divideByBackground(gray, 25)
	defer corrected1.Close()
	corrected2 := divideByBackground(gray, 75)
	defer corrected2.Close()

	corrected := gocv.NewMat()
	defer corrected.Close()
	gocv.AddWeighted(corrected1, 0.5, corrected2, 0.5, 0, &corrected)

	binary := gocv.NewMat()
	gocv.Threshold(corrected, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3))
	defer kernel.Close()
	gocv.MorphologyEx(binary, &binary, gocv.MorphClose, kernel)
	gocv.MorphologyEx(binary, &binary, gocv.MorphOpen, kernel)

	return binary
}

// divideByBackground estimates background brightness with a ksize Gaussian
// blur and divides it out, rescaled to 8-bit.
func divideByBackground(gray gocv.Mat, ksize int) gocv.Mat {
	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(gray, &blur, image.Pt(ksize, ksize), 0, 0, gocv.BorderDefault)

	grayF := gocv.NewMat()
	defer grayF.Close()
	gray.ConvertTo(&grayF, gocv.MatTypeCV32F)

	blurF := gocv.NewMat()
	defer blurF.Close()
	blur.ConvertTo(&blurF, gocv.MatTypeCV32F)

	div := gocv.NewMat()
	defer div.Close()
	gocv.Divide(grayF, blurF, &div)
	div.MultiplyFloat(255)

	out := gocv.NewMat()
	div.ConvertTo(&out, gocv.MatTypeCV8U)
	return out
}

func plainBinarize(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	gocv.Threshold(gray, &binary, 127, 255, gocv.ThresholdBinary)
	return binary
}

// largestContour returns the largest external contour by area. The returned
// PointVector must be closed by the caller.
func largestContour(binary gocv.Mat) (gocv.PointVector, bool) {
	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()
	if contours.Size() == 0 {
		return gocv.PointVector{}, false
	}

	bestIdx, bestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			bestIdx, bestArea = i, a
		}
	}
	return gocv.NewPointVectorFromPoints(contours.At(bestIdx).ToPoints()), true
}

// ellipseAxisRatio fits an ellipse and returns major/minor. Needs at least 5
// contour points for a stable fit.
func ellipseAxisRatio(contour gocv.PointVector) (float64, bool) {
	if contour.Size() < 5 {
		return 0, false
	}
	ellipse := gocv.FitEllipse(contour)
	major := float64(max(ellipse.Width, ellipse.Height))
	minor := float64(min(ellipse.Width, ellipse.Height))
	if minor <= 0 {
		return 0, false
	}
	return major / minor, true
}
