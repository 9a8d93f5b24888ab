package detect

import (
	"fmt"
	"image"
	"sync"

	"pillscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// Segmenter is the last-resort region finder: build a foreground mask, clean
// it up, and take the bounding box of the largest blob. With saliency weights
// configured the mask comes from the network; otherwise a global Otsu
// threshold stands in, which works on the plain backgrounds retake prompts
// ask for.
type Segmenter struct {
	saliencyPath string
	minMaskRatio float64

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

const saliencyInputSize = 320

// NewSegmenter creates the fallback segmenter. saliencyPath may be empty.
func NewSegmenter(saliencyPath string, minMaskRatio float64) *Segmenter {
	if minMaskRatio <= 0 {
		minMaskRatio = 0.001
	}
	return &Segmenter{saliencyPath: saliencyPath, minMaskRatio: minMaskRatio}
}

// Close releases the saliency network if one was loaded.
func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		s.loaded = false
		return s.net.Close()
	}
	return nil
}

// Segment returns the bounding rectangle of the largest foreground blob,
// padded slightly. ok is false when no plausible blob was found.
func (s *Segmenter) Segment(img gocv.Mat) (geometry.RectInt, bool) {
	if img.Empty() {
		return geometry.RectInt{}, false
	}

	mask := s.foregroundMask(img)
	defer mask.Close()
	if mask.Empty() {
		return geometry.RectInt{}, false
	}

	// Otsu + open/close to drop speckle noise and fill pinholes.
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(mask, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	gocv.MorphologyExWithParams(binary, &binary, gocv.MorphOpen, kernel, 1, gocv.BorderConstant)
	gocv.MorphologyExWithParams(binary, &binary, gocv.MorphClose, kernel, 2, gocv.BorderConstant)

	rect, ok := largestContourRect(binary)
	if !ok {
		return geometry.RectInt{}, false
	}

	imgArea := img.Cols() * img.Rows()
	if float64(rect.Area()) < s.minMaskRatio*float64(imgArea) {
		// Blob smaller than 0.1% of the frame is noise, not a pill.
		return geometry.RectInt{}, false
	}

	return rect.Pad(5).ClipTo(img.Cols(), img.Rows()), true
}

// foregroundMask produces a single-channel foreground likelihood image.
func (s *Segmenter) foregroundMask(img gocv.Mat) gocv.Mat {
	if s.saliencyPath != "" {
		if mask, err := s.saliencyMask(img); err == nil {
			return mask
		}
	}

	// Threshold route: assume the pill differs in brightness from the
	// background. If the "foreground" covers most of the frame the polarity
	// is inverted.
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	probe := gocv.NewMat()
	defer probe.Close()
	gocv.Threshold(gray, &probe, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	fg := gocv.CountNonZero(probe)
	if float64(fg) > 0.5*float64(probe.Rows()*probe.Cols()) {
		gocv.BitwiseNot(gray, &gray)
	}
	return gray
}

func (s *Segmenter) saliencyMask(img gocv.Mat) (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		net := gocv.ReadNetFromONNX(s.saliencyPath)
		if net.Empty() {
			return gocv.NewMat(), fmt.Errorf("load saliency model %s failed", s.saliencyPath)
		}
		s.net = net
		s.loaded = true
	}

	sz := image.Pt(saliencyInputSize, saliencyInputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, sz, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()

	// Output is a [1,1,H,W] saliency map in an arbitrary range; stretch it to
	// 8-bit before thresholding.
	flat := out.Reshape(1, saliencyInputSize)
	defer flat.Close()

	norm := gocv.NewMat()
	gocv.Normalize(flat, &norm, 0, 255, gocv.NormMinMax)

	mask8 := gocv.NewMat()
	norm.ConvertTo(&mask8, gocv.MatTypeCV8U)
	norm.Close()

	resized := gocv.NewMat()
	gocv.Resize(mask8, &resized, image.Pt(img.Cols(), img.Rows()), 0, 0, gocv.InterpolationLinear)
	mask8.Close()
	return resized, nil
}

// largestContourRect returns the bounding box of the largest external contour.
func largestContourRect(binary gocv.Mat) (geometry.RectInt, bool) {
	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return geometry.RectInt{}, false
	}

	bestIdx, bestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			bestIdx, bestArea = i, a
		}
	}
	return geometry.FromImageRect(gocv.BoundingRect(contours.At(bestIdx))), true
}
