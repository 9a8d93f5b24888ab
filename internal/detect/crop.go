package detect

import (
	"pillscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// SelectBestRect picks the crop rectangle from candidate boxes. Each box is
// scored confidence × (area / maxArea), which favors confident AND large
// detections over spurious tiny high-confidence ones. The chosen box is padded
// by padRatio of its larger dimension and clipped to the image.
//
// Pure function of its inputs; ties resolve by larger area, then by position,
// so the result does not depend on box order.
func SelectBestRect(boxes []DetectionBox, imgW, imgH int, padRatio float64) (geometry.RectInt, bool) {
	if len(boxes) == 0 {
		return geometry.RectInt{}, false
	}

	maxArea := 0
	for _, b := range boxes {
		if a := b.Area(); a > maxArea {
			maxArea = a
		}
	}
	if maxArea == 0 {
		return geometry.RectInt{}, false
	}

	bestIdx := 0
	bestScore := score(boxes[0], maxArea)
	for i := 1; i < len(boxes); i++ {
		s := score(boxes[i], maxArea)
		if s > bestScore || (s == bestScore && tieBreak(boxes[i], boxes[bestIdx])) {
			bestIdx, bestScore = i, s
		}
	}

	chosen := boxes[bestIdx].Rect
	pad := int(padRatio * float64(max(chosen.Width, chosen.Height)))
	return chosen.Pad(pad).ClipTo(imgW, imgH), true
}

func score(b DetectionBox, maxArea int) float64 {
	return float64(b.Confidence) * (float64(b.Area()) / float64(maxArea))
}

// tieBreak reports whether a should win over b at equal score.
func tieBreak(a, b DetectionBox) bool {
	if a.Area() != b.Area() {
		return a.Area() > b.Area()
	}
	if a.Rect.X != b.Rect.X {
		return a.Rect.X < b.Rect.X
	}
	return a.Rect.Y < b.Rect.Y
}

// Crop extracts rect from img as an owned Mat.
func Crop(img gocv.Mat, rect geometry.RectInt) gocv.Mat {
	region := img.Region(rect.ToImageRect())
	defer region.Close()
	return region.Clone()
}
