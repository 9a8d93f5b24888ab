package detect

import (
	"fmt"
	"image"
	"sync"

	"pillscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// YOLODetector runs a single-class YOLO ONNX model through gocv's DNN module.
// Loading the weights takes seconds, so the net is created lazily and shared;
// Forward calls are serialized because cv::dnn::Net is not re-entrant.
type YOLODetector struct {
	modelPath string
	inputSize int

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// NewYOLODetector prepares a detector for the given ONNX weights. The network
// is not loaded until the first Detect or Warmup call.
func NewYOLODetector(modelPath string, inputSize int) *YOLODetector {
	if inputSize <= 0 {
		inputSize = 640
	}
	return &YOLODetector{modelPath: modelPath, inputSize: inputSize}
}

// Warmup loads the network eagerly so the first request does not pay for it.
func (d *YOLODetector) Warmup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureLoaded()
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.loaded = false
		return d.net.Close()
	}
	return nil
}

func (d *YOLODetector) ensureLoaded() error {
	if d.loaded {
		return nil
	}
	net := gocv.ReadNetFromONNX(d.modelPath)
	if net.Empty() {
		return fmt.Errorf("load detector model %s failed", d.modelPath)
	}
	d.net = net
	d.loaded = true
	return nil
}

// Detect runs the network and returns NMS-filtered boxes above conf.
func (d *YOLODetector) Detect(img gocv.Mat, conf, iou float32) ([]DetectionBox, error) {
	if img.Empty() {
		return nil, fmt.Errorf("detect: empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}

	sz := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, sz, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	boxes, scores := decodeYOLOOutput(out, conf, img.Cols(), img.Rows(), d.inputSize)
	if len(boxes) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(boxes))
	for i, b := range boxes {
		rects[i] = b.Rect.ToImageRect()
	}
	keep := gocv.NMSBoxes(rects, scores, conf, iou)

	result := make([]DetectionBox, 0, len(keep))
	for _, idx := range keep {
		result = append(result, boxes[idx])
	}
	return result, nil
}

// decodeYOLOOutput parses the [1, 4+nc, N] prediction tensor. Box centers come
// out in network-input coordinates and are scaled back to the source image.
func decodeYOLOOutput(out gocv.Mat, conf float32, imgW, imgH, inputSize int) ([]DetectionBox, []float32) {
	dims := out.Size()
	if len(dims) != 3 {
		return nil, nil
	}
	attrs, n := dims[1], dims[2]
	if attrs < 5 {
		return nil, nil
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, nil
	}
	at := func(a, j int) float32 { return data[a*n+j] }

	sx := float32(imgW) / float32(inputSize)
	sy := float32(imgH) / float32(inputSize)

	var boxes []DetectionBox
	var scores []float32
	for j := 0; j < n; j++ {
		best := float32(0)
		for c := 4; c < attrs; c++ {
			if s := at(c, j); s > best {
				best = s
			}
		}
		if best < conf {
			continue
		}

		cx, cy := at(0, j)*sx, at(1, j)*sy
		w, h := at(2, j)*sx, at(3, j)*sy
		rect := geometry.RectInt{
			X:      int(cx - w/2),
			Y:      int(cy - h/2),
			Width:  int(w),
			Height: int(h),
		}.ClipTo(imgW, imgH)
		if rect.Area() == 0 {
			continue
		}

		boxes = append(boxes, DetectionBox{Rect: rect, Confidence: best})
		scores = append(scores, best)
	}
	return boxes, scores
}
