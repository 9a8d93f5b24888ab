package detect

import (
	"math/rand"
	"testing"

	"pillscan/pkg/geometry"
)

func box(x, y, w, h int, conf float32) DetectionBox {
	return DetectionBox{Rect: geometry.RectInt{X: x, Y: y, Width: w, Height: h}, Confidence: conf}
}

func TestSelectBestRectOrderIndependent(t *testing.T) {
	boxes := []DetectionBox{
		box(10, 10, 100, 100, 0.9),
		box(200, 200, 300, 300, 0.6),
		box(50, 50, 20, 20, 0.95),
		box(400, 100, 150, 150, 0.85),
	}

	want, ok := SelectBestRect(boxes, 1000, 1000, 0)
	if !ok {
		t.Fatal("no rect selected")
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]DetectionBox(nil), boxes...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got, ok := SelectBestRect(shuffled, 1000, 1000, 0)
		if !ok || got != want {
			t.Fatalf("shuffle %d: got %+v ok=%v, want %+v", i, got, ok, want)
		}
	}
}

func TestSelectBestRectFavorsConfidentAndLarge(t *testing.T) {
	// A tiny box with max confidence loses to a large confident one.
	boxes := []DetectionBox{
		box(0, 0, 10, 10, 0.99),
		box(100, 100, 200, 200, 0.80),
	}
	got, ok := SelectBestRect(boxes, 500, 500, 0)
	if !ok {
		t.Fatal("no rect selected")
	}
	if got.X != 100 {
		t.Errorf("selected %+v, want the large box", got)
	}
}

func TestSelectBestRectPadsAndClips(t *testing.T) {
	boxes := []DetectionBox{box(0, 0, 100, 50, 0.9)}
	got, ok := SelectBestRect(boxes, 120, 120, 0.08)
	if !ok {
		t.Fatal("no rect selected")
	}
	// 8% of the longer side (100) is 8px of padding on each side, clipped
	// at the top-left corner.
	if got.X != 0 || got.Y != 0 {
		t.Errorf("origin = (%d,%d), want (0,0)", got.X, got.Y)
	}
	if got.Width != 108 || got.Height != 66 {
		t.Errorf("size = %dx%d, want 108x66", got.Width, got.Height)
	}
}

func TestSelectBestRectEmpty(t *testing.T) {
	if _, ok := SelectBestRect(nil, 100, 100, 0.08); ok {
		t.Error("empty input should not select")
	}
	degenerate := []DetectionBox{box(0, 0, 0, 0, 0.9)}
	if _, ok := SelectBestRect(degenerate, 100, 100, 0.08); ok {
		t.Error("zero-area boxes should not select")
	}
}
