package geometry

import (
	"image"
	"testing"
)

func TestRectIntPadAndClip(t *testing.T) {
	r := RectInt{X: 10, Y: 10, Width: 20, Height: 30}

	padded := r.Pad(5)
	if padded.X != 5 || padded.Y != 5 || padded.Width != 30 || padded.Height != 40 {
		t.Errorf("Pad(5) = %+v", padded)
	}

	// Padding past the origin clips back to the image.
	clipped := RectInt{X: 2, Y: 2, Width: 10, Height: 10}.Pad(5).ClipTo(100, 100)
	if clipped.X != 0 || clipped.Y != 0 {
		t.Errorf("clip to origin failed: %+v", clipped)
	}
	if clipped.Width != 17 || clipped.Height != 17 {
		t.Errorf("clipped size = %dx%d, want 17x17", clipped.Width, clipped.Height)
	}

	// Clipping at the far edge.
	edge := RectInt{X: 90, Y: 95, Width: 20, Height: 20}.ClipTo(100, 100)
	if edge.Width != 10 || edge.Height != 5 {
		t.Errorf("edge clip = %+v", edge)
	}
}

func TestRectIntClipToDisjoint(t *testing.T) {
	r := RectInt{X: 200, Y: 200, Width: 10, Height: 10}.ClipTo(100, 100)
	if r.Area() != 0 {
		t.Errorf("disjoint clip should have zero area, got %+v", r)
	}
}

func TestRectIntArea(t *testing.T) {
	if a := (RectInt{Width: 4, Height: 5}).Area(); a != 20 {
		t.Errorf("Area = %d, want 20", a)
	}
	if a := (RectInt{Width: -4, Height: 5}).Area(); a != 0 {
		t.Errorf("negative width area = %d, want 0", a)
	}
}

func TestRectIntImageRoundTrip(t *testing.T) {
	src := image.Rect(3, 4, 13, 24)
	r := FromImageRect(src)
	if r.X != 3 || r.Y != 4 || r.Width != 10 || r.Height != 20 {
		t.Fatalf("FromImageRect = %+v", r)
	}
	if got := r.ToImageRect(); got != src {
		t.Errorf("ToImageRect = %v, want %v", got, src)
	}
}

func TestPoint2DDistance(t *testing.T) {
	a := Point2D{X: 0, Y: 0}
	b := Point2D{X: 3, Y: 4}
	if d := a.Distance(b); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	if !r.Contains(Point2D{X: 5, Y: 5}) {
		t.Error("center should be inside")
	}
	if r.Contains(Point2D{X: 11, Y: 5}) {
		t.Error("point past the right edge should be outside")
	}
}
