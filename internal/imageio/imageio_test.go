package imageio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func pngBytes(t *testing.T, rows, cols int) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestDecodeBytesPNG(t *testing.T) {
	img, err := DecodeBytes(pngBytes(t, 40, 60))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	defer img.Close()
	if img.Rows() != 40 || img.Cols() != 60 {
		t.Errorf("decoded %dx%d, want 60x40", img.Cols(), img.Rows())
	}
}

func TestDecodeBytesGarbage(t *testing.T) {
	_, err := DecodeBytes([]byte("this is not an image at all"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
	if _, err := DecodeBytes(nil); !errors.Is(err, ErrDecode) {
		t.Errorf("nil input err = %v, want ErrDecode", err)
	}
}

func TestReadImageMissingFile(t *testing.T) {
	_, err := ReadImage(filepath.Join(t.TempDir(), "absent.jpg"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestReadImageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.png")
	if err := os.WriteFile(path, pngBytes(t, 32, 32), 0o644); err != nil {
		t.Fatal(err)
	}
	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	defer img.Close()
	if img.Empty() {
		t.Error("decoded image is empty")
	}
}

func TestNormalizeDownscales(t *testing.T) {
	img := gocv.NewMatWithSize(1000, 2000, gocv.MatTypeCV8UC3)
	defer img.Close()

	Normalize(&img, 500)
	if img.Cols() != 500 {
		t.Errorf("width = %d, want 500", img.Cols())
	}
	if img.Rows() != 250 {
		t.Errorf("height = %d, want aspect-preserving 250", img.Rows())
	}
}

func TestNormalizeLeavesSmallImages(t *testing.T) {
	img := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8UC3)
	defer img.Close()

	Normalize(&img, 500)
	if img.Cols() != 200 || img.Rows() != 100 {
		t.Errorf("small image resized to %dx%d", img.Cols(), img.Rows())
	}
}

func TestIsHEICSniffsBrand(t *testing.T) {
	// Minimal ftyp box carrying the heic brand.
	heic := []byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c',
		0, 0, 0, 0, 'm', 'i', 'f', '1', 'h', 'e', 'i', 'c'}
	if !isHEIC(heic) {
		t.Error("heic brand not recognized")
	}
	if isHEIC(pngBytes(t, 8, 8)) {
		t.Error("PNG misidentified as HEIC")
	}
	if isHEIC([]byte{1, 2, 3}) {
		t.Error("short input misidentified as HEIC")
	}
}
