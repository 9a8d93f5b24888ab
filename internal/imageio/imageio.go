// Package imageio decodes and normalizes input photos.
//
// Standard formats go through OpenCV's reader, which applies EXIF orientation
// on its own. HEIC/HEIF photos (the iPhone default) are decoded in pure Go and
// converted to a Mat. All Mats handed to the pipeline are 3-channel BGR.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/jdeng/goheif"
	xdraw "golang.org/x/image/draw"

	"gocv.io/x/gocv"
)

// ErrDecode reports that the input could not be parsed as an image.
var ErrDecode = errors.New("image decode failed")

// heicExts are the extensions routed to the HEIF decoder.
var heicExts = map[string]bool{".heic": true, ".heif": true}

// ReadImage loads a photo from disk as a BGR Mat.
func ReadImage(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	if heicExts[strings.ToLower(filepath.Ext(path))] {
		raw, err := os.ReadFile(path)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		return decodeHEIC(raw)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrDecode, path)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory photo (upload payload) as a BGR Mat.
func DecodeBytes(data []byte) (gocv.Mat, error) {
	if isHEIC(data) {
		return decodeHEIC(data)
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Normalize caps the longer image side at maxSide, downscaling in place
// proportionally. Detection quality does not benefit from >2K inputs and the
// k-means and OCR stages get measurably slower on them.
func Normalize(img *gocv.Mat, maxSide int) {
	if maxSide <= 0 || img.Empty() {
		return
	}
	w, h := img.Cols(), img.Rows()
	longer := max(w, h)
	if longer <= maxSide {
		return
	}
	scale := float64(maxSide) / float64(longer)
	gocv.Resize(*img, img, image.Point{}, scale, scale, gocv.InterpolationArea)
}

// isHEIC sniffs the ISO-BMFF ftyp box for HEIF brands.
func isHEIC(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	brand := string(data[8:12])
	switch brand {
	case "heic", "heix", "hevc", "heim", "heis", "hevm", "hevs", "mif1", "msf1":
		return true
	}
	return false
}

func decodeHEIC(data []byte) (gocv.Mat, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: heif: %v", ErrDecode, err)
	}

	// HEIF frames off modern phones are large; shrink before the Mat copy.
	const maxSide = 2048
	img = downscale(img, maxSide)

	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: heif convert: %v", ErrDecode, err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}

func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	longer := max(b.Dx(), b.Dy())
	if longer <= maxSide {
		return img
	}
	scale := float64(maxSide) / float64(longer)
	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
