package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
)

// photoMaxSide bounds the reference photos served to clients.
const photoMaxSide = 640

// PhotoStore serves the reference photos keyed by billing code. Photos are
// resized and re-encoded on first access and cached as JPEG bytes.
type PhotoStore struct {
	dir string

	mu    sync.Mutex
	cache map[string][]byte
}

// NewPhotoStore returns a store over dir. The directory may be missing;
// lookups then simply miss.
func NewPhotoStore(dir string) *PhotoStore {
	return &PhotoStore{dir: dir, cache: map[string][]byte{}}
}

// Lookup returns the JPEG bytes of the reference photo for billingCode, or
// ok=false when no photo exists.
func (s *PhotoStore) Lookup(billingCode string) ([]byte, bool) {
	if billingCode == "" {
		return nil, false
	}

	s.mu.Lock()
	if b, ok := s.cache[billingCode]; ok {
		s.mu.Unlock()
		return b, b != nil
	}
	s.mu.Unlock()

	b, err := s.load(billingCode)
	if err != nil {
		b = nil
	}
	s.mu.Lock()
	s.cache[billingCode] = b
	s.mu.Unlock()
	return b, b != nil
}

func (s *PhotoStore) load(billingCode string) ([]byte, error) {
	var path string
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		p := filepath.Join(s.dir, billingCode+ext)
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no photo for %s", billingCode)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open photo %s: %w", path, err)
	}
	if b := img.Bounds(); b.Dx() > photoMaxSide || b.Dy() > photoMaxSide {
		img = imaging.Fit(img, photoMaxSide, photoMaxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode photo %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
