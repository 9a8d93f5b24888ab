// Package ocr reads the imprint text off a cropped pill image.
//
// Pill imprints are small, low-contrast and photographed at arbitrary
// rotation, so no single preprocessing choice is reliable. The engine runs
// text recognition across a grid of image variants and rotation angles and
// keeps the combination with the best length×confidence score.
package ocr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// ImprintChars is the character set for pill imprint OCR. Imprints are
// uppercase alphanumerics with the occasional hyphen; excluding lowercase
// avoids 0/O and 1/I confusion.
const ImprintChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-"

// Span is one recognized text fragment with its confidence in [0,1].
type Span struct {
	Text       string
	Confidence float64
}

// Recognizer is the model seam for the hypothesis search.
type Recognizer interface {
	Recognize(img gocv.Mat) ([]Span, error)
}

// Engine wraps a Tesseract client. The client is stateful and not safe for
// concurrent use, so calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewEngine creates the OCR engine.
func NewEngine(language string) (*Engine, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()

	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language: %w", err)
	}

	// Imprint codes are not dictionary words; stop Tesseract from
	// "correcting" them into English.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("language_model_penalty_non_dict_word", "0")
	_ = client.SetVariable("language_model_penalty_non_freq_dict_word", "0")

	return &Engine{client: client}, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// Recognize runs word-level OCR over the whole image.
func (e *Engine) Recognize(img gocv.Mat) ([]Span, error) {
	if img.Empty() {
		return nil, fmt.Errorf("ocr: empty image")
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("ocr: encode image: %w", err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("ocr: engine closed")
	}

	if err := e.client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("ocr: set PSM: %w", err)
	}
	if err := e.client.SetWhitelist(ImprintChars); err != nil {
		return nil, fmt.Errorf("ocr: set whitelist: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("ocr: set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr: get boxes: %w", err)
	}

	var spans []Span
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		spans = append(spans, Span{
			Text:       text,
			Confidence: box.Confidence / 100.0,
		})
	}
	return spans, nil
}
