package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Recognizer interface using a local Tesseract install
type Tesseract struct {
	languages []string
	threshold float32
}

// NewTesseract creates a new Tesseract Recognizer.
// Languages default to Korean plus English; a threshold <= 0 uses DefaultThreshold.
func NewTesseract(languages []string, threshold float32) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = []string{"kor", "eng"}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tesseract{
		languages: languages,
		threshold: threshold,
	}, nil
}

// Recognize binarizes the image and runs Tesseract on it
func (t *Tesseract) Recognize(imageData []byte, contentType string) (string, error) {
	pngData, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	binary, err := Binarize(pngData, t.threshold)
	if err != nil {
		return "", fmt.Errorf("preprocessing image: %w", err)
	}

	// gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting languages: %w", err)
	}
	if err := client.SetImageFromBytes(binary); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are created per call
func (t *Tesseract) Close() error {
	return nil
}
