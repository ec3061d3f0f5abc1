// Package ocr turns receipt and statement images into plain text.
package ocr

// Recognizer defines the interface for text recognition backends
type Recognizer interface {
	// Recognize returns the text of an image/PDF, one printed line per line
	Recognize(imageData []byte, contentType string) (string, error)
	// Close releases resources held by the backend
	Close() error
}
