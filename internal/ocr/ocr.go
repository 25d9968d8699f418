// Package ocr turns scanned images into plain text.
package ocr

import "context"

// Engine recognizes the text of an image file.
type Engine interface {
	Name() string
	// Recognize returns the recognized text with surrounding whitespace
	// trimmed; an image without text yields "".
	Recognize(ctx context.Context, imagePath string) (string, error)
}
