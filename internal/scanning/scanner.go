// Package scanning turns receipt photos and PDFs into OCR text using a vision model.
package scanning

import "context"

// Transcription is what a vision model returns for a receipt image
type Transcription struct {
	Text    string `json:"text"`
	Legible bool   `json:"legible"`
}

// Transcriber defines the interface for receipt transcription
type Transcriber interface {
	// Transcribe reads all text on a receipt image/PDF
	Transcribe(ctx context.Context, imageData []byte, contentType string) (*Transcription, error)
	// Close closes the transcriber and releases resources
	Close() error
}
