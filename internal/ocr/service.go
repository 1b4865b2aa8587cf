// Package ocr provides text recognition through the Baidu OCR "accurate basic" API.
//
// Images are sent inline as base64 form data. The access token comes from a
// TokenSource and travels as the access_token query parameter. Recognition
// options are fixed: mixed Chinese/English, direction detection on, paragraph
// grouping on, per-line confidence off.
//
// Baidu OCR API Limitations:
//   - Maximum encoded image size: 10MB
//   - Supported formats: JPG, PNG, BMP
//   - Request rate is bounded by the account QPS quota
package ocr

import (
	"context"
	"time"

	"ocrbot/internal/auth"
)

// Recognizer turns an image file into normalized text.
type Recognizer interface {
	// Recognize reads the image at path and returns its normalized text.
	// An image without text yields an empty string and a nil error.
	Recognize(ctx context.Context, path string) (string, error)

	// RecognizeBytes recognizes an in-memory image and returns the full result.
	RecognizeBytes(ctx context.Context, image []byte) (*Result, error)
}

// TokenSource supplies bearer tokens. *auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (auth.Token, error)
	Invalidate()
}

// Result contains the recognized text with response metadata.
type Result struct {
	// Text is the normalized text: lines joined by newlines, blank runs collapsed, trimmed.
	Text string `json:"text"`

	// Lines are the raw words entries in response order.
	Lines []string `json:"lines"`

	// Direction is the detected image orientation (-1 undefined, 0 upright,
	// 1 rotated 90 degrees counter-clockwise, 2 rotated 180, 3 rotated 270).
	Direction int `json:"direction"`

	// LogID is the provider request id, useful for support tickets.
	LogID uint64 `json:"log_id"`

	// ProcessingDuration is how long the provider call took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}
