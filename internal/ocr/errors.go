package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrUnauthenticated is returned when no access token could be obtained,
	// either because credentials are missing or the exchange failed.
	ErrUnauthenticated = errors.New("OCR service authentication failed")

	// ErrProvider is matched by every *ProviderError returned by the OCR API.
	ErrProvider = errors.New("OCR provider returned an error")

	// ErrTransport is returned when the request could not be sent or the
	// response could not be read or decoded.
	ErrTransport = errors.New("OCR request failed")

	// ErrImageTooLarge is returned when the base64-encoded image exceeds the
	// provider limit (10MB).
	ErrImageTooLarge = errors.New("image exceeds the maximum encoded size (10MB)")

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = errors.New("image is empty")
)

// Provider error codes that signal a stale or rejected access token.
const (
	CodeInvalidToken = 110
	CodeExpiredToken = 111
)

// ProviderError is an error_code/error_msg pair reported by the OCR API.
type ProviderError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is makes every ProviderError match ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// TokenRejected reports whether the provider refused the access token.
func (e *ProviderError) TokenRejected() bool {
	return e.Code == CodeInvalidToken || e.Code == CodeExpiredToken
}

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "decode").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}
