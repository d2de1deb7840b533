package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error kinds. Fatal vs. recovered policy is decided by the caller;
// these sentinels only classify the failure.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtraction        = errors.New("native text extraction failed")
	ErrOCR               = errors.New("ocr failed")
	ErrLanguageDetection = errors.New("language detection failed")
	ErrSemanticParse     = errors.New("semantic parse failed")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDatabase          = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
