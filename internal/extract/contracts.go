package extract

import (
	"context"
	"time"
)

// TextExtractor is Stage 1: file -> raw text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextExtractionResult, error)
}

type TextExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // "PDF" | "IMAGE"
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// FieldRequest carries everything a field extraction strategy may use.
// Rule-based strategies read CleanedText only; the semantic parser also
// attaches the original document.
type FieldRequest struct {
	DocumentPath string
	CleanedText  string
}

// FieldExtractor is Stage 2: cleaned text -> structured record fields.
// Implementations return a partial record-shaped mapping plus the raw payload
// they derived it from; the orchestrator owns normalization, so every
// strategy converges on the same output schema.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req FieldRequest) (map[string]any, []byte, error)
}
