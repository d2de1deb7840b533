package extract

import (
	"context"

	"github.com/healthpassportsg/medrecords/internal/ocr"
)

// OCRAdapter exposes ocr.Extractor as a TextExtractor.
type OCRAdapter struct {
	e *ocr.Extractor
}

func NewOCRAdapter(e *ocr.Extractor) *OCRAdapter {
	return &OCRAdapter{e: e}
}

func (a *OCRAdapter) Extract(ctx context.Context, path string) (TextExtractionResult, error) {
	r, err := a.e.Extract(ctx, path)
	return TextExtractionResult{
		Text:       r.Text,
		Pages:      r.Pages,
		SourceType: r.SourceType,
		Method:     r.Method,
		Language:   r.Language,
		Duration:   r.Duration,
		Warnings:   r.Warnings,
	}, err
}
