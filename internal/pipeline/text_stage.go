// Package processor coordinates the two pipeline stages: text extraction and
// field parsing.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/repository"
	"github.com/healthpassportsg/medrecords/internal/textclean"
)

type TextStage struct {
	JobsRepo      repository.ExtractJobRepository
	TextExtractor extract.TextExtractor
	Logger        *slog.Logger
}

func NewTextStage(jobs repository.ExtractJobRepository, tx extract.TextExtractor, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStage{JobsRepo: jobs, TextExtractor: tx, Logger: logger}
}

// TextResult is the stage output handed to the parse stage.
type TextResult struct {
	Extraction  extract.TextExtractionResult
	CleanedText string
}

// Run starts an extract_job, extracts text from the document, and cleans it.
// The raw extraction result is kept alongside the cleaned text so callers can
// inspect method, language, and warnings.
func (p *TextStage) Run(ctx context.Context, path string) (uuid.UUID, TextResult, error) {
	ext := filepath.Ext(path)
	format := constants.MapExtToFormat(ext)
	if format == "" {
		return uuid.Nil, TextResult{}, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, ext)
	}

	job, err := p.JobsRepo.Start(ctx, path, format)
	if err != nil {
		return uuid.Nil, TextResult{}, err
	}

	res, err := p.TextExtractor.Extract(ctx, path)
	if err != nil {
		_ = p.JobsRepo.FinishFailure(ctx, job.ID, err.Error())
		return job.ID, TextResult{Extraction: res}, common.WrapError(err, "extract text")
	}
	for _, w := range res.Warnings {
		p.Logger.Warn("text extraction warning", "job_id", job.ID, "warning", w)
	}

	cleaned := textclean.Clean(res.Text)
	if err := p.JobsRepo.FinishTextOK(ctx, job.ID, res.Method, res.Language, len(cleaned)); err != nil {
		return job.ID, TextResult{Extraction: res, CleanedText: cleaned}, err
	}

	p.Logger.Info("text stage ok",
		"job_id", job.ID,
		"method", res.Method,
		"pages", res.Pages,
		"language", res.Language,
		"chars", len(cleaned),
	)
	return job.ID, TextResult{Extraction: res, CleanedText: cleaned}, nil
}
