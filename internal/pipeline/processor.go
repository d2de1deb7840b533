package processor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/record"
)

// Processor runs text extraction then field parsing for one document.
type Processor struct {
	Logger *slog.Logger
	Text   *TextStage
	Parse  *ParseStage
}

func NewProcessor(logger *slog.Logger, text *TextStage, parse *ParseStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Text: text, Parse: parse}
}

// ProcessFile runs the full pipeline for one document and returns the
// normalized record. The returned record is complete even when field
// extraction degraded; the error reports extraction or persistence failures.
func (p *Processor) ProcessFile(ctx context.Context, path string) (record.StructuredRecord, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}

	jobID, text, err := p.Text.Run(ctx, path)
	if err != nil {
		p.Logger.Error("processor.text.failed", "req_id", rid, "path", path, "err", err)
		return record.New(), err
	}
	p.Logger.Info("processor.text.ok",
		"req_id", rid,
		"path", path,
		"job_id", jobID,
		"method", text.Extraction.Method,
		"pages", text.Extraction.Pages,
	)

	rec, err := p.Parse.Run(ctx, jobID, extract.FieldRequest{
		DocumentPath: path,
		CleanedText:  text.CleanedText,
	}, text.Extraction.Language)
	if err != nil {
		p.Logger.Error("processor.parse.failed", "req_id", rid, "job_id", jobID, "err", err)
		return rec, err
	}
	p.Logger.Info("processor.parse.ok", "req_id", rid, "job_id", jobID)
	return rec, nil
}
