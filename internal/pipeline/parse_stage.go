package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/record"
	"github.com/healthpassportsg/medrecords/internal/repository"
)

// ParseConfig holds behavior flags for the parse stage.
type ParseConfig struct {
	// ArtifactPath is where the normalized record JSON is written.
	// Empty disables the artifact.
	ArtifactPath string
	// StrategyName labels the visit row ("semantic" or "rules").
	StrategyName string
}

type ParseStage struct {
	Logger     *slog.Logger
	Cfg        ParseConfig
	JobsRepo   repository.ExtractJobRepository
	VisitsRepo repository.VisitRepository
	Extractor  extract.FieldExtractor
}

func NewParseStage(
	logger *slog.Logger,
	cfg ParseConfig,
	jobs repository.ExtractJobRepository,
	visits repository.VisitRepository,
	fe extract.FieldExtractor,
) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StrategyName == "" {
		cfg.StrategyName = "semantic"
	}
	return &ParseStage{
		Logger:     logger,
		Cfg:        cfg,
		JobsRepo:   jobs,
		VisitsRepo: visits,
		Extractor:  fe,
	}
}

// Run extracts fields from the cleaned text, normalizes the result into the
// canonical record shape, persists the JSON artifact, and upserts the visit.
//
// A semantic parse failure is recovered: the record degrades to the empty
// schema rather than aborting, so every processed document yields a complete
// record. Persistence failures are returned alongside the record.
func (p *ParseStage) Run(ctx context.Context, jobID uuid.UUID, req extract.FieldRequest, language string) (record.StructuredRecord, error) {
	p.Logger.Info("parse stage start",
		"job_id", jobID, "strategy", p.Cfg.StrategyName, "chars", len(req.CleanedText))

	fields, raw, err := p.Extractor.ExtractFields(ctx, req)
	if err != nil {
		if !errors.Is(err, common.ErrSemanticParse) {
			_ = p.JobsRepo.FinishFailure(ctx, jobID, err.Error())
			return record.New(), common.WrapError(err, "extract fields")
		}
		p.Logger.Warn("field extraction degraded to empty record",
			"job_id", jobID, "err", err, "raw_bytes", len(raw))
		fields = map[string]any{}
	}

	rec := record.Normalize(fields)

	if p.Cfg.ArtifactPath != "" {
		if err := record.WriteJSON(p.Cfg.ArtifactPath, rec); err != nil {
			_ = p.JobsRepo.FinishFailure(ctx, jobID, err.Error())
			return rec, common.WrapError(err, "write artifact")
		}
	}

	if p.VisitsRepo != nil {
		encoded, err := record.EncodeJSON(rec)
		if err != nil {
			return rec, common.WrapError(err, "encode record")
		}
		_, err = p.VisitsRepo.Upsert(ctx, &repository.Visit{
			PatientName:  rec.PatientDetails.Name,
			VisitDate:    rec.PatientDetails.Date,
			DocumentPath: req.DocumentPath,
			Language:     language,
			Strategy:     p.Cfg.StrategyName,
			RecordJSON:   encoded,
		})
		if err != nil {
			return rec, common.WrapError(err, "save visit")
		}
	}

	if err := p.JobsRepo.FinishParseOK(ctx, jobID); err != nil {
		return rec, err
	}

	p.Logger.Info("parse stage ok",
		"job_id", jobID,
		"patient", rec.PatientDetails.Name,
		"date", rec.PatientDetails.Date,
		"medications", len(rec.Sections.Medications),
	)
	return rec, nil
}
