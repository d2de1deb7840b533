package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/common"
)

// ExtractJob records one pass of a document through the pipeline.
type ExtractJob struct {
	ID               uuid.UUID
	SourcePath       string
	Format           string
	Status           constants.JobStatus
	ExtractionMethod string
	Language         string
	TextLength       int
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       *time.Time
}

type ExtractJobRepository interface {
	Start(ctx context.Context, sourcePath, format string) (*ExtractJob, error)
	FinishTextOK(ctx context.Context, jobID uuid.UUID, method, language string, textLength int) error
	FinishParseOK(ctx context.Context, jobID uuid.UUID) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	return &extractJobRepo{db: db, log: log}
}

func (r *extractJobRepo) Start(ctx context.Context, sourcePath, format string) (*ExtractJob, error) {
	job := &ExtractJob{
		ID:         uuid.New(),
		SourcePath: sourcePath,
		Format:     format,
		Status:     constants.JobStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, r.db.bind(
		`INSERT INTO extract_jobs (id, source_path, format, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`),
		job.ID.String(), job.SourcePath, job.Format, string(job.Status), job.StartedAt)
	if err != nil {
		r.log.Error("extract_job start failed", "source_path", sourcePath, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_job started", "job_id", job.ID, "source_path", sourcePath, "format", format)
	return job, nil
}

func (r *extractJobRepo) FinishTextOK(ctx context.Context, jobID uuid.UUID, method, language string, textLength int) error {
	_, err := r.db.ExecContext(ctx, r.db.bind(
		`UPDATE extract_jobs SET status = ?, extraction_method = ?, language = ?,
			text_length = ?
		 WHERE id = ?`),
		string(constants.JobStatusTextOK), method, language, textLength, jobID.String())
	if err != nil {
		r.log.Error("extract_job finish(TEXT_OK) failed", "job_id", jobID, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_job text extracted", "job_id", jobID, "method", method, "language", language)
	return nil
}

func (r *extractJobRepo) FinishParseOK(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.bind(
		`UPDATE extract_jobs SET status = ?, finished_at = ? WHERE id = ?`),
		string(constants.JobStatusParseOK), now, jobID.String())
	if err != nil {
		r.log.Error("extract_job finish(PARSE_OK) failed", "job_id", jobID, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_job finished", "job_id", jobID)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.bind(
		`UPDATE extract_jobs SET status = ?, finished_at = ?, error_message = ?
		 WHERE id = ?`),
		string(constants.JobStatusFailed), now, message, jobID.String())
	if err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Warn("extract_job failed", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*ExtractJob, error) {
	row := r.db.QueryRowContext(ctx, r.db.bind(
		`SELECT id, source_path, format, status, extraction_method, language,
			text_length, error_message, started_at, finished_at
		 FROM extract_jobs WHERE id = ?`), jobID.String())

	var job ExtractJob
	var id, status string
	var finished sql.NullTime
	err := row.Scan(&id, &job.SourcePath, &job.Format, &status,
		&job.ExtractionMethod, &job.Language, &job.TextLength,
		&job.ErrorMessage, &job.StartedAt, &finished)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad job id %q", common.ErrDatabase, id)
	}
	job.Status = constants.JobStatus(status)
	if finished.Valid {
		job.FinishedAt = &finished.Time
	}
	return &job, nil
}
