package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/internal/common"
)

// Visit is one parsed document in the patient's history.
type Visit struct {
	ID           uuid.UUID
	PatientName  string
	VisitDate    string
	DocumentPath string
	Language     string
	Strategy     string
	RecordJSON   []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type VisitRepository interface {
	Upsert(ctx context.Context, v *Visit) (*Visit, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByDocumentPath(ctx context.Context, path string) (*Visit, error)
	List(ctx context.Context) ([]*Visit, error)
}

type visitRepo struct {
	db  *DB
	log *slog.Logger
}

func NewVisitRepository(db *DB, log *slog.Logger) VisitRepository {
	return &visitRepo{db: db, log: log}
}

// Upsert inserts a visit, replacing any earlier row for the same document
// path so re-parsing a file updates the history instead of duplicating it.
func (r *visitRepo) Upsert(ctx context.Context, v *Visit) (*Visit, error) {
	now := time.Now().UTC()
	existing, err := r.GetByDocumentPath(ctx, v.DocumentPath)
	switch {
	case err == nil:
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		v.UpdatedAt = now
		_, err = r.db.ExecContext(ctx, r.db.bind(
			`UPDATE visits SET patient_name = ?, visit_date = ?, language = ?,
				strategy = ?, record_json = ?, updated_at = ?
			 WHERE id = ?`),
			v.PatientName, v.VisitDate, v.Language, v.Strategy,
			string(v.RecordJSON), v.UpdatedAt, v.ID.String())
	case errors.Is(err, common.ErrNotFound):
		v.ID = uuid.New()
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err = r.db.ExecContext(ctx, r.db.bind(
			`INSERT INTO visits (id, patient_name, visit_date, document_path,
				language, strategy, record_json, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			v.ID.String(), v.PatientName, v.VisitDate, v.DocumentPath,
			v.Language, v.Strategy, string(v.RecordJSON), v.CreatedAt, v.UpdatedAt)
	default:
		return nil, err
	}
	if err != nil {
		r.log.Error("visit upsert failed", "document_path", v.DocumentPath, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("visit saved", "visit_id", v.ID, "patient", v.PatientName, "date", v.VisitDate)
	return v, nil
}

func (r *visitRepo) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.db.QueryRowContext(ctx, r.db.bind(
		`SELECT id, patient_name, visit_date, document_path, language, strategy,
			record_json, created_at, updated_at
		 FROM visits WHERE id = ?`), id.String())
	return scanVisit(row)
}

func (r *visitRepo) GetByDocumentPath(ctx context.Context, path string) (*Visit, error) {
	row := r.db.QueryRowContext(ctx, r.db.bind(
		`SELECT id, patient_name, visit_date, document_path, language, strategy,
			record_json, created_at, updated_at
		 FROM visits WHERE document_path = ?`), path)
	return scanVisit(row)
}

func (r *visitRepo) List(ctx context.Context) ([]*Visit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, patient_name, visit_date, document_path, language, strategy,
			record_json, created_at, updated_at
		 FROM visits ORDER BY visit_date, created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*Visit, error) {
	var v Visit
	var id, recordJSON string
	err := row.Scan(&id, &v.PatientName, &v.VisitDate, &v.DocumentPath,
		&v.Language, &v.Strategy, &recordJSON, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	v.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad visit id %q", common.ErrDatabase, id)
	}
	v.RecordJSON = []byte(recordJSON)
	return &v, nil
}
