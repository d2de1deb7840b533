package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/repository"
)

type stubTextExtractor struct {
	text string
	err  error
}

func (s *stubTextExtractor) Extract(_ context.Context, _ string) (extract.TextExtractionResult, error) {
	if s.err != nil {
		return extract.TextExtractionResult{}, s.err
	}
	return extract.TextExtractionResult{
		Text:       s.text,
		Pages:      1,
		SourceType: constants.PDF,
		Method:     "pdf-text",
		Language:   "eng",
	}, nil
}

type stubFieldExtractor struct {
	fields map[string]any
	raw    []byte
	err    error

	gotReq extract.FieldRequest
}

func (s *stubFieldExtractor) ExtractFields(_ context.Context, req extract.FieldRequest) (map[string]any, []byte, error) {
	s.gotReq = req
	return s.fields, s.raw, s.err
}

func newTestRepos(t *testing.T) (repository.ExtractJobRepository, repository.VisitRepository) {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{
		DSN:         filepath.Join(t.TempDir(), "pipeline.db"),
		DialTimeout: 5 * time.Second,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, slog.Default()) })
	return repository.NewExtractJobRepository(db, slog.Default()),
		repository.NewVisitRepository(db, slog.Default())
}

func newTestProcessor(t *testing.T, tx extract.TextExtractor, fe extract.FieldExtractor, artifact string) (*Processor, repository.VisitRepository) {
	t.Helper()
	jobs, visits := newTestRepos(t)
	text := NewTextStage(jobs, tx, slog.Default())
	parse := NewParseStage(slog.Default(), ParseConfig{
		ArtifactPath: artifact,
		StrategyName: "semantic",
	}, jobs, visits, fe)
	return NewProcessor(slog.Default(), text, parse), visits
}

func TestProcessFileHappyPath(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "Result.json")
	fe := &stubFieldExtractor{
		fields: map[string]any{
			"patient_details": map[string]any{
				"name": "Tan Ah Kow",
				"date": "12/03/2024",
			},
			"totals": map[string]any{"net_payment": "12.50"},
		},
	}
	p, visits := newTestProcessor(t, &stubTextExtractor{text: "Name: Tan Ah Kow"}, fe, artifact)

	rec, err := p.ProcessFile(context.Background(), "/docs/visit.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Tan Ah Kow", rec.PatientDetails.Name)
	assert.Equal(t, "12/03/2024", rec.PatientDetails.Date)
	assert.Equal(t, "12.50", rec.Totals.NetPayment)
	assert.Equal(t, "Name: Tan Ah Kow", fe.gotReq.CleanedText)
	assert.Equal(t, "/docs/visit.pdf", fe.gotReq.DocumentPath)

	// Artifact holds the full normalized schema.
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "patient_details")
	assert.Contains(t, doc, "sections")
	assert.Contains(t, doc, "totals")

	// Visit history was updated.
	visit, err := visits.GetByDocumentPath(context.Background(), "/docs/visit.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Tan Ah Kow", visit.PatientName)
	assert.Equal(t, "semantic", visit.Strategy)
	assert.Equal(t, "eng", visit.Language)
}

func TestProcessFileUnsupportedFormat(t *testing.T) {
	p, _ := newTestProcessor(t, &stubTextExtractor{}, &stubFieldExtractor{}, "")

	_, err := p.ProcessFile(context.Background(), "/docs/notes.docx")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestProcessFileTextExtractionFailure(t *testing.T) {
	tx := &stubTextExtractor{err: fmt.Errorf("%w: pdftoppm exited 1", common.ErrOCR)}
	p, _ := newTestProcessor(t, tx, &stubFieldExtractor{}, "")

	_, err := p.ProcessFile(context.Background(), "/docs/visit.pdf")
	assert.ErrorIs(t, err, common.ErrOCR)
}

func TestProcessFileSemanticParseRecovers(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "Result.json")
	fe := &stubFieldExtractor{
		raw: []byte("not json"),
		err: fmt.Errorf("%w: invalid JSON", common.ErrSemanticParse),
	}
	p, _ := newTestProcessor(t, &stubTextExtractor{text: "garbled scan"}, fe, artifact)

	rec, err := p.ProcessFile(context.Background(), "/docs/visit.pdf")
	require.NoError(t, err, "a parse failure degrades to the empty record, not an error")
	assert.Equal(t, "", rec.PatientDetails.Name)
	assert.NotNil(t, rec.Sections.Medications)

	// Even the degraded run writes a complete artifact.
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "patient_details")
}

func TestProcessFileArtifactWriteFailureStillReturnsRecord(t *testing.T) {
	fe := &stubFieldExtractor{fields: map[string]any{
		"patient_details": map[string]any{"name": "Tan Ah Kow"},
	}}
	badPath := filepath.Join(t.TempDir(), "missing-dir", "Result.json")
	p, _ := newTestProcessor(t, &stubTextExtractor{text: "text"}, fe, badPath)

	rec, err := p.ProcessFile(context.Background(), "/docs/visit.pdf")
	require.Error(t, err)
	assert.Equal(t, "Tan Ah Kow", rec.PatientDetails.Name,
		"record is returned even when the artifact cannot be written")
}
