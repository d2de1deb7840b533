// Package export produces XLSX summaries of the visit history.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/healthpassportsg/medrecords/internal/record"
	"github.com/healthpassportsg/medrecords/internal/repository"
)

// Service is a tiny façade over the visit repository that produces XLSX
// bytes for exports.
type Service struct {
	visitsRepo repository.VisitRepository
	logger     *slog.Logger
}

func NewService(visits repository.VisitRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{visitsRepo: visits, logger: logger}
}

// ExportVisitsXLSX returns an XLSX workbook (as bytes) with one row per
// stored visit. Medication details come from the stored record JSON.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all visits.
func (s *Service) ExportVisitsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	visits, err := s.visitsRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	visits = filterByDate(visits, from, to, s.logger)

	f := excelize.NewFile()
	const sheet = "Visits"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Visit Date",
		"Patient Name",
		"Facility",
		"Medications",
		"Net Payment",
		"Language",
		"Strategy",
		"Document Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, v := range visits {
		var rec record.StructuredRecord
		if err := json.Unmarshal(v.RecordJSON, &rec); err != nil {
			s.logger.Warn("skipping visit with unreadable record", "visit_id", v.ID, "err", err)
			continue
		}

		write := func(col int, val any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, val)
		}

		write(1, v.VisitDate)
		write(2, v.PatientName)
		write(3, rec.RecordMetadata.HospitalName)
		write(4, truncate(medicationSummary(rec.Sections.Medications), 140))
		write(5, rec.Totals.NetPayment)
		write(6, v.Language)
		write(7, v.Strategy)
		write(8, v.DocumentPath)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 24)
	_ = f.SetColWidth(sheet, "C", "C", 28)
	_ = f.SetColWidth(sheet, "D", "D", 48)
	_ = f.SetColWidth(sheet, "E", "G", 14)
	_ = f.SetColWidth(sheet, "H", "H", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// visitDateLayouts cover the date shapes seen on records: day-first with
// slashes or dashes, plus ISO.
var visitDateLayouts = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "2006-01-02"}

func parseVisitDate(s string) (time.Time, bool) {
	for _, layout := range visitDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// filterByDate keeps visits inside the [from, to] window, date-only. With no
// window everything passes. Visits whose date cannot be parsed are excluded
// from a windowed export.
func filterByDate(visits []*repository.Visit, from, to *time.Time, logger *slog.Logger) []*repository.Visit {
	if from == nil && to == nil {
		return visits
	}
	lo := time.Time{}
	if from != nil {
		lo = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	}
	hi := time.Now().UTC()
	if to != nil {
		hi = *to
	}
	hi = time.Date(hi.Year(), hi.Month(), hi.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]*repository.Visit, 0, len(visits))
	for _, v := range visits {
		d, ok := parseVisitDate(v.VisitDate)
		if !ok {
			logger.Warn("visit excluded from windowed export", "visit_id", v.ID, "visit_date", v.VisitDate)
			continue
		}
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func medicationSummary(meds []record.Medication) string {
	if len(meds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(meds))
	for _, m := range meds {
		p := m.Name
		if m.Dosage != "" {
			p += " " + m.Dosage
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
