package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages []string // OCR language candidates tried per page; order breaks ties
	DPI       int      // rasterization DPI for scanned PDFs, default 300
	MaxPages  int      // 0 = no limit

	TessdataDir string
	PageWorkers int // parallel page OCR workers, default 4

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// Extractor recovers text from a document: native PDF text when present,
// raster OCR otherwise.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = constants.DefaultLanguages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner. Tests use this to stub tesseract and
// the poppler tools.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting text extraction", "path", path, "ext", ext)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		res, err := e.extractImage(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	default:
		e.logger.Error("unsupported document extension", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, ext)
	}
}
