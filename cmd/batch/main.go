// Command batch processes every supported document under a directory and
// records each one in the visit history.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/gemini"
	"github.com/healthpassportsg/medrecords/internal/ingest"
	"github.com/healthpassportsg/medrecords/internal/ocr"
	processor "github.com/healthpassportsg/medrecords/internal/pipeline"
	repo "github.com/healthpassportsg/medrecords/internal/repository"
	"github.com/healthpassportsg/medrecords/internal/rules"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		dir      = flag.String("dir", "", "directory to process documents from (required)")
		outDir   = flag.String("out", "", "directory for per-document JSON artifacts (defaults to alongside each document)")
		workers  = flag.Int("workers", 2, "documents processed concurrently")
		useRules = flag.Bool("rules", false, "use the offline rule-based extractor instead of the semantic parser")
	)
	flag.Parse()

	if *dir == "" {
		logger.Error("usage", "cmd", "batch -dir <directory> [-out <dir>] [-workers n] [-rules]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := repo.Open(ctx, repo.Config{
		DSN:         cfg.Database.DSN,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	visitsRepo := repo.NewVisitRepository(db, logger)

	ocrx := ocr.NewExtractor(ocr.Config{
		Pdftotext:   cfg.OCR.Pdftotext,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		Languages:   cfg.OCR.Languages,
		PageWorkers: cfg.OCR.PageWorkers,
	}, logger)

	strategyName := "semantic"
	var fieldExtractor extract.FieldExtractor
	if *useRules {
		strategyName = "rules"
		fieldExtractor = rules.NewMatcher(logger)
	} else {
		client, err := gemini.NewClient(ctx, gemini.Config{
			ProjectID:   cfg.Parser.ProjectID,
			Region:      cfg.Parser.Region,
			Model:       cfg.Parser.Model,
			Temperature: cfg.Parser.Temperature,
			Timeout:     cfg.Parser.Timeout,
		}, logger)
		if err != nil {
			logger.Error("init semantic parser", "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				logger.Error("close semantic parser", "error", cerr)
			}
		}()
		fieldExtractor = client
	}

	paths, stats, err := ingest.ScanDirectory(*dir, logger)
	if err != nil {
		logger.Error("scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("directory scanned",
		"dir", *dir, "scanned", stats.Scanned, "matched", stats.Matched, "skipped", stats.Skipped)
	if len(paths) == 0 {
		logger.Warn("no documents found", "dir", *dir)
		return
	}

	textStage := processor.NewTextStage(jobsRepo, extract.NewOCRAdapter(ocrx), logger)

	var ok, failed atomic.Uint32
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, path := range paths {
		g.Go(func() error {
			parseStage := processor.NewParseStage(logger, processor.ParseConfig{
				ArtifactPath: artifactPath(*outDir, path),
				StrategyName: strategyName,
			}, jobsRepo, visitsRepo, fieldExtractor)
			p := processor.NewProcessor(logger, textStage, parseStage)

			rec, err := p.ProcessFile(gctx, path)
			if err != nil {
				failed.Add(1)
				logger.Error("document failed", "path", path, "error", err)
				return nil // keep going; failures are per-document
			}
			ok.Add(1)
			logger.Info("document processed",
				"path", path, "patient", rec.PatientDetails.Name, "date", rec.PatientDetails.Date)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("batch complete",
		"documents", len(paths),
		"succeeded", ok.Load(),
		"failed", failed.Load(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

// artifactPath places the JSON artifact next to the document, or under
// outDir when given, named <document>.json.
func artifactPath(outDir, docPath string) string {
	name := filepath.Base(docPath) + ".json"
	if outDir == "" {
		return filepath.Join(filepath.Dir(docPath), name)
	}
	return filepath.Join(outDir, name)
}
