// Command parse runs the extraction pipeline on a single document and
// prints the normalized record as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/gemini"
	"github.com/healthpassportsg/medrecords/internal/ocr"
	processor "github.com/healthpassportsg/medrecords/internal/pipeline"
	"github.com/healthpassportsg/medrecords/internal/record"
	repo "github.com/healthpassportsg/medrecords/internal/repository"
	"github.com/healthpassportsg/medrecords/internal/rules"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		useRules = flag.Bool("rules", false, "use the offline rule-based extractor instead of the semantic parser")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "parse [-rules] <document>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

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

	textStage := processor.NewTextStage(jobsRepo, extract.NewOCRAdapter(ocrx), logger)
	parseStage := processor.NewParseStage(logger, processor.ParseConfig{
		ArtifactPath: cfg.Output.ResultPath,
		StrategyName: strategyName,
	}, jobsRepo, visitsRepo, fieldExtractor)
	p := processor.NewProcessor(logger, textStage, parseStage)

	start := time.Now()
	rec, err := p.ProcessFile(ctx, path)
	if err != nil {
		logger.Error("processing failed",
			"path", path, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	out, err := record.EncodeJSON(rec)
	if err != nil {
		logger.Error("encode record", "error", err)
		os.Exit(1)
	}
	fmt.Print(string(out))

	logger.Info("processing OK",
		"path", path,
		"strategy", strategyName,
		"artifact", cfg.Output.ResultPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
