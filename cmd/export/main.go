// Command export writes the visit history to an XLSX workbook.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/export"
	repo "github.com/healthpassportsg/medrecords/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		out     = flag.String("out", "visits.xlsx", "output XLSX file path")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			logger.Error("invalid -from date, use YYYY-MM-DD", "value", *fromStr, "error", err)
			os.Exit(2)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			logger.Error("invalid -to date, use YYYY-MM-DD", "value", *toStr, "error", err)
			os.Exit(2)
		}
		to = &parsed
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
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

	svc := export.NewService(repo.NewVisitRepository(db, logger), logger)
	data, err := svc.ExportVisitsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("export OK", "path", *out, "bytes", len(data))
}
