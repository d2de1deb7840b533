// Package ingest discovers record documents on disk for batch processing.
package ingest

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/healthpassportsg/medrecords/constants"
)

type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}

// ScanDirectory walks root and returns the paths of supported documents,
// skipping hidden files and directories. Walk errors on individual entries
// are counted, not fatal.
func ScanDirectory(root string, logger *slog.Logger) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var paths []string
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			logger.Warn("ingest walk error", "path", path, "err", walkErr)
			stats.Failed++
			return nil // continue walking
		}
		if IsHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			stats.Skipped++
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, err
	}
	return paths, stats, nil
}

// AllowedExt reports whether the extension names a supported document type.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether the file or directory name starts with '.'.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
