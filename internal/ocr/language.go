package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/healthpassportsg/medrecords/constants"
)

// DetectImageLanguage tries each candidate language by running tesseract in
// TSV mode and averaging the reported word confidences; glyph output is
// discarded. The candidate with the highest mean wins, first candidate wins
// exact ties, and a run with no usable confidences scores 0. When nothing
// scores above 0 the fallback language is returned.
func (e *Extractor) DetectImageLanguage(ctx context.Context, imgPath string) (string, []string) {
	var warns []string
	best := constants.FallbackLanguage
	bestScore := -1.0

	for _, lang := range e.cfg.Languages {
		score, err := e.tesseractTSVConfidence(ctx, imgPath, lang)
		if err != nil {
			warns = append(warns, fmt.Sprintf("detect %s: %v", lang, err))
			score = 0
		}
		if score > bestScore {
			bestScore = score
			best = lang
		}
	}
	if bestScore <= 0 {
		return constants.FallbackLanguage, warns
	}
	return best, warns
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns the mean word
// confidence in 0..100. Tokens reporting "-1" or an empty confidence are
// excluded from the mean, not counted as zero.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path, lang string) (float64, error) {
	args := []string{path, "stdout", "-l", lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w (%s)", err, truncate(string(errb), 256))
	}

	lines := strings.Split(string(out), "\n")
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // skip header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n, nil
}
