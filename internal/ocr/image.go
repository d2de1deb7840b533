package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/healthpassportsg/medrecords/constants"
)

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.IMAGE, Method: "image-ocr", Pages: 1}

	tmpDir, err := os.MkdirTemp("", "mr-image-*")
	if err != nil {
		return res, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	procPath := filepath.Join(tmpDir, "page-proc.png")
	ocrInput := path
	if err := e.PreprocessFile(path, procPath); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("preprocess: %v", err))
	} else {
		ocrInput = procPath
	}

	lang, detectWarns := e.DetectImageLanguage(ctx, ocrInput)
	res.Warnings = append(res.Warnings, detectWarns...)
	res.Language = lang
	e.logger.Info("image language detected", "path", path, "lang", lang)

	// Recognition failure is soft, like a failed page in a scanned PDF:
	// the document yields empty text plus a warning, and the semantic
	// parser can still work from the original image.
	txt, err := e.tesseractOCR(ctx, ocrInput, lang)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("ocr: %v", err))
		return res, nil
	}
	res.Text = txt
	return res, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path, lang string) (string, error) {
	// same engine settings as the language detection pass, so the confidence that picked
	// the language reflects the recognition run
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

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 256))
	}

	// minor cleanup of obvious line noise
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
