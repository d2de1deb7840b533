package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/langid"
)

func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	text, pages, warns, err := e.pdfToText(ctx, path)
	if err != nil {
		e.logger.Warn("native pdf text extraction failed, falling back to ocr", "path", path, "error", err)
	} else if strings.TrimSpace(text) != "" {
		// Machine-readable PDF. The text-level language is informational only.
		lang := langid.DetectText(text)
		e.logger.Info("native pdf text detected", "path", path, "pages", pages, "lang", lang)
		return ExtractionResult{
			Text:       strings.TrimSpace(text),
			Pages:      pages,
			SourceType: constants.PDF,
			Method:     "pdf-text",
			Language:   lang,
			Warnings:   warns,
		}, nil
	}

	res, ocrErr := e.pdfToOCR(ctx, path)
	res.Warnings = append(warns, res.Warnings...)
	return res, ocrErr
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = string(out)
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.PDF, Method: "pdf-ocr"}

	// Sanity-check the document before handing it to poppler.
	if n, err := api.PageCountFile(path); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("pdfcpu page count: %v", err))
	} else {
		e.logger.Debug("rasterizing pdf", "path", path, "pages", n, "dpi", e.cfg.DPI)
	}

	tmpDir, err := os.MkdirTemp("", "mr-pages-*")
	if err != nil {
		return res, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		res.Warnings = append(res.Warnings, string(errb))
		return res, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		res.Warnings = append(res.Warnings, "pdftoppm produced no images")
		return res, fmt.Errorf("no pages rendered")
	}

	// Pages are independent; OCR them in parallel but reassemble in index
	// order. A failed page contributes an empty string, never an error.
	texts := make([]string, len(matches))
	warns := make([][]string, len(matches))
	langs := make([]string, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i, img := range matches {
		g.Go(func() error {
			texts[i], langs[i], warns[i] = e.ocrPage(gctx, img, i+1)
			return nil
		})
	}
	_ = g.Wait()

	for _, w := range warns {
		res.Warnings = append(res.Warnings, w...)
	}
	res.Text = strings.Join(texts, "\n")
	res.Pages = len(matches)
	if len(langs) > 0 {
		res.Language = langs[0]
	}
	return res, nil
}

// ocrPage preprocesses one rasterized page, detects its language, and runs
// recognition. All failures are soft: the page yields "" plus warnings.
func (e *Extractor) ocrPage(ctx context.Context, imgPath string, pageNum int) (text, lang string, warns []string) {
	procPath := strings.TrimSuffix(imgPath, ".png") + "-proc.png"
	ocrInput := imgPath
	if err := e.PreprocessFile(imgPath, procPath); err != nil {
		warns = append(warns, fmt.Sprintf("page %d preprocess: %v", pageNum, err))
	} else {
		ocrInput = procPath
	}

	lang, detectWarns := e.DetectImageLanguage(ctx, ocrInput)
	warns = append(warns, detectWarns...)
	e.logger.Info("page language detected", "page", pageNum, "lang", lang)

	text, err := e.tesseractOCR(ctx, ocrInput, lang)
	if err != nil {
		warns = append(warns, fmt.Sprintf("page %d ocr: %v", pageNum, err))
		return "", lang, warns
	}
	return text, lang, warns
}
