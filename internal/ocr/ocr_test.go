package ocr

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthpassportsg/medrecords/internal/common"
)

// fakeRunner stubs tesseract and the poppler tools.
type fakeRunner struct {
	t *testing.T

	nativeText string            // pdftotext output
	pageTexts  []string          // per-page tesseract output, keyed by page order
	tsvByLang  map[string]string // tesseract TSV output per language
	failPages  map[int]bool      // pages whose OCR call errors

	ocrCalls []string   // languages passed to text-mode tesseract, in call order
	ocrArgs  [][]string // full argv of each text-mode tesseract call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch {
	case strings.Contains(name, "pdftotext"):
		return []byte(f.nativeText), nil, nil
	case strings.Contains(name, "pdftoppm"):
		prefix := args[len(args)-1]
		for i := range f.pageTexts {
			writeTestPNG(f.t, fmt.Sprintf("%s-%d.png", prefix, i+1))
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract") && args[len(args)-1] == "tsv":
		lang := args[3]
		return []byte(f.tsvByLang[lang]), nil, nil
	case strings.Contains(name, "tesseract"):
		page := pageIndexFromPath(args[0])
		f.ocrCalls = append(f.ocrCalls, args[3])
		f.ocrArgs = append(f.ocrArgs, args)
		if f.failPages[page] {
			return nil, []byte("boom"), fmt.Errorf("exit status 1")
		}
		if page >= 0 && page < len(f.pageTexts) {
			return []byte(f.pageTexts[page]), nil, nil
		}
		return []byte(f.pageTexts[0]), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

// pageIndexFromPath recovers the 0-based page index from "page-N[-proc].png".
func pageIndexFromPath(p string) int {
	base := strings.TrimSuffix(filepath.Base(p), ".png")
	base = strings.TrimSuffix(base, "-proc")
	parts := strings.Split(base, "-")
	var n int
	if _, err := fmt.Sscanf(parts[len(parts)-1], "%d", &n); err != nil {
		return -1
	}
	return n - 1
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func tsvWithConfs(confs ...string) string {
	var b strings.Builder
	b.WriteString("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n")
	for i, c := range confs {
		fmt.Fprintf(&b, "5\t1\t1\t1\t1\t%d\t0\t0\t10\t10\t%s\tword\n", i+1, c)
	}
	return b.String()
}

func newTestExtractor(t *testing.T, r Runner, langs ...string) *Extractor {
	t.Helper()
	if len(langs) == 0 {
		langs = []string{"eng", "tam"}
	}
	return NewExtractor(Config{Languages: langs, PageWorkers: 2}, nil).WithRunner(r)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := newTestExtractor(t, &fakeRunner{t: t})
	_, err := e.Extract(context.Background(), "record.docx")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "docx")
}

func TestExtractPDFNativeText(t *testing.T) {
	r := &fakeRunner{t: t, nativeText: "Discharge Summary\fPage two"}
	e := newTestExtractor(t, r)

	res, err := e.Extract(context.Background(), "record.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "Discharge Summary\fPage two", res.Text)
	assert.Empty(t, r.ocrCalls, "native path must not invoke OCR")
}

func TestExtractPDFRasterFallback(t *testing.T) {
	r := &fakeRunner{
		t:          t,
		nativeText: "   \n ", // empty after trimming -> raster fallback
		pageTexts:  []string{"page one text", "page two text"},
		tsvByLang: map[string]string{
			"eng": tsvWithConfs("90", "80"),
			"tam": tsvWithConfs("40"),
		},
	}
	e := newTestExtractor(t, r)

	res, err := e.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-ocr", res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "page one text\npage two text", res.Text, "pages joined in index order")
	for _, lang := range r.ocrCalls {
		assert.Equal(t, "eng", lang)
	}
}

func TestExtractPDFPageFailureIsSoft(t *testing.T) {
	r := &fakeRunner{
		t:          t,
		nativeText: "",
		pageTexts:  []string{"first page", "unreadable"},
		failPages:  map[int]bool{1: true},
		tsvByLang:  map[string]string{"eng": tsvWithConfs("75"), "tam": ""},
	}
	e := newTestExtractor(t, r)

	res, err := e.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err, "a failed page must not fail the document")
	assert.Equal(t, "first page\n", res.Text)
	assert.NotEmpty(t, res.Warnings)
}

func TestExtractImage(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "visit.jpg")
	writeTestPNG(t, imgPath)

	r := &fakeRunner{
		t:         t,
		pageTexts: []string{"clinic receipt text"},
		tsvByLang: map[string]string{"eng": tsvWithConfs("88"), "tam": tsvWithConfs("10")},
	}
	e := newTestExtractor(t, r)

	res, err := e.Extract(context.Background(), imgPath)
	require.NoError(t, err)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, "eng", res.Language)
	assert.Equal(t, "clinic receipt text", res.Text)
}

func TestExtractImageRecognitionFailureIsSoft(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "visit.jpg")
	writeTestPNG(t, imgPath)

	r := &fakeRunner{
		t:         t,
		pageTexts: []string{"never returned"},
		tsvByLang: map[string]string{"eng": tsvWithConfs("88"), "tam": tsvWithConfs("10")},
		failPages: map[int]bool{-1: true}, // the single-image input has no page index
	}
	e := newTestExtractor(t, r)

	res, err := e.Extract(context.Background(), imgPath)
	require.NoError(t, err, "a failed recognition run degrades to empty text")
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, "", res.Text)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "ocr:")
}

func TestRecognitionUsesConfiguredEngineSettings(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "visit.png")
	writeTestPNG(t, imgPath)

	r := &fakeRunner{
		t:         t,
		pageTexts: []string{"text"},
		tsvByLang: map[string]string{"eng": tsvWithConfs("88")},
	}
	e := NewExtractor(Config{Languages: []string{"eng"}, PSM: 6, OEM: 1}, nil).WithRunner(r)

	_, err := e.Extract(context.Background(), imgPath)
	require.NoError(t, err)

	require.Len(t, r.ocrArgs, 1)
	argv := strings.Join(r.ocrArgs[0], " ")
	assert.Contains(t, argv, "--psm 6", "recognition must run under the configured PSM")
	assert.Contains(t, argv, "--oem 1", "recognition must run under the configured OEM")
}

func TestDetectImageLanguage(t *testing.T) {
	tests := []struct {
		name string
		tsv  map[string]string
		want string
	}{
		{
			name: "highest mean wins",
			tsv: map[string]string{
				"eng": tsvWithConfs("80", "90"), // mean 85
				"tam": tsvWithConfs("95"),       // mean 95
			},
			want: "tam",
		},
		{
			name: "exact tie goes to candidate order",
			tsv: map[string]string{
				"eng": tsvWithConfs("90"),
				"tam": tsvWithConfs("90"),
			},
			want: "eng",
		},
		{
			name: "invalid confidences excluded from mean",
			tsv: map[string]string{
				"eng": tsvWithConfs("-1", "", "60"), // mean 60, not 20
				"tam": tsvWithConfs("50", "50"),
			},
			want: "eng",
		},
		{
			name: "no confidence anywhere falls back",
			tsv: map[string]string{
				"eng": tsvWithConfs("-1"),
				"tam": "",
			},
			want: "eng",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{t: t, tsvByLang: tt.tsv}
			e := newTestExtractor(t, r)
			lang, _ := e.DetectImageLanguage(context.Background(), "page.png")
			assert.Equal(t, tt.want, lang)
		})
	}
}
