// Package gemini implements the semantic-parser extraction strategy on top
// of Vertex AI generative models. The reply is untrusted input: it is
// schema-validated before anything downstream sees it.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/healthpassportsg/medrecords/constants"
	"github.com/healthpassportsg/medrecords/internal/common"
	"github.com/healthpassportsg/medrecords/internal/extract"
	"github.com/healthpassportsg/medrecords/internal/record"
)

const systemPrompt = "You are a medical document parser. Read the document carefully and " +
	"extract information into the provided JSON structure. Always include every key shown, " +
	"even if empty. If a section is not relevant, return an empty list. If a field is " +
	"missing, leave it as an empty string. Return JSON only. No explanations."

type Client struct {
	cfg   Config
	base  *genai.Client
	model *genai.GenerativeModel
	log   *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("gemini: project id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := base.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; anything else is a parse failure.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(cfg.Temperature),
	}

	return &Client{cfg: cfg, base: base, model: model, log: logger}, nil
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// ExtractFields implements extract.FieldExtractor. Any malformed or
// non-schema reply degrades to an empty mapping plus ErrSemanticParse so the
// caller can fall through to schema completion.
func (c *Client) ExtractFields(ctx context.Context, req extract.FieldRequest) (map[string]any, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("gemini.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"doc", req.DocumentPath,
		"text_len", len(req.CleanedText),
	)

	parts := []genai.Part{genai.Text(buildUserPrompt(req.CleanedText))}
	if blob, err := documentBlob(req.DocumentPath); err != nil {
		c.log.Warn("gemini.extract.attach_failed", "req_id", rid, "error", err)
	} else {
		parts = append(parts, blob)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		c.log.Error("gemini.extract.call_failed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return map[string]any{}, nil, fmt.Errorf("%w: %v", common.ErrSemanticParse, err)
	}

	raw := []byte(responseText(resp))
	if err := ValidateAgainstRecordSchema(raw); err != nil {
		c.log.Error("gemini.extract.schema_validation_failed",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds())
		return map[string]any{}, raw, fmt.Errorf("%w: %v", common.ErrSemanticParse, err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Error("gemini.extract.decode_failed", "req_id", rid, "error", err)
		return map[string]any{}, raw, fmt.Errorf("%w: %v", common.ErrSemanticParse, err)
	}

	c.log.Info("gemini.extract.ok",
		"req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
	return out, raw, nil
}

func buildUserPrompt(cleanedText string) string {
	var b strings.Builder
	b.WriteString("Extract the record into this JSON structure:\n\n")
	b.WriteString(mustJSON(record.New()))
	b.WriteString("\n\nExtracted Text:\n")
	b.WriteString(cleanedText)
	return b.String()
}

// documentBlob loads the original document so the model can read layout the
// OCR text lost.
func documentBlob(path string) (genai.Blob, error) {
	if path == "" {
		return genai.Blob{}, fmt.Errorf("no document path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return genai.Blob{}, fmt.Errorf("read document: %w", err)
	}
	mime := "application/pdf"
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "jpg", "jpeg":
		mime = "image/jpeg"
	case "png":
		mime = "image/png"
	}
	return genai.Blob{MIMEType: mime, Data: data}, nil
}

// responseText concatenates the text parts of the first candidate and strips
// any code fences the model wrapped the JSON in.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
