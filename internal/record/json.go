package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// EncodeJSON renders the record as indented UTF-8 JSON with non-ASCII
// characters preserved unescaped.
func EncodeJSON(rec StructuredRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJSON overwrites the artifact at path with the encoded record.
// Concurrent writers to the same path race; the last writer wins.
func WriteJSON(path string, rec StructuredRecord) error {
	b, err := EncodeJSON(rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write result artifact: %w", err)
	}
	return nil
}
