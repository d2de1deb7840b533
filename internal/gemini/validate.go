package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/healthpassportsg/medrecords/internal/record"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := json.Marshal(record.BuildJSONSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("record.json", bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("record.json")
	})
	return schema, schemaErr
}

// ValidateAgainstRecordSchema checks that data is a JSON document matching
// the structured record schema.
func ValidateAgainstRecordSchema(data []byte) error {
	s, err := recordSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
