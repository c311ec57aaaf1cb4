package translog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed redaction-record-v1.schema.json
var recordSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		const name = "redaction-record-v1.schema.json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, bytes.NewReader(recordSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add record schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(name)
	})
	return schema, schemaErr
}

// ValidateRecord checks one transcript line against the redaction
// record schema. The retroactive scanner calls this before trusting a
// stored line.
func ValidateRecord(line []byte) error {
	s, err := recordSchema()
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(line, &instance); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("record schema: %w", err)
	}
	return nil
}
