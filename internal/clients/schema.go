package clients

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates model output against a JSON schema
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document
func CompileSchema(name, document string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(document)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: schema}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas
func MustCompileSchema(name, document string) *Schema {
	s, err := CompileSchema(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate decodes raw and checks it against the schema
func (s *Schema) Validate(raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode JSON for %s: %w", s.name, err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("response does not match %s schema: %w", s.name, err)
	}
	return nil
}
