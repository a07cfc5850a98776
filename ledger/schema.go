package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const lcSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["shipmentId"],
  "properties": {
    "shipmentId":      {"type": "string", "minLength": 1, "maxLength": 64},
    "contentDesc":     {"type": "string"},
    "contentValue":    {"type": ["number", "string"]},
    "exporterCompany": {"type": "string"},
    "exporterBank":    {"type": "string"},
    "importerCompany": {"type": "string"},
    "importerBank":    {"type": "string"},
    "freightCompany":  {"type": "string"},
    "portOfLoading":   {"type": "string"},
    "portOfEntry":     {"type": "string"},
    "documentNames":   {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var (
	lcSchemaOnce sync.Once
	lcSchema     *jsonschema.Schema
	lcSchemaErr  error
)

func compiledLCSchema() (*jsonschema.Schema, error) {
	lcSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("lc.json", bytes.NewReader([]byte(lcSchemaJSON))); err != nil {
			lcSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		lcSchema, lcSchemaErr = compiler.Compile("lc.json")
	})
	return lcSchema, lcSchemaErr
}

// ParseLC validates an LC payload against the LC schema and decodes it.
// The payload may be the LC object itself or a JSON string holding it.
func ParseLC(data []byte) (LC, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return LC{}, fmt.Errorf("%w: %v", ErrInvalidLC, err)
		}
		trimmed = []byte(strings.TrimSpace(inner))
	}

	schema, err := compiledLCSchema()
	if err != nil {
		return LC{}, err
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return LC{}, fmt.Errorf("%w: %v", ErrInvalidLC, err)
	}
	if err := schema.Validate(v); err != nil {
		return LC{}, fmt.Errorf("%w: %v", ErrInvalidLC, err)
	}

	var lc LC
	if err := json.Unmarshal(trimmed, &lc); err != nil {
		return LC{}, fmt.Errorf("%w: %v", ErrInvalidLC, err)
	}
	return lc, nil
}
