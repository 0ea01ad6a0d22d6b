package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema rejects structurally malformed configuration documents
// before semantic validation runs. Threshold bounds and uniqueness are
// checked by Set.Validate so their errors can name the offending entry.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["projects"],
  "additionalProperties": false,
  "properties": {
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "services"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string"},
          "services": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type", "threshold"],
              "additionalProperties": false,
              "properties": {
                "name": {"type": "string"},
                "type": {"type": "string"},
                "threshold": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
	if err != nil {
		panic(fmt.Sprintf("descriptor: parse embedded schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", doc); err != nil {
		panic(fmt.Sprintf("descriptor: add embedded schema: %v", err))
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("descriptor: compile embedded schema: %v", err))
	}
	return schema
}

// Parse validates and decodes a configuration document. Any failure is a
// *ConfigError; the caller treats it as cycle-fatal.
func Parse(data []byte) (Set, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Set{}, &ConfigError{Issues: []string{fmt.Sprintf("document is not valid JSON: %v", err)}}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Set{}, &ConfigError{Issues: []string{fmt.Sprintf("document does not match schema: %v", err)}}
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return Set{}, &ConfigError{Issues: []string{fmt.Sprintf("decode document: %v", err)}}
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}

	// Thresholds are compared at fixed precision everywhere; normalize once
	// at the boundary so 99.9500001 and 99.95 behave identically downstream.
	for i := range set.Projects {
		for j := range set.Projects[i].Services {
			service := &set.Projects[i].Services[j]
			service.Threshold = normalizeThreshold(service.Threshold)
		}
	}
	return set, nil
}
