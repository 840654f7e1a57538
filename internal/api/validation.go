package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const failoverSchema = `{
  "type": "object",
  "required": ["identifiers", "targetRegion"],
  "additionalProperties": false,
  "properties": {
    "identifiers": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1, "pattern": "\\S"}
    },
    "targetRegion": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9-]+$"},
    "failFast": {"type": "boolean"},
    "pollInterval": {"type": "string", "minLength": 2},
    "deadline": {"type": "string", "minLength": 2},
    "parallelism": {"type": "integer", "minimum": 1}
  }
}`

const failbackSchema = `{
  "type": "object",
  "required": ["identifiers"],
  "additionalProperties": false,
  "properties": {
    "identifiers": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1, "pattern": "\\S"}
    },
    "failFast": {"type": "boolean"},
    "pollInterval": {"type": "string", "minLength": 2},
    "deadline": {"type": "string", "minLength": 2},
    "parallelism": {"type": "integer", "minimum": 1}
  }
}`

var (
	failoverSchemaLoader = gojsonschema.NewStringLoader(failoverSchema)
	failbackSchemaLoader = gojsonschema.NewStringLoader(failbackSchema)
)

// validateBody checks body against a JSON schema
func validateBody(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
