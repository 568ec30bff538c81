// Package validation checks project model documents against a JSON
// Schema before they are persisted. A default schema for timed-automata
// style component models is embedded; deployments can override it with
// MODEL_SCHEMA_PATH.
package validation

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/modelhub-io/modelhub/internal/apperr"
)

//go:embed model_schema.json
var defaultSchemaJSON []byte

const schemaCacheSize = 16

// DocumentValidator validates model documents against a compiled JSON
// Schema. Compiled schemas are cached keyed by their source text, so a
// schema override swap never needs a process restart.
type DocumentValidator struct {
	schemaJSON  []byte
	schemaCache *lru.Cache[string, *jsonschema.Schema]
}

// NewDocumentValidator builds a validator. schemaPath may be empty to
// use the embedded default schema.
func NewDocumentValidator(schemaPath string) (*DocumentValidator, error) {
	schemaJSON := defaultSchemaJSON
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("read model schema: %w", err)
		}
		schemaJSON = data
	}

	cache, err := lru.New[string, *jsonschema.Schema](schemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}

	v := &DocumentValidator{
		schemaJSON:  schemaJSON,
		schemaCache: cache,
	}

	// Fail fast on a broken override instead of at first request.
	if _, err := v.compiled(); err != nil {
		return nil, err
	}

	return v, nil
}

// Validate checks a document against the schema. Schema violations
// come back as validation errors carrying the offending JSON path.
func (v *DocumentValidator) Validate(document []byte) error {
	schema, err := v.compiled()
	if err != nil {
		return err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(document))
	if err != nil {
		return apperr.Validation(fmt.Sprintf("document is not valid JSON: %v", err))
	}

	if err := schema.Validate(instance); err != nil {
		return apperr.Validation(formatValidationError(err))
	}

	return nil
}

func (v *DocumentValidator) compiled() (*jsonschema.Schema, error) {
	key := string(v.schemaJSON)
	if schema, ok := v.schemaCache.Get(key); ok {
		return schema, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(v.schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse model schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource("model_schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile("model_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile model schema: %w", err)
	}

	v.schemaCache.Add(key, schema)
	return schema, nil
}

// formatValidationError renders a schema violation with its JSON path,
// e.g. "validation failed at '$.components.0.name': expected string".
func formatValidationError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	path := "$"
	if len(ve.InstanceLocation) > 0 {
		var parts []string
		for _, part := range ve.InstanceLocation {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			path = "$." + strings.Join(parts, ".")
		}
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}

	return fmt.Sprintf("validation failed at '%s': %s", path, msg)
}
