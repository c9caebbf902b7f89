package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// wizardSchemaJSON is the JSON Schema for WizardDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const wizardSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://fitdesk.dev/schemas/wizard.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "slots": {
      "type": "array",
      "items": { "$ref": "#/$defs/slot" }
    },
    "metadata": {
      "type": "object"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "fields"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "title": { "type": "string" },
        "fields": {
          "type": "array",
          "items": { "$ref": "#/$defs/field" }
        },
        "applies_if": { "type": "string" },
        "linear": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "field": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {
          "type": "string",
          "minLength": 1
        },
        "required": { "type": "boolean" },
        "format": {
          "type": "string",
          "enum": ["email", "date", "numeric", "phone"]
        },
        "required_if": { "type": "string" },
        "rule": { "type": "string" },
        "min": { "type": "number" },
        "max": { "type": "number" },
        "max_len": {
          "type": "integer",
          "minimum": 1
        }
      },
      "additionalProperties": false
    },
    "slot": {
      "type": "object",
      "required": ["key", "field_name", "accept", "max_files", "max_size_mb"],
      "properties": {
        "key": {
          "type": "string",
          "minLength": 1
        },
        "field_name": {
          "type": "string",
          "minLength": 1
        },
        "accept": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "string",
            "pattern": "^([a-z]+|\\*)/([a-z0-9.+-]+|\\*)$"
          }
        },
        "max_files": {
          "type": "integer",
          "minimum": 1
        },
        "max_size_mb": {
          "type": "integer",
          "minimum": 1
        }
      },
      "additionalProperties": false
    }
  }
}`

// Validator checks a WizardDefinition against the embedded JSON Schema plus
// the semantic rules JSON Schema cannot express. Safe for concurrent use.
type Validator struct {
	wizardSchema *jsonschema.Schema
}

// NewValidator pre-compiles the wizard definition schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(wizardSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal wizard schema: %w", err)
	}
	if err := c.AddResource("https://fitdesk.dev/schemas/wizard.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add wizard schema resource: %w", err)
	}

	compiled, err := c.Compile("https://fitdesk.dev/schemas/wizard.json")
	if err != nil {
		return nil, fmt.Errorf("compile wizard schema: %w", err)
	}

	return &Validator{wizardSchema: compiled}, nil
}

// Check runs the two-stage validation pipeline and returns an aggregated
// result. Structural errors short-circuit: the semantic stage is skipped
// because its walk assumes a well-formed definition.
func (v *Validator) Check(def *schema.WizardDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if def == nil {
		result.AddError("/", schema.ErrCodeValidation, "wizard definition is nil")
		return result
	}

	doc, err := toJSONValue(def)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize wizard definition")
		return result
	}
	if err := v.wizardSchema.Validate(doc); err != nil {
		addStructural(result, toEnrollError(err))
		return result
	}

	result.Merge(checkSemantics(def))
	return result
}

// ValidateDefinition collapses Check into a single error, nil when valid.
func (v *Validator) ValidateDefinition(def *schema.WizardDefinition) error {
	return v.Check(def).ToError()
}

// addStructural unpacks the per-location violations carried in a structural
// EnrollError into individual result entries.
func addStructural(result *schema.ValidationResult, enErr *schema.EnrollError) {
	if enErr.Details != nil {
		if violations, ok := enErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return
		}
	}
	result.AddError("/", schema.ErrCodeValidation, enErr.Message)
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEnrollError converts a jsonschema.ValidationError into an EnrollError
// with per-location violation messages.
func toEnrollError(err error) *schema.EnrollError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("definition invalid with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
