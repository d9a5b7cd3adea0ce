// Package plan holds the wire model for LLM-produced plans: the JSON
// contract, schema validation and lenient extraction from raw model
// output.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/maestro/runtime/action"
)

type (
	// Plan is one decoded model plan.
	Plan struct {
		// Message is optional prose the model attached to the plan.
		Message string `json:"message,omitempty"`
		// Steps lists the actions to run.
		Steps []Step `json:"steps"`
	}

	// Step references one registered action together with its JSON
	// parameters. The action id doubles as the step id.
	Step struct {
		ActionID    action.ID                  `json:"actionId"`
		Description string                     `json:"description,omitempty"`
		Parameters  map[string]json.RawMessage `json:"parameters,omitempty"`
	}

	// DecodeError reports model output that is not a valid plan. Issues
	// lists the failing instance locations when schema validation
	// produced them.
	DecodeError struct {
		Issues []string
		Raw    []byte
		Cause  error
	}
)

func (e *DecodeError) Error() string {
	msg := "invalid plan"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Code returns the deserialization error code shared with argument
// binding.
func (e *DecodeError) Code() string { return action.CodeDeserialization }

func (e *DecodeError) Unwrap() error { return e.Cause }

// planSchema is the JSON Schema every plan must satisfy before decoding.
const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["steps"],
  "additionalProperties": false,
  "properties": {
    "message": {"type": "string"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["actionId"],
        "additionalProperties": false,
        "properties": {
          "actionId": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "parameters": {"type": "object"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(planSchema), &doc); err != nil {
		panic(fmt.Errorf("plan: unmarshal schema: %w", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", doc); err != nil {
		panic(fmt.Errorf("plan: add schema resource: %w", err))
	}
	schema, err := c.Compile("plan.json")
	if err != nil {
		panic(fmt.Errorf("plan: compile schema: %w", err))
	}
	return schema
}

// Parse validates data against the plan schema and decodes it.
func Parse(data []byte) (*Plan, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Raw: data, Cause: err}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, &DecodeError{Issues: validationIssues(err), Raw: data, Cause: err}
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &DecodeError{Raw: data, Cause: err}
	}
	return &p, nil
}

// ParseLenient extracts the first JSON object from raw model output
// before parsing, tolerating markdown fences and surrounding prose.
func ParseLenient(output string) (*Plan, error) {
	data, ok := extractJSON(output)
	if !ok {
		return nil, &DecodeError{Raw: []byte(output), Cause: errors.New("no JSON object found in model output")}
	}
	return Parse(data)
}

// Validate resolves every step's action against the registry.
func (p *Plan) Validate(reg *action.Registry) error {
	for _, s := range p.Steps {
		if _, err := reg.Lookup(s.ActionID); err != nil {
			return err
		}
	}
	return nil
}

// ActionIDs returns the step action ids in plan order.
func (p *Plan) ActionIDs() []action.ID {
	ids := make([]action.ID, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ActionID
	}
	return ids
}

// validationIssues flattens a schema validation error into the failing
// instance locations.
func validationIssues(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	var issues []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, "/"+strings.Join(e.InstanceLocation, "/"))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return issues
}

// extractJSON returns the first balanced top-level JSON object in output.
// Braces inside JSON strings are ignored.
func extractJSON(output string) ([]byte, bool) {
	start := strings.IndexByte(output, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		c := output[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(output[start : i+1]), true
			}
		}
	}
	return nil, false
}
