package ai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// MalformedResponseError reports a model reply that could not be parsed into
// the expected structure or failed its validation rules.
type MalformedResponseError struct {
	Context  string
	Reason   string
	Response string
}

func (e *MalformedResponseError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("malformed AI response: %s", e.Reason)
	}
	return fmt.Sprintf("malformed AI response for %s: %s", e.Context, e.Reason)
}

// IsMalformed reports whether err is, or wraps, a MalformedResponseError.
func IsMalformed(err error) bool {
	var mre *MalformedResponseError
	return errors.As(err, &mre)
}

var validate = validator.New()

// Decode parses a structured reply into T and runs its `validate` tags.
// Formatting quirks (code fences, trailing commas, surrounding prose) are
// tolerated; anything else is a *MalformedResponseError.
func Decode[T any](text, context string) (T, error) {
	var zero T

	data, err := parseReply[T](text)
	if err != nil {
		return zero, &MalformedResponseError{
			Context:  context,
			Reason:   err.Error(),
			Response: truncate(text, 500),
		}
	}

	if err := validate.Struct(data); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// T is not a struct; nothing to validate
			return data, nil
		}
		reason := err.Error()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			reason = fmt.Sprintf("field %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return zero, &MalformedResponseError{
			Context:  context,
			Reason:   reason,
			Response: truncate(text, 500),
		}
	}

	return data, nil
}

// Schema is the object schema of a tool input or a structured reply.
type Schema struct {
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// SchemaFor reflects the JSON schema of v's type. Fields without omitempty
// are required.
func SchemaFor(v any) Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return Schema{Properties: map[string]any{}}
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil || schema.Properties == nil {
		return Schema{Properties: map[string]any{}}
	}
	return schema
}

// JSON renders the schema for inclusion in a prompt.
func (s Schema) JSON() string {
	data, err := json.MarshalIndent(map[string]any{
		"type":       "object",
		"properties": s.Properties,
		"required":   s.Required,
	}, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
