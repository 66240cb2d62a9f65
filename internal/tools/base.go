// Package tools provides the agent's tool interface, registry and the
// built-in sandbox-side and host-side tools.
package tools

import (
	"context"
	"fmt"
	"reflect"
)

// Location says where a tool's work happens. Sandbox tools run their
// effects inside the isolated environment and are constructed with only a
// *sandbox.Session; host tools run on the host and carry their own
// credentials. Nothing else crosses the boundary.
type Location string

const (
	LocationSandbox Location = "sandbox"
	LocationHost    Location = "host"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Description returns the human-readable description for the LLM.
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]interface{}
	// Location reports whether the tool acts in the sandbox or on the host.
	Location() Location
	// Execute runs the tool and returns the observation text.
	Execute(ctx context.Context, params map[string]interface{}) (string, error)
}

// ToolDefinition is a tool in OpenAI function-calling format.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the function payload of a ToolDefinition.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToDefinition converts a Tool to OpenAI function-calling format.
func ToDefinition(t Tool) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ValidateParams checks arguments against a JSON schema before dispatch.
// Returns the list of problems, empty if valid.
func ValidateParams(params map[string]interface{}, schema map[string]interface{}) []string {
	var problems []string

	for _, reqField := range requiredFields(schema) {
		if _, exists := params[reqField]; !exists {
			problems = append(problems, fmt.Sprintf("missing required field: %s", reqField))
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return problems
	}

	for key, value := range params {
		propSchema, ok := properties[key].(map[string]interface{})
		if !ok {
			continue // additional properties pass through
		}
		problems = append(problems, validateField(key, value, propSchema)...)
	}

	return problems
}

// requiredFields reads the schema's required list, accepting both the
// []string form Go code writes and the []interface{} form JSON decodes to.
func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		fields := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	}
	return nil
}

// validateField checks one argument's type and enum constraint.
func validateField(key string, value interface{}, schema map[string]interface{}) []string {
	expectedType, ok := schema["type"].(string)
	if !ok || value == nil {
		return nil
	}

	if !matchesType(value, expectedType) {
		return []string{fmt.Sprintf("field %s: expected type %s, got %T", key, expectedType, value)}
	}

	if enum, ok := schema["enum"]; ok && !isInEnum(value, enum) {
		return []string{fmt.Sprintf("field %s: value %v is not an allowed value", key, value)}
	}
	return nil
}

// matchesType checks a value against a JSON schema type name. JSON
// numbers decode as float64, so integer accepts whole floats.
func matchesType(value interface{}, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int64, float32, float64:
			return true
		}
		return false
	case "array":
		if value == nil {
			return false
		}
		k := reflect.ValueOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	}
	return true
}

// isInEnum checks membership in an enum list of either decoded or
// Go-written form.
func isInEnum(value interface{}, enum interface{}) bool {
	switch e := enum.(type) {
	case []interface{}:
		for _, allowed := range e {
			if reflect.DeepEqual(value, allowed) {
				return true
			}
		}
	case []string:
		if s, ok := value.(string); ok {
			for _, allowed := range e {
				if s == allowed {
					return true
				}
			}
		}
	}
	return false
}

// BaseTool carries the name, description, schema and location shared by
// every tool implementation.
type BaseTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	location    Location
}

// NewBaseTool creates a BaseTool with the given attributes.
func NewBaseTool(name, description string, location Location, parameters map[string]interface{}) BaseTool {
	return BaseTool{
		name:        name,
		description: description,
		parameters:  parameters,
		location:    location,
	}
}

// Name returns the tool's identifier.
func (t *BaseTool) Name() string { return t.name }

// Description returns the human-readable description for the LLM.
func (t *BaseTool) Description() string { return t.description }

// Parameters returns the JSON Schema for the tool's arguments.
func (t *BaseTool) Parameters() map[string]interface{} { return t.parameters }

// Location reports whether the tool acts in the sandbox or on the host.
func (t *BaseTool) Location() Location { return t.location }

// ErrParamNotFound is returned when a required parameter is missing.
type ErrParamNotFound struct {
	Key string
}

func (e ErrParamNotFound) Error() string {
	return fmt.Sprintf("parameter %q not found", e.Key)
}

// ErrParamTypeMismatch is returned when a parameter has an unexpected type.
type ErrParamTypeMismatch struct {
	Key      string
	Expected string
	Actual   interface{}
}

func (e ErrParamTypeMismatch) Error() string {
	return fmt.Sprintf("parameter %q: expected %s, got %T", e.Key, e.Expected, e.Actual)
}

// GetStringParam extracts a string parameter from the params map.
func GetStringParam(params map[string]interface{}, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", ErrParamNotFound{Key: key}
	}
	str, ok := val.(string)
	if !ok {
		return "", ErrParamTypeMismatch{Key: key, Expected: "string", Actual: val}
	}
	return str, nil
}

// GetIntParam extracts an integer parameter. JSON numbers decode as
// float64, so that case is handled.
func GetIntParam(params map[string]interface{}, key string) (int, error) {
	val, ok := params[key]
	if !ok {
		return 0, ErrParamNotFound{Key: key}
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, ErrParamTypeMismatch{Key: key, Expected: "int", Actual: val}
	}
}

// GetBoolParam extracts a boolean parameter from the params map.
func GetBoolParam(params map[string]interface{}, key string) (bool, error) {
	val, ok := params[key]
	if !ok {
		return false, ErrParamNotFound{Key: key}
	}
	b, ok := val.(bool)
	if !ok {
		return false, ErrParamTypeMismatch{Key: key, Expected: "bool", Actual: val}
	}
	return b, nil
}

// GetStringParamOr extracts a string parameter, falling back to a default.
func GetStringParamOr(params map[string]interface{}, key, defaultVal string) string {
	val, err := GetStringParam(params, key)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetIntParamOr extracts an integer parameter, falling back to a default.
func GetIntParamOr(params map[string]interface{}, key string, defaultVal int) int {
	val, err := GetIntParam(params, key)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetBoolParamOr extracts a boolean parameter, falling back to a default.
func GetBoolParamOr(params map[string]interface{}, key string, defaultVal bool) bool {
	val, err := GetBoolParam(params, key)
	if err != nil {
		return defaultVal
	}
	return val
}
