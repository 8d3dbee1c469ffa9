// Package tools defines the function-calling surface the model can
// invoke during conversation, with per-dialect definition shapes and a
// registry that executes calls asynchronously.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool is one function the model may call.
type Tool struct {
	// Name is the unique identifier (e.g. "get_weather").
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// Parameters is the JSON schema for the arguments. Build it by
	// hand or with Reflect.
	Parameters map[string]any

	// Handler executes the call. The result string is sent back to the
	// model verbatim, so keep it compact.
	Handler func(ctx context.Context, args map[string]any) (string, error)
}

// Reflect derives a JSON schema from a struct type's fields and tags,
// for tools with typed argument structs.
func Reflect[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var v T
	schema := reflector.Reflect(&v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("reflect tool schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("reflect tool schema: %v", err))
	}
	delete(m, "$schema")
	return m
}

// Unstructured decodes a tool's raw JSON argument string, as delivered
// by the OpenAI dialect's function_call items.
func Unstructured(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
