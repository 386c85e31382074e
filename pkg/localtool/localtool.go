// Package localtool implements built-in tools that run in-process rather
// than through a remote tool server. Bodies are intentionally thin: per the
// engine's contract, tool execution is an external collaborator and the
// built-ins here exist mainly to exercise the same registry, schema, and
// dispatch path that remote tools go through.
package localtool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Tool is the contract a built-in Go tool must satisfy. Name and
// Description mirror the wire shape of a remote tool descriptor so the two
// kinds can be registered side by side.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns a JSON Schema document describing Args, derived
	// once at registration time and cached.
	InputSchema() map[string]any
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// SchemaOf derives a JSON Schema map for a Go struct type, used by every
// built-in tool to avoid hand-writing schemas that would drift from the
// struct they describe.
func SchemaOf(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:             true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	out := make(map[string]any)
	raw, err := schema.MarshalJSON()
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out
	}
	return out
}
