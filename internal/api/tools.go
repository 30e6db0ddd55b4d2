package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Properties is the JSON-schema "properties" object.
	Properties map[string]any
	Required   []string
}

// ToolParams converts tool specs into SDK tool definitions.
func ToolParams(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		props := spec.Properties
		if props == nil {
			props = map[string]any{}
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   spec.Required,
				},
			},
		})
	}
	return tools
}

// StringProp is a shorthand for a string JSON-schema property.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// ObjectProp is a shorthand for a free-form object JSON-schema property.
func ObjectProp(description string) map[string]any {
	return map[string]any{"type": "object", "description": description}
}

// IntegerProp is a shorthand for an integer JSON-schema property.
func IntegerProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// ArrayProp is a shorthand for an array JSON-schema property.
func ArrayProp(description string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": items}
}
