package agent

import (
	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/pkg/models"
)

// kindOrder is the default execution order of each kind's tool calls.
// Objects must exist before their fields, fields before layouts and records.
var kindOrder = map[models.AgentKind]int{
	models.KindObject:   0,
	models.KindField:    10,
	models.KindLayout:   20,
	models.KindRecord:   30,
	models.KindWorkflow: 40,
	models.KindReport:   50,
}

// DefaultOrder returns the default tool call order for a kind.
func DefaultOrder(kind models.AgentKind) int {
	return kindOrder[kind]
}

// Functions returns the platform functions an agent of this kind may call.
func Functions(kind models.AgentKind) []api.ToolSpec {
	switch kind {
	case models.KindObject:
		return []api.ToolSpec{{
			Name:        "create_object",
			Description: "Create a custom object.",
			Properties: map[string]any{
				"name":         api.StringProp("API name of the object"),
				"label":        api.StringProp("Display label"),
				"plural_label": api.StringProp("Plural display label"),
			},
			Required: []string{"name", "label"},
		}}
	case models.KindField:
		return []api.ToolSpec{{
			Name:        "create_field",
			Description: "Add a field to an object.",
			Properties: map[string]any{
				"object":  api.StringProp("API name of the target object"),
				"name":    api.StringProp("API name of the field"),
				"label":   api.StringProp("Display label"),
				"type":    api.StringProp("Field type, e.g. text, number, date, picklist, lookup"),
				"options": api.ArrayProp("Picklist values", api.StringProp("value")),
			},
			Required: []string{"object", "name", "type"},
		}}
	case models.KindRecord:
		return []api.ToolSpec{{
			Name:        "create_record",
			Description: "Insert a data record.",
			Properties: map[string]any{
				"object": api.StringProp("API name of the object"),
				"values": api.ObjectProp("Field values keyed by field name"),
			},
			Required: []string{"object", "values"},
		}}
	case models.KindLayout:
		return []api.ToolSpec{{
			Name:        "create_layout",
			Description: "Create a page layout for an object.",
			Properties: map[string]any{
				"object":   api.StringProp("API name of the object"),
				"name":     api.StringProp("Layout name"),
				"sections": api.ArrayProp("Sections, each with a title and field names", api.ObjectProp("section")),
			},
			Required: []string{"object", "name"},
		}}
	case models.KindWorkflow:
		return []api.ToolSpec{{
			Name:        "create_workflow",
			Description: "Create an automation workflow.",
			Properties: map[string]any{
				"object":  api.StringProp("API name of the triggering object"),
				"name":    api.StringProp("Workflow name"),
				"trigger": api.StringProp("Trigger event, e.g. on_create, on_update"),
				"actions": api.ArrayProp("Workflow actions", api.ObjectProp("action")),
			},
			Required: []string{"object", "name", "trigger"},
		}}
	case models.KindReport:
		return []api.ToolSpec{{
			Name:        "create_report",
			Description: "Create a report.",
			Properties: map[string]any{
				"object":   api.StringProp("API name of the reported object"),
				"name":     api.StringProp("Report name"),
				"columns":  api.ArrayProp("Field names shown as columns", api.StringProp("field")),
				"group_by": api.StringProp("Optional grouping field"),
			},
			Required: []string{"object", "name"},
		}}
	default:
		return nil
	}
}

// clarificationTool lets the model ask the user for missing information.
var clarificationTool = api.ToolSpec{
	Name:        "request_clarification",
	Description: "Ask the user for information that is required and cannot be inferred.",
	Properties: map[string]any{
		"prompt":  api.StringProp("Question shown to the user"),
		"missing": api.ArrayProp("Names of the missing pieces of information", api.StringProp("name")),
	},
	Required: []string{"prompt"},
}
