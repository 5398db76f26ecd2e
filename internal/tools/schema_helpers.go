// Package tools implements the eight built-in tools: websearch,
// python_coder, rag, file_reader, file_writer, file_navigator,
// shell_exec, and memory. Each is a narrow internal/toolkit.Tool.
package tools

import "github.com/kairoai/agentrt/pkg/models"

func objSchema(props map[string]models.SchemaProp, required ...string) models.SchemaObject {
	return models.SchemaObject{Type: "object", Properties: props, Required: required}
}

func strProp(desc string) models.SchemaProp {
	return models.SchemaProp{Type: "string", Description: desc}
}

func intProp(desc string) models.SchemaProp {
	return models.SchemaProp{Type: "integer", Description: desc}
}

func enumProp(desc string, values ...string) models.SchemaProp {
	return models.SchemaProp{Type: "string", Description: desc, Enum: values}
}
