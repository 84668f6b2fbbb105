// Package descriptor holds the static identity of an instrumented function site.
package descriptor

import "github.com/DeusData/fntrace/internal/fqn"

// Field names shared by descriptors, trace records and the store.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldFile        = "file"
	FieldStartLine   = "startLine"
	FieldStartColumn = "startColumn"
	FieldIsAsync     = "isAsync"
	FieldIsGenerator = "isGenerator"
)

// SourcePosition is a 1-based line and a 0-based UTF-16 column.
type SourcePosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// FunctionDescriptor is the per-site metadata embedded in rewritten code.
type FunctionDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	File        string `json:"file"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	IsAsync     bool   `json:"isAsync"`
	IsGenerator bool   `json:"isGenerator"`
}

// New builds a descriptor and derives its ID.
func New(name, file string, pos SourcePosition, isAsync, isGenerator bool) FunctionDescriptor {
	file = fqn.NormalizePath(file)
	return FunctionDescriptor{
		ID:          fqn.Compute(name, file, pos.Line, pos.Column),
		Name:        name,
		File:        file,
		StartLine:   pos.Line,
		StartColumn: pos.Column,
		IsAsync:     isAsync,
		IsGenerator: isGenerator,
	}
}

// Position returns the descriptor's start position.
func (d FunctionDescriptor) Position() SourcePosition {
	return SourcePosition{Line: d.StartLine, Column: d.StartColumn}
}

// Fields returns the descriptor as a flat record.
func (d FunctionDescriptor) Fields() map[string]any {
	return map[string]any{
		FieldID:          d.ID,
		FieldName:        d.Name,
		FieldFile:        d.File,
		FieldStartLine:   d.StartLine,
		FieldStartColumn: d.StartColumn,
		FieldIsAsync:     d.IsAsync,
		FieldIsGenerator: d.IsGenerator,
	}
}

// FromFields rebuilds a descriptor from a flat record. Missing or mistyped
// fields are left zero. Numbers may arrive as int, int64 or float64 depending
// on where the record was decoded.
func FromFields(m map[string]any) FunctionDescriptor {
	var d FunctionDescriptor
	d.ID, _ = m[FieldID].(string)
	d.Name, _ = m[FieldName].(string)
	d.File, _ = m[FieldFile].(string)
	d.StartLine = toInt(m[FieldStartLine])
	d.StartColumn = toInt(m[FieldStartColumn])
	d.IsAsync, _ = m[FieldIsAsync].(bool)
	d.IsGenerator, _ = m[FieldIsGenerator].(bool)
	return d
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
