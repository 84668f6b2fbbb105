package instrument

import (
	"unicode/utf16"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/fntrace/internal/descriptor"
)

// rawPosition returns the node start as a 1-based line and a UTF-16 column.
// tree-sitter reports byte columns; JavaScript tooling and source maps count
// UTF-16 code units.
func rawPosition(node *tree_sitter.Node, source []byte) descriptor.SourcePosition {
	p := node.StartPosition()
	start := int(node.StartByte())
	lineStart := start - int(p.Column)
	if lineStart < 0 {
		lineStart = 0
	}
	return descriptor.SourcePosition{
		Line:   int(p.Row) + 1,
		Column: utf16Len(source[lineStart:start]),
	}
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r == utf8.RuneError && size <= 1 {
			n++
			continue
		}
		n += utf16.RuneLen(r)
	}
	return n
}
