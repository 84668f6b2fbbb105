package instrument

import (
	"encoding/json"
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/fntrace/internal/descriptor"
	"github.com/DeusData/fntrace/internal/lang"
)

// DefaultBinding is the callable rewritten code invokes when none is configured.
const DefaultBinding = "__fntrace__wrap"

const reservedConstructor = "constructor"

// functionRewriter decides which function nodes are rewritten and produces
// their edits.
type functionRewriter struct {
	spec    *lang.LanguageSpec
	source  []byte
	binding string
}

// qualifies reports whether a named function node may be rewritten.
func (w *functionRewriter) qualifies(node *tree_sitter.Node, name string) bool {
	if name == "" || name == reservedConstructor {
		return false
	}
	if w.isGenerator(node) {
		return false
	}
	body := node.ChildByFieldName("body")
	return body != nil && body.Kind() == w.spec.BlockBodyNodeType
}

func (w *functionRewriter) isAsync(node *tree_sitter.Node) bool {
	return hasToken(node, "async")
}

func (w *functionRewriter) isGenerator(node *tree_sitter.Node) bool {
	return w.spec.IsGenerator(node.Kind()) || hasToken(node, "*")
}

// hasToken reports whether node has a direct anonymous child of the given kind.
func hasToken(node *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == kind && !child.IsNamed() {
			return true
		}
		// Tokens never follow the body or parameter list.
		if child.Kind() == "formal_parameters" || child.Kind() == "statement_block" {
			return false
		}
	}
	return false
}

// rewrite returns the two insertions that route the body through the wrapper:
//
//	{ body }  =>  {return wrap(<descriptor>, () => { body });}
//
// The head, parameters and the body text itself are left untouched and no
// newline is introduced, so every original line keeps its number.
func (w *functionRewriter) rewrite(node *tree_sitter.Node, d descriptor.FunctionDescriptor) ([]Edit, error) {
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil, fmt.Errorf("function %s has no body", d.ID)
	}
	open, end := int(body.StartByte()), int(body.EndByte())-1
	if end <= open || w.source[open] != '{' || w.source[end] != '}' {
		return nil, fmt.Errorf("function %s: body is not a braced block", d.ID)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor %s: %w", d.ID, err)
	}

	thunk := "() => {"
	if d.IsAsync {
		thunk = "async () => {"
	}
	head := "return " + w.binding + "(" + string(payload) + ", " + thunk
	return []Edit{
		{Start: open + 1, End: open + 1, Text: head},
		{Start: end, End: end, Text: "});"},
	}, nil
}
