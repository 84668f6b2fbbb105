package instrument

import (
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/fntrace/internal/lang"
	"github.com/DeusData/fntrace/internal/parser"
)

// Anonymous is the name given to functions whose context yields no identifier.
const Anonymous = "[Anonymous]"

// parentContext is the syntactic role a function plays in its parent.
// The set of implementations is closed.
type parentContext interface {
	isParentContext()
}

// assignmentContext: obj.prop = function () {}
type assignmentContext struct{ target string }

// bindingContext: var f = function () {}
type bindingContext struct{ ident string }

// callContext: (function () {})()
type callContext struct{ calleeIdent string }

// argumentContext: run(function () {})
type argumentContext struct{ constructIdent string }

// propertyContext: { key: function () {} }, class members
type propertyContext struct{ key string }

type otherContext struct{}

func (assignmentContext) isParentContext() {}
func (bindingContext) isParentContext()    {}
func (callContext) isParentContext()       {}
func (argumentContext) isParentContext()   {}
func (propertyContext) isParentContext()   {}
func (otherContext) isParentContext()      {}

// nameFromContext maps a parent context to a function name.
func nameFromContext(c parentContext) string {
	switch c := c.(type) {
	case assignmentContext:
		return strings.ReplaceAll(c.target, `"`, `\"`)
	case bindingContext:
		return c.ident
	case callContext:
		return orAnonymous(c.calleeIdent)
	case argumentContext:
		return orAnonymous(c.constructIdent)
	case propertyContext:
		return c.key
	default:
		return Anonymous
	}
}

func orAnonymous(s string) string {
	if s == "" {
		return Anonymous
	}
	return s
}

// nameResolver infers function names from declarations and their surroundings.
type nameResolver struct {
	spec   *lang.LanguageSpec
	source []byte
}

// isFunctionNode reports whether node is any function form with a non-empty range.
func (r *nameResolver) isFunctionNode(node *tree_sitter.Node) bool {
	return r.spec.IsFunction(node.Kind()) && node.EndByte() > node.StartByte()
}

// resolve returns the name for a function node. anomaly is set when a
// declaration form lacks its identifier; the returned name is then empty.
func (r *nameResolver) resolve(node *tree_sitter.Node) (name string, anomaly bool) {
	if !r.isFunctionNode(node) {
		return "", false
	}

	if id := node.ChildByFieldName("name"); id != nil && id.Kind() == "identifier" {
		return parser.NodeText(id, r.source), false
	}

	if r.isAnonymousDeclaration(node) {
		return "", true
	}

	return nameFromContext(r.classify(node)), false
}

// isAnonymousDeclaration covers declaration forms without a name: a nameless
// function_declaration (only reachable through error recovery) and
// `export default function () {}`, which is a declaration despite the grammar
// parsing it as an expression.
func (r *nameResolver) isAnonymousDeclaration(node *tree_sitter.Node) bool {
	kind := node.Kind()
	if r.spec.IsDeclaration(kind) {
		return true
	}
	if r.spec.IsArrow(kind) || kind == "method_definition" {
		return false
	}
	parent := node.Parent()
	return parent != nil && slices.Contains(r.spec.ExportNodeTypes, parent.Kind())
}

// classify inspects the nearest non-parenthesis ancestor of node.
func (r *nameResolver) classify(node *tree_sitter.Node) parentContext {
	if node.Kind() == "method_definition" {
		return r.propertyKey(node.ChildByFieldName("name"))
	}

	child := node
	parent := node.Parent()
	for parent != nil && slices.Contains(r.spec.ParenthesizedNodeTypes, parent.Kind()) {
		child = parent
		parent = parent.Parent()
	}
	if parent == nil {
		return otherContext{}
	}

	kind := parent.Kind()
	switch {
	case slices.Contains(r.spec.AssignmentNodeTypes, kind):
		left := parent.ChildByFieldName("left")
		if left != nil && sameNode(parent.ChildByFieldName("right"), child) {
			return assignmentContext{target: parser.NodeText(left, r.source)}
		}

	case slices.Contains(r.spec.BindingNodeTypes, kind):
		if sameNode(parent.ChildByFieldName("value"), child) {
			ident := ""
			if id := parent.ChildByFieldName("name"); id != nil && id.Kind() == "identifier" {
				ident = parser.NodeText(id, r.source)
			}
			return bindingContext{ident: ident}
		}

	case slices.Contains(r.spec.CallNodeTypes, kind):
		if sameNode(parent.ChildByFieldName("function"), child) {
			return callContext{calleeIdent: r.identOf(node)}
		}

	case slices.Contains(r.spec.ArgumentsNodeTypes, kind):
		return argumentContext{constructIdent: r.identOf(parent.Parent())}

	case slices.Contains(r.spec.PropertyNodeTypes, kind):
		if sameNode(parent.ChildByFieldName("value"), child) {
			return r.propertyKey(propertyKeyNode(parent))
		}
	}
	return otherContext{}
}

// propertyKey yields a property context for plain identifier keys only.
func (r *nameResolver) propertyKey(key *tree_sitter.Node) parentContext {
	if key == nil || !slices.Contains(r.spec.PlainKeyNodeTypes, key.Kind()) {
		return otherContext{}
	}
	return propertyContext{key: parser.NodeText(key, r.source)}
}

// identOf returns the identifier a construct declares through its name field.
func (r *nameResolver) identOf(node *tree_sitter.Node) string {
	if node == nil {
		return ""
	}
	id := node.ChildByFieldName("name")
	if id == nil || id.Kind() != "identifier" {
		return ""
	}
	return parser.NodeText(id, r.source)
}

func propertyKeyNode(prop *tree_sitter.Node) *tree_sitter.Node {
	for _, field := range []string{"key", "property", "name"} {
		if n := prop.ChildByFieldName(field); n != nil {
			return n
		}
	}
	return nil
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a != nil && b != nil && a.Id() == b.Id()
}
