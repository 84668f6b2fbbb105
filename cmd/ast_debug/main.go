package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/DeusData/fntrace/internal/lang"
	"github.com/DeusData/fntrace/internal/parser"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func printAST(node *tree_sitter.Node, source []byte, spec *lang.LanguageSpec, indent int) {
	if node == nil {
		return
	}
	prefix := strings.Repeat("  ", indent)
	parentKind := "nil"
	if node.Parent() != nil {
		parentKind = node.Parent().Kind()
	}
	text := parser.NodeText(node, source)
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	mark := ""
	if spec != nil && spec.IsFunction(node.Kind()) {
		mark = " *fn"
	}
	pos := node.StartPosition()
	fmt.Printf("%s%s%s [%d:%d] (parent=%s) %q\n", prefix, node.Kind(), mark, pos.Row+1, pos.Column, parentKind, text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(node.Child(i), source, spec, indent+1)
	}
}

// Usage: ast_debug <file>...
// Without arguments a few representative snippets are dumped.
func main() {
	if len(os.Args) > 1 {
		for _, path := range os.Args[1:] {
			src, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			dump(path, parser.LanguageForPath(path), src)
		}
		return
	}

	dump("JS NAMED CONTEXTS", lang.JavaScript, []byte(
		"obj.handler = function () {};\nconst f = async () => { await g(); };\nfoo(function () {});\nclass A { m() {} static s() {} }\n"))
	dump("JS EXPORT DEFAULT", lang.JavaScript, []byte("export default function () { return 1; }\n"))
	dump("TS METHOD", lang.TypeScript, []byte("class C { private run(x: number): void { } }\n"))
	dump("TSX COMPONENT", lang.TSX, []byte("const App = () => { return <div/>; };\n"))
}

func dump(title string, l lang.Language, src []byte) {
	fmt.Printf("=== %s (%s) ===\n", title, l)
	tree, err := parser.Parse(l, src)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer tree.Close()
	root := tree.RootNode()
	if bad := parser.FirstError(root); bad != nil {
		fmt.Printf("syntax error at %d:%d\n", bad.StartPosition().Row+1, bad.StartPosition().Column)
	}
	printAST(root, src, lang.ForLanguage(l), 0)
	fmt.Println()
}
