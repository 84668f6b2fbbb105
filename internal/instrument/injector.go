// Package instrument rewrites JavaScript and TypeScript source so that every
// qualifying function body runs through an execution wrapper.
package instrument

import (
	"fmt"
	"log/slog"
	"os"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/fntrace/internal/descriptor"
	"github.com/DeusData/fntrace/internal/lang"
	"github.com/DeusData/fntrace/internal/parser"
)

// Options configure an Injector. The zero value is usable.
type Options struct {
	// Binding is the identifier rewritten code calls. Defaults to DefaultBinding.
	Binding string
	// ReadFile loads referenced source maps. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// File is one unit of input.
type File struct {
	// Path locates the file on disk. Source map references resolve against
	// its directory and its extension picks the grammar.
	Path string
	// RelPath is the project-relative path used in function identities.
	// Defaults to Path.
	RelPath string
	Source  []byte
	// Wrapped marks files whose content a host loader encloses in a synthetic
	// outer function starting on line 1.
	Wrapped bool
	// Language overrides the grammar chosen from Path.
	Language lang.Language
}

// Result is the outcome of instrumenting one file.
type Result struct {
	Source      []byte
	Functions   []descriptor.FunctionDescriptor
	Diagnostics []Diagnostic
	// Skipped counts functions left alone because the source map had no
	// position for them.
	Skipped int
	Edits   int
}

// Injector instruments files. It holds no per-file state and is safe for
// concurrent use.
type Injector struct {
	binding  string
	readFile func(string) ([]byte, error)
}

// New creates an Injector.
func New(opts Options) *Injector {
	in := &Injector{binding: opts.Binding, readFile: opts.ReadFile}
	if in.binding == "" {
		in.binding = DefaultBinding
	}
	if in.readFile == nil {
		in.readFile = os.ReadFile
	}
	return in
}

// Binding returns the identifier rewritten code calls.
func (in *Injector) Binding() string {
	return in.binding
}

// Inject parses f, rewrites every qualifying function and returns the new
// source. Syntax errors and unusable source maps abort the whole file.
func (in *Injector) Inject(f File) (*Result, error) {
	l := f.Language
	if l == "" {
		l = parser.LanguageForPath(f.Path)
	}
	spec := lang.ForLanguage(l)
	if spec == nil {
		return nil, fmt.Errorf("instrument %s: unsupported language %s", f.Path, l)
	}
	relPath := f.RelPath
	if relPath == "" {
		relPath = f.Path
	}

	var smap *sourceMapResolver
	if ref := findSourceMappingURL(f.Source); ref != "" {
		var err error
		smap, err = loadSourceMap(f.Path, ref, in.readFile)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", f.Path, err)
		}
	}

	tree, err := parser.Parse(l, f.Source)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", f.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := parser.FirstError(root); bad != nil {
		p := bad.StartPosition()
		return nil, fmt.Errorf("instrument %s: %w at %d:%d", f.Path, ErrSyntax, p.Row+1, p.Column)
	}

	c := &collector{
		names:   &nameResolver{spec: spec, source: f.Source},
		rewrite: &functionRewriter{spec: spec, source: f.Source, binding: in.binding},
		smap:    smap,
		file:    f,
		relPath: relPath,
		result:  &Result{},
	}
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		c.visit(node)
		return true
	})
	if c.err != nil {
		return nil, fmt.Errorf("instrument %s: %w", f.Path, c.err)
	}

	out, err := applyEdits(f.Source, c.edits)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", f.Path, err)
	}
	c.result.Source = out
	c.result.Edits = len(c.edits)
	slog.Debug("instrument.file", "path", relPath, "functions", len(c.result.Functions), "skipped", c.result.Skipped)
	return c.result, nil
}

// collector is the first phase: it walks the unmodified tree and gathers edits.
type collector struct {
	names   *nameResolver
	rewrite *functionRewriter
	smap    *sourceMapResolver
	file    File
	relPath string

	edits  []Edit
	result *Result
	err    error
}

func (c *collector) visit(node *tree_sitter.Node) {
	if c.err != nil || !c.names.isFunctionNode(node) {
		return
	}

	raw := rawPosition(node, c.file.Source)
	pos := raw
	if c.file.Wrapped {
		pos.Line--
	}

	name, anomaly := c.names.resolve(node)
	if anomaly {
		c.report(Diagnostic{
			Kind:    MissingIdentifier,
			Message: fmt.Sprintf("%s has no identifier", node.Kind()),
			Line:    pos.Line,
			Column:  pos.Column,
		})
		return
	}
	if !c.rewrite.qualifies(node, name) {
		return
	}

	// The synthetic outer function of a wrapped file is host machinery.
	if c.file.Wrapped && raw.Line == 1 {
		return
	}

	if c.smap != nil {
		mapped, ok := c.smap.originalPositionFor(pos)
		if !ok {
			c.result.Skipped++
			slog.Debug("instrument.unmapped", "file", c.relPath, "name", name, "line", pos.Line, "col", pos.Column)
			return
		}
		pos = mapped
	}

	d := descriptor.New(name, c.relPath, pos, c.rewrite.isAsync(node), c.rewrite.isGenerator(node))
	edits, err := c.rewrite.rewrite(node, d)
	if err != nil {
		c.err = err
		return
	}
	c.edits = append(c.edits, edits...)
	c.result.Functions = append(c.result.Functions, d)
}

func (c *collector) report(d Diagnostic) {
	c.result.Diagnostics = append(c.result.Diagnostics, d)
	slog.Warn("instrument.anomaly", "file", c.relPath, "kind", d.Kind, "msg", d.Message, "line", d.Line, "col", d.Column)
}
