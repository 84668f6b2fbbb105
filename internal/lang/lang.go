package lang

import "slices"

// Language represents a supported source language.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{JavaScript, TypeScript, TSX}
}

// LanguageSpec defines the tree-sitter node types the instrumenter cares about.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string

	// DeclarationNodeTypes are function forms that must carry a name.
	DeclarationNodeTypes []string
	// ExpressionNodeTypes are function expressions, including class and object methods.
	ExpressionNodeTypes []string
	ArrowNodeTypes      []string
	// GeneratorNodeTypes are function forms that are always generators.
	GeneratorNodeTypes []string
	// BlockBodyNodeType is the kind of a braced function body.
	BlockBodyNodeType string

	// Parent categories used for name inference.
	AssignmentNodeTypes    []string
	BindingNodeTypes       []string
	CallNodeTypes          []string
	ArgumentsNodeTypes     []string
	PropertyNodeTypes      []string
	ParenthesizedNodeTypes []string
	ExportNodeTypes        []string

	// PlainKeyNodeTypes are property keys that count as plain identifiers.
	PlainKeyNodeTypes []string
}

// IsFunction reports whether kind is any function form of this language.
func (s *LanguageSpec) IsFunction(kind string) bool {
	return slices.Contains(s.DeclarationNodeTypes, kind) ||
		slices.Contains(s.ExpressionNodeTypes, kind) ||
		slices.Contains(s.ArrowNodeTypes, kind)
}

// IsDeclaration reports whether kind is a named declaration form.
func (s *LanguageSpec) IsDeclaration(kind string) bool {
	return slices.Contains(s.DeclarationNodeTypes, kind)
}

// IsArrow reports whether kind is an arrow function.
func (s *LanguageSpec) IsArrow(kind string) bool {
	return slices.Contains(s.ArrowNodeTypes, kind)
}

// IsGenerator reports whether kind is a generator-only form.
func (s *LanguageSpec) IsGenerator(kind string) bool {
	return slices.Contains(s.GeneratorNodeTypes, kind)
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".js").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// Extensions returns every registered file extension, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}
