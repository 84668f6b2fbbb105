package lang

import "testing"

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		lang Language
	}{
		{".js", JavaScript},
		{".jsx", JavaScript},
		{".mjs", JavaScript},
		{".cjs", JavaScript},
		{".ts", TypeScript},
		{".mts", TypeScript},
		{".tsx", TSX},
	}
	for _, tt := range tests {
		spec := ForExtension(tt.ext)
		if spec == nil {
			t.Errorf("ForExtension(%q) = nil, want %s", tt.ext, tt.lang)
			continue
		}
		if spec.Language != tt.lang {
			t.Errorf("ForExtension(%q).Language = %s, want %s", tt.ext, spec.Language, tt.lang)
		}
	}
}

func TestForLanguage(t *testing.T) {
	for _, lang := range AllLanguages() {
		spec := ForLanguage(lang)
		if spec == nil {
			t.Errorf("ForLanguage(%s) = nil", lang)
		}
	}
}

func TestUnknownExtension(t *testing.T) {
	if spec := ForExtension(".py"); spec != nil {
		t.Errorf("ForExtension(.py) should be nil, got %v", spec)
	}
}

func TestFunctionKinds(t *testing.T) {
	spec := ForLanguage(JavaScript)
	if spec == nil {
		t.Fatal("JavaScript spec not registered")
	}
	for _, kind := range []string{"function_declaration", "function_expression", "arrow_function", "method_definition", "generator_function"} {
		if !spec.IsFunction(kind) {
			t.Errorf("IsFunction(%q) = false", kind)
		}
	}
	for _, kind := range []string{"class_declaration", "call_expression", "statement_block"} {
		if spec.IsFunction(kind) {
			t.Errorf("IsFunction(%q) = true", kind)
		}
	}
	if !spec.IsGenerator("generator_function_declaration") || spec.IsGenerator("function_declaration") {
		t.Error("generator classification is wrong")
	}
	if !spec.IsDeclaration("function_declaration") || spec.IsDeclaration("function_expression") {
		t.Error("declaration classification is wrong")
	}
}

func TestExtensionsSorted(t *testing.T) {
	exts := Extensions()
	for i := 1; i < len(exts); i++ {
		if exts[i-1] > exts[i] {
			t.Fatalf("Extensions() not sorted: %v", exts)
		}
	}
}
