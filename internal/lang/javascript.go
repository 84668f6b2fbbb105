package lang

// ecmaScript returns the node tables shared by the JavaScript grammar and
// the TypeScript grammars built on top of it.
func ecmaScript(l Language, exts ...string) *LanguageSpec {
	return &LanguageSpec{
		Language:       l,
		FileExtensions: exts,
		DeclarationNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
		},
		ExpressionNodeTypes: []string{
			"function_expression",
			"function", // pre-0.21 grammars
			"generator_function",
			"method_definition",
		},
		ArrowNodeTypes: []string{"arrow_function"},
		GeneratorNodeTypes: []string{
			"generator_function_declaration",
			"generator_function",
		},
		BlockBodyNodeType: "statement_block",

		AssignmentNodeTypes:    []string{"assignment_expression", "augmented_assignment_expression"},
		BindingNodeTypes:       []string{"variable_declarator"},
		CallNodeTypes:          []string{"call_expression"},
		ArgumentsNodeTypes:     []string{"arguments"},
		PropertyNodeTypes:      []string{"pair", "field_definition", "public_field_definition"},
		ParenthesizedNodeTypes: []string{"parenthesized_expression"},
		ExportNodeTypes:        []string{"export_statement"},

		PlainKeyNodeTypes: []string{"property_identifier"},
	}
}

func init() {
	Register(ecmaScript(JavaScript, ".js", ".jsx", ".mjs", ".cjs"))
}
