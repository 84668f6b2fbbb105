package instrument

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/fntrace/internal/lang"
)

var insertedText = regexp.MustCompile(`return __fntrace__wrap\(\{[^}]*\}, (async )?\(\) => \{|\}\);`)

func inject(t *testing.T, src string, f File) *Result {
	t.Helper()
	if f.Path == "" {
		f.Path = "src/app.js"
	}
	f.Source = []byte(src)
	res, err := New(Options{}).Inject(f)
	require.NoError(t, err)
	return res
}

func functionNames(res *Result) []string {
	names := make([]string, 0, len(res.Functions))
	for _, d := range res.Functions {
		names = append(names, d.Name)
	}
	return names
}

func TestNameInference(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"variable binding", `var f = function () {};`, []string{"f"}},
		{"named IIFE", `(function bar() {})();`, []string{"bar"}},
		{"anonymous IIFE", `(function () {})();`, []string{Anonymous}},
		{"member assignment", `obj.prop = function () {};`, []string{"obj.prop"}},
		{"quoted assignment target", `obj["k"] = function () {};`, []string{`obj[\"k\"]`}},
		{"object property", `var o = { key: function () {} };`, []string{"key"}},
		{"bare callback", `run(function () {});`, []string{Anonymous}},
		{"arrow binding", `const g = (a, b) => { return a + b; };`, []string{"g"}},
		{"parenthesized binding", `const h = (function () {});`, []string{"h"}},
		{"declaration", `function decl() {}`, []string{"decl"}},
		{"explicit name wins", `var f = function inner() {};`, []string{"inner"}},
		{"string key", `var o = { "quoted": function () {} };`, []string{Anonymous}},
		{"class members", "class A {\n  constructor() {}\n  m() {}\n  get v() { return 1; }\n  h = () => {};\n}", []string{"m", "v", "h"}},
		{"object method shorthand", `var o = { run() {} };`, []string{"run"}},
		{"nested", "function outer() {\n  return function () {};\n}", []string{"outer", Anonymous}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := inject(t, tt.src, File{})
			assert.Equal(t, tt.want, functionNames(res))
		})
	}
}

func TestRewriteShape(t *testing.T) {
	res := inject(t, "function add(a, b) { return a + b; }", File{Path: "a.js"})
	want := `function add(a, b) {return __fntrace__wrap(` +
		`{"id":"add@a.js::1:0","name":"add","file":"a.js","startLine":1,"startColumn":0,"isAsync":false,"isGenerator":false}` +
		`, () => { return a + b; });}`
	assert.Equal(t, want, string(res.Source))
	assert.Equal(t, 2, res.Edits)
}

func TestRewriteEmptyBody(t *testing.T) {
	res := inject(t, "function f() {}", File{Path: "a.js"})
	assert.True(t, strings.HasSuffix(string(res.Source), `, () => {});}`), string(res.Source))
	assert.True(t, strings.HasPrefix(string(res.Source), `function f() {return __fntrace__wrap({`))
}

func TestAsyncThunk(t *testing.T) {
	res := inject(t, "async function load() { return await get(); }\nconst q = async () => { await x; };", File{})
	require.Len(t, res.Functions, 2)
	for _, d := range res.Functions {
		assert.True(t, d.IsAsync, d.ID)
	}
	assert.Equal(t, 2, strings.Count(string(res.Source), ", async () => {"))
}

func TestCustomBinding(t *testing.T) {
	in := New(Options{Binding: "trace"})
	res, err := in.Inject(File{Path: "a.js", Source: []byte("function f() { g(); }")})
	require.NoError(t, err)
	assert.Contains(t, string(res.Source), "{return trace({")
	assert.Equal(t, "trace", in.Binding())
}

func TestExclusionsAreByteIdentical(t *testing.T) {
	sources := []string{
		"function* gen() { yield 1; }",
		"var g = function* () { yield 1; };",
		"const sq = x => x * x;",
		"class A { constructor() { this.x = 1; } }",
		"var o = { *items() { yield 1; } };",
		"async function* stream() { yield 1; }",
	}
	for _, src := range sources {
		res := inject(t, src, File{})
		assert.Equal(t, src, string(res.Source))
		assert.Empty(t, res.Functions, src)
	}
}

func TestHeadsAndLinesPreserved(t *testing.T) {
	src := "// header\nfunction sum(a, b = 2, ...rest) {\n  return a + b;\n}\n\nconst obj = {\n  m(x) {\n    return x;\n  },\n};\n"
	res := inject(t, src, File{})
	out := string(res.Source)

	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))
	assert.Contains(t, out, "function sum(a, b = 2, ...rest) {return ")
	assert.Contains(t, out, "  m(x) {return ")

	stripped := insertedText.ReplaceAllString(out, "")
	assert.Equal(t, src, stripped)
}

func TestDeterministicIDs(t *testing.T) {
	src := "function a() {}\nvar b = () => {};\nrun(function () {});"
	first := inject(t, src, File{RelPath: "lib/x.js"})
	second := inject(t, src, File{RelPath: "lib/x.js"})
	assert.Equal(t, first.Functions, second.Functions)
	assert.Equal(t, first.Source, second.Source)
	assert.Equal(t, "a@lib/x.js::1:0", first.Functions[0].ID)
	assert.Equal(t, "b@lib/x.js::2:8", first.Functions[1].ID)
	assert.Equal(t, "[Anonymous]@lib/x.js::3:4", first.Functions[2].ID)
}

func TestUTF16Columns(t *testing.T) {
	res := inject(t, `"😀"; var f = function () {};`, File{})
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 14, res.Functions[0].StartColumn)
}

func TestWrappedFile(t *testing.T) {
	src := "(function (exports, module) {\nfunction a() {}\nexports.b = function () {};\n})"

	wrapped := inject(t, src, File{Wrapped: true})
	require.Len(t, wrapped.Functions, 2)
	assert.Equal(t, "a", wrapped.Functions[0].Name)
	assert.Equal(t, 1, wrapped.Functions[0].StartLine)
	assert.Equal(t, 2, wrapped.Functions[1].StartLine)
	assert.True(t, strings.HasPrefix(string(wrapped.Source), "(function (exports, module) {\n"))

	plain := inject(t, src, File{})
	assert.Len(t, plain.Functions, 3)
}

func TestWrappedFileLineOneNeverInstrumented(t *testing.T) {
	src := "var first = function () {}; (function () {\n})"
	res := inject(t, src, File{Wrapped: true})
	assert.Empty(t, res.Functions)
	assert.Equal(t, src, string(res.Source))
}

func TestAnonymousDefaultExportIsAnomaly(t *testing.T) {
	src := "export default function () { return 1; }\nexport function named() {}"
	res := inject(t, src, File{Path: "mod.mjs"})
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, MissingIdentifier, res.Diagnostics[0].Kind)
	assert.Equal(t, 1, res.Diagnostics[0].Line)
	assert.Equal(t, []string{"named"}, functionNames(res))
	assert.True(t, strings.HasPrefix(string(res.Source), "export default function () { return 1; }\n"))
}

func TestSyntaxErrorIsFatal(t *testing.T) {
	_, err := New(Options{}).Inject(File{Path: "bad.js", Source: []byte("function ( {")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestTypeScript(t *testing.T) {
	src := "export function total(items: number[]): number {\n  return items.length;\n}\nconst id = (x: string): string => { return x; };"
	res := inject(t, src, File{Path: "src/total.ts"})
	assert.Equal(t, []string{"total", "id"}, functionNames(res))
	assert.Contains(t, string(res.Source), "export function total(items: number[]): number {return ")
}

func TestTSX(t *testing.T) {
	src := "export const View = (p: Props) => { return <div>{p.x}</div>; };"
	res := inject(t, src, File{Path: "View.tsx"})
	assert.Equal(t, []string{"View"}, functionNames(res))
}

func TestLanguageOverride(t *testing.T) {
	res := inject(t, "function f(a: string) {}", File{Path: "script", Language: lang.TypeScript})
	assert.Len(t, res.Functions, 1)
}

// generated line 10 maps to original line 3; nothing maps before line 10.
const tenToThreeMap = `{"version":3,"file":"gen.js","sources":["orig.ts"],"names":[],"mappings":";;;;;;;;;AAEA"}`

func mapReader(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if s, ok := files[path]; ok {
			return []byte(s), nil
		}
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
}

func generatedSource() string {
	var b strings.Builder
	b.WriteString("// generated\n\n\n\nfunction early() {}\n\n\n\n\n")
	b.WriteString("function ten() {}\n")
	return b.String()
}

func TestSourceMapRedirection(t *testing.T) {
	src := generatedSource() + "//# sourceMappingURL=gen.js.map\n"
	in := New(Options{ReadFile: mapReader(map[string]string{"dist/gen.js.map": tenToThreeMap})})

	res, err := in.Inject(File{Path: "dist/gen.js", RelPath: "dist/gen.js", Source: []byte(src)})
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	assert.Equal(t, "ten", res.Functions[0].Name)
	assert.Equal(t, 3, res.Functions[0].StartLine)
	assert.Equal(t, 0, res.Functions[0].StartColumn)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, string(res.Source), "function early() {}\n")
}

func TestSourceMapInline(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(tenToThreeMap))
	src := generatedSource() + "//# sourceMappingURL=data:application/json;charset=utf-8;base64," + data + "\n"
	in := New(Options{ReadFile: mapReader(nil)})

	res, err := in.Inject(File{Path: "gen.js", Source: []byte(src)})
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 3, res.Functions[0].StartLine)
}

func TestSourceMapLastDirectiveWins(t *testing.T) {
	src := strings.Replace(generatedSource(), "\n\n", "\n//# sourceMappingURL=stale.map\n", 1) +
		"/*# sourceMappingURL=gen.js.map */\n"
	in := New(Options{ReadFile: mapReader(map[string]string{"gen.js.map": tenToThreeMap})})

	res, err := in.Inject(File{Path: "gen.js", Source: []byte(src)})
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 3, res.Functions[0].StartLine)
}

func TestSourceMapFailuresAreFatal(t *testing.T) {
	src := generatedSource() + "//# sourceMappingURL=gen.js.map\n"

	missing := New(Options{ReadFile: mapReader(nil)})
	_, err := missing.Inject(File{Path: "gen.js", Source: []byte(src)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMap))

	malformed := New(Options{ReadFile: mapReader(map[string]string{"gen.js.map": "{not json"})})
	_, err = malformed.Inject(File{Path: "gen.js", Source: []byte(src)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMap))
}

func TestFindSourceMappingURL(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{"var a;\n//# sourceMappingURL=a.js.map", "a.js.map"},
		{"var a;\n//@ sourceMappingURL=old.map\n", "old.map"},
		{"var a;\n/*# sourceMappingURL=block.map */", "block.map"},
		{"var s = '//# sourceMappingURL=fake.map';\n", ""},
		{"//# sourceMappingURL=one.map\n//# sourceMappingURL=two.map\n", "two.map"},
		{"var a;", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, findSourceMappingURL([]byte(tt.src)), tt.src)
	}
}

func TestSourceMapIdentity(t *testing.T) {
	src := "function first() {}\n//# sourceMappingURL=id.js.map\n"
	in := New(Options{ReadFile: mapReader(map[string]string{
		"id.js.map": `{"version":3,"sources":["id.ts"],"names":[],"mappings":"AAAA"}`,
	})})

	res, err := in.Inject(File{Path: "id.js", Source: []byte(src)})
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "first@id.js::1:0", res.Functions[0].ID)
	assert.Equal(t, 0, res.Skipped)
}

func TestSourceMapUnmappedLineBetweenMappedLines(t *testing.T) {
	// gen 5 -> 2:0, gen 10 -> 1:0, gen 12 -> 3:0
	lines := []string{"", "", "", "",
		"function five() {}", "",
		"function seven() {}", "", "",
		"function ten() {}", "",
		"function twelve() {}",
		"//# sourceMappingURL=gen.js.map", ""}
	in := New(Options{ReadFile: mapReader(map[string]string{
		"gen.js.map": `{"version":3,"sources":["gen.ts"],"names":[],"mappings":";;;;AACA;;;;;AADA;;AAEA"}`,
	})})

	res, err := in.Inject(File{Path: "gen.js", Source: []byte(strings.Join(lines, "\n"))})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Functions))
	for _, d := range res.Functions {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"five@gen.js::2:0", "ten@gen.js::1:0", "twelve@gen.js::3:0"}, ids)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, string(res.Source), "function seven() {}\n")
}

func TestWrappedFileWithSourceMap(t *testing.T) {
	// The map describes the file on disk, which starts on the second line of
	// the wrapped text, so lookups use the line after the host header.
	src := "(function (exports, module) {\n// banner\nfunction f() {}\n//# sourceMappingURL=w.js.map\n})"

	mapped := New(Options{ReadFile: mapReader(map[string]string{
		"w.js.map": `{"version":3,"sources":["w.ts"],"names":[],"mappings":";AAIA"}`,
	})})
	res, err := mapped.Inject(File{Path: "w.js", Source: []byte(src), Wrapped: true})
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "f@w.js::5:0", res.Functions[0].ID)

	// A map keyed by the raw wrapped line has nothing for the lookup line.
	rawKeyed := New(Options{ReadFile: mapReader(map[string]string{
		"w.js.map": `{"version":3,"sources":["w.ts"],"names":[],"mappings":";;AAIA"}`,
	})})
	res, err = rawKeyed.Inject(File{Path: "w.js", Source: []byte(src), Wrapped: true})
	require.NoError(t, err)
	assert.Empty(t, res.Functions)
	assert.Equal(t, 1, res.Skipped)
}
