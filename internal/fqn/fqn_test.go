package fqn

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name, rel string
		line, col int
		want      string
	}{
		{"handler", "src/server.js", 12, 4, "handler@src/server.js::12:4"},
		{"[Anonymous]", "./lib/util.js", 3, 17, "[Anonymous]@lib/util.js::3:17"},
		{"obj.prop", "a/../b/x.ts", 1, 0, "obj.prop@b/x.ts::1:0"},
	}
	for _, tt := range tests {
		if got := Compute(tt.name, tt.rel, tt.line, tt.col); got != tt.want {
			t.Errorf("Compute(%q, %q, %d, %d) = %q, want %q", tt.name, tt.rel, tt.line, tt.col, got, tt.want)
		}
	}
}

func TestRelPath(t *testing.T) {
	if got := RelPath("/proj", "/proj/src/a.js"); got != "src/a.js" {
		t.Errorf("RelPath inside root = %q", got)
	}
	if got := RelPath("/proj", "/other/a.js"); got != "/other/a.js" {
		t.Errorf("RelPath outside root = %q", got)
	}
}

func TestParse(t *testing.T) {
	site, err := Parse("obj.k@node_modules/@scope/pkg/a.js::7:2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if site.Name != "obj.k" || site.File != "node_modules/@scope/pkg/a.js" || site.Line != 7 || site.Column != 2 {
		t.Errorf("unexpected site: %+v", site)
	}

	for _, bad := range []string{"nofile::1:2", "f@a.js", "f@a.js::x:1", "f@a.js::1"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestComputeParseAgree(t *testing.T) {
	id := Compute("run", "pkg/main.mjs", 40, 9)
	site, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if Compute(site.Name, site.File, site.Line, site.Column) != id {
		t.Errorf("identity changed after Parse: %+v", site)
	}
}
