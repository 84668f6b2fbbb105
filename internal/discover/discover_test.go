package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/DeusData/fntrace/internal/lang"
)

func writeFiles(t *testing.T, dir string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("function f() {}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"index.js", "src/app.ts", "src/view.tsx", "lib/util.mjs",
		"README.md", "types/api.d.ts", "vendor.min.js",
		"node_modules/pkg/index.js", ".git/hooks/x.js")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"index.js", "lib/util.mjs", "src/app.ts", "src/view.tsx"}
	if got := relPaths(files); !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for _, f := range files {
		if f.Path == "" || !filepath.IsAbs(f.Path) {
			t.Errorf("expected absolute Path, got %q", f.Path)
		}
		if f.RelPath == "src/view.tsx" && f.Language != lang.TSX {
			t.Errorf("expected tsx, got %s", f.Language)
		}
	}
}

func TestDiscoverIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "src/a.js", "src/a.test.js", "src/deep/b.js", "scripts/c.js")

	files, err := Discover(context.Background(), dir, &Options{
		Include: []string{"src/**"},
		Exclude: []string{"*.test.js"},
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"src/a.js", "src/deep/b.js"}
	if got := relPaths(files); !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDiscoverIgnoreFileAndSkipDirs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.js", "generated/b.js", "out/c.js")
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("# comment\ngenerated\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := Discover(context.Background(), dir, &Options{SkipDirs: []string{filepath.Join(dir, "out")}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := relPaths(files); !equal(got, []string{"a.js"}) {
		t.Fatalf("got %v", got)
	}
}

func TestDiscoverBadPattern(t *testing.T) {
	if _, err := Discover(context.Background(), t.TempDir(), &Options{Include: []string{"[unclosed"}}); err == nil {
		t.Fatal("expected pattern error")
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "main.js")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // pre-cancel

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
