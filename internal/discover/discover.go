package discover

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/DeusData/fntrace/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".git": true, ".hg": true, ".svn": true,
	".idea": true, ".vscode": true, ".vs": true, ".tmp": true,
	".next": true, ".nuxt": true, ".svelte-kit": true, ".turbo": true,
	".parcel-cache": true, ".angular": true, ".expo": true,
	".npm": true, ".nyc_output": true, ".pnpm-store": true, ".yarn": true,
	"bower_components": true, "coverage": true, "jspm_packages": true,
	"node_modules": true, "temp": true, "tmp": true, "vendor": true,
}

// IGNORE_SUFFIXES are file suffixes to skip. Declaration files carry no
// function bodies; minified bundles are rarely worth instrumenting.
var IGNORE_SUFFIXES = []string{
	".d.ts", ".d.mts", ".d.cts", ".min.js", ".min.mjs", "~", ".tmp",
}

// IgnoreFileName is the per-project ignore file, one glob per line.
const IgnoreFileName = ".fntraceignore"

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string   // path to an ignore file (default <root>/.fntraceignore)
	Include    []string // globs over RelPath; when set, only matching files are kept
	Exclude    []string // globs over RelPath or directory name
	SkipDirs   []string // absolute directories never entered (e.g. the output dir)
}

type matcher struct {
	include []glob.Glob
	exclude []glob.Glob
	skip    map[string]bool
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func newMatcher(repoPath string, opts *Options) (*matcher, error) {
	m := &matcher{skip: map[string]bool{}}
	if opts == nil {
		opts = &Options{}
	}

	ignorePath := opts.IgnoreFile
	if ignorePath == "" {
		ignorePath = filepath.Join(repoPath, IgnoreFileName)
	}
	extra, _ := loadIgnoreFile(ignorePath)

	var err error
	if m.include, err = compile(opts.Include); err != nil {
		return nil, err
	}
	if m.exclude, err = compile(append(append([]string{}, opts.Exclude...), extra...)); err != nil {
		return nil, err
	}
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			m.skip[abs] = true
		}
	}
	return m, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func (m *matcher) shouldSkipDir(path, name, rel string) bool {
	if IGNORE_PATTERNS[name] || m.skip[path] {
		return true
	}
	return matchAny(m.exclude, name) || matchAny(m.exclude, rel)
}

func (m *matcher) keepFile(rel string) bool {
	for _, suffix := range IGNORE_SUFFIXES {
		if strings.HasSuffix(rel, suffix) {
			return false
		}
	}
	if matchAny(m.exclude, rel) || matchAny(m.exclude, filepath.Base(rel)) {
		return false
	}
	return len(m.include) == 0 || matchAny(m.include, rel)
}

// Discover walks a repository and returns all JavaScript and TypeScript files.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	// Check cancellation before starting walk
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := newMatcher(repoPath, opts)
	if err != nil {
		return nil, err
	}

	var files []FileInfo

	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != repoPath && m.shouldSkipDir(path, info.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		if !ok || !m.keepFile(rel) {
			return nil
		}
		files = append(files, FileInfo{
			Path:     path,
			RelPath:  rel,
			Language: l,
		})
		return nil
	})

	return files, err
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
