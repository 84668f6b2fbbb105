package fqn

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Compute returns the identity of a function site.
// Format: <name>@<rel_path>::<line>:<column>
// Examples:
//   - handler@src/server.js::12:4
//   - [Anonymous]@lib/util.js::3:17
func Compute(name, relPath string, line, column int) string {
	return fmt.Sprintf("%s@%s::%d:%d", name, NormalizePath(relPath), line, column)
}

// NormalizePath converts a project-relative path to its canonical slash form.
func NormalizePath(relPath string) string {
	p := filepath.ToSlash(filepath.Clean(relPath))
	return strings.TrimPrefix(p, "./")
}

// RelPath returns path relative to root in canonical form. Paths outside root
// keep their cleaned absolute form.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return NormalizePath(path)
	}
	return NormalizePath(rel)
}

// Site is an identity split back into its parts.
type Site struct {
	Name   string
	File   string
	Line   int
	Column int
}

// Parse splits an identity produced by Compute. The name ends at the first '@',
// so scoped package paths such as node_modules/@scope/pkg survive intact.
func Parse(id string) (Site, error) {
	sep := strings.LastIndex(id, "::")
	if sep < 0 {
		return Site{}, fmt.Errorf("invalid function id %q: missing position", id)
	}
	head, pos := id[:sep], id[sep+2:]

	at := strings.Index(head, "@")
	if at < 0 {
		return Site{}, fmt.Errorf("invalid function id %q: missing file", id)
	}

	lineStr, colStr, ok := strings.Cut(pos, ":")
	if !ok {
		return Site{}, fmt.Errorf("invalid function id %q: position %q", id, pos)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return Site{}, fmt.Errorf("invalid function id %q: line: %w", id, err)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return Site{}, fmt.Errorf("invalid function id %q: column: %w", id, err)
	}
	return Site{Name: head[:at], File: head[at+1:], Line: line, Column: col}, nil
}
