package instrument

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/DeusData/fntrace/internal/descriptor"
)

// sourceMappingURLRe matches a trailing sourceMappingURL directive in either
// comment form. Group 1 holds line-comment URLs, group 2 block-comment URLs.
var sourceMappingURLRe = regexp.MustCompile(
	`(?m)(?:\/\/[@#][\s]*sourceMappingURL=([^\s'"]+)[\s]*$)|(?:\/\*[@#][\s]*sourceMappingURL=([^\s*'"]+)[\s]*(?:\*\/)[\s]*$)`)

// findSourceMappingURL returns the last directive in source, or "". Earlier
// matches may sit inside string literals or comments and are ignored.
func findSourceMappingURL(source []byte) string {
	matches := sourceMappingURLRe.FindAllSubmatch(source, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1]
	if len(last[1]) > 0 {
		return string(last[1])
	}
	return string(last[2])
}

// sourceMapResolver maps generated positions back to original ones.
type sourceMapResolver struct {
	index *mappingIndex
}

// ReadSourceMap returns the raw source map referenced by the last directive in
// source, or nil when there is none. readFile defaults to os.ReadFile.
func ReadSourceMap(path string, source []byte, readFile func(string) ([]byte, error)) ([]byte, error) {
	ref := findSourceMappingURL(source)
	if ref == "" {
		return nil, nil
	}
	if readFile == nil {
		readFile = os.ReadFile
	}
	data, _, err := readSourceMap(path, ref, readFile)
	return data, err
}

func readSourceMap(path, ref string, readFile func(string) ([]byte, error)) ([]byte, string, error) {
	var (
		data     []byte
		location string
		err      error
	)
	if strings.HasPrefix(ref, "data:") {
		location = "inline"
		data, err = decodeDataURL(ref)
	} else {
		location = resolveMapPath(path, ref)
		data, err = readFile(location)
	}
	if err != nil {
		return nil, location, fmt.Errorf("%w: read %s: %v", ErrSourceMap, location, err)
	}
	return data, location, nil
}

// loadSourceMap resolves ref against the directory of path and parses the map.
// Every failure wraps ErrSourceMap.
func loadSourceMap(path, ref string, readFile func(string) ([]byte, error)) (*sourceMapResolver, error) {
	data, location, err := readSourceMap(path, ref, readFile)
	if err != nil {
		return nil, err
	}
	// go-sourcemap validates the document; lookups use the exact segment index.
	if _, err := sourcemap.Parse(location, data); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceMap, location, err)
	}
	index, err := parseMappingIndex(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceMap, location, err)
	}
	return &sourceMapResolver{index: index}, nil
}

func resolveMapPath(path, ref string) string {
	ref = strings.TrimPrefix(ref, "file://")
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(path), filepath.FromSlash(ref))
}

// decodeDataURL decodes data:[<mediatype>][;base64],<payload>.
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// originalPositionFor maps a generated position to the original source using
// the last segment at or before the column on the same generated line. ok is
// false when that line has no such segment or the segment has no source.
func (r *sourceMapResolver) originalPositionFor(pos descriptor.SourcePosition) (descriptor.SourcePosition, bool) {
	line, col, ok := r.index.lookup(pos.Line-1, pos.Column)
	if !ok {
		return descriptor.SourcePosition{}, false
	}
	return descriptor.SourcePosition{Line: line + 1, Column: col}, true
}
