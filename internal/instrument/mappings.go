package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// segment is one decoded mapping. Lines and columns are 0-based.
type segment struct {
	genCol    int
	origLine  int
	origCol   int
	hasSource bool
}

// mappingIndex holds every segment of a source map per generated line,
// including segments that point at the original 0:0. Index maps keep one
// nested index per section.
type mappingIndex struct {
	lines    [][]segment
	sections []mappingSection
}

type mappingSection struct {
	line, column int
	index        *mappingIndex
}

type rawSourceMap struct {
	Mappings string `json:"mappings"`
	Sections []struct {
		Offset struct {
			Line   int `json:"line"`
			Column int `json:"column"`
		} `json:"offset"`
		Map json.RawMessage `json:"map"`
	} `json:"sections"`
}

func parseMappingIndex(data []byte) (*mappingIndex, error) {
	var raw rawSourceMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Sections) == 0 {
		lines, err := decodeMappings(raw.Mappings)
		if err != nil {
			return nil, err
		}
		return &mappingIndex{lines: lines}, nil
	}

	idx := &mappingIndex{}
	for i, sec := range raw.Sections {
		if len(sec.Map) == 0 {
			return nil, fmt.Errorf("section %d has no map", i)
		}
		nested, err := parseMappingIndex(sec.Map)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		idx.sections = append(idx.sections, mappingSection{
			line:   sec.Offset.Line,
			column: sec.Offset.Column,
			index:  nested,
		})
	}
	return idx, nil
}

// lookup returns the original 0-based line and column for a generated 0-based
// position.
func (m *mappingIndex) lookup(line, col int) (int, int, bool) {
	if line < 0 || col < 0 {
		return 0, 0, false
	}
	if len(m.sections) > 0 {
		return m.lookupSection(line, col)
	}
	if line >= len(m.lines) {
		return 0, 0, false
	}
	segs := m.lines[line]
	i := sort.Search(len(segs), func(i int) bool { return segs[i].genCol > col })
	if i == 0 {
		return 0, 0, false
	}
	s := segs[i-1]
	if !s.hasSource {
		return 0, 0, false
	}
	return s.origLine, s.origCol, true
}

func (m *mappingIndex) lookupSection(line, col int) (int, int, bool) {
	i := sort.Search(len(m.sections), func(i int) bool {
		s := m.sections[i]
		return s.line > line || (s.line == line && s.column > col)
	})
	if i == 0 {
		return 0, 0, false
	}
	s := m.sections[i-1]
	if line == s.line {
		col -= s.column
	}
	return s.index.lookup(line-s.line, col)
}

var errBadVLQ = errors.New("invalid VLQ mapping")

// decodeMappings decodes the Base64 VLQ "mappings" field into segments per
// generated line, sorted by generated column.
func decodeMappings(mappings string) ([][]segment, error) {
	var (
		lines    [][]segment
		current  []segment
		origLine int
		origCol  int
		source   int
		name     int
		genCol   int
	)
	fields := make([]int, 0, 5)

	flushLine := func() {
		sort.SliceStable(current, func(i, j int) bool { return current[i].genCol < current[j].genCol })
		lines = append(lines, current)
		current = nil
		genCol = 0
	}

	pos := 0
	for pos <= len(mappings) {
		if pos == len(mappings) {
			flushLine()
			break
		}
		switch mappings[pos] {
		case ';':
			flushLine()
			pos++
			continue
		case ',':
			pos++
			continue
		}

		fields = fields[:0]
		for pos < len(mappings) && mappings[pos] != ',' && mappings[pos] != ';' {
			v, n, err := decodeVLQ(mappings[pos:])
			if err != nil {
				return nil, err
			}
			fields = append(fields, v)
			pos += n
		}

		switch len(fields) {
		case 1:
			genCol += fields[0]
			current = append(current, segment{genCol: genCol})
		case 4, 5:
			genCol += fields[0]
			source += fields[1]
			origLine += fields[2]
			origCol += fields[3]
			if len(fields) == 5 {
				name += fields[4]
			}
			if genCol < 0 || source < 0 || origLine < 0 || origCol < 0 {
				return nil, errBadVLQ
			}
			current = append(current, segment{genCol: genCol, origLine: origLine, origCol: origCol, hasSource: true})
		default:
			return nil, fmt.Errorf("%w: segment with %d fields", errBadVLQ, len(fields))
		}
	}
	return lines, nil
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Values = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		t[base64Chars[i]] = int8(i)
	}
	return t
}()

// decodeVLQ reads one Base64 VLQ value and returns it with the bytes consumed.
func decodeVLQ(s string) (int, int, error) {
	var (
		result int
		shift  uint
	)
	for i := 0; i < len(s); i++ {
		digit := base64Values[s[i]]
		if digit < 0 {
			return 0, 0, fmt.Errorf("%w: unexpected %q", errBadVLQ, s[i])
		}
		result += int(digit&31) << shift
		if digit&32 == 0 {
			value := result >> 1
			if result&1 != 0 {
				value = -value
			}
			return value, i + 1, nil
		}
		shift += 5
		if shift > 30 {
			return 0, 0, fmt.Errorf("%w: value too large", errBadVLQ)
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated value", errBadVLQ)
}
