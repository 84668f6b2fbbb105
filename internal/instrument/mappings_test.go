package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVLQ(t *testing.T) {
	tests := []struct {
		in   string
		want int
		n    int
	}{
		{"A", 0, 1},
		{"C", 1, 1},
		{"D", -1, 1},
		{"E", 2, 1},
		{"gB", 16, 2},
		{"hB", -16, 2},
	}
	for _, tt := range tests {
		v, n, err := decodeVLQ(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v, tt.in)
		assert.Equal(t, tt.n, n, tt.in)
	}

	_, _, err := decodeVLQ("g")
	assert.ErrorIs(t, err, errBadVLQ)
	_, _, err = decodeVLQ("!")
	assert.ErrorIs(t, err, errBadVLQ)
}

func TestDecodeMappingsKeepsOriginOrigin(t *testing.T) {
	lines, err := decodeMappings("AAAA")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Len(t, lines[0], 1)
	assert.Equal(t, segment{genCol: 0, origLine: 0, origCol: 0, hasSource: true}, lines[0][0])
}

func TestMappingLookupSameLineOnly(t *testing.T) {
	// gen 5 -> 2:0, gen 10 -> 1:0, gen 12 -> 3:0 (1-based)
	idx, err := parseMappingIndex([]byte(`{"version":3,"sources":["a.ts"],"names":[],"mappings":";;;;AACA;;;;;AADA;;AAEA"}`))
	require.NoError(t, err)

	line, col, ok := idx.lookup(4, 0)
	require.True(t, ok)
	assert.Equal(t, [2]int{1, 0}, [2]int{line, col})

	line, _, ok = idx.lookup(9, 3)
	require.True(t, ok)
	assert.Equal(t, 0, line)

	_, _, ok = idx.lookup(6, 0)
	assert.False(t, ok, "line without segments must not borrow an earlier line")

	_, _, ok = idx.lookup(40, 0)
	assert.False(t, ok)
}

func TestMappingLookupColumns(t *testing.T) {
	// one line: col 4 -> 0:0, col 10 -> 0:6, col 20 unmapped segment
	idx, err := parseMappingIndex([]byte(`{"version":3,"sources":["a.ts"],"names":[],"mappings":"IAAA,MAAM,U"}`))
	require.NoError(t, err)

	_, _, ok := idx.lookup(0, 2)
	assert.False(t, ok, "before the first segment")

	line, col, ok := idx.lookup(0, 7)
	require.True(t, ok)
	assert.Equal(t, [2]int{0, 0}, [2]int{line, col})

	line, col, ok = idx.lookup(0, 12)
	require.True(t, ok)
	assert.Equal(t, [2]int{0, 6}, [2]int{line, col})

	_, _, ok = idx.lookup(0, 25)
	assert.False(t, ok, "segment without source")
}

func TestMappingLookupSections(t *testing.T) {
	idx, err := parseMappingIndex([]byte(`{"version":3,"sections":[
		{"offset":{"line":0,"column":0},"map":{"version":3,"sources":["a.ts"],"names":[],"mappings":"AAAA"}},
		{"offset":{"line":3,"column":0},"map":{"version":3,"sources":["b.ts"],"names":[],"mappings":"AAEA"}}
	]}`))
	require.NoError(t, err)

	line, _, ok := idx.lookup(0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, line)

	line, _, ok = idx.lookup(3, 0)
	require.True(t, ok)
	assert.Equal(t, 2, line)

	_, _, ok = idx.lookup(1, 0)
	assert.False(t, ok)
}

func TestDecodeMappingsRejectsGarbage(t *testing.T) {
	_, err := decodeMappings("AA")
	assert.ErrorIs(t, err, errBadVLQ)
	_, err = decodeMappings("A*AA")
	assert.ErrorIs(t, err, errBadVLQ)
}
