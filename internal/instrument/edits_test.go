package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdits(t *testing.T) {
	src := []byte("abcdef")
	out, err := applyEdits(src, []Edit{
		{Start: 1, End: 1, Text: "<"},
		{Start: 3, End: 5, Text: "XY"},
		{Start: 1, End: 1, Text: ">"},
		{Start: 6, End: 6, Text: "!"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a<>bcXYf!", string(out))
}

func TestApplyEditsRejectsOverlap(t *testing.T) {
	_, err := applyEdits([]byte("abcdef"), []Edit{
		{Start: 1, End: 4, Text: "x"},
		{Start: 3, End: 5, Text: "y"},
	})
	assert.Error(t, err)

	_, err = applyEdits([]byte("abc"), []Edit{{Start: 2, End: 9, Text: "x"}})
	assert.Error(t, err)
}

func TestApplyEditsNone(t *testing.T) {
	out, err := applyEdits([]byte("same"), nil)
	require.NoError(t, err)
	assert.Equal(t, "same", string(out))
}
