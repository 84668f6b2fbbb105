package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDerivesID(t *testing.T) {
	d := New("handler", "./src/server.js", SourcePosition{Line: 12, Column: 4}, true, false)
	assert.Equal(t, "handler@src/server.js::12:4", d.ID)
	assert.Equal(t, "src/server.js", d.File)
	assert.Equal(t, SourcePosition{Line: 12, Column: 4}, d.Position())
	assert.True(t, d.IsAsync)
}

func TestFieldsAndBack(t *testing.T) {
	d := New("f", "a.js", SourcePosition{Line: 1, Column: 0}, false, false)
	fields := d.Fields()
	assert.Len(t, fields, 7)
	assert.Equal(t, "f", fields[FieldName])

	// goja and encoding/json hand numbers back as int64 and float64.
	fields[FieldStartLine] = int64(1)
	fields[FieldStartColumn] = float64(0)
	assert.Equal(t, d, FromFields(fields))
}
