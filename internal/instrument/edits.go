package instrument

import (
	"fmt"
	"sort"
	"strings"
)

// Edit replaces source[Start:End] with Text. Zero-width edits are insertions.
type Edit struct {
	Start int
	End   int
	Text  string
}

// applyEdits applies edits against the original buffer. Edits are ordered by
// descending start, ties later-collected first, which is the order in which
// splicing one at a time would keep every remaining range valid; the splices
// are then written out in a single pass. Edits sharing a start therefore
// appear in collection order. Overlapping or out-of-range edits are rejected.
func applyEdits(source []byte, edits []Edit) ([]byte, error) {
	order := make([]int, len(edits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := edits[order[a]], edits[order[b]]
		if ea.Start != eb.Start {
			return ea.Start > eb.Start
		}
		return order[a] > order[b]
	})

	limit := len(source)
	for _, i := range order {
		e := edits[i]
		if e.Start < 0 || e.End < e.Start || e.End > limit {
			return nil, fmt.Errorf("edit %d [%d,%d) overlaps or is out of range", i, e.Start, e.End)
		}
		limit = e.Start
	}

	var b strings.Builder
	b.Grow(len(source) + editsLen(edits))
	cursor := 0
	for k := len(order) - 1; k >= 0; k-- {
		e := edits[order[k]]
		b.Write(source[cursor:e.Start])
		b.WriteString(e.Text)
		cursor = e.End
	}
	b.Write(source[cursor:])
	return []byte(b.String()), nil
}

func editsLen(edits []Edit) int {
	n := 0
	for _, e := range edits {
		n += len(e.Text)
	}
	return n
}
