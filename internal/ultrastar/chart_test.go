package ultrastar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoteEndBeat(t *testing.T) {
	n := Note{StartBeat: 12, Length: 3}
	assert.Equal(t, int64(15), n.EndBeat())
}

func TestChartCounts(t *testing.T) {
	c := &Chart{
		Lines: []Line{
			{
				Notes: []Note{
					{StartBeat: 0, Length: 2, Kind: KindRegular},
					{StartBeat: 2, Length: 1, Kind: KindRest},
					{StartBeat: 3, Length: 2, Kind: KindGolden},
				},
				BreakBeat: 5,
			},
			{
				Notes: []Note{
					{StartBeat: 8, Length: 4, Kind: KindRegular},
				},
				BreakBeat: 12,
			},
		},
	}

	assert.Equal(t, 3, c.NoteCount(), "rests do not count as sung notes")
	assert.Equal(t, 1, c.RestCount())
	assert.Equal(t, int64(12), c.LastBeat())
}

func TestChartCountsEmpty(t *testing.T) {
	c := &Chart{}
	assert.Equal(t, 0, c.NoteCount())
	assert.Equal(t, 0, c.RestCount())
	assert.Equal(t, int64(0), c.LastBeat())
}

func TestNoteKindSigils(t *testing.T) {
	tests := []struct {
		kind  NoteKind
		sigil string
		ok    bool
	}{
		{KindRegular, ":", true},
		{KindGolden, "*", true},
		{KindFreestyle, "F", true},
		{KindRest, "R", true},
		{NoteKind("bogus"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, ok := tt.kind.sigil()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.sigil, got)
		})
	}
}

func TestValidNoteKinds(t *testing.T) {
	for kind := range ValidNoteKinds {
		_, ok := kind.sigil()
		assert.True(t, ok, "every valid kind needs a sigil: %s", kind)
	}
	assert.False(t, ValidNoteKinds[NoteKind("rap")])
}
