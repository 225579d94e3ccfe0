package subtitle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaforge/karaforge/internal/conv"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0:00:00.00", 0, false},
		{"0:01:23.45", 83450, false},
		{"1:02:03.04", 3723040, false},
		{"0:00:01.5", 1500, false},
		{"10:00:00.00", 36000000, false},
		{"0:00:60.00", 0, true},
		{"0:61:00.00", 0, true},
		{"00:00.00", 0, true},
		{"abc", 0, true},
		{"0:00:-1.00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanEventsFormatMapping(t *testing.T) {
	input := `[Events]
Format: Start, End, Text
Comment: 0:00:01.00,0:00:02.00,{\k100}la, la, la
`
	events, err := scanEvents(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.True(t, events[0].comment)
	assert.Equal(t, int64(1000), events[0].startMS)
	assert.Equal(t, int64(2000), events[0].endMS)
	assert.Equal(t, `{\k100}la, la, la`, events[0].text, "commas inside the text field must survive")
}

func TestScanEventsDefaultFormat(t *testing.T) {
	input := `[Events]
Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,{\k100}la
`
	events, err := scanEvents(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.False(t, events[0].comment)
	assert.Equal(t, `{\k100}la`, events[0].text)
}

func TestScanEventsSkipsOtherSections(t *testing.T) {
	input := `[Script Info]
Title: test
; a comment line

[V4+ Styles]
Format: Name, Fontname
Style: Default,Arial

[Events]
Format: Start, End, Text
Comment: 0:00:01.00,0:00:02.00,{\k100}la
`
	events, err := scanEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 11, events[0].lineNo)
}

func TestScanEventsNoEventsSection(t *testing.T) {
	_, err := scanEvents(strings.NewReader("[Script Info]\nTitle: x\n"))
	require.Error(t, err)
	assert.True(t, conv.IsUnresolvableLine(err))
}

func TestScanEventsBadTimestamp(t *testing.T) {
	input := `[Events]
Format: Start, End, Text
Comment: nonsense,0:00:02.00,{\k100}la
`
	_, err := scanEvents(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, conv.IsUnresolvableLine(err))
	assert.Contains(t, err.Error(), "line=3")
}

func TestScanEventsMissingTimestamps(t *testing.T) {
	input := `[Events]
Format: Layer, Text
Comment: 0,{\k100}la
`
	_, err := scanEvents(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, conv.IsUnresolvableLine(err))
}
