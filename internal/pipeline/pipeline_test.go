package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaforge/karaforge/internal/beatgrid"
	"github.com/karaforge/karaforge/internal/conv"
	"github.com/karaforge/karaforge/internal/synth"
	"github.com/karaforge/karaforge/internal/ultrastar"
)

const minimalASS = `[Script Info]
ScriptType: v4.00+

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Comment: 0,0:00:01.00,0:00:02.50,Default,,0,0,0,karaoke,{\k50}da{\k50}n{\k50}ce
`

func convert(t *testing.T, ass string, opts Options) (*ultrastar.Chart, *Report) {
	t.Helper()
	chart, report, err := Convert(Source{Subtitle: []byte(ass)}, opts)
	require.NoError(t, err)
	return chart, report
}

func TestConvertDefaults(t *testing.T) {
	chart, report := convert(t, minimalASS, Options{})

	assert.Equal(t, "Unknown Title", chart.Title)
	assert.Equal(t, "Unknown Artist", chart.Artist)
	assert.Equal(t, beatgrid.DefaultResolution, report.Grid.Resolution)
	assert.Equal(t, "shrink-earlier", report.Policy)

	require.NotEmpty(t, chart.Lines)
	for _, n := range chart.Lines[0].Notes {
		assert.Equal(t, synth.DefaultPitch, n.Pitch)
	}
}

func TestConvertEstimatesBPM(t *testing.T) {
	chart, report := convert(t, minimalASS, Options{})

	// Three 500ms syllables: the median maps straight onto 120 BPM, times
	// four for the quarter-beat grid.
	assert.Equal(t, float64(480), chart.BPM)
	assert.Equal(t, int64(1000), chart.GapMS)
	assert.True(t, report.Estimate.Estimated)
	assert.Equal(t, float64(500), report.Estimate.MedianMS)

	var codes []conv.WarningCode
	for _, w := range report.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, conv.WarnBPMHeuristic)
}

func TestConvertExplicitBPMSkipsEstimate(t *testing.T) {
	bpm := 100.0
	chart, report := convert(t, minimalASS, Options{ExplicitBPM: &bpm, Resolution: 1})

	assert.Equal(t, float64(100), chart.BPM)
	assert.False(t, report.Estimate.Estimated)
	for _, w := range report.Warnings {
		assert.NotEqual(t, conv.WarnBPMHeuristic, w.Code)
	}
}

func TestConvertMetadataOverrides(t *testing.T) {
	src := Source{
		Subtitle: []byte(minimalASS),
		Title:    "File Title",
		Artist:   "File Artist",
		Language: "Japanese",
		Creator:  "hoshi\nkaze", // newlines must not reach the header
		Comment:  "  from   kara.moe  ",
	}
	chart, _, err := Convert(src, Options{
		Title:   "Override Title",
		TVSized: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Override Title (TV)", chart.Title)
	assert.Equal(t, "File Artist", chart.Artist)
	assert.Equal(t, "Japanese", chart.Language)
	assert.Equal(t, "hoshi kaze", chart.Creator)
	assert.Equal(t, "from kara.moe", chart.Comment)
}

func TestConvertMalformedTagFails(t *testing.T) {
	const bad = `[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Comment: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,{\k2x}oops
`
	chart, report, err := Convert(Source{Subtitle: []byte(bad)}, Options{})
	require.Error(t, err)
	assert.True(t, conv.IsMalformedTag(err))
	assert.Nil(t, chart)
	assert.Nil(t, report)
}

func TestConvertDegenerateTimingFails(t *testing.T) {
	const single = `[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Comment: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,{\k100}lone
`
	_, _, err := Convert(Source{Subtitle: []byte(single)}, Options{})
	require.Error(t, err)
	assert.True(t, conv.IsDegenerateTiming(err))

	// An explicit tempo rescues the same file.
	bpm := 120.0
	_, _, err = Convert(Source{Subtitle: []byte(single)}, Options{ExplicitBPM: &bpm})
	require.NoError(t, err)
}

func TestConvertForceDialogue(t *testing.T) {
	const mixed = `[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Comment: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,{\k50}ko{\k50}e
Dialogue: 0,0:00:05.00,0:00:06.00,Default,,0,0,0,,{\k50}ha{\k50}na
`
	bpm := 120.0

	_, report := convert(t, mixed, Options{ExplicitBPM: &bpm})
	assert.False(t, report.UsedDialogue)

	_, report = convert(t, mixed, Options{ExplicitBPM: &bpm, ForceDialogue: true})
	assert.True(t, report.UsedDialogue)
}

func TestConvertReportMatchesChart(t *testing.T) {
	bpm := 120.0
	chart, report := convert(t, minimalASS, Options{ExplicitBPM: &bpm})

	assert.Equal(t, len(chart.Lines), report.Lines)
	assert.Equal(t, chart.NoteCount(), report.Notes)
	assert.Equal(t, chart.RestCount(), report.Rests)
	assert.Equal(t, chart.BPM, report.HeaderBPM)
	assert.Equal(t, chart.GapMS, report.Grid.GapMS)
	assert.Equal(t, 3, report.Events)
}
