// Package synth turns timed syllable events into chart lines on a beat
// grid. Output may still contain overlapping or zero-length notes from
// quantization rounding; the adjust package repairs those.
package synth

import (
	"github.com/karaforge/karaforge/internal/beatgrid"
	"github.com/karaforge/karaforge/internal/subtitle"
	"github.com/karaforge/karaforge/internal/ultrastar"
)

// DefaultPitch is the sentinel written to every synthesized note: the
// source format carries no pitch data, an external estimation tool fills
// it in afterwards.
const DefaultPitch = 19

// DefaultRestThreshold is the largest silence, in beats, that gets
// absorbed into the preceding note instead of becoming a rest.
const DefaultRestThreshold = 1.0

// Options tunes synthesis.
type Options struct {
	// RestThresholdBeats is the gap-absorption threshold. Non-positive
	// means DefaultRestThreshold. A silence of exactly the threshold is
	// absorbed; anything longer becomes a rest note spanning the gap.
	RestThresholdBeats float64

	// Pitch is stamped on every sung note.
	Pitch int

	// Rounding picks how note boundaries quantize. Empty means nearest.
	Rounding beatgrid.Rounding
}

// Synthesize maps each event through the grid into a candidate note,
// grouped into lines at the break flags. Pure function of its inputs.
//
// Silence handling: a gap at or under the threshold extends the preceding
// note to the next onset, longer silence becomes a rest spanning the beats
// between the surrounding notes. Rests may be zero-length markers. A rest
// that follows a line break opens the next line, so break beats stay on
// sung notes.
func Synthesize(events []subtitle.Event, grid beatgrid.Grid, opts Options) []ultrastar.Line {
	threshold := opts.RestThresholdBeats
	if threshold <= 0 {
		threshold = DefaultRestThreshold
	}

	var (
		lines   []ultrastar.Line
		current []ultrastar.Note
	)
	closeLine := func() {
		if len(current) == 0 {
			return
		}
		lines = append(lines, ultrastar.Line{
			Notes:     current,
			BreakBeat: current[len(current)-1].EndBeat(),
		})
		current = nil
	}

	for i, ev := range events {
		var next *subtitle.Event
		if i+1 < len(events) {
			next = &events[i+1]
		}

		endMS := ev.EndMS
		absorbed := false
		if next != nil {
			gap := next.StartMS - ev.EndMS
			if gap > 0 && grid.BeatsIn(gap) <= threshold {
				endMS = next.StartMS
				absorbed = true
			}
		}

		start, end := quantize(grid, opts.Rounding, ev.StartMS, endMS)
		note := ultrastar.Note{
			StartBeat: start,
			Length:    end - start,
			Pitch:     opts.Pitch,
			Text:      ev.Text,
			Kind:      ultrastar.KindRegular,
		}
		current = append(current, note)

		if ev.LineBreakAfter {
			closeLine()
		}

		if next != nil && !absorbed {
			if gap := next.StartMS - ev.EndMS; gap > 0 && grid.BeatsIn(gap) > threshold {
				current = append(current, restBetween(grid, opts.Rounding, note, next.StartMS))
			}
		}
	}
	closeLine()

	return lines
}

// restBetween spans the beats from the preceding note's end to the next
// onset. Anchoring on the note's quantized end keeps beat accounting
// contiguous; the clamp covers onset-preserving rounding, where a ceiled
// end can pass the next floored start on sub-beat thresholds.
func restBetween(g beatgrid.Grid, mode beatgrid.Rounding, prev ultrastar.Note, nextStartMS int64) ultrastar.Note {
	nextStart, _ := quantize(g, mode, nextStartMS, nextStartMS)
	length := nextStart - prev.EndBeat()
	if length < 0 {
		length = 0
	}
	return ultrastar.Note{
		StartBeat: prev.EndBeat(),
		Length:    length,
		Kind:      ultrastar.KindRest,
	}
}

func quantize(g beatgrid.Grid, mode beatgrid.Rounding, startMS, endMS int64) (int64, int64) {
	if mode == beatgrid.RoundOnsetPreserving {
		return g.FloorBeat(startMS), g.CeilBeat(endMS)
	}
	return g.BeatOf(startMS), g.BeatOf(endMS)
}
