// Package adjust repairs the defects quantization leaves behind:
// overlapping notes and zero or negative lengths. The repair policy is a
// strategy so alternatives can ship without touching the synthesizer or
// the encoder.
package adjust

import "github.com/karaforge/karaforge/internal/ultrastar"

// Policy resolves note conflicts deterministically. Implementations never
// fail and never reorder notes; their output satisfies the chart
// invariants (non-decreasing starts, no overlap, sung lengths >= 1) and is
// a fixed point of reapplication.
type Policy interface {
	Name() string
	Apply(lines []ultrastar.Line) ([]ultrastar.Line, Stats)
}

// Stats counts the repairs a policy made.
type Stats struct {
	Shrunk     int `json:"shrunk"`
	Pushed     int `json:"pushed"`
	Lengthened int `json:"lengthened"`
}

func (s Stats) Total() int {
	return s.Shrunk + s.Pushed + s.Lengthened
}

// Default returns the policy conversions use unless told otherwise.
func Default() Policy {
	return ShrinkEarlier{}
}

// ShrinkEarlier prefers shrinking the earlier of two conflicting notes,
// preserving onsets:
//
//   - Overlap: the earlier note shrinks to exactly close the gap, but
//     never below one beat for sung notes. When that is not enough the
//     earlier note keeps length one and the later note's start is pushed
//     forward by the minimum amount instead.
//   - Degenerate length: a sung note at length <= 0 is forced to one beat
//     and every subsequent start shifts by the same delta, preserving
//     ordering at the cost of cumulative drift.
//
// Rests are exempt from the one-beat floor, they may shrink to zero-length
// markers.
type ShrinkEarlier struct{}

func (ShrinkEarlier) Name() string { return "shrink-earlier" }

func (ShrinkEarlier) Apply(lines []ultrastar.Line) ([]ultrastar.Line, Stats) {
	out := copyLines(lines)

	var (
		stats Stats
		prev  *ultrastar.Note
		shift int64
	)
	for li := range out {
		for ni := range out[li].Notes {
			n := &out[li].Notes[ni]
			n.StartBeat += shift

			if n.Kind != ultrastar.KindRest && n.Length <= 0 {
				shift += 1 - n.Length
				n.Length = 1
				stats.Lengthened++
			}
			if n.Kind == ultrastar.KindRest && n.Length < 0 {
				n.Length = 0
			}

			if prev != nil && n.StartBeat < prev.EndBeat() {
				needed := n.StartBeat - prev.StartBeat
				floor := int64(1)
				if prev.Kind == ultrastar.KindRest {
					floor = 0
				}
				if needed >= floor {
					prev.Length = needed
					stats.Shrunk++
				} else {
					prev.Length = floor
					n.StartBeat = prev.EndBeat()
					stats.Pushed++
				}
			}

			prev = n
		}
	}

	// Break markers track their line's content.
	for li := range out {
		if notes := out[li].Notes; len(notes) > 0 {
			out[li].BreakBeat = notes[len(notes)-1].EndBeat()
		}
	}

	return out, stats
}

func copyLines(lines []ultrastar.Line) []ultrastar.Line {
	out := make([]ultrastar.Line, len(lines))
	for i, line := range lines {
		notes := make([]ultrastar.Note, len(line.Notes))
		copy(notes, line.Notes)
		out[i] = ultrastar.Line{Notes: notes, BreakBeat: line.BreakBeat}
	}
	return out
}
