package beatgrid

import (
	"math"
	"sort"

	"github.com/karaforge/karaforge/internal/conv"
	"github.com/karaforge/karaforge/internal/subtitle"
)

// DefaultCandidates are the tempos the BPM heuristic snaps to. Roughly the
// range songs are charted at; the heuristic folds its raw estimate into
// this range by octaves before snapping.
var DefaultCandidates = []float64{60, 70, 80, 90, 100, 110, 120, 130, 140, 150, 160, 180, 200}

// DefaultResolution subdivides each beat into quarters, fine enough that
// nearest-beat rounding stays within 125ms even at 120 BPM.
const DefaultResolution = 4

// Params configures grid resolution.
type Params struct {
	// ExplicitBPM overrides the heuristic entirely when non-nil.
	ExplicitBPM *float64

	// Candidates replaces DefaultCandidates when non-empty.
	Candidates []float64

	// Resolution replaces DefaultResolution when positive.
	Resolution int
}

// Estimate reports how the BPM was chosen, for the conversion report.
type Estimate struct {
	Estimated bool    `json:"estimated"`
	MedianMS  float64 `json:"median_syllable_ms,omitempty"`
	RawBPM    float64 `json:"raw_bpm,omitempty"`
}

// Resolve selects the grid for a song. An explicit BPM always wins;
// otherwise the median sung-syllable duration is taken as one musical beat
// and snapped to the nearest candidate tempo. The estimate is best effort:
// a song with rubato or mixed note values will land on a musically related
// tempo rather than the authored one.
//
// The gap is the first event's start floored to a whole grid beat, so the
// first note lands on a small non-negative beat.
func Resolve(events []subtitle.Event, p Params) (Grid, Estimate, error) {
	resolution := p.Resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	if len(events) == 0 {
		return Grid{}, Estimate{}, conv.NewDegenerateTimingError(0)
	}

	var (
		bpm float64
		est Estimate
	)
	switch {
	case p.ExplicitBPM != nil:
		bpm = *p.ExplicitBPM
	case len(events) < 2:
		return Grid{}, Estimate{}, conv.NewDegenerateTimingError(len(events))
	default:
		candidates := p.Candidates
		if len(candidates) == 0 {
			candidates = DefaultCandidates
		}
		median := medianDuration(events)
		if median <= 0 {
			return Grid{}, Estimate{}, &conv.ConversionError{
				Code:    conv.ErrCodeDegenerateTiming,
				Message: "median syllable duration is zero, cannot estimate bpm",
			}
		}
		raw := 60000 / median
		bpm = snap(fold(raw, candidates), candidates)
		est = Estimate{Estimated: true, MedianMS: median, RawBPM: raw}
	}

	if bpm <= 0 {
		return Grid{}, Estimate{}, &conv.ConversionError{
			Code:    conv.ErrCodeDegenerateTiming,
			Message: "bpm must be positive",
		}
	}

	grid := Grid{BPM: bpm, Resolution: resolution}
	grid.GapMS = gapFor(events[0].StartMS, grid)
	return grid, est, nil
}

// gapFor floors the first onset to a whole-beat boundary in integer
// milliseconds. The grid then treats that integer as authoritative, which
// keeps header round-trips exact.
func gapFor(firstMS int64, g Grid) int64 {
	beats := math.Floor(float64(firstMS) / g.MSPerBeat())
	return int64(math.Floor(beats * g.MSPerBeat()))
}

func medianDuration(events []subtitle.Event) float64 {
	durations := make([]float64, len(events))
	for i, ev := range events {
		durations[i] = float64(ev.DurationMS())
	}
	sort.Float64s(durations)

	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		return durations[mid]
	}
	return (durations[mid-1] + durations[mid]) / 2
}

// fold moves raw into the candidate range by octaves. The guard caps the
// loop for candidate lists narrower than an octave.
func fold(raw float64, candidates []float64) float64 {
	lo, hi := candidates[0], candidates[0]
	for _, c := range candidates {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}

	for i := 0; raw < lo && i < 10; i++ {
		raw *= 2
	}
	for i := 0; raw > hi && i < 10; i++ {
		raw /= 2
	}
	return raw
}

func snap(raw float64, candidates []float64) float64 {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if math.Abs(c-raw) < math.Abs(best-raw) {
			best = c
		}
	}
	return best
}
