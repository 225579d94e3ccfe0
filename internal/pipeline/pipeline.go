package pipeline

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/karaforge/karaforge/internal/adjust"
	"github.com/karaforge/karaforge/internal/beatgrid"
	"github.com/karaforge/karaforge/internal/conv"
	"github.com/karaforge/karaforge/internal/subtitle"
	"github.com/karaforge/karaforge/internal/synth"
	"github.com/karaforge/karaforge/internal/ultrastar"
)

// Source carries the raw inputs for one conversion. Only Subtitle is
// required; the metadata fields seed the chart header and may come from a
// kara.moe record, a batch manifest or CLI flags.
type Source struct {
	// Subtitle is the raw .ass file contents.
	Subtitle []byte

	Title  string
	Artist string

	// Optional header metadata, emitted only when non-empty.
	Language string
	Creator  string
	Comment  string
}

// Options tunes a conversion. The zero value is fully usable: BPM is
// estimated, silences up to one beat are absorbed, notes quantize to the
// nearest quarter-beat and overlapping lines resolve to the earliest one.
type Options struct {
	// ExplicitBPM pins the grid tempo instead of estimating one.
	ExplicitBPM *float64

	// BPMCandidates replaces beatgrid.DefaultCandidates for estimation.
	BPMCandidates []float64

	// Resolution subdivides each beat; non-positive means
	// beatgrid.DefaultResolution.
	Resolution int

	// RestThresholdBeats is the largest silence, in beats, absorbed into
	// the preceding note. Non-positive means synth.DefaultRestThreshold.
	RestThresholdBeats float64

	// Pitch is stamped on every synthesized note. Zero means
	// synth.DefaultPitch; pitching happens downstream of conversion.
	Pitch int

	// Rounding picks the quantization mode. Empty means nearest.
	Rounding beatgrid.Rounding

	// Overlaps picks the overlapping-line policy. Empty means keep-first.
	Overlaps subtitle.OverlapPolicy

	// ForceDialogue parses Dialogue events even when Comments exist.
	ForceDialogue bool

	// Policy repairs quantization conflicts. Nil means adjust.Default.
	Policy adjust.Policy

	// Title and Artist override the source metadata when non-empty.
	Title  string
	Artist string

	// TVSized marks the title as a TV-size cut.
	TVSized bool
}

func (o Options) withDefaults() Options {
	if o.Resolution <= 0 {
		o.Resolution = beatgrid.DefaultResolution
	}
	if o.RestThresholdBeats <= 0 {
		o.RestThresholdBeats = synth.DefaultRestThreshold
	}
	if o.Pitch == 0 {
		o.Pitch = synth.DefaultPitch
	}
	if o.Rounding == "" {
		o.Rounding = beatgrid.RoundNearest
	}
	if o.Overlaps == "" {
		o.Overlaps = subtitle.OverlapKeepFirst
	}
	if o.Policy == nil {
		o.Policy = adjust.Default()
	}
	return o
}

// Report summarizes a conversion for the user: what the grid looks like,
// how much the adjuster had to repair, and every warning raised along the
// way. Serializes to JSON for the CLI's --format=json mode.
type Report struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`

	Grid      beatgrid.Grid     `json:"grid"`
	HeaderBPM float64           `json:"header_bpm"`
	Estimate  beatgrid.Estimate `json:"bpm_estimate"`

	Events int `json:"events"`
	Lines  int `json:"lines"`
	Notes  int `json:"notes"`
	Rests  int `json:"rests"`

	Policy  string       `json:"adjust_policy"`
	Repairs adjust.Stats `json:"repairs"`

	UsedDialogue bool           `json:"used_dialogue"`
	Warnings     []conv.Warning `json:"warnings,omitempty"`
}

// Convert turns raw subtitle bytes into an UltraStar chart. The stages run
// in a fixed order: parse events, resolve the beat grid, synthesize notes,
// repair conflicts, assemble the chart. Errors from any stage abort the
// conversion; recoverable anomalies accumulate on the report instead.
func Convert(src Source, opts Options) (*ultrastar.Chart, *Report, error) {
	opts = opts.withDefaults()

	parsed, err := subtitle.Parse(bytes.NewReader(src.Subtitle), subtitle.ParseOptions{
		ForceDialogue: opts.ForceDialogue,
		Overlaps:      opts.Overlaps,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("parsing subtitles: %w", err)
	}

	grid, est, err := beatgrid.Resolve(parsed.Events, beatgrid.Params{
		ExplicitBPM: opts.ExplicitBPM,
		Candidates:  opts.BPMCandidates,
		Resolution:  opts.Resolution,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolving beat grid: %w", err)
	}

	slog.Debug("beat grid resolved",
		"bpm", grid.BPM,
		"header_bpm", grid.EffectiveBPM(),
		"gap_ms", grid.GapMS,
		"estimated", est.Estimated,
	)

	warnings := parsed.Warnings
	if est.Estimated {
		warnings = append(warnings, conv.Warnf(conv.WarnBPMHeuristic, 0,
			"no explicit bpm given, estimated %g from %.0fms median syllable",
			grid.BPM, est.MedianMS))
	}

	lines := synth.Synthesize(parsed.Events, grid, synth.Options{
		RestThresholdBeats: opts.RestThresholdBeats,
		Pitch:              opts.Pitch,
		Rounding:           opts.Rounding,
	})
	lines, stats := opts.Policy.Apply(lines)

	chart := &ultrastar.Chart{
		Title:    resolveTitle(src, opts),
		Artist:   pick(opts.Artist, src.Artist, "Unknown Artist"),
		BPM:      grid.EffectiveBPM(),
		GapMS:    grid.GapMS,
		Language: cleanMeta(src.Language),
		Creator:  cleanMeta(src.Creator),
		Comment:  cleanMeta(src.Comment),
		Lines:    lines,
	}

	report := &Report{
		Title:        chart.Title,
		Artist:       chart.Artist,
		Grid:         grid,
		HeaderBPM:    grid.EffectiveBPM(),
		Estimate:     est,
		Events:       len(parsed.Events),
		Lines:        len(chart.Lines),
		Notes:        chart.NoteCount(),
		Rests:        chart.RestCount(),
		Policy:       opts.Policy.Name(),
		Repairs:      stats,
		UsedDialogue: parsed.UsedDialogue,
		Warnings:     warnings,
	}

	slog.Info("conversion complete",
		"title", chart.Title,
		"artist", chart.Artist,
		"lines", report.Lines,
		"notes", report.Notes,
		"repairs", stats.Total(),
		"warnings", len(warnings),
	)

	return chart, report, nil
}

func resolveTitle(src Source, opts Options) string {
	title := pick(opts.Title, src.Title, "Unknown Title")
	if opts.TVSized {
		title += " (TV)"
	}
	return title
}

// pick returns the first of override and value that is non-empty after
// cleaning, else the fallback.
func pick(override, value, fallback string) string {
	if s := cleanMeta(override); s != "" {
		return s
	}
	if s := cleanMeta(value); s != "" {
		return s
	}
	return fallback
}

// cleanMeta normalizes header metadata: NFC, no leading or trailing
// whitespace, internal runs collapsed to single spaces. Newlines in a tag
// value would corrupt the header block.
func cleanMeta(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
