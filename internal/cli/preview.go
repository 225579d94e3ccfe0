package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karaforge/karaforge/internal/pipeline"
	"github.com/karaforge/karaforge/internal/preview"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	MIDI          string
	BPM           float64
	Resolution    int
	RestThreshold float64
	Rounding      string
	Overlaps      string
	ForceDialogue bool
	Title         string
	Artist        string
}

// previewResult is the preview command's JSON payload.
type previewResult struct {
	MIDI  string  `json:"midi"`
	BPM   float64 `json:"bpm"`
	Lines int     `json:"lines"`
	Notes int     `json:"notes"`
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <file.ass>",
		Short: "Render a conversion as a MIDI file for timing audition",
		Long: `Convert a subtitle file and render the chart as a Standard MIDI File:
one track with the tempo, a note per chart note and the syllable text as
lyric events. Load it in a DAW or player next to the song audio to hear
whether the quantized timing sits on the beat.

Examples:
  karaforge preview song.ass
  karaforge preview song.ass --midi timing.mid --bpm 152`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MIDI, "midi", "", "output MIDI path (default: input with .mid extension)")
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 0, "explicit grid BPM (0 estimates one)")
	cmd.Flags().IntVar(&opts.Resolution, "resolution", 0, "beat grid subdivisions per musical beat (default 4)")
	cmd.Flags().Float64Var(&opts.RestThreshold, "rest-threshold", 0, "largest silence in beats absorbed into the previous note (default 1)")
	cmd.Flags().StringVar(&opts.Rounding, "rounding", "", "quantization mode: nearest or onset-preserving")
	cmd.Flags().StringVar(&opts.Overlaps, "overlaps", "", "overlapping line policy: keep-first, keep-longest or ignore")
	cmd.Flags().BoolVar(&opts.ForceDialogue, "force-dialogue", false, "time from Dialogue events even when Comment events exist")
	cmd.Flags().StringVar(&opts.Title, "title", "", "song title")
	cmd.Flags().StringVar(&opts.Artist, "artist", "", "song artist")

	return cmd
}

func runPreview(opts *PreviewOptions, input string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	job := convertJob{
		Input:         input,
		BPM:           opts.BPM,
		Resolution:    opts.Resolution,
		RestThreshold: opts.RestThreshold,
		Rounding:      opts.Rounding,
		Overlaps:      opts.Overlaps,
		ForceDialogue: opts.ForceDialogue,
		Title:         opts.Title,
		Artist:        opts.Artist,
	}
	popts, err := job.pipelineOptions()
	if err != nil {
		return outputCommandError(formatter, err)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return outputCommandError(formatter, fmt.Errorf("reading subtitle file: %w", err))
	}

	src := pipeline.Source{Subtitle: data, Title: opts.Title, Artist: opts.Artist}
	chart, report, err := pipeline.Convert(src, popts)
	if err != nil {
		return outputConvertError(formatter, err)
	}

	midiPath := opts.MIDI
	if midiPath == "" {
		midiPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".mid"
	}
	if err := preview.WriteFile(chart, midiPath); err != nil {
		return outputCommandError(formatter, fmt.Errorf("writing MIDI: %w", err))
	}

	result := previewResult{
		MIDI:  midiPath,
		BPM:   report.HeaderBPM,
		Lines: report.Lines,
		Notes: report.Notes,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ wrote %s (%d notes at bpm %g)\n", result.MIDI, result.Notes, result.BPM)
	printWarnings(formatter.Writer, report.Warnings)
	return nil
}
