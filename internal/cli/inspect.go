package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karaforge/karaforge/internal/pipeline"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	BPM           float64
	Resolution    int
	RestThreshold float64
	Rounding      string
	Overlaps      string
	ForceDialogue bool
	Title         string
	Artist        string
	TVSized       bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <file.ass>",
		Short: "Parse a subtitle file and report the grid without writing",
		Long: `Run the conversion pipeline on a subtitle file and report what it
would produce: the resolved beat grid, note counts, repairs and every
warning. Nothing is written to disk, so this is the quick way to check
whether a BPM estimate looks sane before converting.

Examples:
  karaforge inspect song.ass
  karaforge inspect song.ass --bpm 152 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.BPM, "bpm", 0, "explicit grid BPM (0 estimates one)")
	cmd.Flags().IntVar(&opts.Resolution, "resolution", 0, "beat grid subdivisions per musical beat (default 4)")
	cmd.Flags().Float64Var(&opts.RestThreshold, "rest-threshold", 0, "largest silence in beats absorbed into the previous note (default 1)")
	cmd.Flags().StringVar(&opts.Rounding, "rounding", "", "quantization mode: nearest or onset-preserving")
	cmd.Flags().StringVar(&opts.Overlaps, "overlaps", "", "overlapping line policy: keep-first, keep-longest or ignore")
	cmd.Flags().BoolVar(&opts.ForceDialogue, "force-dialogue", false, "time from Dialogue events even when Comment events exist")
	cmd.Flags().StringVar(&opts.Title, "title", "", "song title")
	cmd.Flags().StringVar(&opts.Artist, "artist", "", "song artist")
	cmd.Flags().BoolVar(&opts.TVSized, "tv-size", false, "mark the title as a TV-size cut")

	return cmd
}

func runInspect(opts *InspectOptions, input string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	applyInspectConfig(cmd, cfg, opts)

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
		TVSized:       opts.TVSized,
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
	_, report, err := pipeline.Convert(src, popts)
	if err != nil {
		return outputConvertError(formatter, err)
	}

	return outputInspectReport(formatter, report)
}

func applyInspectConfig(cmd *cobra.Command, cfg *Config, opts *InspectOptions) {
	flags := cmd.Flags()
	if !flags.Changed("resolution") && cfg.Resolution > 0 {
		opts.Resolution = cfg.Resolution
	}
	if !flags.Changed("rest-threshold") && cfg.RestThreshold > 0 {
		opts.RestThreshold = cfg.RestThreshold
	}
	if !flags.Changed("rounding") && cfg.Rounding != "" {
		opts.Rounding = cfg.Rounding
	}
	if !flags.Changed("overlaps") && cfg.Overlaps != "" {
		opts.Overlaps = cfg.Overlaps
	}
}

// outputInspectReport prints the pipeline report.
func outputInspectReport(formatter *OutputFormatter, report *pipeline.Report) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s - %s\n", report.Artist, report.Title)

	track := "comment track"
	if report.UsedDialogue {
		track = "dialogue track"
	}
	fmt.Fprintf(w, "  events: %d (%s)\n", report.Events, track)

	fmt.Fprintf(w, "  grid: bpm %g (base %g, resolution %d), gap %d ms\n",
		report.HeaderBPM, report.Grid.BPM, report.Grid.Resolution, report.Grid.GapMS)
	if report.Estimate.Estimated {
		fmt.Fprintf(w, "  estimate: median syllable %g ms, raw bpm %g\n",
			report.Estimate.MedianMS, report.Estimate.RawBPM)
	}

	fmt.Fprintf(w, "  chart: %d lines, %d notes, %d rests\n",
		report.Lines, report.Notes, report.Rests)
	fmt.Fprintf(w, "  repairs: %d (%s)\n", report.Repairs.Total(), report.Policy)
	printWarnings(w, report.Warnings)
	return nil
}
