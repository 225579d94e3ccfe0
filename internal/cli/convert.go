package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karaforge/karaforge/internal/beatgrid"
	"github.com/karaforge/karaforge/internal/conv"
	"github.com/karaforge/karaforge/internal/karamoe"
	"github.com/karaforge/karaforge/internal/library"
	"github.com/karaforge/karaforge/internal/media"
	"github.com/karaforge/karaforge/internal/pipeline"
	"github.com/karaforge/karaforge/internal/pitch"
	"github.com/karaforge/karaforge/internal/songdir"
	"github.com/karaforge/karaforge/internal/subtitle"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions

	Out           string
	BPM           float64
	Resolution    int
	RestThreshold float64
	Rounding      string
	Overlaps      string
	ForceDialogue bool

	Title    string
	Artist   string
	Creator  string
	Language string
	Comment  string
	TVSized  bool

	Audio      string
	Video      string
	Cover      string
	Background string

	EmitRests    bool
	Overwrite    bool
	ExtractAudio bool
	Pitch        bool

	// Kara, Extractor and Estimator allow overriding the external
	// collaborators (for testing). Nil means the real ones.
	Kara      *karamoe.Client
	Extractor media.Extractor
	Estimator pitch.Estimator
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <file.ass | kara.moe URL>",
		Short: "Convert one song into an UltraStar song folder",
		Long: `Convert a karaoke subtitle file into an UltraStar song folder.

The input is a local .ass file or a kara.moe song page URL. URLs are
resolved through the kara.moe API: metadata, subtitles and media are
fetched, the media is used as the song video and its audio track is
extracted to mp3 (requires ffmpeg on PATH, disable with
--extract-audio=false).

The song folder is named "Artist - Title" and holds the chart .txt next
to renamed copies of the assets. Every conversion is recorded in the
library database.

Examples:
  karaforge convert song.ass --title "Senbonzakura" --artist "Kurousa" --audio song.mp3
  karaforge convert https://kara.moe/kara/senbonzakura/2c57b593-a655-4f4d-9768-5f0a26556be2
  karaforge convert song.ass --bpm 152 --tv-size --out ./songs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", ".", "directory to create the song folder in")
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 0, "explicit grid BPM (0 estimates one from syllable durations)")
	cmd.Flags().IntVar(&opts.Resolution, "resolution", 0, "beat grid subdivisions per musical beat (default 4)")
	cmd.Flags().Float64Var(&opts.RestThreshold, "rest-threshold", 0, "largest silence in beats absorbed into the previous note (default 1)")
	cmd.Flags().StringVar(&opts.Rounding, "rounding", "", "quantization mode: nearest or onset-preserving")
	cmd.Flags().StringVar(&opts.Overlaps, "overlaps", "", "overlapping line policy: keep-first, keep-longest or ignore")
	cmd.Flags().BoolVar(&opts.ForceDialogue, "force-dialogue", false, "time from Dialogue events even when Comment events exist")

	cmd.Flags().StringVar(&opts.Title, "title", "", "song title (overrides source metadata)")
	cmd.Flags().StringVar(&opts.Artist, "artist", "", "song artist (overrides source metadata)")
	cmd.Flags().StringVar(&opts.Creator, "creator", "", "chart creator credit")
	cmd.Flags().StringVar(&opts.Language, "language", "", "song language")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "chart comment tag")
	cmd.Flags().BoolVar(&opts.TVSized, "tv-size", false, "mark the title as a TV-size cut")

	cmd.Flags().StringVar(&opts.Audio, "audio", "", "audio file to copy into the song folder")
	cmd.Flags().StringVar(&opts.Video, "video", "", "video file to copy into the song folder")
	cmd.Flags().StringVar(&opts.Cover, "cover", "", "cover image to copy into the song folder")
	cmd.Flags().StringVar(&opts.Background, "background", "", "background image to copy into the song folder")

	cmd.Flags().BoolVar(&opts.EmitRests, "emit-rests", false, "write explicit R lines for rests")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace an existing chart in the song folder")
	cmd.Flags().BoolVar(&opts.ExtractAudio, "extract-audio", true, "extract mp3 audio from the video when no audio asset is given (needs ffmpeg)")
	cmd.Flags().BoolVar(&opts.Pitch, "pitch", false, "run ultrastar_pitch on the finished chart")

	return cmd
}

func runConvert(opts *ConvertOptions, input string, cmd *cobra.Command) error {
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
	applyConvertConfig(cmd, cfg, opts)

	libPath, err := libraryPath(opts.RootOptions, cfg)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	lib, err := openLibrary(libPath)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	defer func() {
		if closeErr := lib.Close(); closeErr != nil {
			slog.Error("closing library", "error", closeErr)
		}
	}()

	conveyor := newConverter(opts.Kara, opts.Extractor, opts.Estimator, lib)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := conveyor.convert(ctx, convertJobFromOptions(opts, input))
	if err != nil {
		return outputConvertError(formatter, err)
	}

	return outputConvertSuccess(formatter, outcome)
}

// applyConvertConfig fills in convert settings from the config file for
// every flag the user did not pass explicitly.
func applyConvertConfig(cmd *cobra.Command, cfg *Config, opts *ConvertOptions) {
	flags := cmd.Flags()
	if !flags.Changed("out") && cfg.Out != "" {
		opts.Out = cfg.Out
	}
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
	if !flags.Changed("emit-rests") && cfg.EmitRests {
		opts.EmitRests = true
	}
	if !flags.Changed("extract-audio") && cfg.ExtractAudio != nil {
		opts.ExtractAudio = *cfg.ExtractAudio
	}
	if !flags.Changed("pitch") && cfg.Pitch {
		opts.Pitch = true
	}
}

// convertJobFromOptions copies the flag values into a job.
func convertJobFromOptions(opts *ConvertOptions, input string) convertJob {
	return convertJob{
		Input:         input,
		Out:           opts.Out,
		BPM:           opts.BPM,
		Resolution:    opts.Resolution,
		RestThreshold: opts.RestThreshold,
		Rounding:      opts.Rounding,
		Overlaps:      opts.Overlaps,
		ForceDialogue: opts.ForceDialogue,
		Title:         opts.Title,
		Artist:        opts.Artist,
		Creator:       opts.Creator,
		Language:      opts.Language,
		Comment:       opts.Comment,
		TVSized:       opts.TVSized,
		Audio:         opts.Audio,
		Video:         opts.Video,
		Cover:         opts.Cover,
		Background:    opts.Background,
		EmitRests:     opts.EmitRests,
		Overwrite:     opts.Overwrite,
		ExtractAudio:  opts.ExtractAudio,
		Pitch:         opts.Pitch,
	}
}

// newConverter assembles a converter, filling in the real collaborators
// where no override was injected.
func newConverter(kara *karamoe.Client, extractor media.Extractor, estimator pitch.Estimator, lib *library.Library) *converter {
	if kara == nil {
		kara = karamoe.NewClient()
	}
	if extractor == nil {
		extractor = media.FFmpeg{}
	}
	if estimator == nil {
		estimator = pitch.UltrastarPitch{}
	}
	return &converter{
		kara:      kara,
		extractor: extractor,
		estimator: estimator,
		lib:       lib,
	}
}

// convertJob is one fully resolved conversion request. Batch conversion
// builds these from the manifest; the convert command builds one from its
// flags.
type convertJob struct {
	Input string // local .ass path or kara.moe song URL

	Out           string
	BPM           float64 // 0 estimates
	Resolution    int
	RestThreshold float64
	Rounding      string
	Overlaps      string
	ForceDialogue bool

	Title    string
	Artist   string
	Creator  string
	Language string
	Comment  string
	TVSized  bool

	Audio      string
	Video      string
	Cover      string
	Background string

	EmitRests    bool
	Overwrite    bool
	ExtractAudio bool
	Pitch        bool
}

// pipelineOptions validates the tunables and maps them onto the
// conversion pipeline.
func (j convertJob) pipelineOptions() (pipeline.Options, error) {
	rounding, err := beatgrid.ParseRounding(j.Rounding)
	if err != nil {
		return pipeline.Options{}, err
	}
	overlaps, err := subtitle.ParseOverlapPolicy(j.Overlaps)
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Resolution:         j.Resolution,
		RestThresholdBeats: j.RestThreshold,
		Rounding:           rounding,
		Overlaps:           overlaps,
		ForceDialogue:      j.ForceDialogue,
		Title:              j.Title,
		Artist:             j.Artist,
		TVSized:            j.TVSized,
	}
	if j.BPM > 0 {
		bpm := j.BPM
		opts.ExplicitBPM = &bpm
	}
	return opts, nil
}

// convertOutcome summarizes one finished conversion.
type convertOutcome struct {
	Input  string `json:"input"`
	KaraID string `json:"kara_id,omitempty"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Dir    string `json:"dir"`
	Chart  string `json:"chart"`

	BPM          float64 `json:"bpm"`
	BPMEstimated bool    `json:"bpm_estimated"`
	GapMS        int64   `json:"gap_ms"`
	Lines        int     `json:"lines"`
	Notes        int     `json:"notes"`
	Rests        int     `json:"rests"`
	Repairs      int     `json:"repairs"`

	Warnings []conv.Warning `json:"warnings,omitempty"`
}

// converter performs conversions end to end: fetch or read the subtitle,
// run the pipeline, assemble the song folder, pitch, record. One converter
// is shared by all batch workers; it holds no per-song state.
type converter struct {
	kara      *karamoe.Client
	extractor media.Extractor
	estimator pitch.Estimator
	lib       *library.Library // nil disables history recording

	// reserve claims a song directory before assembly. Batch conversion
	// uses it to fail fast when two songs resolve to the same folder.
	reserve func(dir, input string) error
}

func (c *converter) convert(ctx context.Context, job convertJob) (*convertOutcome, error) {
	workDir, err := os.MkdirTemp("", "karaforge-")
	if err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	popts, err := job.pipelineOptions()
	if err != nil {
		return nil, err
	}

	src, karaID, mediaPath, err := c.loadSource(ctx, job, workDir)
	if err != nil {
		return nil, err
	}

	chart, report, err := pipeline.Convert(src, popts)
	if err != nil {
		return nil, err
	}

	assets, err := c.resolveAssets(ctx, job, mediaPath, workDir)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(job.Out, songdir.DirName(chart.Artist, chart.Title))
	if c.reserve != nil {
		if err := c.reserve(dir, job.Input); err != nil {
			return nil, err
		}
	}

	layout, err := songdir.Assemble(job.Out, chart, assets, songdir.Options{
		EmitRests: job.EmitRests,
		Overwrite: job.Overwrite,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("song folder assembled",
		"dir", layout.Dir,
		"chart", layout.ChartPath,
		"assets", len(layout.Copied),
	)

	if job.Pitch {
		slog.Info("running pitch estimation", "chart", layout.ChartPath)
		if err := c.estimator.Pitch(ctx, layout.ChartPath); err != nil {
			return nil, fmt.Errorf("pitching chart: %w", err)
		}
	}

	outcome := &convertOutcome{
		Input:        job.Input,
		KaraID:       karaID,
		Title:        report.Title,
		Artist:       report.Artist,
		Dir:          layout.Dir,
		Chart:        layout.ChartPath,
		BPM:          report.HeaderBPM,
		BPMEstimated: report.Estimate.Estimated,
		GapMS:        report.Grid.GapMS,
		Lines:        report.Lines,
		Notes:        report.Notes,
		Rests:        report.Rests,
		Repairs:      report.Repairs.Total(),
		Warnings:     report.Warnings,
	}

	if c.lib != nil {
		rec := library.Record{
			Source:   job.Input,
			KaraID:   karaID,
			Title:    report.Title,
			Artist:   report.Artist,
			SongDir:  layout.Dir,
			BPM:      report.HeaderBPM,
			GapMS:    report.Grid.GapMS,
			Lines:    report.Lines,
			Notes:    report.Notes,
			Rests:    report.Rests,
			Repairs:  report.Repairs.Total(),
			Warnings: len(report.Warnings),
		}
		if _, err := c.lib.Add(ctx, rec); err != nil {
			// The song folder is already on disk; a ledger miss is not
			// worth failing the conversion over.
			slog.Warn("recording conversion failed", "error", err)
		}
	}

	return outcome, nil
}

// loadSource acquires the subtitle bytes and metadata. kara.moe URLs are
// resolved through the API with files downloaded into workDir; anything
// else is read as a local file. Returns the kara ID and downloaded media
// path, both empty for local input.
func (c *converter) loadSource(ctx context.Context, job convertJob, workDir string) (pipeline.Source, string, string, error) {
	src := pipeline.Source{
		Language: job.Language,
		Creator:  job.Creator,
		Comment:  job.Comment,
	}

	id, err := karamoe.SongID(job.Input)
	if err != nil {
		// Not a kara.moe URL: local subtitle file.
		data, err := os.ReadFile(job.Input)
		if err != nil {
			return pipeline.Source{}, "", "", fmt.Errorf("reading subtitle file: %w", err)
		}
		src.Subtitle = data
		return src, "", "", nil
	}

	song, err := c.kara.Song(ctx, id)
	if err != nil {
		return pipeline.Source{}, "", "", fmt.Errorf("fetching kara %s: %w", id, err)
	}
	slog.Info("kara resolved",
		"id", id,
		"title", song.Title,
		"artist", song.Artist,
		"subtitles", song.SubFile,
		"media", song.MediaFile,
	)

	subPath, err := c.kara.Download(ctx, song.SubFile, workDir)
	if err != nil {
		return pipeline.Source{}, "", "", fmt.Errorf("downloading subtitles: %w", err)
	}

	mediaPath := ""
	if song.MediaFile != "" {
		mediaPath, err = c.kara.Download(ctx, song.MediaFile, workDir)
		if err != nil {
			return pipeline.Source{}, "", "", fmt.Errorf("downloading media: %w", err)
		}
	}

	data, err := os.ReadFile(subPath)
	if err != nil {
		return pipeline.Source{}, "", "", fmt.Errorf("reading downloaded subtitles: %w", err)
	}

	src.Subtitle = data
	src.Title = song.Title
	src.Artist = song.Artist
	if src.Language == "" {
		src.Language = song.Language
	}
	if src.Creator == "" {
		src.Creator = song.Authors
	}
	return src, id, mediaPath, nil
}

// resolveAssets decides what goes into the song folder. Explicit flags
// win; downloaded media fills the empty slots by its extension. When the
// song ends up with a video but no audio, the audio track is extracted to
// an mp3 in workDir so players always have something to play.
func (c *converter) resolveAssets(ctx context.Context, job convertJob, mediaPath, workDir string) (songdir.Assets, error) {
	assets := songdir.Assets{
		Audio:      job.Audio,
		Video:      job.Video,
		Cover:      job.Cover,
		Background: job.Background,
	}

	if mediaPath != "" {
		switch {
		case media.IsVideo(mediaPath) && assets.Video == "":
			assets.Video = mediaPath
		case media.IsAudio(mediaPath) && assets.Audio == "":
			assets.Audio = mediaPath
		}
	}

	if job.ExtractAudio && assets.Audio == "" && assets.Video != "" && media.IsVideo(assets.Video) {
		base := strings.TrimSuffix(filepath.Base(assets.Video), filepath.Ext(assets.Video))
		dst := filepath.Join(workDir, base+".mp3")
		slog.Info("extracting audio", "video", assets.Video, "audio", dst)
		if err := c.extractor.ExtractAudio(ctx, assets.Video, dst); err != nil {
			return songdir.Assets{}, fmt.Errorf("extracting audio: %w", err)
		}
		assets.Audio = dst
	}

	return assets, nil
}

// openLibrary opens the conversion library, creating parent directories
// for fresh installs.
func openLibrary(path string) (*library.Library, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating library directory: %w", err)
		}
	}
	lib, err := library.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	return lib, nil
}

// commandContext returns the command's context, falling back to
// Background when the command was not started through ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// outputConvertSuccess prints one conversion outcome.
func outputConvertSuccess(formatter *OutputFormatter, outcome *convertOutcome) error {
	if formatter.Format == "json" {
		return formatter.Success(outcome)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s - %s\n", outcome.Artist, outcome.Title)
	fmt.Fprintf(w, "  chart: %s\n", outcome.Chart)
	bpm := fmt.Sprintf("%g", outcome.BPM)
	if outcome.BPMEstimated {
		bpm += " (estimated)"
	}
	fmt.Fprintf(w, "  bpm %s, gap %d ms\n", bpm, outcome.GapMS)
	fmt.Fprintf(w, "  %d notes in %d lines, %d rests, %d repairs\n",
		outcome.Notes, outcome.Lines, outcome.Rests, outcome.Repairs)
	printWarnings(w, outcome.Warnings)
	return nil
}

// outputConvertError reports a failed conversion. Pipeline errors keep
// their conversion code and exit 1; everything else is a command error.
func outputConvertError(formatter *OutputFormatter, err error) error {
	var cerr *conv.ConversionError
	if errors.As(err, &cerr) {
		details := map[string]interface{}{}
		if cerr.Line > 0 {
			details["line"] = cerr.Line
		}
		if cerr.Tag != "" {
			details["tag"] = cerr.Tag
		}
		_ = formatter.Error(string(cerr.Code), cerr.Message, details)
		return WrapExitError(ExitFailure, "conversion failed", err)
	}
	return outputCommandError(formatter, err)
}

// outputCommandError reports a command-level failure (exit code 2).
func outputCommandError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeCommand, err.Error(), nil)
	return WrapExitError(ExitCommandError, "command failed", err)
}

// printWarnings lists conversion warnings in text output.
func printWarnings(w io.Writer, warnings []conv.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "  warnings:\n")
	for _, warning := range warnings {
		fmt.Fprintf(w, "    %s\n", warning)
	}
}
