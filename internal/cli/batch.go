package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/karaforge/karaforge/internal/karamoe"
	"github.com/karaforge/karaforge/internal/media"
	"github.com/karaforge/karaforge/internal/pitch"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Jobs int
	Out  string

	// Collaborator overrides (for testing). Nil means the real ones.
	Kara      *karamoe.Client
	Extractor media.Extractor
	Estimator pitch.Estimator
}

// Manifest is the YAML batch description: settings shared by the whole
// run plus one entry per song. Unknown fields are rejected so typos
// surface instead of silently converting with defaults.
type Manifest struct {
	Settings ManifestSettings `yaml:"settings"`
	Songs    []ManifestSong   `yaml:"songs"`
}

// ManifestSettings mirror the convert command's tuning flags.
type ManifestSettings struct {
	Out           string  `yaml:"out"`
	Resolution    int     `yaml:"resolution"`
	RestThreshold float64 `yaml:"rest_threshold"`
	Rounding      string  `yaml:"rounding"`
	Overlaps      string  `yaml:"overlaps"`
	EmitRests     bool    `yaml:"emit_rests"`
	Overwrite     bool    `yaml:"overwrite"`
	ExtractAudio  *bool   `yaml:"extract_audio"`
	Pitch         bool    `yaml:"pitch"`
}

// ManifestSong is one conversion: the input plus per-song metadata and
// assets. Relative paths resolve against the manifest's directory.
type ManifestSong struct {
	Input         string  `yaml:"input"`
	Title         string  `yaml:"title"`
	Artist        string  `yaml:"artist"`
	Creator       string  `yaml:"creator"`
	Language      string  `yaml:"language"`
	Comment       string  `yaml:"comment"`
	TVSized       bool    `yaml:"tv_sized"`
	BPM           float64 `yaml:"bpm"`
	ForceDialogue bool    `yaml:"force_dialogue"`
	Audio         string  `yaml:"audio"`
	Video         string  `yaml:"video"`
	Cover         string  `yaml:"cover"`
	Background    string  `yaml:"background"`
}

// SongResult holds the outcome of a single batch entry.
type SongResult struct {
	Input  string          `json:"input"`
	Pass   bool            `json:"pass"`
	Error  string          `json:"error,omitempty"`
	Detail *convertOutcome `json:"result,omitempty"`
}

// BatchResult holds the overall batch outcome.
type BatchResult struct {
	Songs  []SongResult `json:"songs"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Total  int          `json:"total"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Convert many songs from a YAML manifest",
		Long: `Convert every song listed in a YAML manifest.

Songs convert in parallel on a bounded worker pool. One song's failure
never stops the others; each entry gets its own result in the summary.
Two songs resolving to the same output folder fail the later one instead
of racing.

Exit codes:
  0 - All songs converted
  1 - One or more songs failed
  2 - Command error (unreadable manifest, library problems, etc.)

Example manifest:
  settings:
    out: ./songs
    emit_rests: false
  songs:
    - input: ./subs/senbonzakura.ass
      title: Senbonzakura
      artist: Kurousa
      audio: ./media/senbonzakura.mp3
    - input: https://kara.moe/kara/melt/59d51ff7-0e22-4e76-a1fe-b0a9e3497021
      tv_sized: true`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Jobs, "jobs", 4, "number of songs converting in parallel")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "directory for song folders (overrides manifest settings)")

	return cmd
}

func runBatch(opts *BatchOptions, manifestPath string, cmd *cobra.Command) error {
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
	if !cmd.Flags().Changed("jobs") && cfg.Jobs > 0 {
		opts.Jobs = cfg.Jobs
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}

	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if len(manifest.Songs) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(BatchResult{Songs: []SongResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No songs in manifest.")
		return nil
	}

	jobs, err := manifestJobs(manifest, filepath.Dir(manifestPath), opts, cfg)
	if err != nil {
		return outputCommandError(formatter, err)
	}

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
	reserver := &dirReserver{claimed: make(map[string]string)}
	conveyor.reserve = reserver.reserve

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("batch starting", "manifest", manifestPath, "songs", len(jobs), "jobs", opts.Jobs)

	results := make([]SongResult, len(jobs))
	sem := make(chan struct{}, opts.Jobs)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job convertJob) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := conveyor.convert(ctx, job)
			if err != nil {
				slog.Error("conversion failed", "input", job.Input, "error", err)
				results[i] = SongResult{Input: job.Input, Error: err.Error()}
				return
			}
			results[i] = SongResult{Input: job.Input, Pass: true, Detail: outcome}
		}(i, job)
	}
	wg.Wait()

	result := BatchResult{Songs: results, Total: len(results)}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		return outputBatchJSON(cmd, result)
	}
	return outputBatchText(cmd, result)
}

// LoadManifest reads and strictly decodes a batch manifest.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m := &Manifest{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// manifestJobs resolves every manifest entry into a ready-to-run job.
func manifestJobs(m *Manifest, baseDir string, opts *BatchOptions, cfg *Config) ([]convertJob, error) {
	s := m.Settings

	out := "."
	switch {
	case opts.Out != "":
		out = opts.Out
	case s.Out != "":
		out = resolvePath(baseDir, s.Out)
	case cfg.Out != "":
		out = cfg.Out
	}

	if s.Resolution == 0 {
		s.Resolution = cfg.Resolution
	}
	if s.RestThreshold == 0 {
		s.RestThreshold = cfg.RestThreshold
	}
	if s.Rounding == "" {
		s.Rounding = cfg.Rounding
	}
	if s.Overlaps == "" {
		s.Overlaps = cfg.Overlaps
	}
	extractAudio := true
	if s.ExtractAudio != nil {
		extractAudio = *s.ExtractAudio
	} else if cfg.ExtractAudio != nil {
		extractAudio = *cfg.ExtractAudio
	}

	jobs := make([]convertJob, 0, len(m.Songs))
	for i, song := range m.Songs {
		if song.Input == "" {
			return nil, fmt.Errorf("manifest song %d has no input", i+1)
		}

		input := song.Input
		if _, err := karamoe.SongID(input); err != nil {
			input = resolvePath(baseDir, input)
		}

		jobs = append(jobs, convertJob{
			Input:         input,
			Out:           out,
			BPM:           song.BPM,
			Resolution:    s.Resolution,
			RestThreshold: s.RestThreshold,
			Rounding:      s.Rounding,
			Overlaps:      s.Overlaps,
			ForceDialogue: song.ForceDialogue,
			Title:         song.Title,
			Artist:        song.Artist,
			Creator:       song.Creator,
			Language:      song.Language,
			Comment:       song.Comment,
			TVSized:       song.TVSized,
			Audio:         resolvePath(baseDir, song.Audio),
			Video:         resolvePath(baseDir, song.Video),
			Cover:         resolvePath(baseDir, song.Cover),
			Background:    resolvePath(baseDir, song.Background),
			EmitRests:     s.EmitRests,
			Overwrite:     s.Overwrite,
			ExtractAudio:  extractAudio,
			Pitch:         s.Pitch,
		})
	}
	return jobs, nil
}

// resolvePath anchors a relative manifest path at the manifest directory.
func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// dirReserver hands out song directories first come first served so
// concurrent conversions with colliding names fail cleanly.
type dirReserver struct {
	mu      sync.Mutex
	claimed map[string]string // dir -> input that claimed it
}

func (r *dirReserver) reserve(dir, input string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.claimed[dir]; ok {
		return fmt.Errorf("output folder %s already claimed by %s", dir, prev)
	}
	r.claimed[dir] = input
	return nil
}

// outputBatchJSON outputs the batch result as JSON.
func outputBatchJSON(cmd *cobra.Command, result BatchResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}
	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    ErrCodeBatch,
			Message: fmt.Sprintf("%d song(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d song(s) failed", result.Failed))
	}
	return nil
}

// outputBatchText outputs the batch result as text.
func outputBatchText(cmd *cobra.Command, result BatchResult) error {
	w := cmd.OutOrStdout()

	for _, r := range result.Songs {
		if r.Pass {
			fmt.Fprintf(w, "✓ %s (%s - %s)\n", r.Input, r.Detail.Artist, r.Detail.Title)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.Input)
		fmt.Fprintf(w, "  %s\n", r.Error)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Batch Summary: %d converted, %d failed, %d total\n",
		result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d song(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All songs converted")
	return nil
}
