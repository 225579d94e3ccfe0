package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/karaforge/karaforge/internal/library"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Kara  string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past conversions from the library",
		Long: `List recent conversion records from the library database, newest
first. Every convert and batch run records what it produced: source,
resolved metadata, grid, counts and warning totals.

Examples:
  karaforge history
  karaforge history --limit 50 --format json
  karaforge history --kara 2c57b593-a655-4f4d-9768-5f0a26556be2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum records to list")
	cmd.Flags().StringVar(&opts.Kara, "kara", "", "only records for this kara.moe ID")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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

	ctx := commandContext(cmd)
	var records []library.Record
	if opts.Kara != "" {
		records, err = lib.ForKara(ctx, opts.Kara)
	} else {
		records, err = lib.Recent(ctx, opts.Limit)
	}
	if err != nil {
		return outputCommandError(formatter, fmt.Errorf("reading library: %w", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(records)
	}

	w := formatter.Writer
	if len(records) == 0 {
		fmt.Fprintln(w, "No conversions recorded.")
		return nil
	}

	for _, r := range records {
		fmt.Fprintf(w, "%s  %s - %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Artist, r.Title)
		fmt.Fprintf(w, "  %s (bpm %g, %d notes, %d repairs, %d warnings)\n",
			r.SongDir, r.BPM, r.Notes, r.Repairs, r.Warnings)
	}
	fmt.Fprintf(w, "\n%d conversion(s)\n", len(records))
	return nil
}
