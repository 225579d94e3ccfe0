// Package songdir assembles the final song folder: the encoded chart plus
// its media assets, laid out the way UltraStar players expect. One folder
// per song, every file named after "Artist - Title".
package songdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/karaforge/karaforge/internal/conv"
	"github.com/karaforge/karaforge/internal/ultrastar"
)

// Assets are the local source paths of the media to place alongside the
// chart. Empty fields are skipped; present ones are copied into the song
// folder and renamed to the folder's base name.
type Assets struct {
	Audio      string
	Video      string
	Cover      string
	Background string
}

// Layout reports where everything ended up.
type Layout struct {
	// Dir is the assembled song folder.
	Dir string `json:"dir"`

	// ChartPath is the encoded chart inside Dir.
	ChartPath string `json:"chart_path"`

	// Copied lists the asset files written into Dir.
	Copied []string `json:"copied,omitempty"`
}

// Options tunes assembly.
type Options struct {
	// EmitRests is passed through to the chart encoder.
	EmitRests bool

	// Overwrite allows replacing an existing chart file. Without it,
	// assembling into a folder that already has one fails.
	Overwrite bool
}

// Assemble builds the song folder under root. The chart's MP3, VIDEO,
// COVER and BACKGROUND header tags are stamped with the copied asset
// names, then the chart is encoded as "<base>.txt".
//
// Chart encoding and file writes surface as ENCODING_IO_FAILURE errors;
// everything here is the last step of a conversion, after the pipeline
// has already committed to its output.
func Assemble(root string, chart *ultrastar.Chart, assets Assets, opts Options) (*Layout, error) {
	base := DirName(chart.Artist, chart.Title)
	dir := filepath.Join(root, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, conv.NewEncodingIOError(dir, err)
	}

	chartPath := filepath.Join(dir, base+".txt")
	if !opts.Overwrite {
		if _, err := os.Stat(chartPath); err == nil {
			return nil, fmt.Errorf("%s already exists (use overwrite to replace it)", chartPath)
		}
	}

	layout := &Layout{Dir: dir, ChartPath: chartPath}

	copies := []struct {
		src string
		tag *string
	}{
		{assets.Audio, &chart.MP3},
		{assets.Video, &chart.Video},
		{assets.Cover, &chart.Cover},
		{assets.Background, &chart.Background},
	}
	for _, c := range copies {
		if c.src == "" {
			continue
		}
		name := base + strings.ToLower(filepath.Ext(c.src))
		dst := filepath.Join(dir, name)
		if err := copyFile(c.src, dst); err != nil {
			return nil, conv.NewEncodingIOError(dst, err)
		}
		*c.tag = name
		layout.Copied = append(layout.Copied, dst)
	}

	data, err := ultrastar.Marshal(chart, ultrastar.EncodeOptions{EmitRests: opts.EmitRests})
	if err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	if err := os.WriteFile(chartPath, data, 0o644); err != nil {
		return nil, conv.NewEncodingIOError(chartPath, err)
	}

	return layout, nil
}

// DirName returns the folder name a song assembles into. Callers that
// need to know the destination before assembling (batch conversion
// reserves folders up front) use the same derivation Assemble does.
func DirName(artist, title string) string {
	return SanitizeName(artist + " - " + title)
}

// SanitizeName makes a string safe as a file or folder name on the
// filesystems players live on. Path separators and Windows-reserved
// characters are dropped, whitespace runs collapse to single spaces, and
// trailing dots go because Windows silently strips them.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, strings.ContainsRune(`\/:*?"<>|`, r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Join(strings.Fields(b.String()), " ")
	clean = strings.TrimRight(clean, ". ")
	if clean == "" {
		return "Untitled"
	}
	return clean
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
