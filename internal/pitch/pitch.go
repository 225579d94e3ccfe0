// Package pitch replaces the sentinel pitches in a written chart with
// estimated ones by shelling out to the ultrastar_pitch tool.
package pitch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Estimator rewrites a chart file's pitches in place.
type Estimator interface {
	Pitch(ctx context.Context, chartPath string) error
}

// UltrastarPitch runs the ultrastar_pitch binary on PATH. The tool reads
// the audio file named by the chart's MP3 tag, so the chart must already
// sit in its assembled song folder.
type UltrastarPitch struct {
	// Bin overrides the binary name. Empty means "ultrastar_pitch".
	Bin string
}

func (u UltrastarPitch) binary() string {
	if u.Bin != "" {
		return u.Bin
	}
	return "ultrastar_pitch"
}

// Pitch rewrites chartPath with estimated pitches. The tool writes to a
// sibling file first; the rename back is atomic, so a failed run leaves
// the original chart untouched.
func (u UltrastarPitch) Pitch(ctx context.Context, chartPath string) error {
	bin := u.binary()
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", bin, err)
	}

	pitched := chartPath + ".pitched"
	args := []string{chartPath, "-o", pitched}

	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		os.Remove(pitched)
		return fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, out)
	}

	if err := os.Rename(pitched, chartPath); err != nil {
		return fmt.Errorf("replace chart with pitched version: %w", err)
	}
	return nil
}
