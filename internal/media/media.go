// Package media classifies downloaded song media and extracts audio
// tracks from video files by shelling out to ffmpeg.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor pulls a standalone audio track out of a media file.
type Extractor interface {
	ExtractAudio(ctx context.Context, src, dst string) error
}

var videoExts = map[string]bool{
	".avi":  true,
	".m2ts": true,
	".mkv":  true,
	".mov":  true,
	".mp4":  true,
	".webm": true,
}

var audioExts = map[string]bool{
	".aac":  true,
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
}

// IsVideo reports whether the filename looks like a video container.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// IsAudio reports whether the filename looks like a bare audio track.
func IsAudio(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// FFmpeg extracts audio with the ffmpeg binary on PATH.
type FFmpeg struct {
	// Bin overrides the binary name. Empty means "ffmpeg".
	Bin string
}

func (f FFmpeg) binary() string {
	if f.Bin != "" {
		return f.Bin
	}
	return "ffmpeg"
}

// extractArgs builds the ffmpeg argument list: drop the video stream,
// encode the audio to the container dst implies, overwrite without asking.
func extractArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-q:a", "2",
		dst,
	}
}

// ExtractAudio writes the audio track of src to dst. The output codec
// follows dst's extension, so pass a .mp3 path for UltraStar players.
func (f FFmpeg) ExtractAudio(ctx context.Context, src, dst string) error {
	bin := f.binary()
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", bin, err)
	}

	args := extractArgs(src, dst)
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, out)
	}
	return nil
}
