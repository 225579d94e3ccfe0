package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPreviewCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPreviewCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestPreviewWritesMIDI(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)
	midiPath := filepath.Join(tmpDir, "timing.mid")

	buf, err := runPreviewCommand(t, "text",
		subPath, "--midi", midiPath, "--bpm", "120", "--resolution", "1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ wrote "+midiPath)
	assert.Contains(t, buf.String(), "(4 notes at bpm 120)")

	data, err := os.ReadFile(midiPath)
	require.NoError(t, err)
	require.Greater(t, len(data), 4)
	assert.Equal(t, "MThd", string(data[:4]))
}

func TestPreviewDefaultPath(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)

	_, err := runPreviewCommand(t, "text", subPath, "--bpm", "120")
	require.NoError(t, err)

	// song.ass previews to song.mid next to it.
	assert.FileExists(t, filepath.Join(tmpDir, "song.mid"))
}

func TestPreviewJSON(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)
	midiPath := filepath.Join(tmpDir, "timing.mid")

	buf, err := runPreviewCommand(t, "json",
		subPath, "--midi", midiPath, "--bpm", "120", "--resolution", "1")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	result, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, midiPath, result["midi"])
	assert.Equal(t, float64(120), result["bpm"])
	assert.Equal(t, float64(2), result["lines"])
	assert.Equal(t, float64(4), result["notes"])
}

func TestPreviewMissingFile(t *testing.T) {
	buf, err := runPreviewCommand(t, "text", filepath.Join(t.TempDir(), "nope.ass"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "reading subtitle file")
}
