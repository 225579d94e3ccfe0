package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaforge/karaforge/internal/karamoe"
	"github.com/karaforge/karaforge/internal/library"
)

const twoLineASS = `[Script Info]
Title: two lines
ScriptType: v4.00+

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Comment: 0,0:00:02.00,0:00:03.60,Default,,0,0,0,karaoke,{\k40}sen{\k40}bon{\k80}za
Comment: 0,0:00:04.40,0:00:05.20,Default,,0,0,0,karaoke,{\k80}kura
`

const convertedChart = `#ARTIST:Kurousa
#BPM:120
#GAP:2000
#TITLE:Senbonzakura
: 0 1 19 sen
: 1 1 19 bon
: 2 1 19 za
- 3
: 5 1 19 kura
- 6
E
`

// writeSubtitle drops the fixture subtitle into dir.
func writeSubtitle(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "song.ass")
	require.NoError(t, os.WriteFile(path, []byte(twoLineASS), 0o644))
	return path
}

// fakeExtractor stands in for ffmpeg and writes a marker file.
type fakeExtractor struct {
	calls int
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, src, dst string) error {
	f.calls++
	return os.WriteFile(dst, []byte("fake audio"), 0o644)
}

// fakeEstimator records the charts it was asked to pitch.
type fakeEstimator struct {
	charts []string
}

func (f *fakeEstimator) Pitch(ctx context.Context, chartPath string) error {
	f.charts = append(f.charts, chartPath)
	return nil
}

func TestConvertLocalFile(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)
	outDir := filepath.Join(tmpDir, "songs")
	libPath := filepath.Join(tmpDir, "library.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Library: libPath}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{
		subPath,
		"--out", outDir,
		"--bpm", "120",
		"--resolution", "1",
		"--title", "Senbonzakura",
		"--artist", "Kurousa",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Kurousa - Senbonzakura")

	chartPath := filepath.Join(outDir, "Kurousa - Senbonzakura", "Kurousa - Senbonzakura.txt")
	data, err := os.ReadFile(chartPath)
	require.NoError(t, err)
	assert.Equal(t, convertedChart, string(data))

	// The run is on the ledger.
	lib, err := library.Open(libPath)
	require.NoError(t, err)
	defer lib.Close()
	records, err := lib.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, subPath, records[0].Source)
	assert.Equal(t, "Senbonzakura", records[0].Title)
	assert.Equal(t, "Kurousa", records[0].Artist)
	assert.Equal(t, 120.0, records[0].BPM)
	assert.Equal(t, 4, records[0].Notes)
}

func TestConvertJSONOutput(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", Library: filepath.Join(tmpDir, "library.db")}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{
		subPath,
		"--out", filepath.Join(tmpDir, "songs"),
		"--title", "Senbonzakura",
		"--artist", "Kurousa",
	})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Senbonzakura", data["title"])
	assert.Equal(t, true, data["bpm_estimated"])
	assert.NotEmpty(t, data["chart"])
}

func TestConvertMalformedTagFails(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := filepath.Join(tmpDir, "bad.ass")
	bad := strings.Replace(twoLineASS, `{\k40}sen`, `{\k4x}sen`, 1)
	require.NoError(t, os.WriteFile(subPath, []byte(bad), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Library: filepath.Join(tmpDir, "library.db")}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{subPath, "--out", tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "MALFORMED_TIMING_TAG")
}

func TestConvertMissingInput(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Library: filepath.Join(tmpDir, "library.db")}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{filepath.Join(tmpDir, "nope.ass"), "--out", tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "reading subtitle file")
}

func TestConvertInvalidRounding(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Library: filepath.Join(tmpDir, "library.db")}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{subPath, "--out", tmpDir, "--rounding", "sideways"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "unknown rounding mode")
}

func TestConvertRefusesExistingChart(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)
	outDir := filepath.Join(tmpDir, "songs")
	libPath := filepath.Join(tmpDir, "library.db")

	args := []string{
		subPath,
		"--out", outDir,
		"--title", "Senbonzakura",
		"--artist", "Kurousa",
	}

	first := NewConvertCommand(&RootOptions{Format: "text", Library: libPath})
	first.SetOut(&bytes.Buffer{})
	first.SetErr(&bytes.Buffer{})
	first.SetArgs(args)
	require.NoError(t, first.Execute())

	buf := &bytes.Buffer{}
	second := NewConvertCommand(&RootOptions{Format: "text", Library: libPath})
	second.SetOut(buf)
	second.SetErr(buf)
	second.SetArgs(args)
	err := second.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "already exists")

	third := NewConvertCommand(&RootOptions{Format: "text", Library: libPath})
	third.SetOut(&bytes.Buffer{})
	third.SetErr(&bytes.Buffer{})
	third.SetArgs(append(append([]string{}, args...), "--overwrite"))
	require.NoError(t, third.Execute())
}

func TestConvertConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)
	outDir := filepath.Join(tmpDir, "songs")
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("emit_rests: true\nresolution: 1\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{
		Format:  "text",
		Config:  cfgPath,
		Library: filepath.Join(tmpDir, "library.db"),
	}
	cmd := NewConvertCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{
		subPath,
		"--out", outDir,
		"--bpm", "120",
		"--title", "Senbonzakura",
		"--artist", "Kurousa",
	})

	require.NoError(t, cmd.Execute())

	chartPath := filepath.Join(outDir, "Kurousa - Senbonzakura", "Kurousa - Senbonzakura.txt")
	data, err := os.ReadFile(chartPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "R 3 2\n", "config emit_rests should reach the encoder")
}

// karaTestServer serves the kara.moe API surface the converter touches.
func karaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/karas/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"titles": {"jpn": "Senbonzakura"},
			"titles_default_language": "jpn",
			"subfile": "JPN - Senbonzakura.ass",
			"mediafile": "JPN - Senbonzakura.mp4",
			"langs": [{"i18n": {"eng": "Japanese"}}],
			"singers": [{"name": "Kurousa"}],
			"authors": [{"name": "mapper1"}]
		}`))
	})
	mux.HandleFunc("/downloads/lyrics/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoLineASS))
	})
	mux.HandleFunc("/downloads/medias/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not really a video"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConverterKaraFlow(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "songs")
	srv := karaTestServer(t)

	lib, err := library.Open(filepath.Join(tmpDir, "library.db"))
	require.NoError(t, err)
	defer lib.Close()

	extractor := &fakeExtractor{}
	conveyor := newConverter(karamoe.NewClient(karamoe.WithBaseURL(srv.URL)), extractor, &fakeEstimator{}, lib)

	input := "https://kara.moe/kara/senbonzakura/2c57b593-a655-4f4d-9768-5f0a26556be2"
	outcome, err := conveyor.convert(context.Background(), convertJob{
		Input:        input,
		Out:          outDir,
		BPM:          120,
		Resolution:   1,
		ExtractAudio: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "2c57b593-a655-4f4d-9768-5f0a26556be2", outcome.KaraID)
	assert.Equal(t, "Senbonzakura", outcome.Title)
	assert.Equal(t, "Kurousa", outcome.Artist)
	assert.Equal(t, 1, extractor.calls, "video media should trigger audio extraction")

	// Chart, video copy and extracted mp3 all land in the song folder.
	dir := filepath.Join(outDir, "Kurousa - Senbonzakura")
	chart, err := os.ReadFile(filepath.Join(dir, "Kurousa - Senbonzakura.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(chart), "#MP3:Kurousa - Senbonzakura.mp3\n")
	assert.Contains(t, string(chart), "#VIDEO:Kurousa - Senbonzakura.mp4\n")
	assert.Contains(t, string(chart), "#LANGUAGE:Japanese\n")
	assert.Contains(t, string(chart), "#CREATOR:mapper1\n")
	assert.FileExists(t, filepath.Join(dir, "Kurousa - Senbonzakura.mp4"))
	assert.FileExists(t, filepath.Join(dir, "Kurousa - Senbonzakura.mp3"))

	records, err := lib.ForKara(context.Background(), outcome.KaraID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, input, records[0].Source)
}

func TestConverterPitchStep(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)

	estimator := &fakeEstimator{}
	conveyor := newConverter(nil, &fakeExtractor{}, estimator, nil)

	outcome, err := conveyor.convert(context.Background(), convertJob{
		Input:  subPath,
		Out:    filepath.Join(tmpDir, "songs"),
		BPM:    120,
		Title:  "Senbonzakura",
		Artist: "Kurousa",
		Pitch:  true,
	})
	require.NoError(t, err)
	require.Len(t, estimator.charts, 1)
	assert.Equal(t, outcome.Chart, estimator.charts[0])
}

func TestConverterReserveRejection(t *testing.T) {
	tmpDir := t.TempDir()
	subPath := writeSubtitle(t, tmpDir)

	conveyor := newConverter(nil, &fakeExtractor{}, &fakeEstimator{}, nil)
	reserver := &dirReserver{claimed: make(map[string]string)}
	conveyor.reserve = reserver.reserve

	job := convertJob{
		Input:  subPath,
		Out:    filepath.Join(tmpDir, "songs"),
		BPM:    120,
		Title:  "Senbonzakura",
		Artist: "Kurousa",
	}
	_, err := conveyor.convert(context.Background(), job)
	require.NoError(t, err)

	_, err = conveyor.convert(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already claimed")
}
