package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "karaforge", cmd.Use)
	assert.Contains(t, cmd.Long, "UltraStar")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"convert", "batch", "inspect", "preview", "history"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)

	libraryFlag := cmd.PersistentFlags().Lookup("library")
	require.NotNil(t, libraryFlag)
}

func TestConvertCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	convertCmd, _, err := cmd.Find([]string{"convert"})
	require.NoError(t, err)

	outFlag := convertCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
	assert.Equal(t, ".", outFlag.DefValue)

	bpmFlag := convertCmd.Flags().Lookup("bpm")
	require.NotNil(t, bpmFlag)
	assert.Equal(t, "0", bpmFlag.DefValue)

	// Audio extraction is on by default; kara.moe media is usually video.
	extractFlag := convertCmd.Flags().Lookup("extract-audio")
	require.NotNil(t, extractFlag)
	assert.Equal(t, "true", extractFlag.DefValue)

	pitchFlag := convertCmd.Flags().Lookup("pitch")
	require.NotNil(t, pitchFlag)
	assert.Equal(t, "false", pitchFlag.DefValue)

	for _, name := range []string{
		"resolution", "rest-threshold", "rounding", "overlaps",
		"force-dialogue", "title", "artist", "creator", "language",
		"comment", "tv-size", "audio", "video", "cover", "background",
		"emit-rests", "overwrite",
	} {
		assert.NotNil(t, convertCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestBatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	batchCmd, _, err := cmd.Find([]string{"batch"})
	require.NoError(t, err)

	jobsFlag := batchCmd.Flags().Lookup("jobs")
	require.NotNil(t, jobsFlag)
	assert.Equal(t, "4", jobsFlag.DefValue)

	outFlag := batchCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	limitFlag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)

	karaFlag := historyCmd.Flags().Lookup("kara")
	require.NotNil(t, karaFlag)
}

func TestPreviewCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	previewCmd, _, err := cmd.Find([]string{"preview"})
	require.NoError(t, err)

	midiFlag := previewCmd.Flags().Lookup("midi")
	require.NotNil(t, midiFlag)
	assert.Equal(t, "", midiFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "history"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
