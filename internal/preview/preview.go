// Package preview renders a chart as a standard MIDI file, so a charter
// can listen to the synthesized timing against the song before singing it.
package preview

import (
	"fmt"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/karaforge/karaforge/internal/ultrastar"
)

const (
	// ticksPerBeat is the MIDI resolution for one chart beat. One chart
	// beat plays as one quarter note at the chart's effective tempo.
	ticksPerBeat = 480

	channel = 0

	velocity       = 100
	goldenVelocity = 112

	// baseKey maps UltraStar pitch zero onto MIDI C4.
	baseKey = 60
)

// Render builds a single-track MIDI file from the chart. Sung notes become
// note-on/note-off pairs with their syllable attached as a lyric event,
// golden notes play louder, freestyle notes carry only their lyric, rests
// are silence. The initial gap is rendered as leading silence so the
// preview lines up with the song's audio.
func Render(c *ultrastar.Chart) (*smf.SMF, error) {
	if c.BPM <= 0 {
		return nil, fmt.Errorf("chart bpm must be positive, got %g", c.BPM)
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerBeat)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(c.Title))
	tr.Add(0, smf.MetaTempo(c.BPM))

	msPerBeat := 60000 / c.BPM
	gapTicks := uint32(math.Round(float64(c.GapMS) / msPerBeat * ticksPerBeat))

	var cursor uint32
	tick := func(beat int64) uint32 {
		t := gapTicks + uint32(beat)*ticksPerBeat
		if t < cursor {
			return cursor
		}
		return t
	}

	for _, line := range c.Lines {
		for _, n := range line.Notes {
			if n.Kind == ultrastar.KindRest {
				continue
			}

			start := tick(n.StartBeat)
			tr.Add(start-cursor, smf.MetaLyric(n.Text))
			cursor = start

			if n.Kind == ultrastar.KindFreestyle {
				continue
			}

			vel := uint8(velocity)
			if n.Kind == ultrastar.KindGolden {
				vel = goldenVelocity
			}
			key := noteKey(n.Pitch)

			end := tick(n.EndBeat())
			tr.Add(0, midi.NoteOn(channel, key, vel))
			tr.Add(end-cursor, midi.NoteOff(channel, key))
			cursor = end
		}
	}

	tr.Close(0)
	s.Add(tr)
	return s, nil
}

// WriteFile renders the chart into a .mid file at path.
func WriteFile(c *ultrastar.Chart, path string) error {
	s, err := Render(c)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write midi to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// noteKey maps an UltraStar pitch onto a MIDI key, clamped to the valid
// range.
func noteKey(pitch int) uint8 {
	key := baseKey + pitch
	switch {
	case key < 0:
		return 0
	case key > 127:
		return 127
	}
	return uint8(key)
}
