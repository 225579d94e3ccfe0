package ultrastar

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// EncodeOptions controls optional parts of the serialization.
type EncodeOptions struct {
	// EmitRests writes rest notes as "R start length" lines. Players skip
	// unknown line types, but the downstream pitch tool does not need them,
	// so the default omits rests from the output stream.
	EmitRests bool
}

// Marshal serializes a chart to UltraStar text. Identical charts yield
// byte-identical output: header tags are written sorted alphabetically
// (matching how most editors rewrite files), then note lines in beat order
// with a break marker closing each line, then the terminating E.
//
// Marshal trusts its input. Beyond rejecting unknown note kinds it performs
// no validation; structural guarantees (ordering, no overlap, positive
// lengths) are the adjuster's contract.
func Marshal(c *Chart, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer

	for _, tag := range headerTags(c) {
		fmt.Fprintf(&buf, "#%s:%s\n", tag.name, tag.value)
	}

	for _, line := range c.Lines {
		for _, n := range line.Notes {
			if n.Kind == KindRest {
				if !opts.EmitRests {
					continue
				}
				fmt.Fprintf(&buf, "R %d %d\n", n.StartBeat, n.Length)
				continue
			}
			sigil, ok := n.Kind.sigil()
			if !ok {
				return nil, fmt.Errorf("note at beat %d: unknown kind %q", n.StartBeat, n.Kind)
			}
			fmt.Fprintf(&buf, "%s %d %d %d %s\n", sigil, n.StartBeat, n.Length, n.Pitch, n.Text)
		}
		fmt.Fprintf(&buf, "- %d\n", line.BreakBeat)
	}

	buf.WriteString("E\n")
	return buf.Bytes(), nil
}

// Encode writes the serialized chart to w.
func Encode(w io.Writer, c *Chart, opts EncodeOptions) error {
	data, err := Marshal(c, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

// FormatBPM renders a BPM value the way the header expects it: shortest
// plain decimal that round-trips, never scientific notation.
func FormatBPM(bpm float64) string {
	return strconv.FormatFloat(bpm, 'f', -1, 64)
}

type headerTag struct {
	name  string
	value string
}

// headerTags assembles the header in its serialized order. TITLE, ARTIST,
// BPM and GAP are always present; the rest appear only when set.
func headerTags(c *Chart) []headerTag {
	tags := []headerTag{
		{"TITLE", c.Title},
		{"ARTIST", c.Artist},
		{"BPM", FormatBPM(c.BPM)},
		{"GAP", strconv.FormatInt(c.GapMS, 10)},
	}

	optional := []headerTag{
		{"LANGUAGE", c.Language},
		{"CREATOR", c.Creator},
		{"COMMENT", c.Comment},
		{"MP3", c.MP3},
		{"COVER", c.Cover},
		{"BACKGROUND", c.Background},
		{"VIDEO", c.Video},
	}
	for _, tag := range optional {
		if tag.value != "" {
			tags = append(tags, tag)
		}
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].name < tags[j].name })
	return tags
}
