package subtitle

import (
	"io"
	"sort"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/karaforge/karaforge/internal/conv"
)

// ParseOptions tunes event selection.
type ParseOptions struct {
	// ForceDialogue parses Dialogue events even when Comment events exist.
	// Useful for hand-authored files, counterproductive for kara.moe ones.
	ForceDialogue bool

	// Overlaps picks the policy for simultaneously displayed lines.
	// Empty means keep-first.
	Overlaps OverlapPolicy
}

// Result is the parsed song: ordered syllable events plus everything worth
// telling the user about.
type Result struct {
	Events       []Event
	Warnings     []conv.Warning
	UsedDialogue bool
	LineCount    int
}

// Parse reads a .ass karaoke file into ordered syllable events. The input
// may open with a UTF-8 byte order mark (kara.moe serves files with one);
// lyric text comes out NFC-normalized.
//
// Recoverable anomalies (dropped lines, reordered events, discarded
// overlaps) surface as warnings on the result. Malformed karaoke tags and
// events without usable timestamps fail the whole parse.
func Parse(r io.Reader, opts ParseOptions) (*Result, error) {
	policy, err := ParseOverlapPolicy(string(opts.Overlaps))
	if err != nil {
		return nil, err
	}

	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	raw, err := scanEvents(decoded)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	var comments, dialogue []assEvent
	for _, ev := range raw {
		if ev.comment {
			comments = append(comments, ev)
		} else {
			dialogue = append(dialogue, ev)
		}
	}

	// Comment events carry the karaoke timing on kara.moe files, but some
	// songs only ship Dialogue.
	lines := comments
	if len(comments) == 0 || opts.ForceDialogue {
		lines = dialogue
		res.UsedDialogue = true
	}

	for i := 1; i < len(lines); i++ {
		if lines[i].startMS < lines[i-1].startMS {
			res.warn(conv.Warnf(conv.WarnEventsReordered, lines[i].lineNo,
				"events are out of start-time order and were sorted"))
			break
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].startMS < lines[j].startMS })

	for i := 1; i < len(lines); i++ {
		if lines[i].startMS == lines[i-1].startMS {
			res.warn(conv.Warnf(conv.WarnDuplicateTimestamp, lines[i].lineNo,
				"line starts at the same time as line %d", lines[i-1].lineNo))
		}
	}

	lines, overlapWarnings := filterOverlaps(lines, policy)
	res.Warnings = append(res.Warnings, overlapWarnings...)

	for _, line := range lines {
		events, warnings, err := lineEvents(line)
		if err != nil {
			return nil, err
		}
		res.Warnings = append(res.Warnings, warnings...)
		if len(events) > 0 {
			res.LineCount++
			res.Events = append(res.Events, events...)
		}
	}

	// Only the ignore policy can leave interleaved lines behind; events
	// still come out ordered by onset.
	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].StartMS < res.Events[j].StartMS
	})

	return res, nil
}

func (r *Result) warn(w conv.Warning) {
	r.Warnings = append(r.Warnings, w)
}
