package subtitle

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/karaforge/karaforge/internal/conv"
)

// token is one lexed unit of an event's text: either an override tag or a
// run of lyric text.
type token struct {
	isTag bool
	name  string // tag name, letters only ("k", "kf", "pos", ...)
	arg   string // raw tag payload
	text  string // lyric run when isTag is false
	raw   string // original spelling, kept for diagnostics
}

// karaokeTags are the override tags that carry syllable durations in
// centiseconds. Everything else is presentation markup and is skipped.
var karaokeTags = map[string]bool{
	"k":  true,
	"K":  true,
	"kf": true,
	"ko": true,
}

// lexEventText splits an event's text into tag and text tokens. Override
// blocks ({...}) may hold several backslash-led tags; blocks without a
// backslash are authoring comments and produce no tokens.
func lexEventText(text string) []token {
	var tokens []token
	for len(text) > 0 {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			tokens = append(tokens, textToken(text))
			break
		}
		if open > 0 {
			tokens = append(tokens, textToken(text[:open]))
		}
		text = text[open:]

		closing := strings.IndexByte(text, '}')
		if closing < 0 {
			// Unterminated block, treat the remainder as text.
			tokens = append(tokens, textToken(text))
			break
		}

		block := text[1:closing]
		text = text[closing+1:]

		// Everything before the first backslash is authoring comment, as
		// is a block with no backslash at all.
		segs := strings.Split(block, `\`)
		for _, seg := range segs[1:] {
			if seg == "" {
				continue
			}
			split := len(seg)
			for i, r := range seg {
				if !isTagNameRune(r) {
					split = i
					break
				}
			}
			if split == 0 {
				continue
			}
			tokens = append(tokens, token{
				isTag: true,
				name:  seg[:split],
				arg:   seg[split:],
				raw:   `\` + seg,
			})
		}
	}
	return tokens
}

func isTagNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// textToken builds a lyric run, translating the escape forms subtitle text
// can carry: \N and \n are soft breaks, \h is a hard space. All become a
// plain space, charts have their own line structure.
func textToken(s string) token {
	s = strings.ReplaceAll(s, `\N`, " ")
	s = strings.ReplaceAll(s, `\n`, " ")
	s = strings.ReplaceAll(s, `\h`, " ")
	return token{text: s}
}

// syllable is an in-progress note candidate while walking a line's tokens.
type syllable struct {
	durationMS float64
	text       strings.Builder
}

// lineEvents converts one subtitle event into sung syllable events. A
// karaoke tag opens a syllable spanning its duration; following text runs
// attach to it; a tag with no attached text is silence and only advances
// the cursor. The last sung syllable carries the line break flag.
func lineEvents(ev assEvent) ([]Event, []conv.Warning, error) {
	var (
		events   []Event
		warnings []conv.Warning
		cursor   = float64(ev.startMS)
		open     *syllable
	)

	flush := func() {
		if open == nil {
			return
		}
		text := norm.NFC.String(open.text.String())
		if strings.TrimSpace(text) != "" {
			events = append(events, Event{
				StartMS: int64(math.Round(cursor)),
				EndMS:   int64(math.Round(cursor + open.durationMS)),
				Text:    text,
			})
		}
		cursor += open.durationMS
		open = nil
	}

	for _, tok := range lexEventText(ev.text) {
		if !tok.isTag {
			if open == nil {
				if strings.TrimSpace(tok.text) != "" {
					warnings = append(warnings, conv.Warnf(conv.WarnUntimedText, ev.lineNo,
						"text %q has no karaoke tag and was dropped", strings.TrimSpace(tok.text)))
				}
				continue
			}
			open.text.WriteString(tok.text)
			continue
		}

		if !karaokeTags[tok.name] {
			continue
		}

		cs, err := strconv.ParseFloat(tok.arg, 64)
		if err != nil || cs < 0 {
			return nil, nil, conv.NewMalformedTagError(ev.lineNo, tok.raw, "payload is not a non-negative number")
		}

		flush()
		open = &syllable{durationMS: cs * 10}
	}
	flush()

	if len(events) == 0 {
		warnings = append(warnings, conv.Warnf(conv.WarnLineDropped, ev.lineNo,
			"line has no sung syllables"))
		return nil, warnings, nil
	}

	if end := events[len(events)-1].EndMS; end > ev.endMS {
		warnings = append(warnings, conv.Warnf(conv.WarnDurationOverrun, ev.lineNo,
			"syllables run %dms past the line's declared end", end-ev.endMS))
	}

	events[len(events)-1].LineBreakAfter = true
	return events, warnings, nil
}
