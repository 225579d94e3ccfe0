package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/karaforge/karaforge/internal/conv"
)

// assEvent is one line from the [Events] section before syllable
// extraction. Times are absolute milliseconds; lineNo is the physical line
// number in the file, used for diagnostics.
type assEvent struct {
	comment bool
	startMS int64
	endMS   int64
	text    string
	lineNo  int
}

func (e assEvent) durationMS() int64 {
	return e.endMS - e.startMS
}

// standardEventFormat is the v4.00+ field order, assumed when the section
// carries no Format line.
var standardEventFormat = []string{
	"layer", "start", "end", "style", "name",
	"marginl", "marginr", "marginv", "effect", "text",
}

// scanEvents extracts Dialogue and Comment events from the [Events]
// section. Other sections are skipped whole; a missing section is an
// unresolvable-timing failure since nothing in the file can anchor a note.
func scanEvents(r io.Reader) ([]assEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		events     []assEvent
		inEvents   bool
		seenEvents bool
		format     = standardEventFormat
		lineNo     int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inEvents = strings.EqualFold(trimmed, "[events]")
			if inEvents {
				seenEvents = true
				format = standardEventFormat
			}
			continue
		}
		if !inEvents {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimLeft(value, " ")

		switch {
		case strings.EqualFold(key, "format"):
			format = parseEventFormat(value)
		case strings.EqualFold(key, "dialogue"), strings.EqualFold(key, "comment"):
			ev, err := parseEvent(value, format, strings.EqualFold(key, "comment"), lineNo)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading subtitle input: %w", err)
	}

	if !seenEvents {
		return nil, conv.NewUnresolvableLineError(0, "no [Events] section found")
	}
	return events, nil
}

func parseEventFormat(value string) []string {
	fields := strings.Split(value, ",")
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimSpace(f))
	}
	return names
}

// parseEvent splits an event payload by the declared format. The text field
// is last and may itself contain commas, so the split is capped at the
// field count.
func parseEvent(value string, format []string, comment bool, lineNo int) (assEvent, error) {
	parts := strings.SplitN(value, ",", len(format))

	ev := assEvent{comment: comment, lineNo: lineNo}
	var haveStart, haveEnd bool
	for i, name := range format {
		if i >= len(parts) {
			break
		}
		switch name {
		case "start":
			ms, err := parseTimestamp(strings.TrimSpace(parts[i]))
			if err != nil {
				return assEvent{}, conv.NewUnresolvableLineError(lineNo, fmt.Sprintf("bad start timestamp: %v", err))
			}
			ev.startMS = ms
			haveStart = true
		case "end":
			ms, err := parseTimestamp(strings.TrimSpace(parts[i]))
			if err != nil {
				return assEvent{}, conv.NewUnresolvableLineError(lineNo, fmt.Sprintf("bad end timestamp: %v", err))
			}
			ev.endMS = ms
			haveEnd = true
		case "text":
			ev.text = parts[i]
		}
	}

	if !haveStart || !haveEnd {
		return assEvent{}, conv.NewUnresolvableLineError(lineNo, "event carries no start/end timestamps")
	}
	return ev, nil
}

// parseTimestamp reads the H:MM:SS.cc form. The fractional part is a
// decimal fraction of a second (centiseconds in every file kara.moe
// serves), converted to the nearest millisecond.
func parseTimestamp(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%q is not H:MM:SS.cc", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("bad hours in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}

	total := (float64(hours)*3600+float64(minutes)*60)*1000 + seconds*1000
	return int64(math.Round(total)), nil
}
