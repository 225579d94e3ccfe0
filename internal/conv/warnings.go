package conv

import "fmt"

// WarningCode categorizes recoverable anomalies.
type WarningCode string

const (
	// WarnLineDropped: a subtitle line carried no sung syllables.
	WarnLineDropped WarningCode = "LINE_WITHOUT_SYLLABLES"

	// WarnEventsReordered: events arrived out of start-time order and were
	// sorted.
	WarnEventsReordered WarningCode = "EVENTS_REORDERED"

	// WarnDuplicateTimestamp: two events share the same start time.
	WarnDuplicateTimestamp WarningCode = "DUPLICATE_TIMESTAMP"

	// WarnDurationOverrun: a line's summed syllable durations run past the
	// event's declared end time.
	WarnDurationOverrun WarningCode = "DURATION_OVERRUN"

	// WarnOverlapDiscarded: an overlapping line was discarded by the
	// overlap policy.
	WarnOverlapDiscarded WarningCode = "OVERLAPPING_LINE_DISCARDED"

	// WarnUntimedText: lyric text appeared before any karaoke tag and was
	// dropped, there is no duration to sing it over.
	WarnUntimedText WarningCode = "UNTIMED_TEXT"

	// WarnBPMHeuristic: no explicit BPM was given, the grid BPM is a
	// best-effort estimate.
	WarnBPMHeuristic WarningCode = "BPM_ESTIMATED"
)

// Warning is a recoverable anomaly recorded on the conversion report.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Line    int         `json:"line,omitempty"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s: %s (line=%d)", w.Code, w.Message, w.Line)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// Warnf builds a Warning with a formatted message.
func Warnf(code WarningCode, line int, format string, args ...any) Warning {
	return Warning{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}
