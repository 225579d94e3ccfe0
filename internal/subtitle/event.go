package subtitle

// Event is one sung syllable with absolute millisecond timing. The parsed
// sequence for a song is ordered by StartMS and immutable once built.
type Event struct {
	StartMS        int64  `json:"start_ms"`
	EndMS          int64  `json:"end_ms"`
	Text           string `json:"text"`
	LineBreakAfter bool   `json:"line_break_after"`
}

// DurationMS returns the syllable's sung duration.
func (e Event) DurationMS() int64 {
	return e.EndMS - e.StartMS
}
