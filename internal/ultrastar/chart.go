package ultrastar

// NoteKind classifies a chart note.
type NoteKind string

const (
	KindRegular   NoteKind = "regular"
	KindGolden    NoteKind = "golden"
	KindFreestyle NoteKind = "freestyle"
	KindRest      NoteKind = "rest"
)

// ValidNoteKinds defines the kinds the encoder accepts.
var ValidNoteKinds = map[NoteKind]bool{
	KindRegular:   true,
	KindGolden:    true,
	KindFreestyle: true,
	KindRest:      true,
}

// sigil returns the chart line prefix for the kind.
func (k NoteKind) sigil() (string, bool) {
	switch k {
	case KindRegular:
		return ":", true
	case KindGolden:
		return "*", true
	case KindFreestyle:
		return "F", true
	case KindRest:
		return "R", true
	}
	return "", false
}

// Note is one chart entry positioned on the beat grid.
// Length is in beats; it is >= 1 for every kind except rests,
// which may be zero-length markers.
type Note struct {
	StartBeat int64    `json:"start_beat"`
	Length    int64    `json:"length_beats"`
	Pitch     int      `json:"pitch"`
	Text      string   `json:"text"`
	Kind      NoteKind `json:"kind"`
}

// EndBeat returns the first beat after the note.
func (n Note) EndBeat() int64 {
	return n.StartBeat + n.Length
}

// Line groups the notes that display together, closed by a break marker
// at BreakBeat. BreakBeat never precedes the end of the line's last note.
type Line struct {
	Notes     []Note `json:"notes"`
	BreakBeat int64  `json:"break_beat"`
}

// Chart is a complete song: header metadata plus ordered lines.
// BPM is the effective grid BPM (base BPM multiplied by the grid
// resolution), so beat values in the note lines are exact at this rate.
type Chart struct {
	Title  string  `json:"title"`
	Artist string  `json:"artist"`
	BPM    float64 `json:"bpm"`
	GapMS  int64   `json:"gap_ms"`

	// Optional header tags, emitted only when non-empty.
	Language   string `json:"language,omitempty"`
	Creator    string `json:"creator,omitempty"`
	Comment    string `json:"comment,omitempty"`
	MP3        string `json:"mp3,omitempty"`
	Cover      string `json:"cover,omitempty"`
	Background string `json:"background,omitempty"`
	Video      string `json:"video,omitempty"`

	Lines []Line `json:"lines"`
}

// NoteCount returns the number of sung (non-rest) notes.
func (c *Chart) NoteCount() int {
	n := 0
	for _, line := range c.Lines {
		for _, note := range line.Notes {
			if note.Kind != KindRest {
				n++
			}
		}
	}
	return n
}

// RestCount returns the number of rest notes.
func (c *Chart) RestCount() int {
	n := 0
	for _, line := range c.Lines {
		for _, note := range line.Notes {
			if note.Kind == KindRest {
				n++
			}
		}
	}
	return n
}

// LastBeat returns the end beat of the final note, or 0 for an empty chart.
func (c *Chart) LastBeat() int64 {
	var last int64
	for _, line := range c.Lines {
		for _, note := range line.Notes {
			if end := note.EndBeat(); end > last {
				last = end
			}
		}
	}
	return last
}
