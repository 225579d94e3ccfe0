// Package subtitle parses SubStation Alpha karaoke files into timed
// syllable events.
//
// Only the [Events] section matters for conversion. Within it the parser
// prefers Comment events over Dialogue (karaoke hosts author the sung
// timing on Comment lines), falls back to Dialogue when no Comments exist,
// and extracts per-syllable timing from inline {\k} override tags. All
// timing is converted to absolute milliseconds from song start; downstream
// stages never see centiseconds or per-line offsets.
package subtitle
