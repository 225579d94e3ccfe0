// Package ultrastar provides the chart value types and the deterministic
// text encoder for the UltraStar song format.
//
// This package contains type definitions and serialization only. All other
// internal packages import ultrastar; ultrastar imports nothing internal.
// Charts are immutable once built: the pipeline constructs one per
// conversion and hands it to the encoder, never mutating it afterwards.
package ultrastar
