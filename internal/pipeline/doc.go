// Package pipeline wires the conversion stages together: subtitle parsing,
// beat grid resolution, note synthesis, duration adjustment and chart
// assembly. Convert is the single entry point; everything underneath it is
// a pure function of the inputs, so the same subtitle bytes and options
// always produce the same chart.
package pipeline
