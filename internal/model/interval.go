// Package model holds the data types shared across the load, evaluate,
// and save stages: intervals, work items, load entries, eval entries,
// video metadata, and evaluator capabilities.
package model

import "fmt"

// Interval is a half-open [Start, End) range of frame indices within one video.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of frames covered by the interval.
func (iv Interval) Len() int {
	if iv.End < iv.Start {
		return 0
	}
	return iv.End - iv.Start
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d)", iv.Start, iv.End)
}

// Valid reports whether the interval is well-formed (Start <= End, Start >= 0).
func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.Start <= iv.End
}
