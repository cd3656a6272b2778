// Package keyframe maps a [start, end) frame interval to the smallest
// keyframe-aligned byte range that a decoder needs to be self-contained.
package keyframe

import (
	"fmt"

	"github.com/e7canasta/videobatch/internal/enginerr"
)

// Locate returns (startIdx, endIdx) into positions such that:
//
//	positions[startIdx] <= start (greatest such index)
//	positions[endIdx] >= end (least such index)
//
// positions must be monotonically increasing and carry a trailing
// sentinel equal to the video's total frame count.
func Locate(start, end int, positions []int) (startIdx, endIdx int, err error) {
	if len(positions) == 0 {
		return 0, 0, enginerr.CorruptMetadataf("keyframe: empty keyframe position list")
	}
	if start < 0 || end < start {
		return 0, 0, enginerr.CorruptMetadataf("keyframe: invalid interval [%d,%d)", start, end)
	}

	startIdx = -1
	for i := len(positions) - 1; i >= 0; i-- {
		if positions[i] <= start {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return 0, 0, enginerr.CorruptMetadataf(
			"keyframe: no keyframe at or before start=%d (first keyframe=%d)", start, positions[0])
	}

	endIdx = -1
	for i := 0; i < len(positions); i++ {
		if positions[i] >= end {
			endIdx = i
			break
		}
	}
	if endIdx == -1 {
		return 0, 0, enginerr.CorruptMetadataf(
			"keyframe: no keyframe at or after end=%d (last keyframe=%d)", end, positions[len(positions)-1])
	}

	return startIdx, endIdx, nil
}

// ByteRange resolves a (startIdx, endIdx) keyframe index pair to the
// [startOffset, endOffset) byte range a reader should fetch, given the
// matching keyframe byte-offset array (with its own trailing sentinel).
func ByteRange(startIdx, endIdx int, offsets []int64) (start, end int64, err error) {
	if startIdx < 0 || endIdx >= len(offsets) || startIdx > endIdx {
		return 0, 0, enginerr.CorruptMetadataf(
			"keyframe: byte-offset indices out of range (start=%d end=%d len=%d)",
			startIdx, endIdx, len(offsets))
	}
	return offsets[startIdx], offsets[endIdx], nil
}

// String formats a keyframe index pair for debugging output.
func String(startIdx, endIdx int) string {
	return fmt.Sprintf("kf[%d,%d]", startIdx, endIdx)
}
