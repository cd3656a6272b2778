package model

// VideoMetadata describes one video file enough for keyframe-aligned
// byte-range reads. It is consumed, not owned, by the core: the
// metadata-ingest path that produces it is out of scope.
//
// KeyframePositions is monotonically increasing; its last entry is
// assumed to be a synthetic sentinel equal to Frames. KeyframeByteOffsets
// carries a matching sentinel equal to the file size. Callers that load
// metadata without these sentinels must append them —
// EnsureSentinels does that in place.
type VideoMetadata struct {
	Path string
	Frames int
	Width int
	Height int
	KeyframePositions []int
	KeyframeByteOffsets []int64
	FileSize int64
}

// EnsureSentinels appends the trailing Frames/FileSize sentinels to
// KeyframePositions/KeyframeByteOffsets if the caller didn't already
// include them.
func (m *VideoMetadata) EnsureSentinels() {
	n := len(m.KeyframePositions)
	if n == 0 || m.KeyframePositions[n-1] != m.Frames {
		m.KeyframePositions = append(m.KeyframePositions, m.Frames)
	}
	n = len(m.KeyframeByteOffsets)
	if n == 0 || m.KeyframeByteOffsets[n-1] != m.FileSize {
		m.KeyframeByteOffsets = append(m.KeyframeByteOffsets, m.FileSize)
	}
}
