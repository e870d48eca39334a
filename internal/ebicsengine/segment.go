package ebicsengine

import "math"

// SegmentSize is the fixed EBICS H004 segment length, in Base64-encoded
// bytes (spec.md §4.5).
const SegmentSize = 4096

// NumSegments returns the segment count for a Base64 payload of the
// given length: ceil(length / SegmentSize), minimum 1 so an empty
// payload still occupies one segment.
func NumSegments(encodedLength int) int {
	if encodedLength == 0 {
		return 1
	}
	return int(math.Ceil(float64(encodedLength) / float64(SegmentSize)))
}

// Segment returns the 1-indexed segment of encoded, or an error if
// segmentNumber is out of range.
func Segment(encoded []byte, segmentNumber, numSegments int) ([]byte, error) {
	if segmentNumber < 1 || segmentNumber > numSegments {
		return nil, fail(CodeNoData, "segment %d out of range [1,%d]", segmentNumber, numSegments)
	}
	start := (segmentNumber - 1) * SegmentSize
	if start > len(encoded) {
		return nil, fail(CodeNoData, "segment %d starts past end of payload", segmentNumber)
	}
	end := start + SegmentSize
	if end > len(encoded) {
		end = len(encoded)
	}
	return encoded[start:end], nil
}
