package binlog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Coordinate identifies a position in the server's binary log: a segment
// (binlog file) name plus a byte offset within it. Coordinates order first by
// the segment's numeric suffix, then by offset.
type Coordinate struct {
	Segment string `json:"segment"`
	Offset  uint64 `json:"offset"`
}

// String renders the coordinate in the on-disk state file format.
func (c Coordinate) String() string {
	return fmt.Sprintf("%s %d", c.Segment, c.Offset)
}

// IsZero reports whether the coordinate is unset.
func (c Coordinate) IsZero() bool {
	return c.Segment == "" && c.Offset == 0
}

// Compare returns -1 if c is before other, 0 if equal, 1 if after.
func (c Coordinate) Compare(other Coordinate) int {
	if d := CompareSegments(c.Segment, other.Segment); d != 0 {
		return d
	}
	switch {
	case c.Offset < other.Offset:
		return -1
	case c.Offset > other.Offset:
		return 1
	default:
		return 0
	}
}

// ParseCoordinate parses a "<segment> <offset>" pair as stored in the
// position file.
func ParseCoordinate(s string) (Coordinate, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return Coordinate{}, fmt.Errorf("invalid log coordinate %q (expected \"<segment> <offset>\")", s)
	}

	offset, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid log offset %q: %w", fields[1], err)
	}

	return Coordinate{Segment: fields[0], Offset: offset}, nil
}

var segmentSuffixRe = regexp.MustCompile(`\.(\d+)$`)

// SegmentSequence extracts the rotation sequence number from a binlog segment
// name such as "mysql-bin.000042". Names without a numeric suffix yield -1.
func SegmentSequence(name string) int {
	matches := segmentSuffixRe.FindStringSubmatch(name)
	if len(matches) < 2 {
		return -1
	}
	seq, err := strconv.Atoi(matches[1])
	if err != nil {
		return -1
	}
	return seq
}

// CompareSegments orders two segment names by their numeric suffix, falling
// back to lexical order when either lacks one.
func CompareSegments(a, b string) int {
	seqA, seqB := SegmentSequence(a), SegmentSequence(b)
	if seqA >= 0 && seqB >= 0 {
		switch {
		case seqA < seqB:
			return -1
		case seqA > seqB:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
