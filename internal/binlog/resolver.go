package binlog

import (
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// Window is an incremental capture interval over the binary log, bounded by
// the baseline recorded at the last full capture and the server's current
// position.
type Window struct {
	Start Coordinate
	Stop  Coordinate
}

// Validate rejects windows that run backwards. Start == Stop is legal: it
// resolves to the single segment holding both coordinates and yields a valid
// (possibly empty) incremental.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.Stop.IsZero() {
		return apperrors.NewValidationError("incremental window bounds must both be set", nil)
	}
	if w.Start.Compare(w.Stop) > 0 {
		return apperrors.NewValidationError(
			"incremental window start "+w.Start.String()+" is after stop "+w.Stop.String(), nil)
	}
	return nil
}

// ResolveWindow maps a window onto the server's current ordered segment list
// and returns the exact contiguous run of segment names to read, inclusive of
// both bounds. The list is a snapshot taken at call time; rotation between the
// full capture and this call is expected and handled.
//
// A missing start segment means it has been purged and the window can no
// longer be reconstructed (ErrorTypeSegmentNotFound; a full recapture is
// required). A stop segment that is never reached while scanning to the end of
// the list means the caller supplied an inconsistent pair
// (ErrorTypeWindowUnresolved); this is never silently truncated to
// "everything to the end".
func ResolveWindow(segments []string, window Window) ([]string, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	start := -1
	for i, name := range segments {
		if name == window.Start.Segment {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, apperrors.NewSegmentNotFoundError(window.Start.Segment)
	}

	for i := start; i < len(segments); i++ {
		if segments[i] == window.Stop.Segment {
			resolved := make([]string, i-start+1)
			copy(resolved, segments[start:i+1])
			return resolved, nil
		}
	}

	return nil, apperrors.NewWindowUnresolvedError(window.Start.Segment, window.Stop.Segment)
}
