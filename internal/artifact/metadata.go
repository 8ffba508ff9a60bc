package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// Metadata is the sidecar record written next to each artifact. For full
// artifacts it carries the capture coordinate, which lets restore verify that
// an incremental's window is actually anchored at the full being applied
// instead of trusting file-name chronology.
type Metadata struct {
	Database        string            `json:"database"`
	Kind            Kind              `json:"kind"`
	CreatedAt       time.Time         `json:"created_at"`
	RunID           string            `json:"run_id"`
	ToolVersion     string            `json:"tool_version"`
	Coordinate      binlog.Coordinate `json:"coordinate"`                 // full: position at the dump's consistency point
	StartCoordinate binlog.Coordinate `json:"start_coordinate,omitempty"` // incremental: window lower bound
	StopCoordinate  binlog.Coordinate `json:"stop_coordinate,omitempty"`  // incremental: window upper bound
	Segments        []string          `json:"segments,omitempty"`         // incremental: resolved segment list
	Size            int64             `json:"size"`
	CompressedSize  int64             `json:"compressed_size"`
	Compression     string            `json:"compression"`
	Checksum        string            `json:"checksum"`
}

// Validate checks the fields every sidecar must carry
func (m *Metadata) Validate() error {
	if m.Database == "" {
		return apperrors.NewValidationError("artifact metadata is missing the database name", nil)
	}
	if m.Kind != KindFull && m.Kind != KindIncremental {
		return apperrors.NewValidationError(fmt.Sprintf("invalid artifact kind %q", m.Kind), nil)
	}
	if m.CreatedAt.IsZero() {
		return apperrors.NewValidationError("artifact metadata is missing the creation timestamp", nil)
	}
	return nil
}

// WriteMetadata persists the sidecar next to the artifact, temp-then-rename.
func WriteMetadata(artifactPath string, meta *Metadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.NewValidationError("failed to serialize artifact metadata", err)
	}

	target := MetadataPath(artifactPath)
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return apperrors.WrapError(err, "failed to create temporary metadata file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to write artifact metadata")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to close artifact metadata")
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to publish artifact metadata")
	}

	return nil
}

// LoadMetadata reads an artifact's sidecar. Returns (nil, nil) when the
// sidecar does not exist: artifacts written by earlier tooling have none and
// callers degrade gracefully.
func LoadMetadata(artifactPath string) (*Metadata, error) {
	data, err := os.ReadFile(MetadataPath(artifactPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.WrapError(err, "failed to read artifact metadata")
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.NewValidationError("corrupt artifact metadata", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return &meta, nil
}
