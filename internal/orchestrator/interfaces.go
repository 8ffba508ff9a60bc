package orchestrator

import (
	"context"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/artifact"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/capture"
)

// DatabaseClient exposes the server-side queries the orchestrators need
type DatabaseClient interface {
	ListUserDatabases(ctx context.Context) ([]string, error)
	CurrentCoordinate(ctx context.Context) (binlog.Coordinate, error)
	ListBinaryLogs(ctx context.Context) ([]string, error)
	DropAndCreateDatabase(ctx context.Context, database string) error
}

// CaptureEngine produces and applies artifacts
type CaptureEngine interface {
	CaptureFull(ctx context.Context, database string) (*capture.FullResult, error)
	CaptureIncremental(ctx context.Context, database string, segments []string, window binlog.Window) (string, *artifact.Metadata, error)
	ApplyArtifact(ctx context.Context, database, artifactPath string) error
}

// PositionStore persists the per-database baseline coordinate
type PositionStore interface {
	Save(database string, coord binlog.Coordinate) error
	Load(database string) (binlog.Coordinate, error)
}
