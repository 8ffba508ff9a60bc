package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/artifact"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/display"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
)

// RestoreResult summarizes one restore run
type RestoreResult struct {
	Restored []string
	Skipped  []string
	Failed   []string
	Duration time.Duration
}

// Restore replays artifacts from the backup root into the server
type Restore struct {
	client         DatabaseClient
	engine         CaptureEngine
	root           string
	validateWindow bool
	logger         *logging.Logger
	printer        *display.StatusPrinter
	now            func() time.Time
}

// NewRestore creates a restore orchestrator. When validateWindow is set the
// incremental's recorded window is checked against the full's coordinate
// before replay.
func NewRestore(client DatabaseClient, engine CaptureEngine, root string, validateWindow bool, logger *logging.Logger, printer *display.StatusPrinter) *Restore {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if printer == nil {
		printer = display.NewStatusPrinter(true)
	}
	return &Restore{
		client:         client,
		engine:         engine,
		root:           root,
		validateWindow: validateWindow,
		logger:         logger,
		printer:        printer,
		now:            time.Now,
	}
}

// Run restores the named databases, or every database found under the backup
// root when targets is empty. Databases without a full artifact are reported
// and skipped; failures on one database do not stop the others.
func (r *Restore) Run(ctx context.Context, targets []string) (*RestoreResult, error) {
	started := r.now()

	databases := targets
	if len(databases) == 0 {
		var err error
		databases, err = artifact.ListDatabases(r.root)
		if err != nil {
			return nil, err
		}
	}
	if len(databases) == 0 {
		r.printer.Warnf("no databases found under backup root %s", r.root)
		return &RestoreResult{Duration: r.now().Sub(started)}, nil
	}

	result := &RestoreResult{}
	for _, db := range databases {
		restored, err := r.restoreOne(ctx, db)
		switch {
		case err != nil:
			r.logger.WithField("database", db).Errorf("Restore failed: %v", err)
			r.printer.Errorf("%s: %v", db, err)
			result.Failed = append(result.Failed, db)
		case restored:
			result.Restored = append(result.Restored, db)
		default:
			result.Skipped = append(result.Skipped, db)
		}
	}

	result.Duration = r.now().Sub(started)
	if len(result.Failed) > 0 {
		return result, apperrors.NewCaptureError(
			fmt.Sprintf("restore failed for %d of %d databases", len(result.Failed), len(databases)), nil)
	}
	return result, nil
}

// restoreOne replays one database. The returned bool reports whether anything
// was applied; a database with no full artifact is a skip, not a failure.
func (r *Restore) restoreOne(ctx context.Context, db string) (bool, error) {
	started := r.now()

	full, err := artifact.LatestFull(r.root, db)
	if err != nil {
		return false, err
	}
	if full == nil {
		missing := apperrors.NewRestoreArtifactMissingError(db)
		r.logger.LogRestoreSkipped(db, missing.Message)
		r.printer.Errorf("%s: %s", db, missing.Message)
		return false, nil
	}

	if err := r.client.DropAndCreateDatabase(ctx, db); err != nil {
		return false, err
	}

	if err := r.engine.ApplyArtifact(ctx, db, full.Path); err != nil {
		return false, err
	}

	inc, err := artifact.LatestIncremental(r.root, db)
	if err != nil {
		return false, err
	}

	applied := false
	if inc != nil {
		if err := r.checkWindow(db, full, inc); err != nil {
			return false, err
		}
		if err := r.engine.ApplyArtifact(ctx, db, inc.Path); err != nil {
			return false, err
		}
		applied = true
	}

	r.logger.LogRestoreComplete(db, applied, r.now().Sub(started), nil)
	if applied {
		r.printer.Successf("%s: restored full %s plus incremental %s",
			db, full.Timestamp.Format(artifact.TimestampLayout), inc.Timestamp.Format(artifact.TimestampLayout))
	} else {
		r.printer.Successf("%s: restored full %s (no incremental present)",
			db, full.Timestamp.Format(artifact.TimestampLayout))
	}
	return true, nil
}

// checkWindow verifies that the incremental's window starts at the coordinate
// the full was taken at. Artifacts without sidecars predate the metadata
// format; those are applied with a warning since file-name chronology is the
// only evidence available.
func (r *Restore) checkWindow(db string, full, inc *artifact.Artifact) error {
	if !r.validateWindow {
		return nil
	}

	fullMeta, err := artifact.LoadMetadata(full.Path)
	if err != nil {
		return err
	}
	incMeta, err := artifact.LoadMetadata(inc.Path)
	if err != nil {
		return err
	}

	if fullMeta == nil || incMeta == nil || fullMeta.Coordinate.IsZero() || incMeta.StartCoordinate.IsZero() {
		r.printer.Warnf("%s: artifact metadata incomplete, applying incremental without window validation", db)
		return nil
	}

	if incMeta.StartCoordinate.Compare(fullMeta.Coordinate) != 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("incremental for %s starts at %s but the full was captured at %s; refusing to replay a mismatched window",
				db, incMeta.StartCoordinate, fullMeta.Coordinate), nil)
	}
	return nil
}
