// Package orchestrator sequences backup and restore runs across databases.
// The backup side decides, per database, between a full snapshot and an
// incremental log capture; the restore side replays the newest full and the
// newest incremental on top of it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/artifact"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/display"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/state"
)

// Action is the capture decision for one database
type Action int

const (
	ActionFull Action = iota
	ActionIncremental
)

func (a Action) String() string {
	if a == ActionFull {
		return "full"
	}
	return "incremental"
}

// DatabaseState is the input to the per-database capture decision
type DatabaseState struct {
	HasFull         bool
	BaselineAge     time.Duration
	ForceFull       bool
	RebaselineAfter time.Duration
}

// NextAction picks the capture kind for a database. Without a baseline the
// only possible capture is a full. With one, incrementals continue until the
// operator forces a re-baseline or the baseline outlives the configured age.
func NextAction(s DatabaseState) Action {
	if !s.HasFull || s.ForceFull {
		return ActionFull
	}
	if s.RebaselineAfter > 0 && s.BaselineAge >= s.RebaselineAfter {
		return ActionFull
	}
	return ActionIncremental
}

// Policy holds the run-level backup knobs
type Policy struct {
	ForceFull       bool
	RebaselineAfter time.Duration
	ContinueOnError bool
}

// BackupResult summarizes one backup run
type BackupResult struct {
	Fulls        int
	Incrementals int
	Failed       []string
	Duration     time.Duration
}

// Backup walks every user database on the server and captures each one
type Backup struct {
	client  DatabaseClient
	engine  CaptureEngine
	store   PositionStore
	root    string
	policy  Policy
	logger  *logging.Logger
	printer *display.StatusPrinter
	now     func() time.Time
}

// NewBackup creates a backup orchestrator
func NewBackup(client DatabaseClient, engine CaptureEngine, store PositionStore, root string, policy Policy, logger *logging.Logger, printer *display.StatusPrinter) *Backup {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if printer == nil {
		printer = display.NewStatusPrinter(true)
	}
	return &Backup{
		client:  client,
		engine:  engine,
		store:   store,
		root:    root,
		policy:  policy,
		logger:  logger,
		printer: printer,
		now:     time.Now,
	}
}

// Run captures every user database on the server. A state inconsistency is
// always fatal for the whole run; other per-database failures abort the batch
// unless the policy says to continue, in which case they are collected and
// reported at the end.
func (b *Backup) Run(ctx context.Context) (*BackupResult, error) {
	started := b.now()

	databases, err := b.client.ListUserDatabases(ctx)
	if err != nil {
		return nil, err
	}
	if len(databases) == 0 {
		b.printer.Warnf("no user databases found on server")
		return &BackupResult{Duration: b.now().Sub(started)}, nil
	}

	result := &BackupResult{}
	for _, db := range databases {
		action, err := b.backupOne(ctx, db)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeStateInconsistency) || !b.policy.ContinueOnError {
				return nil, err
			}
			b.logger.WithField("database", db).Errorf("Backup failed: %v", err)
			b.printer.Errorf("%s: %v", db, err)
			result.Failed = append(result.Failed, db)
			continue
		}
		if action == ActionFull {
			result.Fulls++
		} else {
			result.Incrementals++
		}
	}

	result.Duration = b.now().Sub(started)
	if len(result.Failed) > 0 {
		return result, apperrors.NewCaptureError(
			fmt.Sprintf("backup failed for %d of %d databases", len(result.Failed), len(databases)), nil)
	}
	return result, nil
}

func (b *Backup) backupOne(ctx context.Context, db string) (Action, error) {
	full, err := artifact.LatestFull(b.root, db)
	if err != nil {
		return 0, err
	}

	baseline, loadErr := b.store.Load(db)
	missing := errors.Is(loadErr, state.ErrNotFound)
	if loadErr != nil && !missing {
		return 0, loadErr
	}

	// A full artifact without a position record means the window's lower
	// bound is unknown. Guessing would produce an incremental with silent
	// gaps, so the run stops here.
	if full != nil && missing {
		return 0, apperrors.NewStateInconsistencyError(db, loadErr)
	}

	st := DatabaseState{
		HasFull:         full != nil && !missing,
		ForceFull:       b.policy.ForceFull,
		RebaselineAfter: b.policy.RebaselineAfter,
	}
	if full != nil {
		st.BaselineAge = b.now().UTC().Sub(full.Timestamp)
	}

	action := NextAction(st)
	if action == ActionFull {
		return action, b.captureFull(ctx, db, baseline, !missing)
	}
	return action, b.captureIncremental(ctx, db, baseline)
}

func (b *Backup) captureFull(ctx context.Context, db string, previous binlog.Coordinate, hadBaseline bool) error {
	res, err := b.engine.CaptureFull(ctx, db)
	if err != nil {
		return err
	}

	// The binary log only grows, so a re-baseline must never move the
	// recorded position backwards.
	if hadBaseline && res.Coordinate.Compare(previous) < 0 {
		return apperrors.NewCaptureError(
			fmt.Sprintf("capture coordinate %s is behind the recorded baseline %s for %s; was the binary log reset?",
				res.Coordinate, previous, db), nil)
	}

	if err := b.store.Save(db, res.Coordinate); err != nil {
		return err
	}

	from := "NoFull"
	if hadBaseline {
		from = "HasFull"
	}
	b.logger.LogStateTransition(db, from, "HasFull", res.Coordinate.String())
	b.printer.Successf("%s: full backup captured at %s", db, res.Coordinate)
	return nil
}

func (b *Backup) captureIncremental(ctx context.Context, db string, baseline binlog.Coordinate) error {
	current, err := b.client.CurrentCoordinate(ctx)
	if err != nil {
		return err
	}

	window := binlog.Window{Start: baseline, Stop: current}
	if err := window.Validate(); err != nil {
		return err
	}

	segments, err := b.client.ListBinaryLogs(ctx)
	if err != nil {
		return err
	}

	resolved, err := binlog.ResolveWindow(segments, window)
	if err != nil {
		return err
	}
	b.logger.LogWindowResolved(db, resolved, window.Start.String(), window.Stop.String())

	path, _, err := b.engine.CaptureIncremental(ctx, db, resolved, window)
	if err != nil {
		return err
	}

	// The baseline stays at the full's coordinate. Each incremental covers
	// the entire span since the full, so the newest one is sufficient on
	// its own at restore time.
	b.printer.Successf("%s: incremental captured through %s (%s)", db, current, path)
	return nil
}
