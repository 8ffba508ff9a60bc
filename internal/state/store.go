// Package state persists the per-database backup position record: the binary
// log coordinate captured at the most recent full backup, which bounds every
// subsequent incremental window until the next full capture overwrites it.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// PositionFileName is the per-database position record under the artifact
// directory.
const PositionFileName = "full_start.txt"

// ErrNotFound is returned by Load for a database that has never completed a
// full capture. Callers must distinguish it from I/O faults.
var ErrNotFound = errors.New("no position record for database")

// Store reads and writes position records under a backup root, one record per
// database.
type Store struct {
	root        string
	permissions os.FileMode
}

// NewStore creates a position store rooted at the backup directory.
func NewStore(root string) *Store {
	return &Store{root: root, permissions: 0o755}
}

// Save persists the coordinate for a database, overwriting any prior record.
// The record is written to a temporary file and published by rename so a
// concurrent reader never observes a partially written coordinate.
func (s *Store) Save(database string, coord binlog.Coordinate) error {
	if coord.IsZero() {
		return apperrors.NewValidationError("refusing to persist an unset log coordinate", nil)
	}

	dir := filepath.Join(s.root, database)
	if err := os.MkdirAll(dir, s.permissions); err != nil {
		return apperrors.WrapError(err, fmt.Sprintf("failed to create artifact directory for %s", database))
	}

	tmp, err := os.CreateTemp(dir, PositionFileName+".tmp-*")
	if err != nil {
		return apperrors.WrapError(err, "failed to create temporary position file")
	}
	tmpName := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%s\n", coord.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to write position record")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to sync position record")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to close position record")
	}

	if err := os.Rename(tmpName, s.Path(database)); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to publish position record")
	}

	return nil
}

// Load reads the coordinate recorded for a database. A missing record returns
// ErrNotFound; a record that exists but cannot be parsed is surfaced as a
// validation error so corruption is detectable rather than silently treated
// as absent.
func (s *Store) Load(database string) (binlog.Coordinate, error) {
	data, err := os.ReadFile(s.Path(database))
	if err != nil {
		if os.IsNotExist(err) {
			return binlog.Coordinate{}, fmt.Errorf("%w: %s", ErrNotFound, database)
		}
		return binlog.Coordinate{}, apperrors.WrapError(err, fmt.Sprintf("failed to read position record for %s", database))
	}

	coord, err := binlog.ParseCoordinate(string(data))
	if err != nil {
		return binlog.Coordinate{}, apperrors.NewValidationError(
			fmt.Sprintf("corrupt position record for %s", database), err)
	}

	return coord, nil
}

// Path returns the position record path for a database.
func (s *Store) Path(database string) string {
	return filepath.Join(s.root, database, PositionFileName)
}
