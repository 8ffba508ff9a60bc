// Package artifact names, discovers and selects backup artifacts on disk.
//
// Layout per database under the backup root:
//
//	<root>/<db>/<db>_full_<timestamp>.sql[.gz|.lz4|.zst]
//	<root>/<db>/<db>_inc_<timestamp>.sql[.gz|.lz4|.zst]
//	<root>/<db>/<db>_full_<timestamp>.meta.json
//	<root>/<db>/full_start.txt
//	<root>/<db>/table_info_full.txt
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// Kind distinguishes full snapshots from incremental log captures
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "inc"
)

// TimestampLayout is the fixed-width timestamp embedded in artifact names.
const TimestampLayout = "20060102150405"

// CensusFileName is the per-database table census written at full capture.
const CensusFileName = "table_info_full.txt"

// Artifact describes one capture output file
type Artifact struct {
	Database   string
	Kind       Kind
	Timestamp  time.Time
	Path       string
	Compressed bool
}

var nameRe = regexp.MustCompile(`^(.+)_(full|inc)_(\d{14})\.sql((?:\.(?:gz|lz4|zst))?)$`)

// Dir returns the artifact directory for a database
func Dir(root, database string) string {
	return filepath.Join(root, database)
}

// Filename builds an artifact file name from its parts. ext is the
// compression suffix including the dot, or empty for an uncompressed dump.
func Filename(database string, kind Kind, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_%s_%s.sql%s", database, kind, ts.UTC().Format(TimestampLayout), ext)
}

// Parse interprets a file name inside a database's artifact directory.
// Returns false for names that are not artifacts (state file, census,
// metadata sidecars, temp files).
func Parse(database, name string) (Artifact, bool) {
	matches := nameRe.FindStringSubmatch(name)
	if matches == nil || matches[1] != database {
		return Artifact{}, false
	}

	ts, err := time.Parse(TimestampLayout, matches[3])
	if err != nil {
		return Artifact{}, false
	}

	return Artifact{
		Database:   database,
		Kind:       Kind(matches[2]),
		Timestamp:  ts,
		Compressed: matches[4] != "",
	}, true
}

// MetadataPath returns the sidecar path for an artifact file
func MetadataPath(artifactPath string) string {
	name := filepath.Base(artifactPath)
	if i := strings.Index(name, ".sql"); i >= 0 {
		name = name[:i]
	}
	return filepath.Join(filepath.Dir(artifactPath), name+".meta.json")
}

// Latest returns the artifact of the given kind with the maximum embedded
// timestamp for a database, or nil if none exists. Absence is a normal state,
// not an error. Selection parses the timestamp into a structured value; it
// never depends on directory listing order or lexical file name sort.
func Latest(root, database string, kind Kind) (*Artifact, error) {
	dir := Dir(root, database)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.WrapError(err, fmt.Sprintf("failed to read artifact directory for %s", database))
	}

	var latest *Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		art, ok := Parse(database, entry.Name())
		if !ok || art.Kind != kind {
			continue
		}
		art.Path = filepath.Join(dir, entry.Name())
		if latest == nil || art.Timestamp.After(latest.Timestamp) {
			a := art
			latest = &a
		}
	}

	return latest, nil
}

// LatestFull returns the newest full artifact for a database, or nil.
func LatestFull(root, database string) (*Artifact, error) {
	return Latest(root, database, KindFull)
}

// LatestIncremental returns the newest incremental artifact for a database,
// or nil.
func LatestIncremental(root, database string) (*Artifact, error) {
	return Latest(root, database, KindIncremental)
}

// ListDatabases returns the database names that have an artifact directory
// under the backup root, sorted by name.
func ListDatabases(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.WrapError(err, "failed to read backup root")
	}

	var databases []string
	for _, entry := range entries {
		if entry.IsDir() {
			databases = append(databases, entry.Name())
		}
	}
	return databases, nil
}
