package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
)

// systemSchemas are never backed up or restored
var systemSchemas = map[string]bool{
	"information_schema": true,
	"mysql":              true,
	"performance_schema": true,
	"sys":                true,
}

// TableCount is one row of the per-database table census taken at full
// capture time.
type TableCount struct {
	Database string
	Table    string
	Rows     int64
}

// Service exposes the server-side operations the backup and restore engines
// need: schema enumeration, binary log introspection, census queries and
// schema recreation.
type Service struct {
	db      *sql.DB
	timeout time.Duration
	logger  *logging.Logger
}

// NewService connects to the server and returns a Service. The connection is
// pooled and verified with a ping before use.
func NewService(config Config, logger *logging.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid database configuration", err)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	startTime := time.Now()
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, apperrors.NewConnectionError("failed to open database connection", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err = db.PingContext(ctx)
	logger.LogDatabaseConnection(config.Host, err == nil, time.Since(startTime), err)
	if err != nil {
		db.Close()
		return nil, apperrors.NewConnectionError("failed to ping database", err)
	}

	return &Service{db: db, timeout: timeout, logger: logger}, nil
}

// NewServiceWithDB wraps an existing connection; used by tests.
func NewServiceWithDB(db *sql.DB, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{db: db, timeout: 30 * time.Second, logger: logger}
}

// Close releases the underlying connection pool
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ListUserDatabases returns all non-system schemas on the server, sorted.
func (s *Service) ListUserDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, apperrors.NewSQLError("failed to list databases", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewSQLError("failed to scan database name", err)
		}
		if !systemSchemas[name] {
			databases = append(databases, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSQLError("failed to iterate database list", err)
	}

	sort.Strings(databases)
	return databases, nil
}

// CurrentCoordinate returns the server's current binary log position. The
// column set of SHOW MASTER STATUS varies between server versions, so only
// the leading File and Position columns are read.
func (s *Service) CurrentCoordinate(ctx context.Context) (binlog.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SHOW MASTER STATUS")
	if err != nil {
		return binlog.Coordinate{}, apperrors.NewSQLError("failed to query binary log position", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return binlog.Coordinate{}, apperrors.NewSQLError("failed to read binary log position", err)
		}
		return binlog.Coordinate{}, apperrors.NewPreflightError(
			"server reported no binary log position; is binary logging enabled?", nil)
	}

	cols, err := rows.Columns()
	if err != nil {
		return binlog.Coordinate{}, apperrors.NewSQLError("failed to read result columns", err)
	}

	values := make([]interface{}, len(cols))
	var file string
	var position uint64
	values[0] = &file
	if len(cols) > 1 {
		values[1] = &position
	}
	for i := 2; i < len(cols); i++ {
		values[i] = new(sql.RawBytes)
	}

	if err := rows.Scan(values...); err != nil {
		return binlog.Coordinate{}, apperrors.NewSQLError("failed to scan binary log position", err)
	}

	return binlog.Coordinate{Segment: file, Offset: position}, nil
}

// ListBinaryLogs returns the ordered list of binary log segment names
// currently known to the server, oldest first.
func (s *Service) ListBinaryLogs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SHOW BINARY LOGS")
	if err != nil {
		return nil, apperrors.NewSQLError("failed to list binary logs", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewSQLError("failed to read result columns", err)
	}

	var segments []string
	for rows.Next() {
		values := make([]interface{}, len(cols))
		var name string
		values[0] = &name
		for i := 1; i < len(cols); i++ {
			values[i] = new(sql.RawBytes)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, apperrors.NewSQLError("failed to scan binary log entry", err)
		}
		segments = append(segments, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSQLError("failed to iterate binary log list", err)
	}

	// The server returns segments in order, but rotation sequence is the
	// contract the resolver depends on.
	sort.Slice(segments, func(i, j int) bool {
		return binlog.CompareSegments(segments[i], segments[j]) < 0
	})

	return segments, nil
}

// BinaryLoggingEnabled reports whether the server has binary logging on.
func (s *Service) BinaryLoggingEnabled(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var enabled bool
	if err := s.db.QueryRowContext(ctx, "SELECT @@log_bin").Scan(&enabled); err != nil {
		return false, apperrors.NewSQLError("failed to query log_bin", err)
	}
	return enabled, nil
}

// TableRowCounts returns the census of tables and approximate row counts for
// one schema, ordered by table name.
func (s *Service) TableRowCounts(ctx context.Context, database string) ([]TableCount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := "SELECT table_schema, table_name, COALESCE(table_rows, 0) " +
		"FROM information_schema.tables " +
		"WHERE table_schema = ? AND table_type = 'BASE TABLE' " +
		"ORDER BY table_name"

	startTime := time.Now()
	rows, err := s.db.QueryContext(ctx, query, database)
	s.logger.LogSQLExecution(query, time.Since(startTime), err)
	if err != nil {
		return nil, apperrors.NewSQLError("failed to query table census", err)
	}
	defer rows.Close()

	var census []TableCount
	for rows.Next() {
		var tc TableCount
		if err := rows.Scan(&tc.Database, &tc.Table, &tc.Rows); err != nil {
			return nil, apperrors.NewSQLError("failed to scan table census row", err)
		}
		census = append(census, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSQLError("failed to iterate table census", err)
	}

	return census, nil
}

var identifierRe = regexp.MustCompile(`^[0-9a-zA-Z$_]+$`)

// DropAndCreateDatabase destroys and recreates a schema. This is the
// documented destructive precondition of restore; callers own the decision.
func (s *Service) DropAndCreateDatabase(ctx context.Context, database string) error {
	if !identifierRe.MatchString(database) {
		return apperrors.NewValidationError(
			fmt.Sprintf("refusing to drop database with unsafe name %q", database), nil)
	}
	if systemSchemas[database] {
		return apperrors.NewValidationError(
			fmt.Sprintf("refusing to drop system schema %q", database), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range []string{
		fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", database),
		fmt.Sprintf("CREATE DATABASE `%s`", database),
	} {
		startTime := time.Now()
		_, err := s.db.ExecContext(ctx, stmt)
		s.logger.LogSQLExecution(stmt, time.Since(startTime), err)
		if err != nil {
			return apperrors.NewSQLError(fmt.Sprintf("failed to execute %q", stmt), err)
		}
	}

	return nil
}

// GetVersion retrieves the MySQL server version
func (s *Service) GetVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", apperrors.NewSQLError("failed to get database version", err)
	}
	return version, nil
}
