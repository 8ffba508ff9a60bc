package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/go-sql-driver/mysql"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypePreflight represents environment validation failures that abort
	// the whole run before any database is touched
	ErrorTypePreflight ErrorType = "preflight"
	// ErrorTypeStateInconsistency represents a database already past its first
	// full capture whose position record is missing
	ErrorTypeStateInconsistency ErrorType = "state_inconsistency"
	// ErrorTypeSegmentNotFound represents an incremental window whose start
	// segment has been purged from the server's binary log list
	ErrorTypeSegmentNotFound ErrorType = "segment_not_found"
	// ErrorTypeWindowUnresolved represents an inconsistent (start, stop)
	// coordinate pair that cannot be mapped onto the segment list
	ErrorTypeWindowUnresolved ErrorType = "window_unresolved"
	// ErrorTypeRestoreArtifactMissing represents a database with no full
	// artifact to restore from; non-fatal for the batch
	ErrorTypeRestoreArtifactMissing ErrorType = "restore_artifact_missing"
	// ErrorTypeCapture represents dump or log-extraction failures
	ErrorTypeCapture ErrorType = "capture"
	// ErrorTypeConnection represents database connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeSQL represents SQL execution errors
	ErrorTypeSQL ErrorType = "sql"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Common error constructors

func NewPreflightError(message string, cause error) *AppError {
	return NewAppError(ErrorTypePreflight, message, cause)
}

// NewStateInconsistencyError reports a missing position record for a database
// that already holds a full artifact. The database name is carried both in the
// message and the context so the condition can be diagnosed, never auto-healed.
func NewStateInconsistencyError(database string, cause error) *AppError {
	return NewAppError(ErrorTypeStateInconsistency,
		fmt.Sprintf("database %q has a full backup but no position record; refusing to guess the incremental window", database),
		cause).WithContext("database", database)
}

func NewSegmentNotFoundError(segment string) *AppError {
	return NewAppError(ErrorTypeSegmentNotFound,
		fmt.Sprintf("log segment %q is no longer listed by the server; a full recapture is required", segment),
		nil).WithContext("segment", segment)
}

func NewWindowUnresolvedError(start, stop string) *AppError {
	return NewAppError(ErrorTypeWindowUnresolved,
		fmt.Sprintf("stop segment %q not reachable from start segment %q in the current log list", stop, start),
		nil).WithContext("start_segment", start).WithContext("stop_segment", stop)
}

func NewRestoreArtifactMissingError(database string) *AppError {
	return NewAppError(ErrorTypeRestoreArtifactMissing,
		fmt.Sprintf("no full artifact found for database %q", database),
		nil).WithContext("database", database)
}

func NewCaptureError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeCapture, message, cause)
}

func NewConnectionError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConnection, message, cause)
}

func NewSQLError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeSQL, message, cause)
}

func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// IsType reports whether err (or anything it wraps) is an AppError of the
// given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// WrapError wraps an existing error with additional context, preserving the
// classified type of the original.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return NewAppError(appErr.Type, message, err)
	}

	classified := ClassifyError(err)
	classified.Message = message
	return classified
}

// ClassifyError analyzes an error and returns an AppError with appropriate
// classification.
func ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if mysqlErr := classifyMySQLError(err); mysqlErr != nil {
		return mysqlErr
	}
	if netErr := classifyNetworkError(err); netErr != nil {
		return netErr
	}
	if ctxErr := classifyContextError(err); ctxErr != nil {
		return ctxErr
	}
	if fsErr := classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMySQLError classifies MySQL-specific errors
func classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1045: // Access denied
			return NewAppError(ErrorTypePermission,
				"Database access denied - check username and password", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1049: // Unknown database
			return NewAppError(ErrorTypeValidation,
				"Database does not exist", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1227: // Access denied; needs privilege
			return NewAppError(ErrorTypePermission,
				"Operation requires a privilege the configured user does not hold", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2003: // Can't connect to MySQL server
			return NewAppError(ErrorTypeConnection,
				"Cannot connect to MySQL server - server may be down or unreachable", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2006: // MySQL server has gone away
			return NewAppError(ErrorTypeConnection,
				"MySQL server connection lost", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		default:
			return NewAppError(ErrorTypeSQL,
				fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err).
				WithContext("mysql_error_code", mysqlErr.Number)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewAppError(ErrorTypeValidation, "No rows found", err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewAppError(ErrorTypeConnection, "Database connection is closed", err)
	}

	return nil
}

// classifyNetworkError classifies network-related errors
func classifyNetworkError(err error) *AppError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewAppError(ErrorTypeTimeout, "Network operation timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewAppError(ErrorTypeConnection, "Network I/O error", err)
	}

	return nil
}

// classifyContextError classifies context-related errors
func classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrorTypeTimeout, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewAppError(ErrorTypeValidation,
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case syscall.EACCES:
			return NewAppError(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case syscall.ENOSPC:
			return NewAppError(ErrorTypeValidation,
				"No space left on device", err)
		}
	}

	return nil
}
