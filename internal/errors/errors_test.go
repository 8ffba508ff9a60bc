package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewCaptureError("dump failed", errors.New("exit status 2"))
	assert.Contains(t, err.Error(), "capture")
	assert.Contains(t, err.Error(), "dump failed")
	assert.Contains(t, err.Error(), "exit status 2")

	bare := NewValidationError("bad input", nil)
	assert.Equal(t, "validation: bad input", bare.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewCaptureError("wrapper", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestConstructors_Types(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want ErrorType
	}{
		{"Preflight", NewPreflightError("m", nil), ErrorTypePreflight},
		{"StateInconsistency", NewStateInconsistencyError("shop", nil), ErrorTypeStateInconsistency},
		{"SegmentNotFound", NewSegmentNotFoundError("mysql-bin.000005"), ErrorTypeSegmentNotFound},
		{"WindowUnresolved", NewWindowUnresolvedError("mysql-bin.000005", "mysql-bin.000009"), ErrorTypeWindowUnresolved},
		{"RestoreArtifactMissing", NewRestoreArtifactMissingError("shop"), ErrorTypeRestoreArtifactMissing},
		{"Capture", NewCaptureError("m", nil), ErrorTypeCapture},
		{"Connection", NewConnectionError("m", nil), ErrorTypeConnection},
		{"SQL", NewSQLError("m", nil), ErrorTypeSQL},
		{"Validation", NewValidationError("m", nil), ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
			assert.True(t, IsType(tt.err, tt.want))
		})
	}
}

func TestNewStateInconsistencyError_CarriesDatabase(t *testing.T) {
	err := NewStateInconsistencyError("shop", nil)

	assert.Contains(t, err.Message, `"shop"`)
	assert.Equal(t, "shop", err.Context["database"])
}

func TestIsType(t *testing.T) {
	err := NewSegmentNotFoundError("mysql-bin.000005")

	assert.True(t, IsType(err, ErrorTypeSegmentNotFound))
	assert.False(t, IsType(err, ErrorTypeCapture))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeSegmentNotFound))
	assert.False(t, IsType(nil, ErrorTypeSegmentNotFound))
}

func TestIsType_Wrapped(t *testing.T) {
	inner := NewSegmentNotFoundError("mysql-bin.000005")
	wrapped := fmt.Errorf("resolving window: %w", inner)

	assert.True(t, IsType(wrapped, ErrorTypeSegmentNotFound))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeCapture, GetErrorType(NewCaptureError("m", nil)))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}

func TestWrapError_PreservesType(t *testing.T) {
	inner := NewSegmentNotFoundError("mysql-bin.000005")

	wrapped := WrapError(inner, "while planning incremental")

	require.Error(t, wrapped)
	assert.True(t, IsType(wrapped, ErrorTypeSegmentNotFound))
	assert.True(t, errors.Is(wrapped, inner))
}

func TestWrapError_Nil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "message"))
}

func TestClassifyError_MySQL(t *testing.T) {
	tests := []struct {
		name   string
		number uint16
		want   ErrorType
	}{
		{"Access denied", 1045, ErrorTypePermission},
		{"Unknown database", 1049, ErrorTypeValidation},
		{"Missing privilege", 1227, ErrorTypePermission},
		{"Cannot connect", 2003, ErrorTypeConnection},
		{"Gone away", 2006, ErrorTypeConnection},
		{"Other", 1064, ErrorTypeSQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &mysql.MySQLError{Number: tt.number, Message: "boom"}
			classified := ClassifyError(err)
			assert.Equal(t, tt.want, classified.Type)
		})
	}
}

func TestClassifyError_Context(t *testing.T) {
	assert.Equal(t, ErrorTypeTimeout, ClassifyError(context.DeadlineExceeded).Type)
	assert.Equal(t, ErrorTypeInterruption, ClassifyError(context.Canceled).Type)
}

func TestClassifyError_PassesThroughAppError(t *testing.T) {
	original := NewCaptureError("already classified", nil)
	assert.Same(t, original, ClassifyError(original))
}

func TestClassifyError_Unknown(t *testing.T) {
	classified := ClassifyError(errors.New("mystery"))
	assert.Equal(t, ErrorTypeUnknown, classified.Type)
}
