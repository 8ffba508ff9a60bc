package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

type fakeServer struct {
	version    string
	versionErr error
	logBin     bool
	logBinErr  error
}

func (s *fakeServer) GetVersion(ctx context.Context) (string, error) {
	return s.version, s.versionErr
}

func (s *fakeServer) BinaryLoggingEnabled(ctx context.Context) (bool, error) {
	return s.logBin, s.logBinErr
}

func withFakeTools(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables require unix permissions")
	}
	dir := t.TempDir()
	for _, name := range []string{"mysqldump", "mysqlbinlog", "mysql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755))
	}
	t.Setenv("PATH", dir)
}

func TestCheckBackup_AllChecksPass(t *testing.T) {
	withFakeTools(t)
	root := filepath.Join(t.TempDir(), "backups")
	server := &fakeServer{version: "8.0.36", logBin: true}

	checker := NewChecker(server, root, nil)
	tools, err := checker.CheckBackup(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, tools.Dump)

	// The backup root was created as part of the writability probe.
	info, statErr := os.Stat(root)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestCheckBackup_MissingTools(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	server := &fakeServer{version: "8.0.36", logBin: true}

	checker := NewChecker(server, t.TempDir(), nil)
	_, err := checker.CheckBackup(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreflight))
}

func TestCheckBackup_ServerUnreachable(t *testing.T) {
	withFakeTools(t)
	server := &fakeServer{versionErr: errors.New("dial tcp: connection refused")}

	checker := NewChecker(server, t.TempDir(), nil)
	_, err := checker.CheckBackup(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreflight))
	assert.Contains(t, err.Error(), "not reachable")
}

func TestCheckBackup_BinaryLoggingDisabled(t *testing.T) {
	withFakeTools(t)
	server := &fakeServer{version: "8.0.36", logBin: false}

	checker := NewChecker(server, t.TempDir(), nil)
	_, err := checker.CheckBackup(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreflight))
	assert.Contains(t, err.Error(), "binary logging")
}

func TestCheckRestore_MissingRoot(t *testing.T) {
	withFakeTools(t)
	server := &fakeServer{version: "8.0.36"}

	checker := NewChecker(server, filepath.Join(t.TempDir(), "missing"), nil)
	_, err := checker.CheckRestore(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreflight))
}

func TestCheckRestore_Pass(t *testing.T) {
	withFakeTools(t)
	server := &fakeServer{version: "8.0.36"}

	checker := NewChecker(server, t.TempDir(), nil)
	_, err := checker.CheckRestore(context.Background())

	assert.NoError(t, err)
}
