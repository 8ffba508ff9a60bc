package capture

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

func fakeBinDir(t *testing.T, names ...string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables require unix permissions")
	}
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755))
	}
	return dir
}

func TestLookupTools_MySQLNames(t *testing.T) {
	dir := fakeBinDir(t, "mysqldump", "mysqlbinlog", "mysql")
	t.Setenv("PATH", dir)

	tools, err := LookupTools()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mysqldump"), tools.Dump)
	assert.Equal(t, filepath.Join(dir, "mysqlbinlog"), tools.Binlog)
	assert.Equal(t, filepath.Join(dir, "mysql"), tools.Client)
}

func TestLookupTools_PrefersMariaDBNames(t *testing.T) {
	dir := fakeBinDir(t, "mysqldump", "mysqlbinlog", "mysql", "mariadb-dump", "mariadb-binlog", "mariadb")
	t.Setenv("PATH", dir)

	tools, err := LookupTools()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mariadb-dump"), tools.Dump)
	assert.Equal(t, filepath.Join(dir, "mariadb-binlog"), tools.Binlog)
	assert.Equal(t, filepath.Join(dir, "mariadb"), tools.Client)
}

func TestLookupTools_MissingBinary(t *testing.T) {
	dir := fakeBinDir(t, "mysqldump", "mysql")
	t.Setenv("PATH", dir)

	_, err := LookupTools()

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreflight))
	assert.Contains(t, err.Error(), "mysqlbinlog")
}
