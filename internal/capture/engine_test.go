package capture

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/artifact"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/database"
)

func TestMasterDataRe(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantSegment string
		wantOffset  string
		match       bool
	}{
		{
			"Classic master data comment",
			"-- CHANGE MASTER TO MASTER_LOG_FILE='mysql-bin.000005', MASTER_LOG_POS=1542;",
			"mysql-bin.000005", "1542", true,
		},
		{
			"MySQL 8 replication source comment",
			"-- CHANGE REPLICATION SOURCE TO SOURCE_LOG_FILE='binlog.000042', SOURCE_LOG_POS=98765;",
			"binlog.000042", "98765", true,
		},
		{
			"Unrelated comment",
			"-- MySQL dump 10.13  Distrib 8.0.36",
			"", "", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := masterDataRe.FindStringSubmatch(tt.line)
			if !tt.match {
				assert.Nil(t, matches)
				return
			}
			require.Len(t, matches, 3)
			assert.Equal(t, tt.wantSegment, matches[1])
			assert.Equal(t, tt.wantOffset, matches[2])
		})
	}
}

func TestStreamBody_ExtractsCoordinateAndCopiesEverything(t *testing.T) {
	dump := strings.Join([]string{
		"-- MySQL dump 10.13  Distrib 8.0.36",
		"-- Host: localhost    Database: shop",
		"-- CHANGE MASTER TO MASTER_LOG_FILE='mysql-bin.000005', MASTER_LOG_POS=1542;",
		"CREATE TABLE orders (id INT);",
		"INSERT INTO orders VALUES (1);",
	}, "\n") + "\n"

	e := &Engine{}
	var out bytes.Buffer
	var coord binlog.Coordinate

	err := e.streamBody(strings.NewReader(dump), &out, true, &coord)

	require.NoError(t, err)
	assert.Equal(t, binlog.Coordinate{Segment: "mysql-bin.000005", Offset: 1542}, coord)
	assert.Equal(t, dump, out.String(), "scanning must not drop any bytes")
}

func TestStreamBody_NoCoordinateInStream(t *testing.T) {
	dump := "CREATE TABLE orders (id INT);\n"

	e := &Engine{}
	var out bytes.Buffer
	var coord binlog.Coordinate

	err := e.streamBody(strings.NewReader(dump), &out, true, &coord)

	require.NoError(t, err)
	assert.True(t, coord.IsZero())
	assert.Equal(t, dump, out.String())
}

func TestStreamBody_NoScan(t *testing.T) {
	payload := "raw binlog statements\n"

	e := &Engine{}
	var out bytes.Buffer
	var coord binlog.Coordinate

	err := e.streamBody(strings.NewReader(payload), &out, false, &coord)

	require.NoError(t, err)
	assert.True(t, coord.IsZero())
	assert.Equal(t, payload, out.String())
}

func TestWriteArtifact_PublishesAtomically(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("requires a shell")
	}

	dir := t.TempDir()
	finalPath := filepath.Join(dir, "shop_full_20250101120000.sql.gz")

	e := &Engine{
		comp:   NewCompressionManager(),
		config: Config{Compression: CompressionGzip, CompressionLevel: 6},
	}

	script := `printf -- "-- CHANGE MASTER TO MASTER_LOG_FILE='mysql-bin.000005', MASTER_LOG_POS=1542;\nINSERT INTO t VALUES (1);\n"`
	cmd := exec.Command("sh", "-c", script)

	coord, stats, err := e.writeArtifact(cmd, finalPath, true)

	require.NoError(t, err)
	assert.Equal(t, binlog.Coordinate{Segment: "mysql-bin.000005", Offset: 1542}, coord)
	assert.Len(t, stats.checksum, 64)
	assert.Greater(t, stats.uncompressed, int64(0))
	assert.Greater(t, stats.compressed, int64(0))

	// Only the published artifact remains, no temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(finalPath), entries[0].Name())

	// The artifact decompresses back to the tool output.
	f, err := os.Open(finalPath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(body), "INSERT INTO t VALUES (1);")
}

func TestWriteArtifact_ToolFailureLeavesNothing(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("requires a shell")
	}

	dir := t.TempDir()
	finalPath := filepath.Join(dir, "shop_full_20250101120000.sql.gz")

	e := &Engine{
		comp:   NewCompressionManager(),
		config: Config{Compression: CompressionGzip},
	}

	cmd := exec.Command("sh", "-c", "echo 'partial output'; echo 'disk full' >&2; exit 2")

	_, _, err := e.writeArtifact(cmd, finalPath, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a failed capture must not leave files behind")
}

func TestWriteCensus(t *testing.T) {
	dir := t.TempDir()
	census := []database.TableCount{
		{Database: "shop", Table: "customers", Rows: 120},
		{Database: "shop", Table: "orders", Rows: 4500},
	}

	require.NoError(t, WriteCensus(dir, census))

	data, err := os.ReadFile(filepath.Join(dir, artifact.CensusFileName))
	require.NoError(t, err)
	assert.Equal(t,
		"database\ttable\trow_count\n"+
			"shop\tcustomers\t120\n"+
			"shop\torders\t4500\n",
		string(data))
}

func TestWriteCensus_Empty(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteCensus(dir, nil))

	data, err := os.ReadFile(filepath.Join(dir, artifact.CensusFileName))
	require.NoError(t, err)
	assert.Equal(t, "database\ttable\trow_count\n", string(data))
}

func TestConnectionArgs(t *testing.T) {
	e := &Engine{
		dbConfig: database.Config{Host: "db.example.com", Port: 3307, Username: "backup", Password: "secret"},
	}

	args := e.connectionArgs()

	assert.Equal(t, []string{"--host=db.example.com", "--port=3307", "--user=backup"}, args)
	for _, arg := range args {
		assert.NotContains(t, arg, "secret", "the password must never appear in argv")
	}
}

func TestToolEnv_CarriesPassword(t *testing.T) {
	e := &Engine{dbConfig: database.Config{Password: "secret"}}

	env := e.toolEnv()

	assert.Contains(t, env, "MYSQL_PWD=secret")
}

func TestToolEnv_NoPassword(t *testing.T) {
	e := &Engine{}

	// Nothing is appended when no password is configured.
	assert.Len(t, e.toolEnv(), len(os.Environ()))
}
