package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
)

func sampleMetadata() *Metadata {
	return &Metadata{
		Database:    "shop",
		Kind:        KindFull,
		CreatedAt:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		RunID:       "0f81a4c2-aaaa-bbbb-cccc-000000000001",
		ToolVersion: "dev",
		Coordinate:  binlog.Coordinate{Segment: "mysql-bin.000005", Offset: 1542},
		Size:        1024,
		Compression: "gzip",
		Checksum:    "abc123",
	}
}

func TestMetadata_WriteLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "shop_full_20250101120000.sql.gz")
	meta := sampleMetadata()

	require.NoError(t, WriteMetadata(artifactPath, meta))

	loaded, err := LoadMetadata(artifactPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, meta.Database, loaded.Database)
	assert.Equal(t, meta.Kind, loaded.Kind)
	assert.Equal(t, meta.Coordinate, loaded.Coordinate)
	assert.True(t, meta.CreatedAt.Equal(loaded.CreatedAt))
}

func TestLoadMetadata_AbsentSidecar(t *testing.T) {
	loaded, err := LoadMetadata(filepath.Join(t.TempDir(), "shop_full_20250101120000.sql.gz"))

	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadMetadata_CorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "shop_full_20250101120000.sql.gz")
	require.NoError(t, os.WriteFile(MetadataPath(artifactPath), []byte("{not json"), 0o644))

	_, err := LoadMetadata(artifactPath)

	assert.Error(t, err)
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Metadata)
		wantErr bool
	}{
		{"Complete", func(m *Metadata) {}, false},
		{"Missing database", func(m *Metadata) { m.Database = "" }, true},
		{"Bad kind", func(m *Metadata) { m.Kind = "snapshot" }, true},
		{"Zero timestamp", func(m *Metadata) { m.CreatedAt = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := sampleMetadata()
			tt.mutate(meta)
			err := meta.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteMetadata_RejectsInvalid(t *testing.T) {
	meta := sampleMetadata()
	meta.Database = ""

	err := WriteMetadata(filepath.Join(t.TempDir(), "x_full_20250101120000.sql"), meta)

	assert.Error(t, err)
}
