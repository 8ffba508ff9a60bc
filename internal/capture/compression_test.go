package capture

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionManager_StreamingRoundtrip(t *testing.T) {
	payload := []byte(strings.Repeat("INSERT INTO orders VALUES (1, 'widget');\n", 500))

	for _, ct := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		t.Run(string(ct), func(t *testing.T) {
			cm := NewCompressionManager()
			codec, err := cm.Codec(ct)
			require.NoError(t, err)
			require.NotNil(t, codec)

			var buf bytes.Buffer
			w, err := codec.NewWriter(&buf, 6)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			assert.Less(t, buf.Len(), len(payload), "repetitive SQL should compress")

			r, err := codec.NewReader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			decompressed, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestCompressionManager_None(t *testing.T) {
	cm := NewCompressionManager()

	codec, err := cm.Codec(CompressionNone)
	require.NoError(t, err)
	assert.Nil(t, codec)

	codec, err = cm.Codec("")
	require.NoError(t, err)
	assert.Nil(t, codec)
}

func TestCompressionManager_UnsupportedAlgorithm(t *testing.T) {
	cm := NewCompressionManager()

	_, err := cm.Codec("brotli")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression algorithm")
}

func TestCompressionManager_CodecForPath(t *testing.T) {
	cm := NewCompressionManager()

	tests := []struct {
		path     string
		wantType CompressionType
		wantNil  bool
		wantErr  bool
	}{
		{"shop_full_20250101120000.sql.gz", CompressionGzip, false, false},
		{"shop_full_20250101120000.sql.lz4", CompressionLZ4, false, false},
		{"shop_full_20250101120000.sql.zst", CompressionZstd, false, false},
		{"shop_full_20250101120000.sql", "", true, false},
		{"shop_full_20250101120000.rar", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			codec, err := cm.CodecForPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, codec)
				return
			}
			require.NotNil(t, codec)
			assert.Equal(t, tt.wantType, codec.Type())
		})
	}
}

func TestCompressionManager_Extension(t *testing.T) {
	cm := NewCompressionManager()

	assert.Equal(t, ".gz", cm.Extension(CompressionGzip))
	assert.Equal(t, ".lz4", cm.Extension(CompressionLZ4))
	assert.Equal(t, ".zst", cm.Extension(CompressionZstd))
	assert.Equal(t, "", cm.Extension(CompressionNone))
}
