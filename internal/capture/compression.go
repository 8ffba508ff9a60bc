package capture

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// CompressionType selects the artifact compression algorithm
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionLZ4  CompressionType = "lz4"
	CompressionZstd CompressionType = "zstd"
)

// Codec provides streaming compression for artifact bodies
type Codec interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	Extension() string
	Type() CompressionType
}

// CompressionManager resolves codecs by algorithm and by file extension
type CompressionManager struct {
	codecs map[CompressionType]Codec
}

// NewCompressionManager creates a manager with all supported codecs
// registered.
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		codecs: make(map[CompressionType]Codec),
	}

	cm.codecs[CompressionGzip] = &gzipCodec{}
	cm.codecs[CompressionLZ4] = &lz4Codec{}
	cm.codecs[CompressionZstd] = &zstdCodec{}

	return cm
}

// Codec returns the codec for an algorithm. CompressionNone yields nil with
// no error; callers stream the body unmodified.
func (cm *CompressionManager) Codec(t CompressionType) (Codec, error) {
	if t == CompressionNone || t == "" {
		return nil, nil
	}
	codec, ok := cm.codecs[t]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", t), nil)
	}
	return codec, nil
}

// CodecForPath picks a codec from an artifact file extension
func (cm *CompressionManager) CodecForPath(path string) (Codec, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return cm.codecs[CompressionGzip], nil
	case strings.HasSuffix(path, ".lz4"):
		return cm.codecs[CompressionLZ4], nil
	case strings.HasSuffix(path, ".zst"):
		return cm.codecs[CompressionZstd], nil
	case strings.HasSuffix(path, ".sql"):
		return nil, nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unrecognized artifact extension: %s", path), nil)
	}
}

// Extension returns the file suffix for an algorithm, including the dot.
func (cm *CompressionManager) Extension(t CompressionType) string {
	if codec, ok := cm.codecs[t]; ok {
		return codec.Extension()
	}
	return ""
}

// gzipCodec wraps the standard library gzip implementation
type gzipCodec struct{}

func (c *gzipCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	writer, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, apperrors.NewCaptureError("failed to create gzip writer", err)
	}
	return writer, nil
}

func (c *gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, apperrors.NewCaptureError("failed to create gzip reader", err)
	}
	return reader, nil
}

func (c *gzipCodec) Extension() string     { return ".gz" }
func (c *gzipCodec) Type() CompressionType { return CompressionGzip }

// lz4Codec wraps pierrec/lz4
type lz4Codec struct{}

func (c *lz4Codec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, apperrors.NewCaptureError("failed to set LZ4 compression level", err)
		}
	}
	return writer, nil
}

func (c *lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (c *lz4Codec) Extension() string     { return ".lz4" }
func (c *lz4Codec) Type() CompressionType { return CompressionLZ4 }

// zstdCodec wraps klauspost/compress zstd
type zstdCodec struct{}

func (c *zstdCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	encoderLevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	writer, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, apperrors.NewCaptureError("failed to create zstd writer", err)
	}
	return writer, nil
}

func (c *zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, apperrors.NewCaptureError("failed to create zstd reader", err)
	}
	return &zstdReadCloser{decoder}, nil
}

func (c *zstdCodec) Extension() string     { return ".zst" }
func (c *zstdCodec) Type() CompressionType { return CompressionZstd }

// zstdReadCloser adapts zstd.Decoder's Close() to io.ReadCloser
type zstdReadCloser struct {
	decoder *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.decoder.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.decoder.Close()
	return nil
}
