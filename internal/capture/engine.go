// Package capture produces and applies backup artifacts. Full snapshots come
// from mysqldump taken under a single consistent transactional read;
// incrementals come from mysqlbinlog over a resolved window of binary log
// segments. Artifacts are compressed and published atomically so a reader
// never observes a truncated file.
package capture

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/artifact"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/binlog"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/database"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
)

// FullResult is the outcome of a successful full capture
type FullResult struct {
	ArtifactPath string
	Coordinate   binlog.Coordinate
	Census       []database.TableCount
	Metadata     *artifact.Metadata
}

// Config holds the capture engine settings
type Config struct {
	Root             string
	Compression      CompressionType
	CompressionLevel int
	ToolVersion      string
}

// Engine drives the external dump and binlog tools and writes artifacts
type Engine struct {
	dbConfig database.Config
	service  *database.Service
	comp     *CompressionManager
	tools    Tools
	config   Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewEngine creates a capture engine. The database service is used for
// census queries; the shelled tools authenticate with the same credentials.
func NewEngine(dbConfig database.Config, service *database.Service, tools Tools, config Config, logger *logging.Logger) *Engine {
	if config.Compression == "" {
		config.Compression = CompressionGzip
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Engine{
		dbConfig: dbConfig,
		service:  service,
		comp:     NewCompressionManager(),
		tools:    tools,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// The dump emits the consistency-point coordinate as a (commented) CHANGE
// MASTER / CHANGE REPLICATION SOURCE statement near the top of the stream.
var masterDataRe = regexp.MustCompile(
	`CHANGE (?:MASTER TO MASTER_LOG_FILE|REPLICATION SOURCE TO SOURCE_LOG_FILE)='([^']+)',\s*(?:MASTER_LOG_POS|SOURCE_LOG_POS)=(\d+)`)

// CaptureFull snapshots one database's schema and data under a single
// consistent transactional read, records the binary log coordinate emitted at
// that same consistency point, and writes the compressed artifact plus its
// census and metadata sidecars.
func (e *Engine) CaptureFull(ctx context.Context, db string) (*FullResult, error) {
	startTime := e.now()
	e.logger.LogCaptureStart(db, string(artifact.KindFull))

	dir := artifact.Dir(e.config.Root, db)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.WrapError(err, "failed to create artifact directory")
	}

	ext := e.comp.Extension(e.config.Compression)
	finalPath := filepath.Join(dir, artifact.Filename(db, artifact.KindFull, startTime, ext))

	args := append(e.connectionArgs(),
		"--single-transaction",
		"--master-data=2",
		"--routines",
		"--triggers",
		"--events",
		db,
	)
	cmd := exec.CommandContext(ctx, e.tools.Dump, args...)
	cmd.Env = e.toolEnv()

	coord, written, err := e.writeArtifact(cmd, finalPath, true)
	duration := e.now().Sub(startTime)
	if err != nil {
		e.logger.LogCaptureComplete(db, string(artifact.KindFull), "", 0, duration, err)
		return nil, err
	}
	if coord.IsZero() {
		os.Remove(finalPath)
		err := apperrors.NewCaptureError(
			fmt.Sprintf("dump of %s did not report a binary log coordinate; is binary logging enabled?", db), nil)
		e.logger.LogCaptureComplete(db, string(artifact.KindFull), "", 0, duration, err)
		return nil, err
	}

	census, err := e.service.TableRowCounts(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := WriteCensus(dir, census); err != nil {
		return nil, err
	}

	meta := &artifact.Metadata{
		Database:       db,
		Kind:           artifact.KindFull,
		CreatedAt:      startTime.UTC(),
		RunID:          uuid.New().String(),
		ToolVersion:    e.config.ToolVersion,
		Coordinate:     coord,
		Size:           written.uncompressed,
		CompressedSize: written.compressed,
		Compression:    string(e.config.Compression),
		Checksum:       written.checksum,
	}
	if err := artifact.WriteMetadata(finalPath, meta); err != nil {
		return nil, err
	}

	e.logger.LogCaptureComplete(db, string(artifact.KindFull), finalPath, written.compressed, duration, nil)

	return &FullResult{
		ArtifactPath: finalPath,
		Coordinate:   coord,
		Census:       census,
		Metadata:     meta,
	}, nil
}

// CaptureIncremental extracts the statements affecting one database across
// the resolved segment window, bounded by the start offset in the first
// segment and the stop offset in the last. Zero extractable statements is a
// valid result: the artifact is still produced so restore always has a
// consistent file to apply.
func (e *Engine) CaptureIncremental(ctx context.Context, db string, segments []string, window binlog.Window) (string, *artifact.Metadata, error) {
	if len(segments) == 0 {
		return "", nil, apperrors.NewValidationError("incremental capture requires at least one segment", nil)
	}

	startTime := e.now()
	e.logger.LogCaptureStart(db, string(artifact.KindIncremental))

	dir := artifact.Dir(e.config.Root, db)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, apperrors.WrapError(err, "failed to create artifact directory")
	}

	ext := e.comp.Extension(e.config.Compression)
	finalPath := filepath.Join(dir, artifact.Filename(db, artifact.KindIncremental, startTime, ext))

	args := append(e.connectionArgs(),
		"--read-from-remote-server",
		"--database="+db,
		"--start-position="+strconv.FormatUint(window.Start.Offset, 10),
		"--stop-position="+strconv.FormatUint(window.Stop.Offset, 10),
	)
	args = append(args, segments...)
	cmd := exec.CommandContext(ctx, e.tools.Binlog, args...)
	cmd.Env = e.toolEnv()

	_, written, err := e.writeArtifact(cmd, finalPath, false)
	duration := e.now().Sub(startTime)
	if err != nil {
		e.logger.LogCaptureComplete(db, string(artifact.KindIncremental), "", 0, duration, err)
		return "", nil, err
	}

	meta := &artifact.Metadata{
		Database:        db,
		Kind:            artifact.KindIncremental,
		CreatedAt:       startTime.UTC(),
		RunID:           uuid.New().String(),
		ToolVersion:     e.config.ToolVersion,
		StartCoordinate: window.Start,
		StopCoordinate:  window.Stop,
		Segments:        segments,
		Size:            written.uncompressed,
		CompressedSize:  written.compressed,
		Compression:     string(e.config.Compression),
		Checksum:        written.checksum,
	}
	if err := artifact.WriteMetadata(finalPath, meta); err != nil {
		return "", nil, err
	}

	e.logger.LogCaptureComplete(db, string(artifact.KindIncremental), finalPath, written.compressed, duration, nil)
	return finalPath, meta, nil
}

// ApplyArtifact decompresses an artifact and replays it into the target
// database through the client binary.
func (e *Engine) ApplyArtifact(ctx context.Context, db, artifactPath string) error {
	codec, err := e.comp.CodecForPath(artifactPath)
	if err != nil {
		return err
	}

	file, err := os.Open(artifactPath)
	if err != nil {
		return apperrors.WrapError(err, "failed to open artifact")
	}
	defer file.Close()

	var body io.Reader = file
	if codec != nil {
		reader, err := codec.NewReader(file)
		if err != nil {
			return err
		}
		defer reader.Close()
		body = reader
	}

	args := append(e.connectionArgs(), db)
	cmd := exec.CommandContext(ctx, e.tools.Client, args...)
	cmd.Env = e.toolEnv()
	cmd.Stdin = body

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return apperrors.NewCaptureError(
			fmt.Sprintf("failed to apply %s to %s: %s", filepath.Base(artifactPath), db, strings.TrimSpace(stderr.String())), err)
	}

	return nil
}

// writeStats summarizes one artifact write
type writeStats struct {
	uncompressed int64
	compressed   int64
	checksum     string
}

// writeArtifact runs the tool, streams its stdout through the configured
// codec into a temporary file, and publishes the artifact by rename. When
// scanCoordinate is set, the header region of the stream is scanned for the
// consistency-point coordinate emitted by --master-data.
func (e *Engine) writeArtifact(cmd *exec.Cmd, finalPath string, scanCoordinate bool) (binlog.Coordinate, writeStats, error) {
	var coord binlog.Coordinate
	var stats writeStats

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return coord, stats, apperrors.NewCaptureError("failed to attach to tool output", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	tmp, err := os.CreateTemp(filepath.Dir(finalPath), filepath.Base(finalPath)+".tmp-*")
	if err != nil {
		return coord, stats, apperrors.WrapError(err, "failed to create temporary artifact")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	hasher := sha256.New()
	compressedCount := &countingWriter{w: io.MultiWriter(tmp, hasher)}

	var body io.WriteCloser
	codec, err := e.comp.Codec(e.config.Compression)
	if err != nil {
		cleanup()
		return coord, stats, err
	}
	if codec != nil {
		body, err = codec.NewWriter(compressedCount, e.config.CompressionLevel)
		if err != nil {
			cleanup()
			return coord, stats, err
		}
	} else {
		body = nopWriteCloser{compressedCount}
	}
	uncompressedCount := &countingWriter{w: body}

	if err := cmd.Start(); err != nil {
		cleanup()
		return coord, stats, apperrors.NewCaptureError("failed to start "+filepath.Base(cmd.Path), err)
	}

	copyErr := e.streamBody(stdout, uncompressedCount, scanCoordinate, &coord)
	closeErr := body.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		cleanup()
		return coord, stats, apperrors.NewCaptureError(
			fmt.Sprintf("%s failed: %s", filepath.Base(cmd.Path), strings.TrimSpace(stderr.String())), waitErr)
	}
	if copyErr != nil {
		cleanup()
		return coord, stats, apperrors.NewCaptureError("failed to stream artifact body", copyErr)
	}
	if closeErr != nil {
		cleanup()
		return coord, stats, apperrors.NewCaptureError("failed to finalize compressed artifact", closeErr)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return coord, stats, apperrors.WrapError(err, "failed to sync artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return coord, stats, apperrors.WrapError(err, "failed to close artifact")
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return coord, stats, apperrors.WrapError(err, "failed to publish artifact")
	}

	stats.uncompressed = uncompressedCount.n
	stats.compressed = compressedCount.n
	stats.checksum = hex.EncodeToString(hasher.Sum(nil))
	return coord, stats, nil
}

// headerScanLimit bounds how far into the dump the coordinate line is looked
// for; mysqldump emits it within the first few dozen lines.
const headerScanLimit = 200

// streamBody copies the tool output into the artifact writer. When scanning,
// the first lines are inspected for the master-data coordinate before the
// remainder is copied wholesale.
func (e *Engine) streamBody(r io.Reader, w io.Writer, scan bool, coord *binlog.Coordinate) error {
	buffered := bufio.NewReaderSize(r, 1<<20)

	if scan {
		for i := 0; i < headerScanLimit; i++ {
			line, err := buffered.ReadString('\n')
			if line != "" {
				if _, werr := io.WriteString(w, line); werr != nil {
					return werr
				}
				if matches := masterDataRe.FindStringSubmatch(line); matches != nil {
					offset, perr := strconv.ParseUint(matches[2], 10, 64)
					if perr != nil {
						return perr
					}
					*coord = binlog.Coordinate{Segment: matches[1], Offset: offset}
					break
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	_, err := io.Copy(w, buffered)
	return err
}

// connectionArgs builds the shared connection flags for the client tools.
// The password travels via MYSQL_PWD (see toolEnv) rather than argv.
func (e *Engine) connectionArgs() []string {
	return []string{
		"--host=" + e.dbConfig.Host,
		"--port=" + strconv.Itoa(e.dbConfig.Port),
		"--user=" + e.dbConfig.Username,
	}
}

func (e *Engine) toolEnv() []string {
	env := os.Environ()
	if e.dbConfig.Password != "" {
		env = append(env, "MYSQL_PWD="+e.dbConfig.Password)
	}
	return env
}

// WriteCensus records the per-table row counts taken at full capture time,
// tab-separated with a header row, published atomically.
func WriteCensus(dir string, census []database.TableCount) error {
	tmp, err := os.CreateTemp(dir, artifact.CensusFileName+".tmp-*")
	if err != nil {
		return apperrors.WrapError(err, "failed to create temporary census file")
	}
	tmpName := tmp.Name()

	writer := bufio.NewWriter(tmp)
	fmt.Fprintf(writer, "database\ttable\trow_count\n")
	for _, tc := range census {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", tc.Database, tc.Table, tc.Rows)
	}

	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to write census file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to close census file")
	}
	if err := os.Rename(tmpName, filepath.Join(dir, artifact.CensusFileName)); err != nil {
		os.Remove(tmpName)
		return apperrors.WrapError(err, "failed to publish census file")
	}

	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
