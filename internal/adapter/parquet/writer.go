// Package parquet persists output tables as hive-partitioned parquet trees:
// <output>/<table>/<col>=<val>/.../data.parquet. Tables are staged under a
// per-run directory and only published on Commit, so a failed run leaves the
// previous output intact.
package parquet

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/quietbarn/songplay-etl/internal/adapter/s3source"
	"github.com/quietbarn/songplay-etl/internal/domain"
)

const writerParallelism = 4

// UploadManager is the slice of s3manager the writer needs for s3:// outputs.
// *s3manager.Uploader satisfies it.
type UploadManager interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// Writer implements pipeline.TableWriter on parquet files.
type Writer struct {
	output     string
	stagingDir string
	staged     []string
	uploader   UploadManager
	logger     *slog.Logger
}

// New creates a Writer for a local directory or an s3://bucket/prefix
// output. uploader is only consulted for s3 outputs. Local outputs stage
// next to the output directory so the final rename stays on one filesystem.
func New(output, runID string, uploader UploadManager, logger *slog.Logger) (*Writer, error) {
	staging := filepath.Join(os.TempDir(), ".staging-"+runID)
	if !s3source.IsS3Location(output) {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		staging = filepath.Join(output, ".staging-"+runID)
	} else if uploader == nil {
		return nil, fmt.Errorf("s3 output %q requires an uploader", output)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Writer{
		output:     output,
		stagingDir: staging,
		uploader:   uploader,
		logger:     logger,
	}, nil
}

// WriteTable stages one table, one parquet file per partition directory.
// Tables with no partition keys become a single file.
func (w *Writer) WriteTable(_ context.Context, table domain.Table) error {
	proto, err := prototypeFor(table.Name)
	if err != nil {
		return err
	}

	groups, order := groupRows(table)
	if len(order) == 0 {
		// Keep an empty table visible to downstream readers.
		order = append(order, "")
		groups[""] = nil
	}

	for _, partition := range order {
		dir := filepath.Join(w.stagingDir, table.Name, filepath.FromSlash(partition))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create partition dir: %w", err)
		}
		if err := writeFile(filepath.Join(dir, "data.parquet"), proto, groups[partition]); err != nil {
			return fmt.Errorf("table %s partition %q: %w", table.Name, partition, err)
		}
	}

	w.staged = append(w.staged, table.Name)
	w.logger.Debug("table staged", "table", table.Name, "partitions", len(order), "rows", len(table.Rows))
	return nil
}

// Commit publishes every staged table: rename into the output directory for
// local outputs, upload the staged tree for s3 outputs. The staging
// directory is removed afterwards.
func (w *Writer) Commit(ctx context.Context) error {
	if s3source.IsS3Location(w.output) {
		if err := w.uploadStaged(ctx); err != nil {
			return err
		}
	} else {
		for _, table := range w.staged {
			final := filepath.Join(w.output, table)
			if err := os.RemoveAll(final); err != nil {
				return fmt.Errorf("clear previous %s: %w", table, err)
			}
			if err := os.Rename(filepath.Join(w.stagingDir, table), final); err != nil {
				return fmt.Errorf("publish %s: %w", table, err)
			}
		}
	}
	return os.RemoveAll(w.stagingDir)
}

func (w *Writer) uploadStaged(ctx context.Context) error {
	bucket, prefix, err := s3source.ParseLocation(w.output)
	if err != nil {
		return err
	}

	return filepath.WalkDir(w.stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(w.stagingDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + key
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open staged file: %w", err)
		}
		defer f.Close()

		if _, err := w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		return nil
	})
}

// prototypeFor returns a fresh row pointer carrying the parquet schema tags
// for a table, needed even when the table has zero rows.
func prototypeFor(name string) (any, error) {
	switch name {
	case domain.TableSongs:
		return new(domain.SongRow), nil
	case domain.TableArtists:
		return new(domain.ArtistRow), nil
	case domain.TableUsers:
		return new(domain.UserRow), nil
	case domain.TableTime:
		return new(domain.TimeRow), nil
	case domain.TableSongplays:
		return new(domain.SongplayRow), nil
	}
	return nil, fmt.Errorf("unknown table %q", name)
}

func writeFile(path string, proto any, rows []domain.Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, proto, writerParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			fw.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Close()
}

// groupRows splits a table's rows by partition path, preserving first-seen
// partition order and row order within each partition. Unpartitioned tables
// come back as a single empty-path group.
func groupRows(table domain.Table) (map[string][]domain.Row, []string) {
	groups := make(map[string][]domain.Row)
	var order []string
	for _, row := range table.Rows {
		path := partitionPath(row, table.PartitionKeys)
		if _, ok := groups[path]; !ok {
			order = append(order, path)
		}
		groups[path] = append(groups[path], row)
	}
	return groups, order
}

func partitionPath(row domain.Row, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key + "=" + sanitizePartitionValue(row.PartitionValue(key))
	}
	return strings.Join(parts, "/")
}

// sanitizePartitionValue keeps partition directory names filesystem- and
// S3-safe. Artist IDs are alphanumeric in practice, but titles of the world
// being what they are, escape anything else.
func sanitizePartitionValue(v string) string {
	if v == "" {
		return "__HIVE_DEFAULT_PARTITION__"
	}
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
