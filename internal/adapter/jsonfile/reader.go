// Package jsonfile reads song-metadata and activity-log trees from the
// local filesystem. Song data is one JSON object per file; log data is
// newline-delimited JSON. Both trees may be arbitrarily nested.
package jsonfile

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/quietbarn/songplay-etl/internal/domain"
)

// maxLineBytes bounds a single NDJSON line. Log rows carry user agents and
// locations, nowhere near this.
const maxLineBytes = 1 << 20

// SongReader reads SongRecords from a directory tree.
// It implements pipeline.SongSource.
type SongReader struct {
	root   string
	logger *slog.Logger
}

// NewSongReader creates a song-metadata reader rooted at root.
func NewSongReader(root string, logger *slog.Logger) *SongReader {
	return &SongReader{root: root, logger: logger}
}

// ReadSongs decodes every .json file under the root, one record per file.
// A record missing structural fields aborts the read.
func (r *SongReader) ReadSongs(ctx context.Context) ([]domain.SongRecord, error) {
	paths, err := listJSONFiles(ctx, r.root)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SongRecord, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		record, err := domain.ParseSongRecord(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, record)
	}

	r.logger.Debug("song data read", "files", len(paths), "records", len(records))
	return records, nil
}

// LogReader reads LogRecords from a directory tree.
// It implements pipeline.LogSource.
type LogReader struct {
	root   string
	logger *slog.Logger
}

// NewLogReader creates an activity-log reader rooted at root.
func NewLogReader(root string, logger *slog.Logger) *LogReader {
	return &LogReader{root: root, logger: logger}
}

// ReadLogs decodes every .json file under the root as NDJSON, one record per
// line. Blank lines are skipped; a malformed line aborts the read.
func (r *LogReader) ReadLogs(ctx context.Context) ([]domain.LogRecord, error) {
	paths, err := listJSONFiles(ctx, r.root)
	if err != nil {
		return nil, err
	}

	var records []domain.LogRecord
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		fileRecords, err := decodeLogLines(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, fileRecords...)
	}

	r.logger.Debug("log data read", "files", len(paths), "records", len(records))
	return records, nil
}

func decodeLogLines(f *os.File) ([]domain.LogRecord, error) {
	var records []domain.LogRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		record, err := domain.ParseLogRecord([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}

func listJSONFiles(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}
