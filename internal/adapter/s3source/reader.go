// Package s3source reads song-metadata and activity-log trees from S3.
// Object layout mirrors the local filesystem source: song data is one JSON
// object per .json key, log data is NDJSON.
package s3source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/quietbarn/songplay-etl/internal/domain"
)

const maxLineBytes = 1 << 20

// ObjectStore is the slice of the S3 API the readers need.
// *s3.S3 satisfies it.
type ObjectStore interface {
	ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error
	GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// NewObjectStore creates a real S3 client for the given region.
func NewObjectStore(region string) ObjectStore {
	return s3.New(session.Must(session.NewSession()), &aws.Config{Region: aws.String(region)})
}

// IsS3Location reports whether a source location names an S3 tree.
func IsS3Location(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// ParseLocation splits s3://bucket/prefix into bucket and prefix.
func ParseLocation(location string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	if trimmed == location || trimmed == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	return bucket, prefix, nil
}

// client fetches .json objects under one bucket/prefix with retries on
// transient S3 failures. Schema errors in object contents are never retried.
type client struct {
	store      ObjectStore
	bucket     string
	prefix     string
	maxRetries int
	clock      clockwork.Clock
	logger     *slog.Logger
}

func newClient(store ObjectStore, location string, maxRetries int, clock clockwork.Clock, logger *slog.Logger) (*client, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return &client{
		store:      store,
		bucket:     bucket,
		prefix:     prefix,
		maxRetries: maxRetries,
		clock:      clock,
		logger:     logger,
	}, nil
}

func (c *client) listKeys(ctx context.Context) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	}
	err := c.withRetries(ctx, "list objects", func() error {
		keys = keys[:0]
		return c.store.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				if key := aws.StringValue(obj.Key); strings.HasSuffix(key, ".json") {
					keys = append(keys, key)
				}
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *client) getObject(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := c.withRetries(ctx, "get object", func() error {
		out, err := c.store.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", c.bucket, key, err)
	}
	return data, nil
}

func (c *client) withRetries(ctx context.Context, op string, fn func() error) error {
	err := fn()
	backoff := time.Second
	retries := c.maxRetries
	for err != nil && retries > 0 && ctx.Err() == nil {
		c.logger.Warn("s3 operation failed, retrying",
			"operation", op,
			"bucket", c.bucket,
			"retries_left", retries,
			"error", err,
		)
		c.clock.Sleep(backoff)
		backoff *= 2
		retries--
		err = fn()
	}
	return err
}

// SongReader reads SongRecords from an S3 tree.
// It implements pipeline.SongSource.
type SongReader struct {
	client *client
}

// NewSongReader creates a song-metadata reader for an s3://bucket/prefix location.
func NewSongReader(store ObjectStore, location string, maxRetries int, clock clockwork.Clock, logger *slog.Logger) (*SongReader, error) {
	c, err := newClient(store, location, maxRetries, clock, logger)
	if err != nil {
		return nil, err
	}
	return &SongReader{client: c}, nil
}

// ReadSongs decodes every .json object under the prefix, one record per object.
func (r *SongReader) ReadSongs(ctx context.Context) ([]domain.SongRecord, error) {
	keys, err := r.client.listKeys(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SongRecord, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.getObject(ctx, key)
		if err != nil {
			return nil, err
		}
		record, err := domain.ParseSongRecord(data)
		if err != nil {
			return nil, fmt.Errorf("s3://%s/%s: %w", r.client.bucket, key, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// LogReader reads LogRecords from an S3 tree.
// It implements pipeline.LogSource.
type LogReader struct {
	client *client
}

// NewLogReader creates an activity-log reader for an s3://bucket/prefix location.
func NewLogReader(store ObjectStore, location string, maxRetries int, clock clockwork.Clock, logger *slog.Logger) (*LogReader, error) {
	c, err := newClient(store, location, maxRetries, clock, logger)
	if err != nil {
		return nil, err
	}
	return &LogReader{client: c}, nil
}

// ReadLogs decodes every .json object under the prefix as NDJSON.
func (r *LogReader) ReadLogs(ctx context.Context) ([]domain.LogRecord, error) {
	keys, err := r.client.listKeys(ctx)
	if err != nil {
		return nil, err
	}

	var records []domain.LogRecord
	for _, key := range keys {
		data, err := r.client.getObject(ctx, key)
		if err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(strings.NewReader(string(data)))
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
				return nil, fmt.Errorf("s3://%s/%s line %d: %w", r.client.bucket, key, line, err)
			}
			records = append(records, record)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("s3://%s/%s: %w", r.client.bucket, key, err)
		}
	}
	return records, nil
}
