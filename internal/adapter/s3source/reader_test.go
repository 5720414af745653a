package s3source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects  map[string]string
	listErrs int
	getErrs  int
}

func (f *fakeStore) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	if f.listErrs > 0 {
		f.listErrs--
		return errors.New("throttled")
	}
	var contents []*s3.Object
	for key := range f.objects {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			contents = append(contents, &s3.Object{Key: aws.String(key)})
		}
	}
	fn(&s3.ListObjectsV2Output{Contents: contents}, true)
	return nil
}

func (f *fakeStore) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if f.getErrs > 0 {
		f.getErrs--
		return nil, errors.New("connection reset")
	}
	body, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		input   string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{"s3://datalake/song_data", "datalake", "song_data", false},
		{"s3://datalake", "datalake", "", false},
		{"s3://", "", "", true},
		{"/local/path", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			bucket, prefix, err := ParseLocation(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestIsS3Location(t *testing.T) {
	assert.True(t, IsS3Location("s3://bucket/prefix"))
	assert.False(t, IsS3Location("testdata/song_data"))
}

func TestSongReader_ReadSongs(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"song_data/A/TRA.json": `{"song_id":"SOA","title":"First","artist_id":"AR1","artist_name":"Elena","duration":269.58312}`,
		"song_data/B/TRB.json": `{"song_id":"SOB","title":"Second","artist_id":"AR2","artist_name":"Casual","duration":218.93179}`,
		"song_data/README.md":  "ignored",
	}}

	reader, err := NewSongReader(store, "s3://datalake/song_data", 3, clockwork.NewFakeClock(), slog.Default())
	require.NoError(t, err)

	records, err := reader.ReadSongs(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := []string{records[0].SongID, records[1].SongID}
	assert.ElementsMatch(t, []string{"SOA", "SOB"}, ids)
}

func TestSongReader_RetriesTransientFailures(t *testing.T) {
	store := &fakeStore{
		objects: map[string]string{
			"song_data/TRA.json": `{"song_id":"SOA","artist_id":"AR1","duration":100}`,
		},
		listErrs: 2,
	}

	clock := clockwork.NewFakeClock()
	reader, err := NewSongReader(store, "s3://datalake/song_data", 3, clock, slog.Default())
	require.NoError(t, err)

	var records int
	done := make(chan error, 1)
	go func() {
		recs, err := reader.ReadSongs(context.Background())
		records = len(recs)
		done <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 1, records)
}

func TestSongReader_ExhaustedRetriesFail(t *testing.T) {
	store := &fakeStore{listErrs: 10}
	clock := clockwork.NewFakeClock()
	reader, err := NewSongReader(store, "s3://datalake/song_data", 1, clock, slog.Default())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := reader.ReadSongs(context.Background())
		done <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	assert.Error(t, <-done)
}

func TestLogReader_ReadLogs(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"log_data/2018/11/events.json": `{"page":"NextSong","ts":1541121934796,"userId":"24","level":"paid","sessionId":984}
{"page":"Home","ts":1541121930000,"userId":"24","sessionId":984}`,
	}}

	reader, err := NewLogReader(store, "s3://datalake/log_data", 0, clockwork.NewFakeClock(), slog.Default())
	require.NoError(t, err)

	records, err := reader.ReadLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "NextSong", records[0].Page)
}

func TestLogReader_SchemaErrorNotRetried(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"log_data/events.json": `{"page":"NextSong"}`,
	}}

	reader, err := NewLogReader(store, "s3://datalake/log_data", 5, clockwork.NewFakeClock(), slog.Default())
	require.NoError(t, err)

	_, err = reader.ReadLogs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
