package jsonfile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbarn/songplay-etl/internal/domain"
)

const songJSON = `{"song_id":"SOZCTXZ12AB0182364","title":"Setanta matata","artist_id":"AR5KOSW1187FB35FF4","artist_name":"Elena","artist_location":"Dubai UAE","artist_latitude":49.80388,"artist_longitude":15.47491,"year":0,"duration":269.58312}`

const logNDJSON = `{"page":"NextSong","ts":1541121934796,"userId":"24","firstName":"Layla","lastName":"Griffin","gender":"F","level":"paid","song":"Setanta matata","artist":"Elena","length":269.58312,"sessionId":984,"location":"Lake Havasu City, AZ","userAgent":"Mozilla/5.0"}

{"page":"Home","ts":1541121930000,"userId":"24","firstName":"Layla","lastName":"Griffin","gender":"F","level":"paid","sessionId":984}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSongReader_ReadSongs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "A/B/C/TRAAAAW128F429D538.json", songJSON)
	writeFile(t, dir, "A/B/D/notes.txt", "not json, ignored")

	reader := NewSongReader(dir, slog.Default())
	records, err := reader.ReadSongs(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "SOZCTXZ12AB0182364", r.SongID)
	assert.Equal(t, "Setanta matata", r.Title)
	assert.Equal(t, "AR5KOSW1187FB35FF4", r.ArtistID)
	assert.Equal(t, "Elena", r.ArtistName)
	require.NotNil(t, r.ArtistLatitude)
	assert.Equal(t, 49.80388, *r.ArtistLatitude)
	assert.Equal(t, int32(0), r.Year)
	assert.Equal(t, 269.58312, r.Duration)
}

func TestSongReader_SchemaErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"title":"No ID"}`)

	reader := NewSongReader(dir, slog.Default())
	_, err := reader.ReadSongs(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestLogReader_ReadLogs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2018/11/2018-11-02-events.json", logNDJSON)

	reader := NewLogReader(dir, slog.Default())
	records, err := reader.ReadLogs(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "NextSong", records[0].Page)
	assert.Equal(t, int64(1541121934796), records[0].TS)
	assert.Equal(t, int64(984), records[0].SessionID)
	assert.Equal(t, "Home", records[1].Page)
}

func TestLogReader_MalformedLineIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "events.json", "{broken\n")

	reader := NewLogReader(dir, slog.Default())
	_, err := reader.ReadLogs(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLogReader_MissingTSIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "events.json", `{"page":"NextSong","userId":"24"}`)

	reader := NewLogReader(dir, slog.Default())
	_, err := reader.ReadLogs(context.Background())

	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestReaders_EmptyTree(t *testing.T) {
	dir := t.TempDir()

	songs, err := NewSongReader(dir, slog.Default()).ReadSongs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, songs)

	logs, err := NewLogReader(dir, slog.Default()).ReadLogs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logs)
}
