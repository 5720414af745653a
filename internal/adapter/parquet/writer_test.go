package parquet

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

func TestPartitionPath(t *testing.T) {
	tests := []struct {
		name string
		row  domain.Row
		keys []string
		want string
	}{
		{"songs by year and artist", domain.SongRow{SongID: "SOA", ArtistID: "AR1", Year: 1999}, []string{"year", "artist_id"}, "year=1999/artist_id=AR1"},
		{"time by year and month", domain.TimeRow{Year: 2018, Month: 11}, []string{"year", "month"}, "year=2018/month=11"},
		{"no keys", domain.ArtistRow{ArtistID: "AR1"}, nil, ""},
		{"empty value", domain.SongRow{SongID: "SOA", Year: 0}, []string{"artist_id"}, "artist_id=__HIVE_DEFAULT_PARTITION__"},
		{"unsafe characters escaped", domain.SongRow{ArtistID: "AR/1 &x"}, []string{"artist_id"}, "artist_id=AR_1__x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, partitionPath(tt.row, tt.keys))
		})
	}
}

func TestGroupRows_PreservesOrder(t *testing.T) {
	table := domain.TimeTable([]domain.TimeRow{
		{StartTime: 1, Year: 2018, Month: 11},
		{StartTime: 2, Year: 2018, Month: 12},
		{StartTime: 3, Year: 2018, Month: 11},
	})

	groups, order := groupRows(table)

	require.Equal(t, []string{"year=2018/month=11", "year=2018/month=12"}, order)
	assert.Len(t, groups["year=2018/month=11"], 2)
	assert.Len(t, groups["year=2018/month=12"], 1)
}

func TestWriter_StageAndCommitLocal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tables")
	w, err := New(out, "run-1", nil, slog.Default())
	require.NoError(t, err)

	songs := domain.SongsTable([]domain.SongRow{
		{SongID: "SOA", Title: "First", ArtistID: "AR1", Year: 1999, Duration: 210.5},
		{SongID: "SOB", Title: "Second", ArtistID: "AR2", Year: 2004, Duration: 180.25},
	})
	artists := domain.ArtistsTable([]domain.ArtistRow{{ArtistID: "AR1", Name: "Elena"}})

	require.NoError(t, w.WriteTable(context.Background(), songs))
	require.NoError(t, w.WriteTable(context.Background(), artists))

	// Nothing published before commit.
	_, err = os.Stat(filepath.Join(out, "songs"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.Commit(context.Background()))

	assert.FileExists(t, filepath.Join(out, "songs", "year=1999", "artist_id=AR1", "data.parquet"))
	assert.FileExists(t, filepath.Join(out, "songs", "year=2004", "artist_id=AR2", "data.parquet"))
	assert.FileExists(t, filepath.Join(out, "artists", "data.parquet"))

	// Staging is gone.
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging")
	}
}

func TestWriter_FullRefreshReplacesPreviousRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tables")

	first, err := New(out, "run-1", nil, slog.Default())
	require.NoError(t, err)
	require.NoError(t, first.WriteTable(context.Background(), domain.UsersTable([]domain.UserRow{
		{UserID: "24"}, {UserID: "8"},
	})))
	require.NoError(t, first.Commit(context.Background()))

	second, err := New(out, "run-2", nil, slog.Default())
	require.NoError(t, err)
	require.NoError(t, second.WriteTable(context.Background(), domain.UsersTable([]domain.UserRow{
		{UserID: "24"},
	})))
	require.NoError(t, second.Commit(context.Background()))

	assert.FileExists(t, filepath.Join(out, "users", "data.parquet"))
}

func TestWriter_EmptyTableStillMaterialized(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tables")
	w, err := New(out, "run-1", nil, slog.Default())
	require.NoError(t, err)

	require.NoError(t, w.WriteTable(context.Background(), domain.SongplaysTable(nil)))
	require.NoError(t, w.Commit(context.Background()))

	assert.FileExists(t, filepath.Join(out, "songplays", "data.parquet"))
}

func TestWriter_S3OutputRequiresUploader(t *testing.T) {
	_, err := New("s3://datalake/tables", "run-1", nil, slog.Default())
	assert.Error(t, err)
}

func TestPrototypeFor_UnknownTable(t *testing.T) {
	w, err := New(t.TempDir(), "run-1", nil, slog.Default())
	require.NoError(t, err)

	err = w.WriteTable(context.Background(), domain.Table{Name: "mystery"})
	assert.Error(t, err)
}
