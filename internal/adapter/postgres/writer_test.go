package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbarn/songplay-etl/internal/domain"
)

func TestSchemas_CoverAllTables(t *testing.T) {
	for _, name := range []string{
		domain.TableSongs,
		domain.TableArtists,
		domain.TableUsers,
		domain.TableTime,
		domain.TableSongplays,
	} {
		t.Run(name, func(t *testing.T) {
			schema, ok := schemas[name]
			require.True(t, ok)
			assert.NotEmpty(t, schema.columns)
			assert.Contains(t, schema.ddl, name)
		})
	}
}

func TestValues_Songplay(t *testing.T) {
	songID := "SOZCTXZ12AB0182364"
	artistID := "AR5KOSW1187FB35FF4"
	row := domain.SongplayRow{
		SongplayID: 7,
		StartTime:  1541121934796,
		UserID:     "24",
		Level:      "paid",
		SongID:     &songID,
		ArtistID:   &artistID,
		SessionID:  984,
		Location:   "Lake Havasu City, AZ",
		UserAgent:  "Mozilla/5.0",
		Year:       2018,
		Month:      11,
	}

	values := schemas[domain.TableSongplays].values(row)
	require.Len(t, values, len(Columns(domain.TableSongplays)))
	assert.Equal(t, int64(7), values[0])
	assert.Equal(t, time.Date(2018, 11, 2, 1, 25, 34, 796_000_000, time.UTC), values[1])
	assert.Equal(t, &songID, values[4])
}

func TestValues_UnresolvedSongplayCarriesNulls(t *testing.T) {
	values := schemas[domain.TableSongplays].values(domain.SongplayRow{SongplayID: 1, StartTime: 1541121934796})
	assert.Nil(t, values[4].(*string))
	assert.Nil(t, values[5].(*string))
}

func TestValues_TimeRowConvertsStartTime(t *testing.T) {
	values := schemas[domain.TableTime].values(domain.TimeRow{
		StartTime: 1541121934796, Hour: 1, Day: 2, Week: 44, Month: 11, Year: 2018, Weekday: 5,
	})
	assert.Equal(t, time.Date(2018, 11, 2, 1, 25, 34, 796_000_000, time.UTC), values[0])
	assert.Equal(t, int32(44), values[3])
}

func TestValues_ArtistNullableCoordinates(t *testing.T) {
	values := schemas[domain.TableArtists].values(domain.ArtistRow{ArtistID: "AR1", Name: "Elena"})
	assert.Nil(t, values[3].(*float64))
	assert.Nil(t, values[4].(*float64))
}

func TestDDL_NullabilityMatchesModel(t *testing.T) {
	ddl := DDL(domain.TableSongplays)
	// FK columns are the only nullable ones on the fact table.
	assert.Contains(t, ddl, "song_id     TEXT,")
	assert.Contains(t, ddl, "artist_id   TEXT,")
	assert.Contains(t, ddl, "user_id     TEXT NOT NULL")
}
