package domain

import "strconv"

// Output table names. Downstream analytics consumers depend on these and on
// the column sets of the row types below.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "users"
	TableTime      = "time"
	TableSongplays = "songplays"
)

// Row is one output row. PartitionValue returns the row's value for a
// partition-key column, formatted for use in a partition path; tables with
// no partition keys never have it called.
type Row interface {
	PartitionValue(column string) string
}

// Table is a finalized output table handed to a TableWriter: deduplicated,
// typed rows plus the partition-key column list (possibly empty).
type Table struct {
	Name          string
	Rows          []Row
	PartitionKeys []string
}

// SongRow is one row of the songs dimension.
type SongRow struct {
	SongID   string  `json:"song_id" parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title    string  `json:"title" parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistID string  `json:"artist_id" parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year     int32   `json:"year" parquet:"name=year, type=INT32"`
	Duration float64 `json:"duration" parquet:"name=duration, type=DOUBLE"`
}

func (r SongRow) PartitionValue(column string) string {
	switch column {
	case "year":
		return strconv.Itoa(int(r.Year))
	case "artist_id":
		return r.ArtistID
	}
	return ""
}

// ArtistRow is one row of the artists dimension. Coordinates are nullable;
// many artists have no registered location.
type ArtistRow struct {
	ArtistID  string   `json:"artist_id" parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name      string   `json:"name" parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location  string   `json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude  *float64 `json:"latitude" parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `json:"longitude" parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func (r ArtistRow) PartitionValue(string) string { return "" }

// UserRow is one row of the users dimension.
type UserRow struct {
	UserID    string `json:"user_id" parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `json:"first_name" parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `json:"last_name" parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `json:"gender" parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `json:"level" parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (r UserRow) PartitionValue(string) string { return "" }

// TimeRow is one row of the time dimension. StartTime is epoch milliseconds
// UTC; the calendar fields are derived from it, never mutated.
type TimeRow struct {
	StartTime int64 `json:"start_time" parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32 `json:"hour" parquet:"name=hour, type=INT32"`
	Day       int32 `json:"day" parquet:"name=day, type=INT32"`
	Week      int32 `json:"week" parquet:"name=week, type=INT32"`
	Month     int32 `json:"month" parquet:"name=month, type=INT32"`
	Year      int32 `json:"year" parquet:"name=year, type=INT32"`
	Weekday   int32 `json:"weekday" parquet:"name=weekday, type=INT32"`
}

func (r TimeRow) PartitionValue(column string) string {
	switch column {
	case "year":
		return strconv.Itoa(int(r.Year))
	case "month":
		return strconv.Itoa(int(r.Month))
	}
	return ""
}

// SongplayRow is one row of the songplays fact table. SongID and ArtistID
// are nil when join resolution fails; the play is still recorded. Year and
// Month are carried as columns so the table can be partitioned by them,
// mirroring the time dimension.
type SongplayRow struct {
	SongplayID int64   `json:"songplay_id" parquet:"name=songplay_id, type=INT64"`
	StartTime  int64   `json:"start_time" parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID     string  `json:"user_id" parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level      string  `json:"level" parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	SongID     *string `json:"song_id" parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID   *string `json:"artist_id" parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  int64   `json:"session_id" parquet:"name=session_id, type=INT64"`
	Location   string  `json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent  string  `json:"user_agent" parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year       int32   `json:"year" parquet:"name=year, type=INT32"`
	Month      int32   `json:"month" parquet:"name=month, type=INT32"`
}

func (r SongplayRow) PartitionValue(column string) string {
	switch column {
	case "year":
		return strconv.Itoa(int(r.Year))
	case "month":
		return strconv.Itoa(int(r.Month))
	}
	return ""
}

// SongsTable wraps the songs dimension with its partition-key list.
func SongsTable(rows []SongRow) Table {
	return Table{Name: TableSongs, Rows: asRows(rows), PartitionKeys: []string{"year", "artist_id"}}
}

// ArtistsTable wraps the artists dimension. Small, broadly scanned table;
// no partitioning.
func ArtistsTable(rows []ArtistRow) Table {
	return Table{Name: TableArtists, Rows: asRows(rows)}
}

// UsersTable wraps the users dimension.
func UsersTable(rows []UserRow) Table {
	return Table{Name: TableUsers, Rows: asRows(rows)}
}

// TimeTable wraps the time dimension with its partition-key list.
func TimeTable(rows []TimeRow) Table {
	return Table{Name: TableTime, Rows: asRows(rows), PartitionKeys: []string{"year", "month"}}
}

// SongplaysTable wraps the fact table with its partition-key list.
func SongplaysTable(rows []SongplayRow) Table {
	return Table{Name: TableSongplays, Rows: asRows(rows), PartitionKeys: []string{"year", "month"}}
}

func asRows[T Row](rows []T) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
