package domain

// playKey is the join discriminant for resolving a play against the songs
// and artists dimensions. Duration is compared with exact float64 equality;
// any tolerance band would change which plays resolve, so the brittleness is
// kept on purpose.
type playKey struct {
	title    string
	artist   string
	duration float64
}

type songArtistRef struct {
	songID   string
	artistID string
}

// Dimensions holds the materialized dimension tables the fact resolver joins
// against. It is built once, after the dimensions are complete, and threaded
// explicitly through the resolve step.
type Dimensions struct {
	index map[playKey]songArtistRef
}

// NewDimensions indexes the songs and artists dimensions by
// (title, artist name, duration). When duplicate keys occur the first entry
// wins, matching the dedup policy of the builders.
func NewDimensions(songs []SongRow, artists []ArtistRow) Dimensions {
	names := make(map[string]string, len(artists))
	for _, a := range artists {
		if _, ok := names[a.ArtistID]; !ok {
			names[a.ArtistID] = a.Name
		}
	}

	index := make(map[playKey]songArtistRef, len(songs))
	for _, s := range songs {
		name, ok := names[s.ArtistID]
		if !ok {
			continue
		}
		key := playKey{title: s.Title, artist: name, duration: s.Duration}
		if _, ok := index[key]; !ok {
			index[key] = songArtistRef{songID: s.SongID, artistID: s.ArtistID}
		}
	}
	return Dimensions{index: index}
}

// Resolve looks up the (song_id, artist_id) pair for a play. ok is false on
// a join miss.
func (d Dimensions) Resolve(title, artist string, duration float64) (songID, artistID string, ok bool) {
	ref, ok := d.index[playKey{title: title, artist: artist, duration: duration}]
	if !ok {
		return "", "", false
	}
	return ref.songID, ref.artistID, true
}

// ResolvePlays projects the songplays fact table from play records. Every
// play becomes a row whether or not it resolves; unresolved plays carry nil
// foreign keys. Surrogate IDs are assigned arena-style: the qualifying rows
// are collected in input order and numbered from 1, which keeps IDs unique
// within a run without any shared counter.
func ResolvePlays(plays []LogRecord, dims Dimensions) []SongplayRow {
	rows := make([]SongplayRow, 0, len(plays))
	for i, r := range plays {
		t := DecomposeTimestamp(r.TS)
		row := SongplayRow{
			SongplayID: int64(i + 1),
			StartTime:  r.TS,
			UserID:     r.UserID,
			Level:      r.Level,
			SessionID:  r.SessionID,
			Location:   r.Location,
			UserAgent:  r.UserAgent,
			Year:       t.Year,
			Month:      t.Month,
		}
		if songID, artistID, ok := dims.Resolve(r.Song, r.Artist, r.Length); ok {
			row.SongID = &songID
			row.ArtistID = &artistID
		}
		rows = append(rows, row)
	}
	return rows
}
