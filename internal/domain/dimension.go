package domain

// Dimension builders project and deduplicate a single source into one
// dimension table. Deduplication keeps the first occurrence in input order:
// the source guarantees no reconciliation of conflicting attributes, so the
// tie-break only has to be deterministic for a given input snapshot.

// BuildSongs projects the songs dimension from the song-metadata source,
// one row per distinct song_id.
func BuildSongs(records []SongRecord) []SongRow {
	seen := make(map[string]struct{}, len(records))
	rows := make([]SongRow, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.SongID]; ok {
			continue
		}
		seen[r.SongID] = struct{}{}
		rows = append(rows, SongRow{
			SongID:   r.SongID,
			Title:    r.Title,
			ArtistID: r.ArtistID,
			Year:     r.Year,
			Duration: r.Duration,
		})
	}
	return rows
}

// BuildArtists projects the artists dimension from the song-metadata source,
// one row per distinct artist_id.
func BuildArtists(records []SongRecord) []ArtistRow {
	seen := make(map[string]struct{}, len(records))
	rows := make([]ArtistRow, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ArtistID]; ok {
			continue
		}
		seen[r.ArtistID] = struct{}{}
		rows = append(rows, ArtistRow{
			ArtistID:  r.ArtistID,
			Name:      r.ArtistName,
			Location:  r.ArtistLocation,
			Latitude:  r.ArtistLatitude,
			Longitude: r.ArtistLongitude,
		})
	}
	return rows
}

// BuildUsers projects the users dimension from play records, one row per
// distinct non-empty userId. Records with an empty userId never contribute a
// row here, though they still appear in songplays.
func BuildUsers(plays []LogRecord) []UserRow {
	seen := make(map[string]struct{})
	rows := make([]UserRow, 0, len(plays))
	for _, r := range plays {
		if r.UserID == "" {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		rows = append(rows, UserRow{
			UserID:    r.UserID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Gender:    r.Gender,
			Level:     r.Level,
		})
	}
	return rows
}
