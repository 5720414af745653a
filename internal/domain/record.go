package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PageNextSong marks log records that represent actual song plays. Every
// other page value (Home, Login, Logout, ...) is navigation noise and is
// dropped before any table is built.
const PageNextSong = "NextSong"

// ErrSchema indicates a source record is missing a required structural
// field. Schema errors are fatal: the run aborts and no table is written.
var ErrSchema = errors.New("schema mismatch")

// SongRecord is one row of the song-metadata source.
type SongRecord struct {
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int32    `json:"year"`
	Duration        float64  `json:"duration"`
}

// Validate checks the structural fields the transformation depends on.
func (r SongRecord) Validate() error {
	if r.SongID == "" {
		return fmt.Errorf("%w: song record missing song_id", ErrSchema)
	}
	if r.ArtistID == "" {
		return fmt.Errorf("%w: song record %q missing artist_id", ErrSchema, r.SongID)
	}
	return nil
}

// LogRecord is one row of the user-activity source.
type LogRecord struct {
	Page      string  `json:"page"`
	TS        int64   `json:"ts"`
	UserID    string  `json:"userId"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Gender    string  `json:"gender"`
	Level     string  `json:"level"`
	Song      string  `json:"song"`
	Artist    string  `json:"artist"`
	Length    float64 `json:"length"`
	SessionID int64   `json:"sessionId"`
	Location  string  `json:"location"`
	UserAgent string  `json:"userAgent"`
}

// Validate checks the structural fields the transformation depends on.
// UserID may legitimately be empty (anonymous sessions) and is not checked.
func (r LogRecord) Validate() error {
	if r.Page == "" {
		return fmt.Errorf("%w: log record missing page", ErrSchema)
	}
	if r.TS <= 0 {
		return fmt.Errorf("%w: log record missing ts", ErrSchema)
	}
	return nil
}

// ParseSongRecord deserializes and validates one song-metadata object.
func ParseSongRecord(data []byte) (SongRecord, error) {
	var record SongRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return SongRecord{}, fmt.Errorf("parse song record: %w", err)
	}
	if err := record.Validate(); err != nil {
		return SongRecord{}, err
	}
	return record, nil
}

// ParseLogRecord deserializes and validates one activity-log object.
func ParseLogRecord(data []byte) (LogRecord, error) {
	var record LogRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return LogRecord{}, fmt.Errorf("parse log record: %w", err)
	}
	if err := record.Validate(); err != nil {
		return LogRecord{}, err
	}
	return record, nil
}

// FilterPlays keeps only the records that represent song plays. All
// downstream stages (users, time, songplays) consume the filtered stream.
func FilterPlays(records []LogRecord) []LogRecord {
	plays := make([]LogRecord, 0, len(records))
	for _, r := range records {
		if r.Page == PageNextSong {
			plays = append(plays, r)
		}
	}
	return plays
}
