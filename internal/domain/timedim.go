package domain

import "time"

// DecomposeTimestamp converts an epoch-millisecond timestamp to the time
// dimension's calendar fields, in UTC. Week is the ISO 8601 week of year.
// Weekday is 0=Sunday through 6=Saturday; the convention is pinned by tests
// so it cannot drift silently.
func DecomposeTimestamp(ts int64) TimeRow {
	t := time.UnixMilli(ts).UTC()
	_, week := t.ISOWeek()
	return TimeRow{
		StartTime: ts,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Month:     int32(t.Month()),
		Year:      int32(t.Year()),
		Weekday:   int32(t.Weekday()),
	}
}

// BuildTimes builds the time dimension from play records, one row per
// distinct start_time in input order.
func BuildTimes(plays []LogRecord) []TimeRow {
	seen := make(map[int64]struct{}, len(plays))
	rows := make([]TimeRow, 0, len(plays))
	for _, r := range plays {
		if _, ok := seen[r.TS]; ok {
			continue
		}
		seen[r.TS] = struct{}{}
		rows = append(rows, DecomposeTimestamp(r.TS))
	}
	return rows
}
