package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/quietbarn/songplay-etl/internal/domain"
	"github.com/quietbarn/songplay-etl/internal/observability"
)

// SongSource reads the song-metadata source into typed records.
type SongSource interface {
	ReadSongs(ctx context.Context) ([]domain.SongRecord, error)
}

// LogSource reads the user-activity source into typed records.
type LogSource interface {
	ReadLogs(ctx context.Context) ([]domain.LogRecord, error)
}

// TableWriter persists finalized tables. WriteTable stages a table; nothing
// becomes visible until Commit. A run produces all five tables or none.
type TableWriter interface {
	WriteTable(ctx context.Context, table domain.Table) error
	Commit(ctx context.Context) error
}

// Notifier publishes a run summary after a successful commit.
type Notifier interface {
	NotifyRunComplete(ctx context.Context, summary RunSummary) error
}

// RunSummary describes one completed run.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	RowCounts   map[string]int `json:"row_counts"`
	JoinMisses  int            `json:"join_misses"`
}

// Pipeline orchestrates one extract-transform-load run over the two sources.
type Pipeline struct {
	songs    SongSource
	logs     LogSource
	writer   TableWriter
	notifier Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    bool
}

// New creates a Pipeline. notifier may be nil when run notifications are
// disabled.
func New(songs SongSource, logs LogSource, writer TableWriter, notifier Notifier, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		songs:    songs,
		logs:     logs,
		writer:   writer,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Ready reports whether the run has committed all five tables.
func (p *Pipeline) Ready() bool {
	return p.ready
}

// Run executes one full-refresh run: build the dimensions, resolve the fact
// table against them, stage all five tables, commit. Any error aborts the run
// with nothing committed.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	runID := uuid.NewString()
	startedAt := p.clock.Now().UTC()
	logger := p.logger.With("run_id", runID)

	logger.Info("run started")
	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)

	summary, err := p.run(ctx, runID, startedAt, logger)
	p.metrics.RunDuration.Observe(p.clock.Since(startedAt).Seconds())
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("failure").Inc()
		logger.Error("run failed", "error", err)
		return RunSummary{}, err
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.ready = true

	if p.notifier != nil {
		// The tables are already committed; a lost notification is not
		// worth failing the run over.
		if err := p.notifier.NotifyRunComplete(ctx, summary); err != nil {
			logger.Warn("run notification failed", "error", err)
		}
	}

	logger.Info("run complete",
		"songs", summary.RowCounts[domain.TableSongs],
		"artists", summary.RowCounts[domain.TableArtists],
		"users", summary.RowCounts[domain.TableUsers],
		"time", summary.RowCounts[domain.TableTime],
		"songplays", summary.RowCounts[domain.TableSongplays],
		"join_misses", summary.JoinMisses,
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, startedAt time.Time, logger *slog.Logger) (RunSummary, error) {
	songRecords, err := p.songs.ReadSongs(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("read song data: %w", err)
	}
	p.metrics.RecordsRead.WithLabelValues("song_data").Add(float64(len(songRecords)))

	logRecords, err := p.logs.ReadLogs(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("read log data: %w", err)
	}
	p.metrics.RecordsRead.WithLabelValues("log_data").Add(float64(len(logRecords)))

	songs := domain.BuildSongs(songRecords)
	artists := domain.BuildArtists(songRecords)

	plays := domain.FilterPlays(logRecords)
	users := domain.BuildUsers(plays)
	times := domain.BuildTimes(plays)

	// The fact resolver joins against the dimensions, so they must be fully
	// built before this point.
	dims := domain.NewDimensions(songs, artists)
	songplays := domain.ResolvePlays(plays, dims)

	joinMisses := 0
	for _, row := range songplays {
		if row.SongID == nil {
			joinMisses++
		}
	}
	p.metrics.JoinMisses.Add(float64(joinMisses))

	tables := []domain.Table{
		domain.SongsTable(songs),
		domain.ArtistsTable(artists),
		domain.UsersTable(users),
		domain.TimeTable(times),
		domain.SongplaysTable(songplays),
	}

	rowCounts := make(map[string]int, len(tables))
	for _, table := range tables {
		if err := p.writer.WriteTable(ctx, table); err != nil {
			return RunSummary{}, fmt.Errorf("write table %s: %w", table.Name, err)
		}
		p.metrics.RowsWritten.WithLabelValues(table.Name).Add(float64(len(table.Rows)))
		rowCounts[table.Name] = len(table.Rows)
		logger.Debug("table staged", "table", table.Name, "rows", len(table.Rows))
	}

	if err := p.writer.Commit(ctx); err != nil {
		return RunSummary{}, fmt.Errorf("commit tables: %w", err)
	}

	return RunSummary{
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: p.clock.Now().UTC(),
		RowCounts:   rowCounts,
		JoinMisses:  joinMisses,
	}, nil
}
