package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/quietbarn/songplay-etl/internal/adapter/http"
	"github.com/quietbarn/songplay-etl/internal/adapter/jsonfile"
	kafkaadapter "github.com/quietbarn/songplay-etl/internal/adapter/kafka"
	"github.com/quietbarn/songplay-etl/internal/adapter/parquet"
	"github.com/quietbarn/songplay-etl/internal/adapter/postgres"
	"github.com/quietbarn/songplay-etl/internal/adapter/s3source"
	"github.com/quietbarn/songplay-etl/internal/config"
	"github.com/quietbarn/songplay-etl/internal/observability"
	"github.com/quietbarn/songplay-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	songs, logs, err := buildSources(cfg, clock, logger)
	if err != nil {
		logger.Error("failed to build sources", "error", err)
		os.Exit(1)
	}

	writer, closeWriter, err := buildWriter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build table writer", "error", err)
		os.Exit(1)
	}

	var notifier pipeline.Notifier
	var closeNotifier func() error
	if cfg.NotifierEnabled() {
		n := kafkaadapter.NewNotifier(cfg, logger)
		notifier = n
		closeNotifier = n.Close
	}

	p := pipeline.New(songs, logs, writer, notifier, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	_, runErr := p.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeWriter()
	if closeNotifier != nil {
		if err := closeNotifier(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func buildSources(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (pipeline.SongSource, pipeline.LogSource, error) {
	var store s3source.ObjectStore
	if s3source.IsS3Location(cfg.SongData) || s3source.IsS3Location(cfg.LogData) {
		store = s3source.NewObjectStore(cfg.AWSRegion)
	}

	var songs pipeline.SongSource
	if s3source.IsS3Location(cfg.SongData) {
		reader, err := s3source.NewSongReader(store, cfg.SongData, cfg.S3MaxRetries, clock, logger)
		if err != nil {
			return nil, nil, err
		}
		songs = reader
	} else {
		songs = jsonfile.NewSongReader(cfg.SongData, logger)
	}

	var logs pipeline.LogSource
	if s3source.IsS3Location(cfg.LogData) {
		reader, err := s3source.NewLogReader(store, cfg.LogData, cfg.S3MaxRetries, clock, logger)
		if err != nil {
			return nil, nil, err
		}
		logs = reader
	} else {
		logs = jsonfile.NewLogReader(cfg.LogData, logger)
	}

	return songs, logs, nil
}

func buildWriter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.TableWriter, func(), error) {
	switch cfg.OutputSink {
	case config.SinkPostgres:
		w, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		var uploader parquet.UploadManager
		if s3source.IsS3Location(cfg.OutputData) {
			sess := session.Must(session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)}))
			uploader = s3manager.NewUploader(sess)
		}
		w, err := parquet.New(cfg.OutputData, uuid.NewString(), uploader, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, func() {}, nil
	}
}
