package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/roman-kulish/uxv-edge/internal/storage"
	"github.com/roman-kulish/uxv-edge/internal/wire"
)

// Run records a mission: it serves the ingest services on config.Server.Address
// until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	recorder, err := createRecorder(ctx, &config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer func() {
		if cErr := recorder.Close(); cErr != nil {
			logger.Error(fmt.Sprintf("failed to close recorder: %s", cErr.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	srv := NewIngestServer(WithLogger(logger), WithRecorder(recorder), WithMetrics(metrics))

	lis, err := net.Listen("tcp", config.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Server.Address, err)
	}

	logger.Info("ground station started",
		slog.String("address", lis.Addr().String()),
		slog.String("mission", recorder.Mission().ID),
		slog.Time("mission_start", recorder.Mission().StartTime),
	)

	return Serve(ctx, lis, NewGRPCServer(&config.Server, srv), metricsServer(&config.Metrics, metrics, reg), config.Server.ShutdownTimeout.Duration(), logger)
}

// NewGRPCServer creates a gRPC server with both ingest services registered
func NewGRPCServer(config *ServerConfig, srv *IngestServer) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(config.MaxRecvMsgSize),
	}
	if d := config.KeepaliveTime.Duration(); d > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: d}))
	}

	s := grpc.NewServer(opts...)
	wire.RegisterTelemetryIngestServer(s, srv)
	wire.RegisterDetectionIngestServer(s, srv)
	return s
}

// Serve runs the gRPC server on lis, and the metrics server when not nil, until
// ctx is cancelled or either server fails. Open streams get shutdownTimeout to
// complete before they are aborted.
func Serve(ctx context.Context, lis net.Listener, s *grpc.Server, metrics *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serving gRPC: %w", err)
		}
		return nil
	})

	if metrics != nil {
		g.Go(func() error {
			logger.Info("serving metrics", slog.String("address", metrics.Addr))
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()

		timer := time.NewTimer(shutdownTimeout)
		defer timer.Stop()

		select {
		case <-stopped:
		case <-timer.C:
			logger.Warn("graceful shutdown timed out, aborting open streams")
			s.Stop()
		}

		if metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metrics.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

func metricsServer(config *MetricsConfig, metrics *Metrics, g prometheus.Gatherer) *http.Server {
	if config.Address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))

	return &http.Server{
		Addr:              config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func createRecorder(ctx context.Context, config *StorageConfig, logger *slog.Logger) (*StoreRecorder, error) {
	if err := os.MkdirAll(config.DataDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory '%s': %w", config.DataDirectory, err)
	}

	missionID := config.MissionID
	if missionID == "" {
		missionID = storage.NewMissionID(time.Now())
	}

	store := storage.NewSqliteStore(filepath.Join(config.DataDirectory, config.Database))

	missions, err := store.Missions(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listing missions: %w", err)
	}
	for _, m := range missions {
		logger.Debug("recorded mission", slog.String("mission", m.ID), slog.Time("start", m.StartTime))
	}
	logger.Info("mission store opened", slog.String("path", filepath.Join(config.DataDirectory, config.Database)), slog.Int("missions", len(missions)))

	recorder, err := NewStoreRecorder(ctx, store, missionID, WithBatchSize(config.BatchSize))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return recorder, nil
}
