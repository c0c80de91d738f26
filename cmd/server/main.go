package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/config"
	"github.com/prudhvinik1/meshlog/internal/database"
	"github.com/prudhvinik1/meshlog/internal/handlers"
	"github.com/prudhvinik1/meshlog/internal/logger"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
	"github.com/prudhvinik1/meshlog/internal/services"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config_load_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log := logger.New("meshlog", cfg.AppEnv)
	if err := run(cfg, log); err != nil {
		log.Error("server_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	// Initialize store connections
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	events := repositories.NewRedisEventLogRepository(redisClient, c,
		repositories.WithReadRetries(cfg.ReadRetries, cfg.ReadBackoff))
	ids := repositories.NewRedisDeviceIDAllocator(redisClient, cfg.DeviceIDSeed)

	var snapshotRepo repositories.SnapshotRepository = repositories.NewRedisSnapshotRepository(redisClient, c)
	if cfg.SnapshotBackend == config.SnapshotBackendPostgres {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgRepo := repositories.NewPostgresSnapshotRepository(pool, c)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		snapshotRepo = pgRepo
	}

	replay := services.NewReplayService(events, snapshotRepo, cfg.PageSize)
	snapshots := services.NewSnapshotService(snapshotRepo, replay)

	h := &handlers.Handler{
		Log:       log,
		Events:    events,
		Changes:   services.NewChangeLogService(events, ids),
		Replay:    replay,
		Snapshots: snapshots,
		Lookup:    services.NewLookupService(events),
	}

	if cfg.SnapshotInterval > 0 {
		scheduler := services.NewSnapshotScheduler(snapshots, cfg.SnapshotInterval, cfg.SnapshotLocations)
		scheduler.OnCheckpoint = func(snap models.Snapshot) {
			log.Debug("snapshot_checkpoint",
				slog.String("location_id", snap.LocationID),
				slog.Int("devices", len(snap.Devices)),
			)
		}
		scheduler.OnError = func(locationID string, err error) {
			log.Error("snapshot_checkpoint_failed",
				slog.String("location_id", locationID),
				slog.String("err", err.Error()),
			)
		}
		go func() {
			_ = scheduler.Run(ctx)
		}()
		log.Info("snapshot_scheduler_started",
			slog.Duration("interval", cfg.SnapshotInterval),
			slog.Any("locations", cfg.SnapshotLocations),
		)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handlers.NewRouter(log, h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		<-ctx.Done()

		log.Info("shutdown_start")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("server_starting",
		slog.String("port", cfg.ServerPort),
		slog.String("codec", c.Name()),
		slog.String("snapshot_backend", cfg.SnapshotBackend),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info("shutdown_done")
	return nil
}
