package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stockrisk/backend-go/internal/api"
	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/drive"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
	"github.com/andresuchdata/stockrisk/backend-go/internal/storage"
	"github.com/andresuchdata/stockrisk/backend-go/migrations"
	"github.com/andresuchdata/stockrisk/backend-go/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.App.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger.UseJSON(os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(db.DB.DB); err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Cache)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory sessions and no query cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	queryCache := cache.NewQueryCache(redisClient, time.Duration(cfg.Cache.FiltersTTLSeconds)*time.Second)
	sessions := cache.NewSessionStore(redisClient, time.Duration(cfg.Cache.SessionTTLHours)*time.Hour)

	criticality := config.NewCriticalityStore(cfg.Criticality.Path)

	ledgerRepo := postgres.NewLedgerRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	runRepo := pipeline.NewRepository(db.DB)

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialise upload archive")
	}

	orchestrator := pipeline.NewOrchestrator(runRepo, ledgerRepo, pipelineConfig(cfg))

	orderService := service.NewOrderService(orderRepo, sessions)
	ingestService := service.NewIngestService(orchestrator, ledger.NewPipeline(), service.IngestOptions{
		Archive:       archive,
		ArchivePrefix: cfg.Storage.Prefix,
		UploadDir:     cfg.App.UploadDir,
		Cache:         queryCache,
		Actions:       orderService,
		Runs:          runRepo,
	})
	services := &api.Services{
		RiskService:   service.NewRiskService(ledgerRepo, criticality, sessions, queryCache, cfg.Ranking),
		IngestService: ingestService,
		OrderService:  orderService,
		ConfigService: service.NewConfigService(criticality, orderService),
	}

	startDriveWatcher(ctx, cfg, ingestService)

	router := api.NewRouter(services, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadMB:    cfg.Server.MaxUploadMB,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}

func pipelineConfig(cfg *config.Config) pipeline.PipelineConfig {
	pCfg := pipeline.DefaultPipelineConfig("ledger")
	if cfg.Pipeline.WorkerCount > 0 {
		pCfg.WorkerCount = cfg.Pipeline.WorkerCount
	}
	if cfg.Pipeline.BatchSize > 0 {
		pCfg.BatchSize = cfg.Pipeline.BatchSize
	}
	if cfg.Pipeline.BatchRows > 0 {
		pCfg.BatchRows = cfg.Pipeline.BatchRows
	}
	if cfg.Pipeline.RetryAttempts > 0 {
		pCfg.RetryAttempts = cfg.Pipeline.RetryAttempts
	}
	return pCfg
}

// newArchive returns the S3 bucket when storage is enabled, otherwise a local directory.
func newArchive(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	if cfg.Storage.Enabled {
		return storage.NewS3Client(ctx, storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
	}
	return storage.NewLocalStorage(filepath.Join(cfg.App.DataDir, "archive"))
}

func startDriveWatcher(ctx context.Context, cfg *config.Config, ingest *service.IngestService) {
	if cfg.Drive.FolderID == "" || cfg.Drive.CredentialsFile == "" {
		return
	}
	creds, err := os.ReadFile(cfg.Drive.CredentialsFile)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("drive watcher disabled: cannot read credentials")
		return
	}
	svc, err := drive.NewService(ctx, creds)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("drive watcher disabled")
		return
	}

	opts := drive.DownloadOptions{
		FolderID:    cfg.Drive.FolderID,
		DownloadDir: filepath.Join(cfg.App.UploadDir, "drive"),
	}
	watcher := drive.NewWatcher(drive.NewDownloader(svc), opts, cfg.Drive.PollInterval, func(ctx context.Context, paths []string) error {
		_, err := ingest.IngestFiles(ctx, paths)
		return err
	})
	go watcher.Run(ctx)
	logger.Log.Info().Str("folder_id", cfg.Drive.FolderID).Dur("interval", cfg.Drive.PollInterval).Msg("drive watcher started")
}
