package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
	"github.com/andresuchdata/stockrisk/backend-go/migrations"
	"github.com/andresuchdata/stockrisk/backend-go/pkg/logger"
)

const driverName = "pgx"

type dbKey struct{}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string (defaults to the DB_* settings)",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func dsn(c *cli.Context) string {
	if url := c.String("db-url"); url != "" {
		return url
	}
	return postgres.DSN(&config.Load().Database)
}

func initDB(c *cli.Context) error {
	db, err := sql.Open(driverName, dsn(c))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	c.Context = context.WithValue(c.Context, dbKey{}, postgres.Wrap(sqlx.NewDb(db, driverName)))
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey{}).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) *postgres.DB {
	db, _ := c.Context.Value(dbKey{}).(*postgres.DB)
	return db
}

// newIngestService wires the ledger pipeline against the database without caches.
func newIngestService(c *cli.Context) *service.IngestService {
	db := dbFrom(c)
	cfg := config.Load()

	pCfg := pipeline.DefaultPipelineConfig("ledger")
	if n := c.Int("workers"); n > 0 {
		pCfg.WorkerCount = n
	} else if cfg.Pipeline.WorkerCount > 0 {
		pCfg.WorkerCount = cfg.Pipeline.WorkerCount
	}
	if cfg.Pipeline.BatchRows > 0 {
		pCfg.BatchRows = cfg.Pipeline.BatchRows
	}
	if cfg.Pipeline.RetryAttempts > 0 {
		pCfg.RetryAttempts = cfg.Pipeline.RetryAttempts
	}

	runRepo := pipeline.NewRepository(db.DB)
	orch := pipeline.NewOrchestrator(runRepo, postgres.NewLedgerRepository(db), pCfg)
	return service.NewIngestService(orch, ledger.NewPipeline(), service.IngestOptions{
		UploadDir: cfg.App.UploadDir,
		Runs:      runRepo,
	})
}

func workersFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "workers",
		Usage:   "Number of concurrent file workers",
		EnvVars: []string{"PIPELINE_WORKER_COUNT"},
	}
}

func main() {
	logger.SetLevel(os.Getenv("APP_LOG_LEVEL"))

	app := &cli.App{
		Name:  "stockrisk",
		Usage: "Manage the inventory ledger and report stock-out risk",
		Flags: []cli.Flag{newDBURLFlag()},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "status", Usage: "Print migration status instead of migrating"},
				},
				Action: runMigrate,
			},
			{
				Name:   "ingest",
				Usage:  "Load ledger files into the database",
				Before: initDB,
				After:  closeDB,
				Subcommands: []*cli.Command{
					{
						Name:      "local",
						Usage:     "Ingest CSV/XLSX files or directories from disk",
						ArgsUsage: "<file|dir>...",
						Flags:     []cli.Flag{workersFlag()},
						Action:    runIngestLocal,
					},
					{
						Name:   "drive",
						Usage:  "Download and ingest ledger files from a Google Drive folder",
						Flags:  driveFlags(),
						Action: runIngestDrive,
					},
					{
						Name:   "s3",
						Usage:  "Download and ingest ledger files from an S3-compatible bucket",
						Flags:  s3Flags(),
						Action: runIngestS3,
					},
				},
			},
			{
				Name:   "retry-failed",
				Usage:  "Retry failed ingestion file jobs",
				Before: initDB,
				After:  closeDB,
				Flags:  []cli.Flag{workersFlag()},
				Action: runRetryFailed,
			},
			{
				Name:   "report",
				Usage:  "Print the action panel and reorder list",
				Before: initDB,
				After:  closeDB,
				Flags:  reportFlags(),
				Action: runReport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("stockrisk failed")
	}
}

func runMigrate(c *cli.Context) error {
	if c.Bool("status") {
		db, err := sql.Open(driverName, dsn(c))
		if err != nil {
			return err
		}
		defer db.Close()
		return migrations.Status(db)
	}
	if err := migrations.UpDSN(driverName, dsn(c)); err != nil {
		return err
	}
	logger.Log.Info().Msg("migrations applied")
	return nil
}
