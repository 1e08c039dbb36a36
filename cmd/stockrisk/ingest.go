package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/drive"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/storage"
	"github.com/andresuchdata/stockrisk/backend-go/pkg/logger"
)

func driveFlags() []cli.Flag {
	return []cli.Flag{
		workersFlag(),
		&cli.StringFlag{
			Name:    "folder-id",
			Usage:   "Google Drive folder ID containing ledger files",
			EnvVars: []string{"DRIVE_FOLDER_ID"},
		},
		&cli.StringFlag{
			Name:  "folder-path",
			Usage: "Slash-separated folder path under My Drive, used when no folder ID is given",
		},
		&cli.StringFlag{
			Name:    "credentials-file",
			Usage:   "Service account credentials JSON",
			EnvVars: []string{"DRIVE_CREDENTIALS_FILE"},
		},
		&cli.StringFlag{
			Name:  "download-dir",
			Usage: "Local directory where files from Drive are downloaded",
			Value: "./data/uploads/drive",
		},
	}
}

func s3Flags() []cli.Flag {
	return []cli.Flag{
		workersFlag(),
		&cli.StringFlag{
			Name:    "prefix",
			Usage:   "Object key prefix to ingest",
			EnvVars: []string{"STORAGE_PREFIX"},
		},
		&cli.StringFlag{
			Name:  "download-dir",
			Usage: "Local directory where objects are downloaded",
			Value: "./data/uploads/s3",
		},
	}
}

// collectFiles expands directories into the ledger files they contain.
func collectFiles(args []string) ([]string, error) {
	files := make([]string, 0)
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ledger.SupportedExtension(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func logResult(result pipeline.RunResult) {
	for _, run := range result.Runs {
		logger.Log.Info().
			Str("date", run.Date.Format("2006-01-02")).
			Str("status", string(run.Status)).
			Int("files", run.ProcessedFiles).
			Int("rows", run.TotalRows).
			Msg("ingest run")
	}
	logger.Log.Info().Int("rows", result.TotalRows).Msg("ingest finished")
}

func runIngestLocal(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file or directory is required")
	}
	files, err := collectFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Log.Info().Msg("no ledger files found; nothing to ingest")
		return nil
	}

	result, err := newIngestService(c).IngestFiles(c.Context, files)
	logResult(result)
	return err
}

func runIngestDrive(c *cli.Context) error {
	credsPath := c.String("credentials-file")
	if strings.TrimSpace(credsPath) == "" {
		return fmt.Errorf("credentials-file is required")
	}
	creds, err := os.ReadFile(credsPath)
	if err != nil {
		return fmt.Errorf("read drive credentials: %w", err)
	}
	driveSvc, err := drive.NewService(c.Context, creds)
	if err != nil {
		return fmt.Errorf("failed to create Drive service: %w", err)
	}

	folderID := c.String("folder-id")
	if folderID == "" && c.String("folder-path") != "" {
		if folderID, err = driveSvc.FindFolderByPath(c.Context, c.String("folder-path")); err != nil {
			return err
		}
	}
	if folderID == "" {
		return fmt.Errorf("folder-id or folder-path is required")
	}

	downloaded, err := drive.NewDownloader(driveSvc).DownloadLedgers(c.Context, drive.DownloadOptions{
		FolderID:    folderID,
		DownloadDir: c.String("download-dir"),
	})
	if err != nil {
		return fmt.Errorf("failed to download files from Drive: %w", err)
	}
	if len(downloaded) == 0 {
		logger.Log.Info().Str("folder_id", folderID).Msg("no ledger files in Drive folder; nothing to ingest")
		return nil
	}

	files := make([]string, len(downloaded))
	for i, f := range downloaded {
		files[i] = f.LocalPath
	}
	result, err := newIngestService(c).IngestFiles(c.Context, files)
	logResult(result)
	return err
}

func runIngestS3(c *cli.Context) error {
	cfg := config.Load().Storage
	client, err := storage.NewS3Client(c.Context, storage.S3Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return err
	}

	objects, err := client.ListObjects(c.Context, c.String("prefix"))
	if err != nil {
		return err
	}

	downloadDir := c.String("download-dir")
	files := make([]string, 0, len(objects))
	for _, obj := range objects {
		if !ledger.SupportedExtension(obj.Key) {
			continue
		}
		dest := filepath.Join(downloadDir, filepath.Base(obj.Key))
		if err := client.DownloadObject(c.Context, obj.Key, dest); err != nil {
			return err
		}
		files = append(files, dest)
	}
	if len(files) == 0 {
		logger.Log.Info().Str("prefix", c.String("prefix")).Msg("no ledger objects found; nothing to ingest")
		return nil
	}

	result, err := newIngestService(c).IngestFiles(c.Context, files)
	logResult(result)
	return err
}

func runRetryFailed(c *cli.Context) error {
	n, err := newIngestService(c).RetryFailed(c.Context)
	logger.Log.Info().Int("files", n).Msg("retried failed files")
	return err
}
