package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DownloadOptions controls how files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
	// Skip lists Drive file IDs that were already fetched.
	Skip map[string]bool
}

// DownloadedFile pairs a Drive file with its local copy.
type DownloadedFile struct {
	File      *File
	LocalPath string
}

// Downloader pulls ledger files from a Drive folder.
type Downloader struct {
	source Source
}

// NewDownloader creates a new Downloader.
func NewDownloader(s Source) *Downloader {
	return &Downloader{source: s}
}

// DownloadLedgers downloads all CSV and XLSX files from the folder into DownloadDir.
// Other file types are ignored.
func (d *Downloader) DownloadLedgers(ctx context.Context, opts DownloadOptions) ([]DownloadedFile, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.source.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	downloaded := make([]DownloadedFile, 0)
	for _, f := range files {
		select {
		case <-ctx.Done():
			return downloaded, ctx.Err()
		default:
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		if opts.Skip[f.ID] {
			continue
		}

		localPath := filepath.Join(opts.DownloadDir, filepath.Base(f.Name))
		if err := d.download(ctx, f, localPath); err != nil {
			return downloaded, err
		}
		downloaded = append(downloaded, DownloadedFile{File: f, LocalPath: localPath})
	}

	return downloaded, nil
}

func (d *Downloader) download(ctx context.Context, f *File, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.source.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}

// IngestFunc receives the local paths of newly downloaded files.
type IngestFunc func(ctx context.Context, paths []string) error

// Watcher polls a Drive folder and hands new ledger files to an IngestFunc.
type Watcher struct {
	downloader *Downloader
	opts       DownloadOptions
	interval   time.Duration
	ingest     IngestFunc

	mu   sync.Mutex
	seen map[string]bool
}

func NewWatcher(d *Downloader, opts DownloadOptions, interval time.Duration, ingest IngestFunc) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Watcher{
		downloader: d,
		opts:       opts,
		interval:   interval,
		ingest:     ingest,
		seen:       make(map[string]bool),
	}
}

// Poll runs one download-and-ingest cycle. Files are only marked seen after a successful ingest.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	opts := w.opts
	opts.Skip = w.seen

	files, err := w.downloader.DownloadLedgers(ctx, opts)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.LocalPath
	}
	if err := w.ingest(ctx, paths); err != nil {
		return 0, err
	}
	for _, f := range files {
		w.seen[f.File.ID] = true
	}
	return len(files), nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.Poll(ctx)
		if err != nil {
			log.Warn().Err(err).Str("folder_id", w.opts.FolderID).Msg("drive poll failed")
		} else if n > 0 {
			log.Info().Int("files", n).Str("folder_id", w.opts.FolderID).Msg("ingested files from drive")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
