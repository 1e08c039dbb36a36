package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("APP_DATA_DIR", filepath.Join(dir, "output"))

	cfg := Load()
	if cfg.Ranking.DefaultLimit != 3 {
		t.Errorf("default panel size = %d, want 3", cfg.Ranking.DefaultLimit)
	}
	if cfg.Ranking.MaxLimit != 100 {
		t.Errorf("max panel size = %d, want 100", cfg.Ranking.MaxLimit)
	}
	if cfg.App.UploadDir != filepath.Join(dir, "uploads") {
		t.Errorf("upload dir = %q", cfg.App.UploadDir)
	}
}
