package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/dlcconv/pkg/gp4"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "EP0001", cfg.Region)
	assert.Equal(t, gp4.TitleReject, cfg.TitlePolicy())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
region: UP0001
workers: 2
title:
  policy: truncate
logging:
  level: debug
  format: json
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "UP0001", cfg.Region)
	assert.Equal(t, "CUSA00745", cfg.TitleID)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, gp4.TitleTruncate, cfg.TitlePolicy())
	assert.Equal(t, gp4.DefaultMaxTitleBytes, cfg.Title.MaxBytes)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	tests := map[string]string{
		"syntax":  "region: [",
		"region":  "region: EP1",
		"workers": "workers: 0",
		"policy":  "title:\n  policy: ignore",
		"level":   "logging:\n  level: loud",
		"title":   "title:\n  max_bytes: 500",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Tool.Path = "/opt/tools/orbis-pub-cmd.exe"
	cfg.Catalog = "/var/lib/dlcconv/catalog.zst"

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
