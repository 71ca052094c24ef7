package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, filepath.Join(".chronicle", "streams"), cfg.StreamsDir())
	assert.Equal(t, filepath.Join(".chronicle", "projection.db"), cfg.ProjectionPath())
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chronicle.yaml", `
data_dir: /var/lib/chronicle
max_attempts: 5
log_level: debug
catalog_file: kinds.cue
`)

	cfg, err := LoadWithEnv(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chronicle", cfg.DataDir)
	assert.Equal(t, "projection.db", cfg.ProjectionFile)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, filepath.Join(dir, "kinds.cue"), cfg.CatalogFile)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "chronicle.toml", `
data_dir = "/tmp/chron"
projection_file = "views.db"
log_format = "json"
`)

	cfg, err := LoadWithEnv(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chron", cfg.DataDir)
	assert.Equal(t, "views.db", cfg.ProjectionFile)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "chronicle.yaml", "data_dir: /from/file\nmax_attempts: 2\n")

	cfg, err := LoadWithEnv(path, map[string]string{
		"CHRONICLE_DATA_DIR":     "/from/env",
		"CHRONICLE_LOG_LEVEL":    "info",
		"CHRONICLE_CATALOG_FILE": "/abs/extra.cue",
		"DATA_DIR":               "/ignored/without/prefix",
	})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, "/abs/extra.cue", cfg.CatalogFile)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		environ map[string]string
	}{
		{"unknown yaml key", writeFile(t, dir, "a.yaml", "data_dri: x\n"), nil},
		{"unknown toml key", writeFile(t, dir, "b.toml", "bogus = 1\n"), nil},
		{"bad extension", writeFile(t, dir, "c.json", "{}"), nil},
		{"missing file", filepath.Join(dir, "nope.yaml"), nil},
		{"invalid attempts", writeFile(t, dir, "d.yaml", "max_attempts: 0\n"), nil},
		{"invalid level", "", map[string]string{"CHRONICLE_LOG_LEVEL": "loud"}},
		{"projection with separator", "", map[string]string{"CHRONICLE_PROJECTION_FILE": "a/b.db"}},
		{"bad env int", "", map[string]string{"CHRONICLE_MAX_ATTEMPTS": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := tt.environ
			if environ == nil {
				environ = map[string]string{}
			}
			_, err := LoadWithEnv(tt.path, environ)
			assert.Error(t, err)
		})
	}
}

func TestEmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "chronicle.yml", "")
	cfg, err := LoadWithEnv(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, Discover(dir))

	writeFile(t, dir, "chronicle.toml", "")
	assert.Equal(t, filepath.Join(dir, "chronicle.toml"), Discover(dir))

	writeFile(t, dir, "chronicle.yaml", "")
	assert.Equal(t, filepath.Join(dir, "chronicle.yaml"), Discover(dir))
}
