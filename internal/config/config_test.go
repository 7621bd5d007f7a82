package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt-auto-saver/internal/cookies"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	return Config{
		DestDir:     filepath.Join(root, "dest"),
		ScratchDir:  filepath.Join(root, "scratch"),
		SourceURLs:  []string{"https://example.com/list"},
		CookiesPath: filepath.Join(root, "cookies.txt"),
		MaxAttempts: 5,
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("YTAS_DEST", "/media/music")
	t.Setenv("YTAS_AUDIO_ONLY", "true")
	t.Setenv("YTAS_SCRATCH_BACKOFF_SECONDS", "2")
	t.Setenv("YTAS_PROXIES", "http://a:1, ,http://b:2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/media/music", cfg.DestDir)
	assert.Equal(t, DefaultScratchDir, cfg.ScratchDir)
	assert.Equal(t, DefaultCookiesPath, cfg.CookiesPath)
	assert.True(t, cfg.AudioOnly)
	assert.False(t, cfg.RetryFailed)
	assert.Equal(t, 2*time.Second, cfg.ScratchClearBackoff)
	assert.Equal(t, 5, cfg.ScratchClearRetries)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.Proxies)

	t.Setenv("YTAS_NOISY", "maybe")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "YTAS_NOISY")
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("YTAS_LOG_DIR=/from/file\nYTAS_DEST=/from/file\n"), 0o644))
	t.Setenv("YTAS_DEST", "/from/env")
	t.Setenv("YTAS_LOG_DIR", "")
	require.NoError(t, os.Unsetenv("YTAS_LOG_DIR"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "/from/env", os.Getenv("YTAS_DEST"))
	assert.Equal(t, "/from/file", os.Getenv("YTAS_LOG_DIR"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())

	cases := map[string]func(*Config){
		"same dirs":       func(c *Config) { c.ScratchDir = c.DestDir },
		"dest in scratch": func(c *Config) { c.DestDir = filepath.Join(c.ScratchDir, "out") },
		"no dest":         func(c *Config) { c.DestDir = "" },
		"no source":       func(c *Config) { c.SourceURLs = nil },
		"bad attempts":    func(c *Config) { c.MaxAttempts = 0 },
		"bad browser":     func(c *Config) { c.CookiesFromBrowser = "mosaic" },
	}
	for name, mutate := range cases {
		cfg := validConfig(t)
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestDefaultLayoutIsValid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("YTAS_DEST", "")
	t.Setenv("YTAS_SCRATCH", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DestDir)
	assert.Equal(t, DefaultScratchDir, cfg.ScratchDir)

	cfg.SourceURLs = []string{"https://example.com/list"}
	cfg, err = cfg.Normalize()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.DestDir, DefaultScratchDir), cfg.ScratchDir)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.PrepareDirs(context.Background(), nil))

	nested := validConfig(t)
	nested.ScratchDir = filepath.Join(nested.DestDir, "tmp")
	assert.NoError(t, nested.Validate())
}

func TestNormalize(t *testing.T) {
	cfg := Config{
		DestDir:            "dest",
		ScratchDir:         "scratch",
		CookiesFromBrowser: " Firefox ",
		SourceURLs:         []string{" https://a ", "", "https://b"},
	}
	got, err := cfg.Normalize()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got.DestDir))
	assert.True(t, filepath.IsAbs(got.ScratchDir))
	assert.Equal(t, "firefox", got.CookiesFromBrowser)
	assert.Equal(t, []string{"https://a", "https://b"}, got.SourceURLs)

	cfg.CookiesFromBrowser = "ie6"
	_, err = cfg.Normalize()
	assert.ErrorIs(t, err, cookies.ErrUnknownBrowser)
}

func TestPrepareDirs(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.PrepareDirs(context.Background(), nil))

	leftover := filepath.Join(cfg.ScratchDir, "old.part")
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o644))
	err := cfg.PrepareDirs(context.Background(), nil)
	assert.ErrorContains(t, err, "not empty")

	cfg.ClearScratch = true
	cfg.ScratchClearRetries = 1
	require.NoError(t, cfg.PrepareDirs(context.Background(), nil))
	_, err = os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
}
