package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"yt-auto-saver/internal/cookies"
	"yt-auto-saver/internal/runstore"
)

const (
	DefaultDestDir     = "."
	DefaultScratchDir  = "__downloading"
	DefaultCookiesPath = "cookies.txt"
	DefaultDotEnvPath  = ".env"
	DefaultMaxAttempts = 5
)

// Config is built once per run from flags over environment defaults.
type Config struct {
	DestDir             string
	ScratchDir          string
	SourceURLs          []string
	AudioOnly           bool
	RetryFailed         bool
	Noisy               bool
	Aria2c              bool
	ClearScratch        bool
	FFmpegPath          string
	YTDLPBinary         string
	CookiesPath         string
	CookiesFromBrowser  string
	MetricsFile         string
	LogDir              string
	Proxies             []string
	MaxAttempts         int
	ScratchClearRetries int
	ScratchClearBackoff time.Duration
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultDotEnvPath
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv returns the defaults, overridden by YTAS_* variables.
func FromEnv() (Config, error) {
	cfg := Config{
		DestDir:             envOrDefault("YTAS_DEST", DefaultDestDir),
		ScratchDir:          envOrDefault("YTAS_SCRATCH", DefaultScratchDir),
		FFmpegPath:          envOrDefault("YTAS_FFMPEG", ""),
		YTDLPBinary:         envOrDefault("YTAS_YTDLP", "yt-dlp"),
		CookiesPath:         envOrDefault("YTAS_COOKIES", DefaultCookiesPath),
		CookiesFromBrowser:  envOrDefault("YTAS_BROWSER", ""),
		MetricsFile:         envOrDefault("YTAS_METRICS_FILE", ""),
		LogDir:              envOrDefault("YTAS_LOG_DIR", ""),
		Proxies:             splitList(envOrDefault("YTAS_PROXIES", "")),
		MaxAttempts:         DefaultMaxAttempts,
		ScratchClearRetries: runstore.DefaultClearRetries,
		ScratchClearBackoff: runstore.DefaultClearBackoff,
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"YTAS_AUDIO_ONLY", &cfg.AudioOnly},
		{"YTAS_RETRY_FAILED", &cfg.RetryFailed},
		{"YTAS_NOISY", &cfg.Noisy},
		{"YTAS_ARIA2C", &cfg.Aria2c},
		{"YTAS_CLEAR_SCRATCH", &cfg.ClearScratch},
	}
	for _, b := range bools {
		v, err := parseBoolEnv(b.key, false)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", b.key, err)
		}
		*b.dst = v
	}

	backoff, err := parseIntEnv("YTAS_SCRATCH_BACKOFF_SECONDS", int64(runstore.DefaultClearBackoff/time.Second))
	if err != nil {
		return Config{}, fmt.Errorf("parse YTAS_SCRATCH_BACKOFF_SECONDS: %w", err)
	}
	cfg.ScratchClearBackoff = time.Duration(backoff) * time.Second
	return cfg, nil
}

// Normalize makes directory paths absolute so no later step depends on the
// working directory.
func (c Config) Normalize() (Config, error) {
	var err error
	if c.DestDir, err = absOrEmpty(c.DestDir); err != nil {
		return Config{}, fmt.Errorf("resolve destination directory: %w", err)
	}
	if c.ScratchDir, err = absOrEmpty(c.ScratchDir); err != nil {
		return Config{}, fmt.Errorf("resolve scratch directory: %w", err)
	}
	if c.CookiesPath, err = absOrEmpty(c.CookiesPath); err != nil {
		return Config{}, fmt.Errorf("resolve cookies path: %w", err)
	}
	if c.LogDir, err = absOrEmpty(c.LogDir); err != nil {
		return Config{}, fmt.Errorf("resolve log directory: %w", err)
	}
	if b := strings.TrimSpace(c.CookiesFromBrowser); b != "" {
		norm, err := cookies.NormalizeBrowser(b)
		if err != nil {
			return Config{}, err
		}
		c.CookiesFromBrowser = norm
	}
	urls := make([]string, 0, len(c.SourceURLs))
	for _, u := range c.SourceURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.SourceURLs = urls
	return c, nil
}

func (c Config) Validate() error {
	if c.DestDir == "" {
		return errors.New("download directory is required (--dest or YTAS_DEST)")
	}
	if c.ScratchDir == "" {
		return errors.New("scratch directory is required (--scratch or YTAS_SCRATCH)")
	}
	if filepath.Clean(c.DestDir) == filepath.Clean(c.ScratchDir) {
		return fmt.Errorf("download and scratch directories must differ: %s", c.DestDir)
	}
	if within(c.DestDir, c.ScratchDir) {
		return fmt.Errorf("download directory %s must not be inside the scratch directory", c.DestDir)
	}
	if len(c.SourceURLs) == 0 {
		return errors.New("at least one source URL is required")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.CookiesFromBrowser != "" {
		if _, err := cookies.NormalizeBrowser(c.CookiesFromBrowser); err != nil {
			return err
		}
		if c.CookiesPath == "" {
			return errors.New("a cookies path is required when reading cookies from a browser")
		}
	}
	return nil
}

// PrepareDirs creates both directories and makes sure scratch starts empty,
// clearing it only when ClearScratch is set.
func (c Config) PrepareDirs(ctx context.Context, logger *slog.Logger) error {
	if err := runstore.Mkdir(c.DestDir); err != nil {
		return err
	}
	if err := runstore.Mkdir(c.ScratchDir); err != nil {
		return err
	}
	empty, err := runstore.IsEmptyDir(c.ScratchDir)
	if err != nil {
		return err
	}
	if empty {
		return nil
	}
	if !c.ClearScratch {
		return fmt.Errorf("scratch directory %s is not empty (pass --clear-scratch to empty it)", c.ScratchDir)
	}
	if err := runstore.ClearDir(ctx, c.ScratchDir, c.ClearOptions(logger)); err != nil {
		return err
	}
	if empty, err := runstore.IsEmptyDir(c.ScratchDir); err != nil || !empty {
		return fmt.Errorf("could not empty scratch directory %s", c.ScratchDir)
	}
	return nil
}

func (c Config) ClearOptions(logger *slog.Logger) runstore.ClearOptions {
	return runstore.ClearOptions{
		Retries: c.ScratchClearRetries,
		Backoff: c.ScratchClearBackoff,
		Logger:  logger,
	}
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func absOrEmpty(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
