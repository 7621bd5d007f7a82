package runstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultClearRetries = 5
	DefaultClearBackoff = 5 * time.Second
)

type ClearOptions struct {
	Retries int
	Backoff time.Duration
	Logger  *slog.Logger
}

var removeAll = os.RemoveAll

// ClearDir empties dir, retrying the whole pass with a fixed backoff when any
// removal fails. Exhausting the retries is logged and otherwise ignored; only
// context cancellation is returned.
func ClearDir(ctx context.Context, dir string, opts ClearOptions) error {
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultClearRetries
	}
	backoff := opts.Backoff
	if backoff < 0 {
		backoff = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 1; attempt <= retries; attempt++ {
		err := clearOnce(dir)
		if err == nil {
			return nil
		}
		logger.Debug("clear scratch failed", "dir", dir, "attempt", attempt, "err", err)
		if attempt == retries {
			logger.Warn("giving up clearing scratch", "dir", dir, "attempts", retries, "err", err)
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func clearOnce(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read directory %s: %w", dir, err)
	}
	var firstErr error
	for _, e := range entries {
		if err := removeAll(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return firstErr
}
