package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"yt-auto-saver/internal/discovery"
	"yt-auto-saver/internal/metrics"
	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/runstore"
	"yt-auto-saver/internal/ytdlp"
)

const (
	DefaultMaxAttempts = 5
	progressEvery      = 10
)

type Downloader interface {
	Download(ctx context.Context, req ytdlp.DownloadRequest) (ytdlp.DownloadResult, error)
}

type EntrySource interface {
	Next(ctx context.Context) (discovery.Outcome, bool, error)
}

type MarkerWriter interface {
	WriteMarker(id, title, tag string, errs []error, raw json.RawMessage) (string, error)
}

type RunOptions struct {
	DestDir      string
	ScratchDir   string
	Profiles     []ytdlp.Profile
	MaxAttempts  int
	Total        int
	AudioOnly    bool
	LiveProgress bool
	LogDir       string
	Proxies      []string
	Clear        runstore.ClearOptions
	Out          io.Writer
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
}

type RunResult struct {
	Pulled         int            `json:"pulled"`
	Processed      int            `json:"processed"`
	Downloaded     int            `json:"downloaded"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	SkippedReasons map[string]int `json:"skipped_reasons,omitempty"`
	PlacedBytes    int64          `json:"placed_bytes"`
	EstimatedBytes int64          `json:"estimated_bytes"`
	Placed         []string       `json:"placed,omitempty"`
}

type orchestrator struct {
	opts    RunOptions
	dl      Downloader
	markers MarkerWriter
	logger  *slog.Logger
	out     io.Writer
}

// Run drains entries, downloading each yielded entry through the profiles in
// order. Per-entry failures become markers; only systemic errors are returned.
func Run(ctx context.Context, entries EntrySource, dl Downloader, markers MarkerWriter, opts RunOptions) (RunResult, error) {
	if strings.TrimSpace(opts.DestDir) == "" || strings.TrimSpace(opts.ScratchDir) == "" {
		return RunResult{}, fmt.Errorf("destination and scratch directories are required")
	}
	if len(opts.Profiles) == 0 {
		return RunResult{}, fmt.Errorf("at least one download profile is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	o := &orchestrator{opts: opts, dl: dl, markers: markers, logger: opts.Logger, out: opts.Out}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.out == nil {
		o.out = os.Stdout
	}
	o.opts.Clear.Logger = o.logger
	o.opts.Proxies = normalizeProxyList(opts.Proxies)
	if opts.LogDir != "" {
		if err := runstore.Mkdir(opts.LogDir); err != nil {
			return RunResult{}, err
		}
	}

	res := RunResult{SkippedReasons: map[string]int{}}
	for {
		outcome, ok, err := entries.Next(ctx)
		if err != nil {
			return res, o.abort(err)
		}
		if !ok {
			break
		}
		res.Pulled++

		if outcome.Kind == discovery.Skipped {
			res.Skipped++
			res.SkippedReasons[outcome.Reason]++
			opts.Metrics.Entry("skipped")
			fmt.Fprintf(o.out, "[%d/%d] skip  %s (%s)\n", res.Pulled, opts.Total, outcome.Entry.ID, outcome.Reason)
			continue
		}

		entry := outcome.Entry
		res.EstimatedBytes += estimateEntryBytes(entry, opts.AudioOnly)
		fmt.Fprintf(o.out, "Downloading: %s\n", entry.Title)

		placed, size, failure, err := o.processEntry(ctx, entry, res.Pulled)
		if err != nil {
			return res, o.abort(err)
		}
		res.Processed++
		if failure != nil {
			res.Failed++
			opts.Metrics.Entry("failed")
			o.logger.Info("entry failed", "id", entry.ID, "errors", len(failure.Errors))
		} else {
			res.Downloaded++
			res.PlacedBytes += size
			res.Placed = append(res.Placed, placed)
			opts.Metrics.Entry("downloaded")
		}

		if res.Processed%progressEvery == 0 {
			fmt.Fprintf(o.out, "Progress:\t%d\t%d\n", res.Processed, opts.Total)
		}
	}
	return res, nil
}

func (o *orchestrator) abort(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = runstore.ClearDir(context.Background(), o.opts.ScratchDir, runstore.ClearOptions{Retries: 1, Logger: o.logger})
	}
	return err
}

func (o *orchestrator) processEntry(ctx context.Context, entry model.Entry, index int) (string, int64, *AllProfilesFailedError, error) {
	progress := newLiveProgress(o.opts.LiveProgress, o.out, index, o.opts.Total, entry.ID, entry.Title)
	progress.Start()

	started := time.Now()
	var errs []error
	var won *ytdlp.Profile
	for i := range o.opts.Profiles {
		p := o.opts.Profiles[i]
		err := o.tryProfile(ctx, entry, p, progress)
		if ctxErr := ctx.Err(); ctxErr != nil {
			progress.Stop(fmt.Sprintf("[%d/%d] stop  %s (interrupted)", index, o.opts.Total, entry.ID))
			return "", 0, nil, ctxErr
		}
		if err == nil {
			won = &p
			break
		}
		errs = append(errs, err)
		if cerr := o.clearScratch(ctx); cerr != nil {
			progress.Stop(fmt.Sprintf("[%d/%d] stop  %s (interrupted)", index, o.opts.Total, entry.ID))
			return "", 0, nil, cerr
		}
	}

	if won == nil {
		if cerr := o.clearScratch(ctx); cerr != nil {
			progress.Stop(fmt.Sprintf("[%d/%d] stop  %s (interrupted)", index, o.opts.Total, entry.ID))
			return "", 0, nil, cerr
		}
		if _, err := o.markers.WriteMarker(entry.ID, entry.Title, model.StatusTagFailed, errs, entry.Raw); err != nil {
			progress.Stop(fmt.Sprintf("[%d/%d] fail  %s", index, o.opts.Total, entry.ID))
			return "", 0, nil, err
		}
		progress.Stop(fmt.Sprintf("[%d/%d] fail  %s (%d error(s))", index, o.opts.Total, entry.ID, len(errs)))
		return "", 0, &AllProfilesFailedError{ID: entry.ID, Errors: errs}, nil
	}

	placed, size, err := o.place(entry, *won)
	if err != nil {
		progress.Stop(fmt.Sprintf("[%d/%d] fail  %s", index, o.opts.Total, entry.ID))
		return "", 0, nil, err
	}
	o.opts.Metrics.Downloaded(won.Name, time.Since(started), size)
	progress.Stop(fmt.Sprintf("[%d/%d] done  %s -> %s", index, o.opts.Total, entry.ID, filepath.Base(placed)))
	return placed, size, nil, nil
}

// tryProfile returns nil on the first successful attempt, an *AttemptError
// when the engine raised, or a *RetriesExhaustedError. Callers move on to the
// next profile after either error; exhausting one profile does not end the
// entry.
func (o *orchestrator) tryProfile(ctx context.Context, entry model.Entry, p ytdlp.Profile, progress *liveProgress) error {
	var last ytdlp.DownloadResult
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		progress.SetAttempt(p.Name, attempt)
		logW, closeLog := o.openLog(entry.ID, p.Name, attempt)
		res, err := o.dl.Download(ctx, ytdlp.DownloadRequest{
			URL:        entry.URL,
			ScratchDir: o.opts.ScratchDir,
			Profile:    p,
			Proxy:      proxyForAttempt(attempt, o.opts.Proxies),
			LogWriter:  logW,
			Progress:   progress.Handle,
		})
		closeLog()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.opts.Metrics.Attempt(p.Name, "error")
			o.logger.Debug("download raised", "id", entry.ID, "profile", p.Name, "attempt", attempt, "err", err)
			return &AttemptError{Profile: p.Name, Attempt: attempt, Err: err}
		}
		if res.Succeeded() {
			o.opts.Metrics.Attempt(p.Name, "success")
			return nil
		}
		o.opts.Metrics.Attempt(p.Name, "nonzero_exit")
		o.logger.Debug("download did not succeed", "id", entry.ID, "profile", p.Name, "attempt", attempt, "exit_code", res.ExitCode)
		last = res
	}
	return &RetriesExhaustedError{Profile: p.Name, Attempts: o.opts.MaxAttempts, ExitCode: last.ExitCode, Detail: last.Detail}
}

func (o *orchestrator) place(entry model.Entry, p ytdlp.Profile) (string, int64, error) {
	found, err := os.ReadDir(o.opts.ScratchDir)
	if err != nil {
		return "", 0, fmt.Errorf("read scratch directory %s: %w", o.opts.ScratchDir, err)
	}
	if len(found) != 1 || found[0].IsDir() {
		names := make([]string, 0, len(found))
		for _, f := range found {
			names = append(names, f.Name())
		}
		return "", 0, fmt.Errorf("%w: expected exactly one file in %s after downloading %s, found %d: %s",
			ErrOutputInvariant, o.opts.ScratchDir, entry.ID, len(found), strings.Join(names, ", "))
	}

	name := found[0].Name()
	target := name
	if p.RenameExt != "" {
		target = strings.TrimSuffix(name, filepath.Ext(name)) + p.RenameExt
	}
	src := filepath.Join(o.opts.ScratchDir, name)
	var size int64
	if info, err := os.Stat(src); err == nil {
		size = info.Size()
	}
	dst := filepath.Join(o.opts.DestDir, target)
	if err := runstore.MoveFile(src, dst); err != nil {
		return "", 0, fmt.Errorf("place %s: %w", entry.ID, err)
	}
	return dst, size, nil
}

func (o *orchestrator) clearScratch(ctx context.Context) error {
	o.opts.Metrics.ScratchCleared()
	return runstore.ClearDir(ctx, o.opts.ScratchDir, o.opts.Clear)
}

func (o *orchestrator) openLog(id, profile string, attempt int) (io.Writer, func()) {
	if o.opts.LogDir == "" {
		return nil, func() {}
	}
	path := filepath.Join(o.opts.LogDir, fmt.Sprintf("%s_%s_%d.log", safeFileID(id), profile, attempt))
	f, err := os.Create(path)
	if err != nil {
		o.logger.Warn("cannot open attempt log", "path", path, "err", err)
		return nil, func() {}
	}
	return f, func() { _ = f.Close() }
}

var invalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func safeFileID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		return "unknown"
	}
	return invalidIDChars.ReplaceAllString(s, "_")
}
