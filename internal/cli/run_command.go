package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"yt-auto-saver/internal/archive"
	"yt-auto-saver/internal/catalog"
	"yt-auto-saver/internal/config"
	"yt-auto-saver/internal/cookies"
	"yt-auto-saver/internal/discovery"
	"yt-auto-saver/internal/metrics"
	"yt-auto-saver/internal/runstore"
	"yt-auto-saver/internal/ytdlp"
)

type sourceReport struct {
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title,omitempty"`
	Found       int    `json:"found"`
	AlreadySeen int    `json:"already_seen"`
	Retried     int    `json:"retried"`
	Processed   int    `json:"processed"`
	Downloaded  int    `json:"downloaded"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Error       string `json:"error,omitempty"`
}

type runSummary struct {
	RunID          string         `json:"run_id"`
	DestDir        string         `json:"dest_dir"`
	Sources        int            `json:"sources"`
	Found          int            `json:"found"`
	AlreadySeen    int            `json:"already_seen"`
	Processed      int            `json:"processed"`
	Downloaded     int            `json:"downloaded"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	SkippedReasons map[string]int `json:"skipped_reasons,omitempty"`
	PlacedBytes    int64          `json:"placed_bytes"`
	EstimatedBytes int64          `json:"estimated_bytes"`
	Elapsed        string         `json:"elapsed"`
	SourceFailures int            `json:"source_failures"`
	Reports        []sourceReport `json:"reports"`
}

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runArchive(ctx context.Context, args []string) error {
	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	dest := fs.String("dest", defaults.DestDir, "download directory (env YTAS_DEST)")
	scratch := fs.String("scratch", defaults.ScratchDir, "scratch directory for in-progress downloads")
	clearScratch := fs.Bool("clear-scratch", defaults.ClearScratch, "empty a non-empty scratch directory before starting")
	audioOnly := fs.Bool("audio-only", defaults.AudioOnly, "download audio only (opus, saved as .ogg)")
	noisy := fs.Bool("noisy", defaults.Noisy, "echo raw yt-dlp output and enable debug logging")
	aria2c := fs.Bool("aria2c", defaults.Aria2c, "delegate downloads to aria2c")
	retryFailed := fs.Bool("retry-failed", defaults.RetryFailed, "retry items that have a failure marker")
	ffmpegPath := fs.String("ffmpeg-path", defaults.FFmpegPath, "ffmpeg binary or directory (default: PATH)")
	ytdlpBinary := fs.String("yt-dlp", defaults.YTDLPBinary, "yt-dlp binary")
	cookiesPath := fs.String("cookies", defaults.CookiesPath, "path to cookies.txt")
	browser := fs.String("cookies-from-browser", defaults.CookiesFromBrowser, "export cookies from this browser into --cookies for the run")
	fetchlist := fs.String("fetchlist", "", "file with one source URL per line")
	metricsFile := fs.String("metrics-file", defaults.MetricsFile, "write prometheus metrics to this textfile when done")
	logDir := fs.String("log-dir", defaults.LogDir, "keep yt-dlp output per attempt in this directory")
	maxAttempts := fs.Int("max-attempts", defaults.MaxAttempts, "download attempts per profile")
	progress := fs.Bool("progress", true, "show live progress line when stdout is a terminal")
	jsonOut := fs.Bool("json", false, "print JSON output")
	var proxies stringList
	fs.Var(&proxies, "proxy", "proxy URL, repeatable; attempts rotate through the list (env YTAS_PROXIES)")

	fs.SetOutput(flag.CommandLine.Output())
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}

	sources, err := collectSources(positional, strings.TrimSpace(*fetchlist))
	if err != nil {
		return err
	}

	cfg := defaults
	cfg.DestDir = *dest
	cfg.ScratchDir = *scratch
	cfg.ClearScratch = *clearScratch
	cfg.AudioOnly = *audioOnly
	cfg.Noisy = *noisy
	cfg.Aria2c = *aria2c
	cfg.RetryFailed = *retryFailed
	cfg.FFmpegPath = *ffmpegPath
	cfg.YTDLPBinary = *ytdlpBinary
	cfg.CookiesPath = *cookiesPath
	cfg.CookiesFromBrowser = *browser
	cfg.MetricsFile = *metricsFile
	cfg.LogDir = *logDir
	cfg.MaxAttempts = *maxAttempts
	cfg.SourceURLs = sources
	if len(proxies) > 0 {
		cfg.Proxies = proxies
	}
	if cfg, err = cfg.Normalize(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return executeRun(ctx, cfg, runFlags{progress: *progress, jsonOut: *jsonOut})
}

type runFlags struct {
	progress bool
	jsonOut  bool
}

func executeRun(ctx context.Context, cfg config.Config, flags runFlags) error {
	started := time.Now()
	runID := uuid.NewString()
	logger := newLogger(cfg.Noisy, runID)

	if err := ytdlp.CheckDependencies(cfg.YTDLPBinary, cfg.FFmpegPath, cfg.Aria2c); err != nil {
		return err
	}
	if err := cfg.PrepareDirs(ctx, logger); err != nil {
		return err
	}
	lock, err := runstore.AcquireRunLock(cfg.DestDir, runID)
	if err != nil {
		return err
	}
	logger.Debug("run lock acquired", "dir", cfg.DestDir, "pid", lock.Owner().PID)
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release run lock", "err", err)
		}
	}()

	var out io.Writer = os.Stdout
	if flags.jsonOut {
		out = io.Discard
	}
	say := func(format string, a ...any) {
		fmt.Fprintf(out, format, a...)
	}

	client := ytdlp.Client{
		Binary:     cfg.YTDLPBinary,
		FFmpegPath: cfg.FFmpegPath,
		Aria2c:     cfg.Aria2c,
		Stdout:     out,
		Stderr:     os.Stderr,
		EchoOutput: cfg.Noisy,
	}
	if cfg.CookiesFromBrowser != "" {
		n, err := cookies.DumpToFile(ctx, client, cfg.CookiesFromBrowser, cookies.DefaultDomain, cfg.CookiesPath)
		if err != nil {
			return err
		}
		logger.Info("exported browser cookies", "browser", cfg.CookiesFromBrowser, "count", n, "path", cfg.CookiesPath)
		defer func() {
			if err := os.Remove(cfg.CookiesPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("remove exported cookie file", "path", cfg.CookiesPath, "err", err)
			}
		}()
	}
	client.CookiesPath = cfg.CookiesPath

	rec := metrics.New()
	defer func() {
		if cfg.MetricsFile == "" {
			return
		}
		if err := rec.WriteTextfile(cfg.MetricsFile, time.Now()); err != nil {
			logger.Warn("write metrics textfile", "path", cfg.MetricsFile, "err", err)
		}
	}()

	cat := catalog.New(cfg.DestDir, nil)
	summary := runSummary{RunID: runID, DestDir: cfg.DestDir, Sources: len(cfg.SourceURLs), SkippedReasons: map[string]int{}}
	liveProgress := flags.progress && !flags.jsonOut && !cfg.Noisy && stdoutIsTTY()

	var runErr error
	for i, sourceURL := range cfg.SourceURLs {
		report := sourceReport{SourceURL: sourceURL}
		say("[%d/%d] listing %s\n", i+1, len(cfg.SourceURLs), sourceURL)

		triaged, err := discovery.Triage(ctx, client, cat, discovery.Options{SourceURL: sourceURL, RetryFailed: cfg.RetryFailed})
		if err != nil {
			if errors.Is(err, catalog.ErrInconsistentState) || ctx.Err() != nil {
				runErr = err
				break
			}
			summary.SourceFailures++
			report.Error = err.Error()
			summary.Reports = append(summary.Reports, report)
			fmt.Fprintf(os.Stderr, "listing failed for %s: %v\n", sourceURL, err)
			continue
		}
		report.SourceTitle = triaged.SourceTitle
		report.Found = triaged.TotalIDs
		report.AlreadySeen = triaged.HasSeen
		report.Retried = len(triaged.FailuresToRetry)
		rec.Triaged("seen", triaged.HasSeen)
		rec.Triaged("queued", len(triaged.Entries))
		rec.Triaged("retry", len(triaged.FailuresToRetry))
		say("Found %d item(s), %d already processed, %d to process", triaged.TotalIDs, triaged.HasSeen, len(triaged.Entries))
		if report.Retried > 0 {
			say(" (%d retried)", report.Retried)
		}
		say("\n")
		if triaged.TotalIDs == 0 {
			say("Nothing listed for %s\n", sourceURL)
		}
		if triaged.MissingIDs > 0 {
			logger.Warn("listing entries without an id were ignored", "source", sourceURL, "count", triaged.MissingIDs)
		}
		if triaged.Duplicates > 0 {
			logger.Info("duplicate ids in listing queued once", "source", sourceURL, "count", triaged.Duplicates)
		}

		if err := discovery.ClearRetryMarkers(cat, triaged); err != nil {
			runErr = err
			break
		}

		stream := discovery.NewStream(client, cat, triaged.Entries, logger)
		res, err := archive.Run(ctx, stream, client, cat, archive.RunOptions{
			DestDir:      cfg.DestDir,
			ScratchDir:   cfg.ScratchDir,
			Profiles:     ytdlp.ProfilesFor(cfg.AudioOnly),
			MaxAttempts:  cfg.MaxAttempts,
			Total:        stream.Len(),
			AudioOnly:    cfg.AudioOnly,
			LiveProgress: liveProgress,
			LogDir:       cfg.LogDir,
			Proxies:      cfg.Proxies,
			Clear:        cfg.ClearOptions(logger),
			Out:          out,
			Logger:       logger,
			Metrics:      rec,
		})
		report.Processed = res.Processed
		report.Downloaded = res.Downloaded
		report.Failed = res.Failed
		report.Skipped = res.Skipped
		summary.Found += triaged.TotalIDs
		summary.AlreadySeen += triaged.HasSeen
		summary.Processed += res.Processed
		summary.Downloaded += res.Downloaded
		summary.Failed += res.Failed
		summary.Skipped += res.Skipped
		summary.PlacedBytes += res.PlacedBytes
		summary.EstimatedBytes += res.EstimatedBytes
		for reason, n := range res.SkippedReasons {
			summary.SkippedReasons[reason] += n
		}
		if err != nil {
			report.Error = err.Error()
			summary.Reports = append(summary.Reports, report)
			runErr = err
			break
		}
		summary.Reports = append(summary.Reports, report)
	}
	summary.Elapsed = archive.FormatSpan(time.Since(started))

	if flags.jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printRunSummary(summary)
	}
	if runErr != nil {
		return runErr
	}
	if summary.SourceFailures > 0 {
		return fmt.Errorf("run finished with %d source failure(s)", summary.SourceFailures)
	}
	return nil
}

func printRunSummary(s runSummary) {
	fmt.Println(styled(titleStyle, "run summary"))
	fmt.Printf("run_id: %s\n", s.RunID)
	fmt.Printf("dest_dir: %s\n", s.DestDir)
	fmt.Printf("sources: %d\n", s.Sources)
	fmt.Printf("found: %d\n", s.Found)
	fmt.Printf("already_seen: %d\n", s.AlreadySeen)
	fmt.Printf("processed: %d\n", s.Processed)
	fmt.Printf("downloaded: %s\n", styled(okStyle, fmt.Sprint(s.Downloaded)))
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = styled(errorStyle, failed)
	}
	fmt.Printf("failed: %s\n", failed)
	fmt.Printf("skipped: %d\n", s.Skipped)
	for reason, n := range s.SkippedReasons {
		fmt.Printf("  %s: %d\n", reason, n)
	}
	if s.PlacedBytes > 0 {
		fmt.Printf("placed_size: %s\n", archive.FormatBytesIEC(s.PlacedBytes))
	}
	if s.EstimatedBytes > 0 {
		fmt.Printf("estimated_size: %s\n", archive.FormatBytesIEC(s.EstimatedBytes))
	}
	fmt.Printf("elapsed: %s\n", s.Elapsed)
	if s.SourceFailures > 0 {
		fmt.Printf("source_failures: %d\n", s.SourceFailures)
	}
	if s.Failed+s.Skipped > 0 {
		fmt.Println(styled(mutedStyle, "next: inspect failures with `yt-auto-saver failures --dest "+s.DestDir+"`"))
	}
}

// parseInterleaved accepts flags before and after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func collectSources(positional []string, fetchlistPath string) ([]string, error) {
	out := make([]string, 0, len(positional))
	seen := make(map[string]bool)
	appendSource := func(raw string) {
		s := strings.TrimSpace(raw)
		if s == "" {
			return
		}
		key := strings.TrimSuffix(s, "/")
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, p := range positional {
		appendSource(p)
	}

	if fetchlistPath != "" {
		f, err := os.Open(fetchlistPath)
		if err != nil {
			return nil, fmt.Errorf("open fetchlist %s: %w", fetchlistPath, err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if _, url, ok := strings.Cut(line, "|"); ok {
				line = url
			}
			appendSource(line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read fetchlist %s: %w", fetchlistPath, err)
		}
	}

	if len(out) == 0 {
		return nil, errors.New("run requires at least one source URL or --fetchlist")
	}
	return out, nil
}
