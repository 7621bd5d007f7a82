package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

const defaultBinary = "yt-dlp"

// ErrDownloadReported matches an ExitError whose output carried an ERROR: line.
var ErrDownloadReported = errors.New("yt-dlp reported an error")

// ExitError is a non-zero yt-dlp exit with the captured output tails.
type ExitError struct {
	Code     int
	Reported bool
	Stderr   string
	Stdout   string
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("yt-dlp failed: %v\n%s\n%s", e.Err, e.Stderr, e.Stdout)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func (e *ExitError) Is(target error) bool {
	return target == ErrDownloadReported && e.Reported
}

// Client runs yt-dlp with the options shared by every invocation of a run.
type Client struct {
	Binary      string
	CookiesPath string
	FFmpegPath  string
	Aria2c      bool
	Stdout      io.Writer
	Stderr      io.Writer
	EchoOutput  bool
}

type FlatEntry struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Uploader string          `json:"uploader"`
	URL      string          `json:"url"`
	Duration *float64        `json:"duration"`
	Raw      json.RawMessage `json:"-"`
}

type Playlist struct {
	ID      string
	Title   string
	Entries []FlatEntry
	// MissingIDs counts listed entries that carried no id.
	MissingIDs int
}

type Info struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Duration       *float64        `json:"duration"`
	FilesizeApprox *float64        `json:"filesize_approx"`
	UploadDate     string          `json:"upload_date"`
	Raw            json.RawMessage `json:"-"`
}

type DownloadRequest struct {
	URL        string
	ScratchDir string
	Profile    Profile
	Proxy      string
	LogWriter  io.Writer
	Progress   func(stream OutputStream, line string)
}

type DownloadResult struct {
	Command  []string
	ExitCode int
	Detail   string
}

func (r DownloadResult) Succeeded() bool {
	return r.ExitCode == 0
}

func (c Client) binary() string {
	if strings.TrimSpace(c.Binary) != "" {
		return c.Binary
	}
	return defaultBinary
}

func (c Client) commonArgs() []string {
	var args []string
	if p := existingCookiesPath(c.CookiesPath); p != "" {
		args = append(args, "--cookies", p)
	}
	if strings.TrimSpace(c.FFmpegPath) != "" {
		args = append(args, "--ffmpeg-location", c.FFmpegPath)
	}
	return args
}

// FlatPlaylist lists a source without resolving or downloading its items.
func (c Client) FlatPlaylist(ctx context.Context, sourceURL string) (Playlist, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return Playlist{}, fmt.Errorf("source URL is required")
	}
	args := append([]string{"--flat-playlist", "-J"}, c.commonArgs()...)
	args = append(args, sourceURL)

	raw, err := c.captureJSON(ctx, args)
	if err != nil {
		return Playlist{}, err
	}

	var doc struct {
		ID         string            `json:"id"`
		Title      string            `json:"title"`
		WebpageURL string            `json:"webpage_url"`
		Entries    []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Playlist{}, fmt.Errorf("parse yt-dlp source JSON: %w", err)
	}

	pl := Playlist{ID: doc.ID, Title: strings.TrimSpace(doc.Title)}
	items := doc.Entries
	single := items == nil && strings.TrimSpace(doc.ID) != ""
	if single {
		// A single video has no entries list; the document is the item.
		items = []json.RawMessage{raw}
	}
	for i, item := range items {
		var e FlatEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return Playlist{}, fmt.Errorf("parse yt-dlp entry %d: %w", i, err)
		}
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			pl.MissingIDs++
			continue
		}
		e.Title = strings.TrimSpace(e.Title)
		if single {
			// "url" of a resolved video is the media stream, not the page.
			e.URL = firstURL(doc.WebpageURL, sourceURL)
		}
		e.URL = resolveVideoURL(e.ID, e.URL)
		e.Raw = item
		pl.Entries = append(pl.Entries, e)
	}
	return pl, nil
}

// FetchInfo resolves the full metadata of one item without downloading it.
func (c Client) FetchInfo(ctx context.Context, itemURL string) (Info, error) {
	if strings.TrimSpace(itemURL) == "" {
		return Info{}, fmt.Errorf("item URL is required")
	}
	args := append([]string{"-J", "--no-playlist", "--skip-download"}, c.commonArgs()...)
	args = append(args, itemURL)

	raw, err := c.captureJSON(ctx, args)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("parse yt-dlp info JSON: %w", err)
	}
	info.Raw = raw
	return info, nil
}

// Download runs one attempt. A nil error with a non-zero exit code is a
// non-success signal; an error means the process could not run or yt-dlp
// reported ERROR.
func (c Client) Download(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	if strings.TrimSpace(req.URL) == "" {
		return DownloadResult{}, fmt.Errorf("item URL is required")
	}
	if strings.TrimSpace(req.ScratchDir) == "" {
		return DownloadResult{}, fmt.Errorf("scratch directory is required")
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--no-mtime",
		"-P", req.ScratchDir,
		"-o", OutputTemplate,
	}
	args = append(args, req.Profile.Args()...)
	args = append(args, c.commonArgs()...)
	if c.Aria2c {
		args = append(args, "--downloader", "aria2c", "--downloader-args", "aria2c:--file-allocation=none")
	}
	if p := strings.TrimSpace(req.Proxy); p != "" {
		args = append(args, "--proxy", p)
	}
	args = append(args, req.URL)

	result := DownloadResult{Command: append([]string{c.binary()}, args...)}
	err := c.stream(ctx, args, req.LogWriter, req.Progress)
	if err == nil {
		return result, nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && !exitErr.Reported {
		result.ExitCode = exitErr.Code
		result.Detail = exitErr.Stderr
		return result, nil
	}
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.Code
	}
	return result, err
}

// ExportBrowserCookies asks yt-dlp to read a browser's cookie store and write
// it to path as a Netscape cookie jar.
func (c Client) ExportBrowserCookies(ctx context.Context, browser, domain, path string) error {
	args := []string{
		"--cookies-from-browser", browser,
		"--cookies", path,
		"--skip-download",
		"--flat-playlist",
		"--playlist-items", "0",
		"https://" + strings.TrimPrefix(domain, "."),
	}
	runErr := c.stream(ctx, args, nil, nil)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}
	if runErr != nil {
		return fmt.Errorf("export %s cookies: %w", browser, runErr)
	}
	return fmt.Errorf("export %s cookies: yt-dlp wrote no cookie file", browser)
}

func (c Client) captureJSON(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return stdout.Bytes(), nil
}

func (c Client) stream(ctx context.Context, args []string, logW io.Writer, progress func(OutputStream, string)) error {
	cmd := exec.CommandContext(ctx, c.binary(), args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var outBuf strings.Builder
	var errBuf strings.Builder
	var reported bool
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader, echoW io.Writer) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if strings.HasPrefix(strings.TrimSpace(line), "ERROR:") {
				reported = true
			}
			if logW != nil {
				_, _ = io.WriteString(logW, line+"\n")
			}
			mu.Unlock()

			if c.EchoOutput && echoW != nil {
				_, _ = io.WriteString(echoW, line+"\n")
			}
			if progress != nil {
				progress(stream, line)
			}
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe, c.Stdout)
	go read(StreamStderr, stderrPipe, c.Stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return &ExitError{
			Code:     code,
			Reported: reported,
			Stderr:   strings.TrimSpace(errBuf.String()),
			Stdout:   strings.TrimSpace(outBuf.String()),
			Err:      err,
		}
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}

func resolveVideoURL(videoID, maybeURL string) string {
	u := strings.TrimSpace(maybeURL)
	if u != "" {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
		if strings.HasPrefix(u, "watch?") || strings.HasPrefix(u, "/watch?") {
			return "https://www.youtube.com/" + strings.TrimPrefix(u, "/")
		}
	}
	if strings.TrimSpace(videoID) != "" {
		return "https://www.youtube.com/watch?v=" + strings.TrimSpace(videoID)
	}
	return ""
}

func firstURL(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func existingCookiesPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(abs); err != nil {
		return ""
	}
	return abs
}
