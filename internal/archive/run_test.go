package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"yt-auto-saver/internal/catalog"
	"yt-auto-saver/internal/discovery"
	"yt-auto-saver/internal/metrics"
	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/runstore"
	"yt-auto-saver/internal/ytdlp"
)

type mockDownloader struct {
	mock.Mock
}

func (m *mockDownloader) Download(ctx context.Context, req ytdlp.DownloadRequest) (ytdlp.DownloadResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ytdlp.DownloadResult), args.Error(1)
}

type sliceSource struct {
	outcomes []discovery.Outcome
	pos      int
}

func (s *sliceSource) Next(context.Context) (discovery.Outcome, bool, error) {
	if s.pos >= len(s.outcomes) {
		return discovery.Outcome{}, false, nil
	}
	o := s.outcomes[s.pos]
	s.pos++
	return o, true, nil
}

func yielded(entries ...model.Entry) *sliceSource {
	s := &sliceSource{}
	for _, e := range entries {
		s.outcomes = append(s.outcomes, discovery.Outcome{Kind: discovery.Yielded, Entry: e})
	}
	return s
}

func testEntry(id string) model.Entry {
	d := 60.0
	return model.Entry{ID: id, Title: "Title " + id, URL: "https://example.com/" + id, Duration: &d, Raw: json.RawMessage(`{"id":"` + id + `"}`)}
}

func profile(name string) any {
	return mock.MatchedBy(func(r ytdlp.DownloadRequest) bool { return r.Profile.Name == name })
}

func writeScratch(names ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		req := args.Get(1).(ytdlp.DownloadRequest)
		for _, n := range names {
			if err := os.WriteFile(filepath.Join(req.ScratchDir, n), []byte("media"), 0o644); err != nil {
				panic(err)
			}
		}
	}
}

type fixture struct {
	dest    string
	scratch string
	out     *bytes.Buffer
	opts    RunOptions
}

func newFixture(t *testing.T, profiles []ytdlp.Profile) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		dest:    filepath.Join(root, "dest"),
		scratch: filepath.Join(root, "scratch"),
		out:     &bytes.Buffer{},
	}
	require.NoError(t, runstore.Mkdir(f.dest))
	require.NoError(t, runstore.Mkdir(f.scratch))
	f.opts = RunOptions{
		DestDir:    f.dest,
		ScratchDir: f.scratch,
		Profiles:   profiles,
		Total:      1,
		Clear:      runstore.ClearOptions{Retries: 2, Backoff: 0},
		Out:        f.out,
	}
	return f
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	names, err := runstore.ListFiles(dir)
	require.NoError(t, err)
	return names
}

func TestRunPlacesSingleArtifact(t *testing.T) {
	f := newFixture(t, ytdlp.VideoProfiles())
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("video")).Run(writeScratch("Title v1 [v1].mkv")).Return(ytdlp.DownloadResult{}, nil).Once()

	res, err := Run(context.Background(), yielded(testEntry("v1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, int64(5), res.PlacedBytes)
	assert.Equal(t, []string{"Title v1 [v1].mkv"}, listDir(t, f.dest))
	assert.Empty(t, listDir(t, f.scratch))
	assert.Contains(t, f.out.String(), "Downloading: Title v1")
	assert.Contains(t, f.out.String(), "[1/1] done  v1")
	dl.AssertExpectations(t)
}

func TestRunOutputInvariant(t *testing.T) {
	for _, files := range [][]string{{}, {"a [v1].mkv", "a [v1].en.vtt"}} {
		t.Run(fmt.Sprintf("%d files", len(files)), func(t *testing.T) {
			f := newFixture(t, ytdlp.VideoProfiles())
			dl := &mockDownloader{}
			dl.On("Download", mock.Anything, profile("video")).Run(writeScratch(files...)).Return(ytdlp.DownloadResult{}, nil).Once()

			_, err := Run(context.Background(), yielded(testEntry("v1")), dl, catalog.New(f.dest, nil), f.opts)
			assert.ErrorIs(t, err, ErrOutputInvariant)
			assert.Empty(t, listDir(t, f.dest))
		})
	}
}

func TestRunAllProfilesRaiseWritesMarker(t *testing.T) {
	f := newFixture(t, ytdlp.VideoProfiles())
	rec := metrics.New()
	f.opts.Metrics = rec
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("video")).
		Run(writeScratch("partial.mkv.part")).
		Return(ytdlp.DownloadResult{ExitCode: 1}, errors.New("Requested format is not available")).Once()
	dl.On("Download", mock.Anything, profile("video-mp4")).
		Run(writeScratch("other.mp4.part")).
		Return(ytdlp.DownloadResult{ExitCode: 1}, errors.New("HTTP Error 403: Forbidden")).Once()

	res, err := Run(context.Background(), yielded(testEntry("v1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Downloaded)
	assert.Empty(t, listDir(t, f.scratch))

	names := listDir(t, f.dest)
	require.Equal(t, []string{"[failed] - Title v1 [v1].txt"}, names)
	data, err := os.ReadFile(filepath.Join(f.dest, names[0]))
	require.NoError(t, err)
	body := string(data)
	assert.Equal(t, 4, strings.Count(body, "======\n"))
	assert.Contains(t, body, "profile video attempt 1: Requested format is not available")
	assert.Contains(t, body, "profile video-mp4 attempt 1: HTTP Error 403: Forbidden")
	assert.True(t, strings.HasSuffix(body, "Raw info:\n{\"id\":\"v1\"}"))
	dl.AssertExpectations(t)
}

func TestRunRetriesNonSuccessThenFallsBack(t *testing.T) {
	f := newFixture(t, ytdlp.VideoProfiles())
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("video")).Return(ytdlp.DownloadResult{ExitCode: 1, Detail: "WARNING: throttled"}, nil).Times(DefaultMaxAttempts)
	dl.On("Download", mock.Anything, profile("video-mp4")).Run(writeScratch("Title v1 [v1].mp4")).Return(ytdlp.DownloadResult{}, nil).Once()

	res, err := Run(context.Background(), yielded(testEntry("v1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, []string{"Title v1 [v1].mp4"}, listDir(t, f.dest))
	dl.AssertNumberOfCalls(t, "Download", DefaultMaxAttempts+1)
}

func TestRunRetriesExhaustedOnEveryProfile(t *testing.T) {
	f := newFixture(t, ytdlp.AudioProfiles())
	f.opts.MaxAttempts = 2
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("audio")).Return(ytdlp.DownloadResult{ExitCode: 2}, nil).Times(2)

	res, err := Run(context.Background(), yielded(testEntry("a1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	names := listDir(t, f.dest)
	require.Len(t, names, 1)
	data, err := os.ReadFile(filepath.Join(f.dest, names[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "profile audio: no success after 2 attempt(s), last exit code 2")
}

func TestRunAudioRenamesToOgg(t *testing.T) {
	f := newFixture(t, ytdlp.AudioProfiles())
	f.opts.AudioOnly = true
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("audio")).Run(writeScratch("x [a1].opus")).Return(ytdlp.DownloadResult{}, nil).Once()

	_, err := Run(context.Background(), yielded(testEntry("a1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"x [a1].ogg"}, listDir(t, f.dest))
}

func TestRunCountsSkipsAndPrintsProgress(t *testing.T) {
	f := newFixture(t, ytdlp.AudioProfiles())
	src := &sliceSource{outcomes: []discovery.Outcome{
		{Kind: discovery.Skipped, Entry: model.Entry{ID: "s1"}, Reason: model.StatusTagInvalidDuration},
	}}
	dl := &mockDownloader{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("id%02d", i)
		src.outcomes = append(src.outcomes, discovery.Outcome{Kind: discovery.Yielded, Entry: testEntry(id)})
		dl.On("Download", mock.Anything, mock.MatchedBy(func(r ytdlp.DownloadRequest) bool { return strings.HasSuffix(r.URL, id) })).
			Run(writeScratch(id+".opus")).Return(ytdlp.DownloadResult{}, nil).Once()
	}
	f.opts.Total = 11

	res, err := Run(context.Background(), src, dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Pulled)
	assert.Equal(t, 10, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, map[string]int{"invalid-duration": 1}, res.SkippedReasons)
	assert.Contains(t, f.out.String(), "[1/11] skip  s1 (invalid-duration)")
	assert.Contains(t, f.out.String(), "Progress:\t10\t11\n")
	assert.Len(t, listDir(t, f.dest), 10)
}

func TestRunCancelledStopsAndClearsScratch(t *testing.T) {
	f := newFixture(t, ytdlp.VideoProfiles())
	ctx, cancel := context.WithCancel(context.Background())
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("video")).
		Run(func(args mock.Arguments) {
			writeScratch("half.part")(args)
			cancel()
		}).
		Return(ytdlp.DownloadResult{}, context.Canceled).Once()

	_, err := Run(ctx, yielded(testEntry("v1"), testEntry("v2")), dl, catalog.New(f.dest, nil), f.opts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, f.scratch))
	assert.Empty(t, listDir(t, f.dest))
	dl.AssertNumberOfCalls(t, "Download", 1)
}

func TestRunWritesAttemptLogs(t *testing.T) {
	f := newFixture(t, ytdlp.AudioProfiles())
	f.opts.LogDir = filepath.Join(t.TempDir(), "logs")
	dl := &mockDownloader{}
	dl.On("Download", mock.Anything, profile("audio")).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(ytdlp.DownloadRequest)
			require.NotNil(t, req.LogWriter)
			_, _ = req.LogWriter.Write([]byte("[download] 100%\n"))
			writeScratch("x [a:1].opus")(args)
		}).
		Return(ytdlp.DownloadResult{}, nil).Once()

	_, err := Run(context.Background(), yielded(testEntry("a:1")), dl, catalog.New(f.dest, nil), f.opts)
	require.NoError(t, err)

	data, rerr := os.ReadFile(filepath.Join(f.opts.LogDir, "a_1_audio_1.log"))
	require.NoError(t, rerr)
	assert.Equal(t, "[download] 100%\n", string(data))
}
