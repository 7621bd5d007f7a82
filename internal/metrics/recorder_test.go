package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Triaged("queued", 3)
	r.Triaged("seen", 2)
	r.Triaged("seen", 0)
	r.Entry("downloaded")
	r.Entry("downloaded")
	r.Entry("failed")
	r.Attempt("video", "nonzero_exit")
	r.Attempt("video", "success")
	r.Downloaded("video", 3*time.Second, 2048)
	r.ScratchCleared()

	assert.Equal(t, 3.0, testutil.ToFloat64(r.triaged.WithLabelValues("queued")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.triaged.WithLabelValues("seen")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.entries.WithLabelValues("downloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("video", "success")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(r.placedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scratchClears))
	assert.Equal(t, 1, testutil.CollectAndCount(r.downloadTime))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Entry("downloaded")
	r.Attempt("video", "success")
	r.Downloaded("video", time.Second, 1)
	r.ScratchCleared()
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/file.prom", time.Now()))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Entry("skipped")
	path := filepath.Join(t.TempDir(), "yt-auto-saver.prom")

	require.NoError(t, r.WriteTextfile(path, time.Unix(1700000000, 0)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `yt_auto_saver_entries_total{outcome="skipped"} 1`)
	assert.Contains(t, string(data), "yt_auto_saver_last_run_timestamp_seconds 1.7e+09")
}
