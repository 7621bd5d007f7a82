package archive

import (
	"bytes"
	"strings"
	"testing"

	"yt-auto-saver/internal/ytdlp"
)

func TestLiveProgressParsesDownloadLines(t *testing.T) {
	var out bytes.Buffer
	p := newLiveProgress(true, &out, 3, 12, "abc123", "Some title")
	p.SetAttempt("video", 2)
	p.Handle(ytdlp.StreamStdout, "[download]  42.5% of ~  10.00MiB at    1.50MiB/s ETA 00:07")

	line := p.render()
	for _, want := range []string{"[3/12] abc123", "downloading", "video#2", "42.5%", "1.50MiB/s", "ETA 00:07", "10.00MiB", "| Some title"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}

	p.Handle(ytdlp.StreamStdout, `[Merger] Merging formats into "x.mkv"`)
	if !strings.Contains(p.render(), "merging") {
		t.Fatalf("expected merging phase, got %q", p.render())
	}

	p.SetAttempt("video-mp4", 1)
	if strings.Contains(p.render(), "42.5%") {
		t.Fatalf("expected counters reset on new attempt")
	}

	p.Stop("[3/12] done  abc123")
	p.Stop("again")
	if !strings.HasSuffix(out.String(), "[3/12] done  abc123\n") {
		t.Fatalf("unexpected final output %q", out.String())
	}
}

func TestLiveProgressDisabledPrintsFinalLineOnly(t *testing.T) {
	var out bytes.Buffer
	p := newLiveProgress(false, &out, 1, 1, "id", "t")
	p.Start()
	p.Handle(ytdlp.StreamStdout, "[download] 50.0%")
	p.Stop("[1/1] done  id")
	if out.String() != "[1/1] done  id\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
