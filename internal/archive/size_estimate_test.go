package archive

import (
	"testing"
	"time"

	"yt-auto-saver/internal/model"
)

func TestEstimateEntryBytes(t *testing.T) {
	d := 600.0
	if got := estimateEntryBytes(model.Entry{FilesizeApprox: 1234, Duration: &d}, false); got != 1234 {
		t.Fatalf("expected approx size to win, got %d", got)
	}
	if got := estimateEntryBytes(model.Entry{Duration: &d}, false); got != 450_000_000 {
		t.Fatalf("expected 450000000 video bytes, got %d", got)
	}
	if got := estimateEntryBytes(model.Entry{Duration: &d}, true); got != 12_000_000 {
		t.Fatalf("expected 12000000 audio bytes, got %d", got)
	}
	if got := estimateEntryBytes(model.Entry{}, false); got != 0 {
		t.Fatalf("expected zero without duration, got %d", got)
	}
}

func TestFormatBytesIEC(t *testing.T) {
	cases := map[int64]string{
		0:           "0 B",
		512:         "512 B",
		1536:        "1.5 KiB",
		5 * 1 << 30: "5.0 GiB",
	}
	for in, want := range cases {
		if got := FormatBytesIEC(in); got != want {
			t.Fatalf("FormatBytesIEC(%d): expected %q, got %q", in, want, got)
		}
	}
}

func TestFormatSpan(t *testing.T) {
	cases := map[time.Duration]string{
		10 * time.Second:              "<1m",
		12 * time.Minute:              "12m",
		time.Hour:                     "1h",
		65 * time.Minute:              "1h 5m",
		48 * time.Hour:                "2d",
		51*time.Hour + 20*time.Minute: "2d 3h",
	}
	for in, want := range cases {
		if got := FormatSpan(in); got != want {
			t.Fatalf("FormatSpan(%s): expected %q, got %q", in, want, got)
		}
	}
}
