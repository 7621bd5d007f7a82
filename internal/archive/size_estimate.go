package archive

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"yt-auto-saver/internal/model"
)

const (
	videoEstimateKbps = 6000.0
	audioEstimateKbps = 160.0
)

// estimateEntryBytes prefers the engine's approximate size and falls back to
// duration times a typical bitrate.
func estimateEntryBytes(e model.Entry, audioOnly bool) int64 {
	if e.FilesizeApprox > 0 {
		return e.FilesizeApprox
	}
	if !e.HasDuration() || *e.Duration <= 0 {
		return 0
	}
	kbps := videoEstimateKbps
	if audioOnly {
		kbps = audioEstimateKbps
	}
	bytes := (*e.Duration) * kbps * 1000 / 8
	if bytes <= 0 || math.IsInf(bytes, 0) || math.IsNaN(bytes) {
		return 0
	}
	return int64(bytes)
}

// FormatBytesIEC renders n with binary unit suffixes.
func FormatBytesIEC(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := "KMGTPE"[exp]
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string(suffix) + "iB"
}

// FormatSpan renders a duration coarsely: "<1m", "12m", "1h 5m", "2d 3h".
func FormatSpan(d time.Duration) string {
	secs := int64(math.Round(d.Seconds()))
	if secs < 60 {
		return "<1m"
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}
