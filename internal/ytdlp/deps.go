package ytdlp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	Aria2cFound bool   `json:"aria2c_found"`
	Aria2cPath  string `json:"aria2c_path,omitempty"`
}

// DependencyStatus looks up the external tools. An explicit ffmpeg location
// may name the binary or the directory holding it.
func DependencyStatus(ytdlpBinary, ffmpegLocation string) DependencyReport {
	report := DependencyReport{}
	if strings.TrimSpace(ytdlpBinary) == "" {
		ytdlpBinary = defaultBinary
	}
	if path, err := exec.LookPath(ytdlpBinary); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, ok := LocateFFmpeg(ffmpegLocation); ok {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("aria2c"); err == nil {
		report.Aria2cFound = true
		report.Aria2cPath = path
	}
	return report
}

func LocateFFmpeg(location string) (string, bool) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		path, err := exec.LookPath("ffmpeg")
		return path, err == nil
	}
	info, err := os.Stat(loc)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		for _, name := range []string{"ffmpeg", "ffmpeg.exe"} {
			candidate := filepath.Join(loc, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}
		return "", false
	}
	return loc, true
}

func CheckDependencies(ytdlpBinary, ffmpegLocation string, needAria2c bool) error {
	report := DependencyStatus(ytdlpBinary, ffmpegLocation)
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if !report.FFmpegFound {
		if strings.TrimSpace(ffmpegLocation) != "" {
			return fmt.Errorf("missing dependency: ffmpeg not found at %s", ffmpegLocation)
		}
		return fmt.Errorf("missing dependency: ffmpeg is required for merging and post-processing and was not found on PATH")
	}
	if needAria2c && !report.Aria2cFound {
		return fmt.Errorf("missing dependency: aria2c was requested but is not on PATH")
	}
	return nil
}
