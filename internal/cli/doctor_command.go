package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"yt-auto-saver/internal/config"
	"yt-auto-saver/internal/runstore"
	"yt-auto-saver/internal/ytdlp"
)

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message"`
}

func runDoctor(args []string) error {
	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	dest := fs.String("dest", defaults.DestDir, "download directory to check")
	scratch := fs.String("scratch", defaults.ScratchDir, "scratch directory to check")
	ffmpegPath := fs.String("ffmpeg-path", defaults.FFmpegPath, "ffmpeg binary or directory (default: PATH)")
	ytdlpBinary := fs.String("yt-dlp", defaults.YTDLPBinary, "yt-dlp binary")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := doctor(*ytdlpBinary, *ffmpegPath, map[string]string{
		"dest":    strings.TrimSpace(*dest),
		"scratch": strings.TrimSpace(*scratch),
	})
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := styled(okStyle, "ok")
			switch {
			case !c.OK && c.Optional:
				status = styled(mutedStyle, "missing (optional)")
			case !c.OK:
				status = styled(errorStyle, "fail")
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func doctor(ytdlpBinary, ffmpegLocation string, dirs map[string]string) doctorResult {
	dep := ytdlp.DependencyStatus(ytdlpBinary, ffmpegLocation)
	checks := []doctorCheck{
		{Name: "dependency:yt-dlp", OK: dep.YTDLPFound, Message: dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, "yt-dlp")},
		{Name: "dependency:ffmpeg", OK: dep.FFmpegFound, Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg")},
		{Name: "dependency:aria2c", OK: dep.Aria2cFound, Optional: true, Message: dependencyMessage(dep.Aria2cFound, dep.Aria2cPath, "aria2c")},
	}
	for _, name := range []string{"dest", "scratch"} {
		path := dirs[name]
		if path == "" {
			continue
		}
		ok, msg := ensureWritableDir(path)
		checks = append(checks, doctorCheck{Name: "directory:" + name, OK: ok, Message: msg})
	}

	ok := true
	for _, c := range checks {
		if !c.OK && !c.Optional {
			ok = false
			break
		}
	}
	return doctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found"
}

func ensureWritableDir(path string) (bool, string) {
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, runstore.TempPrefix+"check-*")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
