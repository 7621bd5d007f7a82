package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"yt-auto-saver/internal/config"
	"yt-auto-saver/internal/cookies"
	"yt-auto-saver/internal/ytdlp"
)

func runCookies(ctx context.Context, args []string) error {
	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("cookies", flag.ContinueOnError)
	browser := fs.String("browser", defaults.CookiesFromBrowser, "browser to read: "+strings.Join(cookies.SupportedBrowsers(), "|"))
	domain := fs.String("domain", cookies.DefaultDomain, "keep cookies for this domain and its subdomains")
	out := fs.String("out", defaults.CookiesPath, "output cookie jar path, or -- for stdout")
	ytdlpBinary := fs.String("yt-dlp", defaults.YTDLPBinary, "yt-dlp binary")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*browser) == "" {
		fs.Usage()
		return errors.New("--browser is required")
	}

	client := ytdlp.Client{Binary: *ytdlpBinary, Stderr: os.Stderr}
	target := strings.TrimSpace(*out)
	if target == "--" || target == "-" {
		list, err := cookies.FromBrowser(ctx, client, *browser, *domain)
		if err != nil {
			return err
		}
		return cookies.WriteNetscape(os.Stdout, list)
	}
	if target == "" {
		return errors.New("--out is required")
	}
	n, err := cookies.DumpToFile(ctx, client, *browser, *domain, target)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d cookie(s) for %s to %s\n", n, strings.TrimSpace(*domain), target)
	return nil
}
