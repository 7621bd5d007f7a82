package cookies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"yt-auto-saver/internal/runstore"
)

// ErrUnknownBrowser is returned for a browser yt-dlp cannot read cookies from.
var ErrUnknownBrowser = errors.New("unknown browser")

const DefaultDomain = "youtube.com"

var supportedBrowsers = []string{"brave", "chrome", "chromium", "edge", "firefox", "opera", "safari", "vivaldi"}

// Exporter writes a browser's cookie store to path as a Netscape jar.
type Exporter interface {
	ExportBrowserCookies(ctx context.Context, browser, domain, path string) error
}

func SupportedBrowsers() []string {
	return slices.Clone(supportedBrowsers)
}

func NormalizeBrowser(raw string) (string, error) {
	b := strings.ToLower(strings.TrimSpace(raw))
	if slices.Contains(supportedBrowsers, b) {
		return b, nil
	}
	return "", fmt.Errorf("%w %q (expected one of %s)", ErrUnknownBrowser, strings.TrimSpace(raw), strings.Join(supportedBrowsers, ", "))
}

// FromBrowser reads the browser's cookies for domain and its subdomains.
func FromBrowser(ctx context.Context, exp Exporter, browser, domain string) ([]Cookie, error) {
	b, err := NormalizeBrowser(browser)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(domain) == "" {
		domain = DefaultDomain
	}

	tmp, err := os.CreateTemp("", "ytas-cookies-*.txt")
	if err != nil {
		return nil, fmt.Errorf("create cookie export file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := exp.ExportBrowserCookies(ctx, b, domain, tmpPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read exported cookies: %w", err)
	}
	all, err := ParseNetscape(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return FilterDomain(all, domain), nil
}

// DumpToFile writes the browser's cookies for domain to path and returns the count.
func DumpToFile(ctx context.Context, exp Exporter, browser, domain, path string) (int, error) {
	list, err := FromBrowser(ctx, exp, browser, domain)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := WriteNetscape(&buf, list); err != nil {
		return 0, fmt.Errorf("serialize cookies: %w", err)
	}
	if err := runstore.WriteBytes(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return len(list), nil
}
