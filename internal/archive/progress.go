package archive

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"yt-auto-saver/internal/ytdlp"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`)
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s]+)`)
	reFF    = regexp.MustCompile(`\bspeed=\s*([^\s]+)`)
)

// liveProgress redraws a single status line for the entry being downloaded.
type liveProgress struct {
	enabled bool
	out     io.Writer

	index int
	total int
	id    string
	title string

	mu      sync.Mutex
	phase   string
	profile string
	attempt int
	pct     string
	speed   string
	eta     string
	totalSz string

	stop    chan struct{}
	stopped bool
}

func newLiveProgress(enabled bool, out io.Writer, index, total int, id, title string) *liveProgress {
	return &liveProgress{
		enabled: enabled,
		out:     out,
		index:   index,
		total:   total,
		id:      id,
		title:   title,
		phase:   "starting",
		stop:    make(chan struct{}),
	}
}

func (p *liveProgress) Start() {
	if !p.enabled {
		return
	}
	go func() {
		t := time.NewTicker(700 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				line := p.render()
				p.mu.Lock()
				if !p.stopped {
					fmt.Fprintf(p.out, "\r\033[2K%s", line)
				}
				p.mu.Unlock()
			}
		}
	}()
}

func (p *liveProgress) Stop(final string) {
	if !p.enabled {
		fmt.Fprintln(p.out, final)
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stop)
	fmt.Fprintf(p.out, "\r\033[2K%s\n", final)
	p.mu.Unlock()
}

// SetAttempt resets the per-attempt counters.
func (p *liveProgress) SetAttempt(profile string, attempt int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile = profile
	p.attempt = attempt
	p.phase = "starting"
	p.pct, p.speed, p.eta, p.totalSz = "", "", "", ""
}

func (p *liveProgress) Handle(stream ytdlp.OutputStream, line string) {
	if !p.enabled {
		return
	}
	l := strings.TrimSpace(line)
	if l == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.HasPrefix(l, "[youtube]"), strings.HasPrefix(l, "[info]"):
		p.phase = "metadata"
	case strings.HasPrefix(l, "[download]"):
		p.phase = "downloading"
		if m := rePct.FindStringSubmatch(l); len(m) > 1 {
			p.pct = m[1] + "%"
		}
		if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
			p.speed = m[1]
		}
		if m := reETA.FindStringSubmatch(l); len(m) > 1 {
			p.eta = m[1]
		}
		if m := reOf.FindStringSubmatch(l); len(m) > 1 {
			p.totalSz = m[1]
		}
	case strings.HasPrefix(l, "[Merger]"):
		p.phase = "merging"
	case strings.HasPrefix(l, "[ExtractAudio]"):
		p.phase = "extracting audio"
	case strings.HasPrefix(l, "[EmbedSubtitle]"), strings.HasPrefix(l, "[EmbedThumbnail]"), strings.HasPrefix(l, "[Metadata]"):
		p.phase = "embedding"
	}
	if stream == ytdlp.StreamStderr {
		if m := reFF.FindStringSubmatch(l); len(m) > 1 {
			p.speed = m[1]
		}
	}
}

func (p *liveProgress) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	title := p.title
	if len(title) > 52 {
		title = title[:52] + "..."
	}

	parts := []string{fmt.Sprintf("[%d/%d] %s", p.index, p.total, p.id), p.phase}
	if p.profile != "" {
		parts = append(parts, fmt.Sprintf("%s#%d", p.profile, p.attempt))
	}
	if p.pct != "" {
		parts = append(parts, p.pct)
	}
	if p.speed != "" {
		parts = append(parts, p.speed)
	}
	if p.eta != "" {
		parts = append(parts, "ETA "+p.eta)
	}
	if p.totalSz != "" {
		parts = append(parts, p.totalSz)
	}
	parts = append(parts, "| "+title)
	return strings.Join(parts, "  ")
}
