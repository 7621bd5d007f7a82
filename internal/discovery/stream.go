package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"yt-auto-saver/internal/model"
)

// ErrMalformedUploadDate is fatal: the engine returned a date not in YYYYMMDD form.
var ErrMalformedUploadDate = errors.New("malformed upload date")

type OutcomeKind int

const (
	Yielded OutcomeKind = iota + 1
	Skipped
)

func (k OutcomeKind) String() string {
	switch k {
	case Yielded:
		return "yielded"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the result of one pull. Skipped outcomes carry the marker tag
// in Reason and, for fetch failures, the error in Err.
type Outcome struct {
	Kind       OutcomeKind
	Entry      model.Entry
	Reason     string
	Err        error
	MarkerPath string
}

// Stream enriches triaged entries one at a time, on demand.
type Stream struct {
	src     Source
	store   StateStore
	entries []model.Entry
	pos     int
	logger  *slog.Logger
}

func NewStream(src Source, store StateStore, entries []model.Entry, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{src: src, store: store, entries: entries, logger: logger}
}

func (s *Stream) Len() int {
	return len(s.entries)
}

// Next returns false once every entry has been consumed. A non-nil error
// is systemic and ends the stream.
func (s *Stream) Next(ctx context.Context) (Outcome, bool, error) {
	if s.pos >= len(s.entries) {
		return Outcome{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, false, err
	}
	entry := s.entries[s.pos]
	s.pos++

	info, err := s.src.FetchInfo(ctx, entry.URL)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, false, ctx.Err()
		}
		s.logger.Debug("deep fetch failed", "id", entry.ID, "err", err)
		path, werr := s.store.WriteMarker(entry.ID, entry.Title, model.StatusTagFailed, []error{err}, entry.Raw)
		if werr != nil {
			return Outcome{}, false, werr
		}
		return Outcome{Kind: Skipped, Entry: entry, Reason: model.StatusTagFailed, Err: err, MarkerPath: path}, true, nil
	}

	if entry.Duration == nil {
		entry.Duration = info.Duration
	}
	if !entry.HasDuration() {
		path, werr := s.store.WriteMarker(entry.ID, entry.Title, model.StatusTagInvalidDuration, nil, entry.Raw)
		if werr != nil {
			return Outcome{}, false, werr
		}
		return Outcome{Kind: Skipped, Entry: entry, Reason: model.StatusTagInvalidDuration, MarkerPath: path}, true, nil
	}

	if info.FilesizeApprox != nil && *info.FilesizeApprox > 0 {
		entry.FilesizeApprox = int64(*info.FilesizeApprox)
	}
	date, err := ParseUploadDate(info.UploadDate)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("enrich %s: %w", entry.ID, err)
	}
	entry.UploadDate = date
	if info.Title != "" {
		entry.Title = info.Title
	}
	entry.Raw = info.Raw
	return Outcome{Kind: Yielded, Entry: entry}, true, nil
}

// ParseUploadDate parses an exactly eight digit YYYYMMDD date.
func ParseUploadDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("%w %q: expected 8 digits", ErrMalformedUploadDate, s)
	}
	if _, err := strconv.Atoi(s); err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected 8 digits", ErrMalformedUploadDate, s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrMalformedUploadDate, s, err)
	}
	return t, nil
}
