package discovery

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/ytdlp"
)

// Source is the metadata side of the extraction engine.
type Source interface {
	FlatPlaylist(ctx context.Context, sourceURL string) (ytdlp.Playlist, error)
	FetchInfo(ctx context.Context, itemURL string) (ytdlp.Info, error)
}

// StateStore is the destination directory as seen by triage and enrichment.
type StateStore interface {
	State(id string) (model.ProcessingState, error)
	DeleteMarker(id string) error
	WriteMarker(id, title, tag string, errs []error, raw json.RawMessage) (string, error)
}

type Options struct {
	SourceURL   string
	RetryFailed bool
}

type Result struct {
	SourceURL       string        `json:"source_url"`
	SourceTitle     string        `json:"source_title,omitempty"`
	TotalIDs        int           `json:"total_ids"`
	HasSeen         int           `json:"has_seen"`
	Duplicates      int           `json:"duplicates,omitempty"`
	MissingIDs      int           `json:"missing_ids,omitempty"`
	FailuresToRetry []string      `json:"failures_to_retry,omitempty"`
	Entries         []model.Entry `json:"-"`
}

func (r Result) Unprocessed() int {
	return r.TotalIDs - r.HasSeen
}

// Triage lists the source shallowly and queues every item that still needs
// work, shortest first with unknown durations ahead of everything else.
// An id listed more than once is queued once; later copies count as seen.
func Triage(ctx context.Context, src Source, store StateStore, opts Options) (Result, error) {
	sourceURL := strings.TrimSpace(opts.SourceURL)
	if sourceURL == "" {
		return Result{}, fmt.Errorf("source URL is required")
	}
	pl, err := src.FlatPlaylist(ctx, sourceURL)
	if err != nil {
		return Result{}, fmt.Errorf("list source %s: %w", sourceURL, err)
	}

	res := Result{SourceURL: sourceURL, SourceTitle: pl.Title, MissingIDs: pl.MissingIDs}
	listed := make(map[string]bool, len(pl.Entries))
	for _, item := range pl.Entries {
		res.TotalIDs++
		if listed[item.ID] {
			res.HasSeen++
			res.Duplicates++
			continue
		}
		listed[item.ID] = true
		state, err := store.State(item.ID)
		if err != nil {
			return Result{}, err
		}
		if !model.ShouldProcess(state, opts.RetryFailed) {
			res.HasSeen++
			continue
		}
		if state == model.StateFailed {
			res.FailuresToRetry = append(res.FailuresToRetry, item.ID)
		}
		res.Entries = append(res.Entries, model.Entry{
			ID:       item.ID,
			Title:    item.Title,
			Uploader: item.Uploader,
			URL:      item.URL,
			Duration: item.Duration,
			State:    state,
			Raw:      item.Raw,
		})
	}

	slices.SortStableFunc(res.Entries, func(a, b model.Entry) int {
		return cmp.Compare(a.SortKey(), b.SortKey())
	})
	return res, nil
}

// ClearRetryMarkers deletes the markers of failed items queued for retry.
func ClearRetryMarkers(store StateStore, res Result) error {
	for _, id := range res.FailuresToRetry {
		if err := store.DeleteMarker(id); err != nil {
			return fmt.Errorf("clear retry marker for %s: %w", id, err)
		}
	}
	return nil
}
