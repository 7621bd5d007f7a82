package model

import (
	"encoding/json"
	"time"
)

// UnknownDuration is the sort key and sentinel for items without a duration.
const UnknownDuration = -1

// Entry is one remote item moving through triage, enrichment and download.
type Entry struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Uploader       string          `json:"uploader,omitempty"`
	URL            string          `json:"url"`
	Duration       *float64        `json:"duration,omitempty"`
	FilesizeApprox int64           `json:"filesize_approx,omitempty"`
	UploadDate     time.Time       `json:"upload_date"`
	State          ProcessingState `json:"state"`
	Raw            json.RawMessage `json:"-"`
}

func (e Entry) SortKey() float64 {
	if e.Duration == nil {
		return UnknownDuration
	}
	return *e.Duration
}

func (e Entry) HasDuration() bool {
	return e.Duration != nil && *e.Duration != UnknownDuration
}
