package model

import (
	"fmt"
	"strings"
)

// ProcessingState is derived from the destination directory on every run.
type ProcessingState int

const (
	StateUnprocessed ProcessingState = iota
	StateSucceeded
	StateFailed
)

const (
	StatusTagFailed          = "failed"
	StatusTagInvalidDuration = "invalid-duration"
)

// MarkerExt is the extension that distinguishes failure markers from media.
const MarkerExt = ".txt"

var knownStatusTags = map[string]bool{
	StatusTagFailed:          true,
	StatusTagInvalidDuration: true,
}

func (s ProcessingState) String() string {
	switch s {
	case StateUnprocessed:
		return "unprocessed"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func IsKnownStatusTag(tag string) bool {
	return knownStatusTags[strings.TrimSpace(tag)]
}

// ClassifyName maps a single matching file name to a state.
func ClassifyName(name string) ProcessingState {
	if strings.HasSuffix(name, MarkerExt) {
		return StateFailed
	}
	return StateSucceeded
}

// ShouldProcess reports whether triage queues an item in the given state.
func ShouldProcess(state ProcessingState, retryFailed bool) bool {
	switch state {
	case StateUnprocessed:
		return true
	case StateFailed:
		return retryFailed
	default:
		return false
	}
}
