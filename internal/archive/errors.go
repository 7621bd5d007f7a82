package archive

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutputInvariant aborts a run: a successful download must leave exactly
// one file in scratch.
var ErrOutputInvariant = errors.New("output invariant violated")

// AttemptError is a raised engine error during one attempt of a profile.
type AttemptError struct {
	Profile string
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("profile %s attempt %d: %v", e.Profile, e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError means every attempt of a profile exited without success.
type RetriesExhaustedError struct {
	Profile  string
	Attempts int
	ExitCode int
	Detail   string
}

func (e *RetriesExhaustedError) Error() string {
	msg := fmt.Sprintf("profile %s: no success after %d attempt(s), last exit code %d", e.Profile, e.Attempts, e.ExitCode)
	if d := strings.TrimSpace(e.Detail); d != "" {
		msg += "\n" + d
	}
	return msg
}

// AllProfilesFailedError collects the per-profile failures of one entry.
type AllProfilesFailedError struct {
	ID     string
	Errors []error
}

func (e *AllProfilesFailedError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("all profiles failed for %s", e.ID)
	}
	return fmt.Sprintf("all profiles failed for %s: %d error(s)", e.ID, len(e.Errors))
}
