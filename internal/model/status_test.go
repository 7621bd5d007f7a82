package model

import "testing"

func TestClassifyName(t *testing.T) {
	cases := []struct {
		name string
		want ProcessingState
	}{
		{"Song [abc123].ogg", StateSucceeded},
		{"Clip [abc123].mkv", StateSucceeded},
		{"[failed] - Clip [abc123].txt", StateFailed},
		{"[invalid-duration] - Clip [abc123].txt", StateFailed},
	}

	for _, tc := range cases {
		if got := ClassifyName(tc.name); got != tc.want {
			t.Fatalf("expected %s for %q, got %s", tc.want, tc.name, got)
		}
	}
}

func TestShouldProcess(t *testing.T) {
	cases := []struct {
		state ProcessingState
		retry bool
		want  bool
	}{
		{StateUnprocessed, false, true},
		{StateUnprocessed, true, true},
		{StateSucceeded, false, false},
		{StateSucceeded, true, false},
		{StateFailed, false, false},
		{StateFailed, true, true},
	}

	for _, tc := range cases {
		if got := ShouldProcess(tc.state, tc.retry); got != tc.want {
			t.Fatalf("ShouldProcess(%s, %v): expected %v, got %v", tc.state, tc.retry, tc.want, got)
		}
	}
}

func TestEntrySortKey(t *testing.T) {
	d := 42.5
	if got := (Entry{Duration: &d}).SortKey(); got != 42.5 {
		t.Fatalf("expected 42.5, got %v", got)
	}
	if got := (Entry{}).SortKey(); got != UnknownDuration {
		t.Fatalf("expected unknown duration key, got %v", got)
	}

	unknown := float64(UnknownDuration)
	if (Entry{Duration: &unknown}).HasDuration() {
		t.Fatalf("expected sentinel duration to count as missing")
	}
	if !IsKnownStatusTag("invalid-duration") || IsKnownStatusTag("pending") {
		t.Fatalf("unexpected status tag classification")
	}
}
