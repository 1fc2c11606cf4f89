package collection

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newRecordingDebouncer() (*Debouncer, *manualClock, *[]string) {
	clock := &manualClock{}
	var commits []string
	d := NewDebouncer(300*time.Millisecond, 2, clock, func(q string) { commits = append(commits, q) })
	return d, clock, &commits
}

func TestDebouncer_CommitsAfterIdle(t *testing.T) {
	d, clock, commits := newRecordingDebouncer()

	d.Push("le")
	clock.Advance(200 * time.Millisecond)
	d.Push("lea")
	clock.Advance(200 * time.Millisecond)
	if len(*commits) != 0 {
		t.Fatalf("committed too early: %v", *commits)
	}
	if !d.Pending() {
		t.Error("a commit should be pending")
	}

	clock.Advance(100 * time.Millisecond)
	if diff := cmp.Diff([]string{"lea"}, *commits); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	if d.Pending() {
		t.Error("nothing should be pending after the commit")
	}
}

func TestDebouncer_ShortQueryCancelsPending(t *testing.T) {
	d, clock, commits := newRecordingDebouncer()

	d.Push("ab")
	d.Push("a")
	clock.Advance(time.Second)

	if len(*commits) != 0 {
		t.Errorf("a one-character query must not commit, got %v", *commits)
	}
}

func TestDebouncer_EmptyQueryCommits(t *testing.T) {
	d, clock, commits := newRecordingDebouncer()

	d.Push("")
	clock.Advance(300 * time.Millisecond)

	if diff := cmp.Diff([]string{""}, *commits); diff != "" {
		t.Errorf("clearing the search should commit (-want +got):\n%s", diff)
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	d, clock, commits := newRecordingDebouncer()

	d.Push("lease")
	d.Stop()
	clock.Advance(time.Second)
	d.Push("other")
	clock.Advance(time.Second)

	if len(*commits) != 0 {
		t.Errorf("stopped debouncer committed %v", *commits)
	}
}

func TestDebouncer_SystemClock(t *testing.T) {
	done := make(chan string, 1)
	d := NewDebouncer(5*time.Millisecond, 2, nil, func(q string) { done <- q })
	defer d.Stop()

	d.Push("nda")
	select {
	case q := <-done:
		if q != "nda" {
			t.Errorf("committed %q; want nda", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never committed")
	}
}
