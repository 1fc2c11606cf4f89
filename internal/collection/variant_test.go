package collection

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		processed bool
		failed    bool
		started   time.Time
		timeout   time.Duration
		want      Variant
	}{
		{"ready", true, false, now.Add(-time.Hour), 15 * time.Minute, VariantReady},
		{"failed wins", true, true, now, 15 * time.Minute, VariantFailed},
		{"processing", false, false, now.Add(-time.Minute), 15 * time.Minute, VariantProcessing},
		{"timed out", false, false, now.Add(-time.Hour), 15 * time.Minute, VariantTimedOut},
		{"no timeout configured", false, false, now.Add(-time.Hour), 0, VariantProcessing},
		{"unknown start", false, false, time.Time{}, 15 * time.Minute, VariantProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.processed, tt.failed, tt.started, now, tt.timeout)
			if got != tt.want {
				t.Errorf("Classify() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestMove(t *testing.T) {
	cols := []string{"title", "owner", "status", "created"}

	got, err := Move(cols, 0, 2)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if diff := cmp.Diff([]string{"owner", "status", "title", "created"}, got); diff != "" {
		t.Errorf("Move(0, 2) mismatch (-want +got):\n%s", diff)
	}
	got, _ = Move(cols, 3, 0)
	if diff := cmp.Diff([]string{"created", "title", "owner", "status"}, got); diff != "" {
		t.Errorf("Move(3, 0) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"title", "owner", "status", "created"}, cols); diff != "" {
		t.Errorf("input was modified (-want +got):\n%s", diff)
	}
	if _, err := Move(cols, 0, 4); err == nil {
		t.Error("out of range move should fail")
	}
}
