package collection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSelection_ExplicitIDs(t *testing.T) {
	var s Selection
	if !s.Toggle("a") || s.Toggle("a") {
		t.Fatal("Toggle should flip")
	}
	s.Add("b", "c", "b")
	if diff := cmp.Diff([]string{"b", "c"}, s.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	s.Remove("b")
	if s.Has("b") || !s.Has("c") || s.Count() != 1 {
		t.Errorf("after Remove: ids=%v count=%d", s.IDs(), s.Count())
	}
}

func TestSelection_MatchingScope(t *testing.T) {
	var s Selection
	s.Add("a")
	s.SelectMatching("q=lease", 120)

	if s.Scope() != ScopeMatching || s.Count() != 120 || !s.Has("anything") {
		t.Fatalf("matching scope: scope=%v count=%d", s.Scope(), s.Count())
	}

	s.Reconcile("q=lease")
	if s.Scope() != ScopeMatching {
		t.Error("same key must keep the matching scope")
	}

	s.Reconcile("q=nda")
	if s.Scope() != ScopeVisible || s.Count() != 0 {
		t.Errorf("a new key must reset: scope=%v count=%d", s.Scope(), s.Count())
	}
}

func TestSelection_ToggleLeavesMatchingScope(t *testing.T) {
	var s Selection
	s.SelectMatching("k", 10)
	s.Toggle("x")
	if s.Scope() != ScopeVisible || s.Count() != 1 {
		t.Errorf("toggle after matching: scope=%v count=%d", s.Scope(), s.Count())
	}
}
