package typing

import "testing"

// --- Helpers ---

func set(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func testParticipants() []Participant {
	return []Participant{
		{UserID: "alice", DisplayName: "Alice"},
		{UserID: "bob", DisplayName: "Bob"},
		{UserID: "carol", DisplayName: "Carol"},
		{UserID: "dave", DisplayName: "Dave"},
		{UserID: "eve", DisplayName: "Eve"},
		{UserID: "u0", DisplayName: "Viewer"},
	}
}

// --- ComputeDisplayText ---

func TestComputeDisplayText_Empty(t *testing.T) {
	got := ComputeDisplayText(set(), "u0", testParticipants())
	if got != "" {
		t.Errorf("ComputeDisplayText = %q, want empty", got)
	}
}

func TestComputeDisplayText_One(t *testing.T) {
	got := ComputeDisplayText(set("alice"), "u0", testParticipants())
	want := "Alice is typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_Two(t *testing.T) {
	got := ComputeDisplayText(set("alice", "bob"), "u0", testParticipants())
	want := "Alice and Bob are typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_Three(t *testing.T) {
	got := ComputeDisplayText(set("alice", "bob", "carol"), "u0", testParticipants())
	want := "Alice, Bob, and Carol are typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_ManyShowsFirstTwoAndCount(t *testing.T) {
	got := ComputeDisplayText(set("alice", "bob", "carol", "dave", "eve"), "u0", testParticipants())
	want := "Alice, Bob, and 3 others are typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_ExcludesViewer(t *testing.T) {
	got := ComputeDisplayText(set("u0"), "u0", testParticipants())
	if got != "" {
		t.Errorf("viewer's own typing rendered: %q", got)
	}

	got = ComputeDisplayText(set("u0", "alice"), "u0", testParticipants())
	want := "Alice is typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_ExcludesNonParticipants(t *testing.T) {
	// "ghost" left the conversation after publishing an entry
	got := ComputeDisplayText(set("ghost", "alice"), "u0", testParticipants())
	want := "Alice is typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}

	got = ComputeDisplayText(set("ghost"), "u0", testParticipants())
	if got != "" {
		t.Errorf("non-participant rendered: %q", got)
	}
}

func TestComputeDisplayText_FallbackName(t *testing.T) {
	participants := []Participant{{UserID: "u1"}} // record exists, name not fetched yet
	got := ComputeDisplayText(set("u1"), "u0", participants)
	want := "Someone is typing…"
	if got != want {
		t.Errorf("ComputeDisplayText = %q, want %q", got, want)
	}
}

func TestComputeDisplayText_Deterministic(t *testing.T) {
	// Map iteration order varies; output must not.
	ids := set("eve", "dave", "carol", "bob", "alice")
	want := ComputeDisplayText(ids, "u0", testParticipants())
	for i := 0; i < 50; i++ {
		if got := ComputeDisplayText(ids, "u0", testParticipants()); got != want {
			t.Fatalf("run %d: ComputeDisplayText = %q, want %q", i, got, want)
		}
	}
}
