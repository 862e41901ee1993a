package typing

import (
	"context"
	"sync"
	"testing"
)

// recorder collects every snapshot a subscription delivers.
type recorder struct {
	mu    sync.Mutex
	snaps []map[string]Entry
}

func (r *recorder) onChange(entries map[string]Entry) {
	r.mu.Lock()
	r.snaps = append(r.snaps, entries)
	r.mu.Unlock()
}

func (r *recorder) last() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// --- Subscribe / notify ---

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	store := NewMemoryStore()
	store.Put(context.Background(), Key{"conv-1", "u1"})

	rec := &recorder{}
	sub, err := store.Subscribe("conv-1", rec.onChange)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer store.Unsubscribe(sub)

	if rec.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}
	if _, ok := rec.last()["u1"]; !ok {
		t.Error("initial snapshot missing existing typist")
	}
}

func TestPutAndDeleteNotifySubscribers(t *testing.T) {
	store := NewMemoryStore()

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-1", rec.onChange)
	defer store.Unsubscribe(sub)

	store.Put(context.Background(), Key{"conv-1", "u1"})
	store.Put(context.Background(), Key{"conv-1", "u2"})

	last := rec.last()
	if len(last) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(last))
	}
	if !last["u1"].IsTyping || !last["u2"].IsTyping {
		t.Error("snapshot entries not marked typing")
	}

	store.Delete(context.Background(), Key{"conv-1", "u1"})

	last = rec.last()
	if len(last) != 1 {
		t.Fatalf("snapshot size after delete = %d, want 1", len(last))
	}
	if _, ok := last["u1"]; ok {
		t.Error("deleted typist still in snapshot")
	}
}

func TestSubscribersScopedToConversation(t *testing.T) {
	store := NewMemoryStore()

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-1", rec.onChange)
	defer store.Unsubscribe(sub)

	before := rec.count()
	store.Put(context.Background(), Key{"conv-2", "u1"})

	if rec.count() != before {
		t.Error("subscriber notified for an unrelated conversation")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore()

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-1", rec.onChange)
	store.Unsubscribe(sub)

	before := rec.count()
	store.Put(context.Background(), Key{"conv-1", "u1"})
	store.Put(context.Background(), Key{"conv-1", "u2"})

	if rec.count() != before {
		t.Errorf("deliveries after unsubscribe = %d, want 0", rec.count()-before)
	}
}

func TestDeleteAbsentKeyIsSilent(t *testing.T) {
	store := NewMemoryStore()

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-1", rec.onChange)
	defer store.Unsubscribe(sub)

	before := rec.count()
	if err := store.Delete(context.Background(), Key{"conv-1", "u1"}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if rec.count() != before {
		t.Error("delete of absent key notified subscribers")
	}
}

// --- Disconnect ---

func TestDisconnectRemovesArmedKeys(t *testing.T) {
	store := NewMemoryStore()

	keyA := Key{"conv-a", "u1"}
	keyB := Key{"conv-b", "u1"}
	store.Put(context.Background(), keyA)
	store.RegisterDisconnectDelete("sess-1", keyA)
	store.Put(context.Background(), keyB)
	store.RegisterDisconnectDelete("sess-1", keyB)

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-a", rec.onChange)
	defer store.Unsubscribe(sub)

	// Connection dies without any explicit stop.
	store.Disconnect("sess-1")

	if hasEntry(store, keyA) || hasEntry(store, keyB) {
		t.Error("armed entries survived disconnect")
	}
	if len(rec.last()) != 0 {
		t.Errorf("observer's last snapshot = %v, want empty", rec.last())
	}
}

func TestDisconnectLeavesOtherSessionsAlone(t *testing.T) {
	store := NewMemoryStore()

	mine := Key{"conv-1", "u1"}
	theirs := Key{"conv-1", "u2"}
	store.Put(context.Background(), mine)
	store.RegisterDisconnectDelete("sess-1", mine)
	store.Put(context.Background(), theirs)
	store.RegisterDisconnectDelete("sess-2", theirs)

	store.Disconnect("sess-1")

	if hasEntry(store, mine) {
		t.Error("disconnected session's entry survived")
	}
	if !hasEntry(store, theirs) {
		t.Error("disconnect removed another session's entry")
	}
}

func TestExplicitDeleteDisarms(t *testing.T) {
	store := NewMemoryStore()

	key := Key{"conv-1", "u1"}
	store.Put(context.Background(), key)
	store.RegisterDisconnectDelete("sess-1", key)
	store.Delete(context.Background(), key)

	rec := &recorder{}
	sub, _ := store.Subscribe("conv-1", rec.onChange)
	defer store.Unsubscribe(sub)

	before := rec.count()
	store.Disconnect("sess-1")

	// The key was already gone; disconnect must not re-announce it.
	if rec.count() != before {
		t.Error("disconnect notified for a key deleted earlier")
	}
}

// --- Timestamps ---

func TestTimestampsMonotonicPerWrite(t *testing.T) {
	store := NewMemoryStore()
	key := Key{"conv-1", "u1"}

	store.Put(context.Background(), key)
	store.mu.Lock()
	first := store.entries[key].LastUpdated
	store.mu.Unlock()

	store.Put(context.Background(), key)
	store.mu.Lock()
	second := store.entries[key].LastUpdated
	store.mu.Unlock()

	if !second.After(first) {
		t.Errorf("second write stamp %v not after first %v", second, first)
	}
}

// --- Aggregator over the store ---

func TestAggregatorDeliversUserIDSets(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store)

	var (
		mu   sync.Mutex
		last map[string]struct{}
	)
	sub, err := agg.Subscribe("conv-1", func(ids map[string]struct{}) {
		mu.Lock()
		last = ids
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer agg.Unsubscribe(sub)

	store.Put(context.Background(), Key{"conv-1", "u1"})
	store.Put(context.Background(), Key{"conv-1", "u2"})
	store.Delete(context.Background(), Key{"conv-1", "u1"})

	mu.Lock()
	defer mu.Unlock()
	if len(last) != 1 {
		t.Fatalf("typing set = %v, want exactly u2", last)
	}
	if _, ok := last["u2"]; !ok {
		t.Errorf("typing set = %v, want u2", last)
	}
}

func TestPublisherDisconnectVisibleToAggregator(t *testing.T) {
	timers := &fakeTimers{}
	timers.install(t)

	store := NewMemoryStore()
	pub := NewPublisher(store, "sess-1", "u1")
	agg := NewAggregator(store)

	var (
		mu   sync.Mutex
		last map[string]struct{}
	)
	sub, _ := agg.Subscribe("conv-1", func(ids map[string]struct{}) {
		mu.Lock()
		last = ids
		mu.Unlock()
	})
	defer agg.Unsubscribe(sub)

	pub.StartTyping(context.Background(), "conv-1")

	mu.Lock()
	if _, ok := last["u1"]; !ok {
		mu.Unlock()
		t.Fatal("observer never saw the typist")
	}
	mu.Unlock()

	// Simulated crash: no StopTyping, no Close.
	store.Disconnect("sess-1")

	mu.Lock()
	defer mu.Unlock()
	if len(last) != 0 {
		t.Errorf("observer still sees %v after publisher disconnect", last)
	}
}
