package typing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store implementation. The server owns the
// websocket connections of its clients, so it is also the party that knows
// when one dies; Disconnect is wired to connection teardown and removes every
// key the session armed, which is what keeps a crashed client from leaving a
// stuck typing indicator behind.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
	// sessionID -> keys armed for disconnect-delete
	sessions map[string]map[Key]struct{}
	// conversationID -> live subscriptions
	subs map[string]map[*Subscription]struct{}

	lastStamp time.Time
	seq       uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[Key]Entry),
		sessions: make(map[string]map[Key]struct{}),
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

// stamp assigns the write timestamp. Monotonically increasing per store even
// when the wall clock stalls between writes.
func (s *MemoryStore) stamp() time.Time {
	now := time.Now()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

func (s *MemoryStore) Put(ctx context.Context, key Key) error {
	s.mu.Lock()
	s.entries[key] = Entry{IsTyping: true, LastUpdated: s.stamp()}
	seq, snap, targets := s.snapshotLocked(key.ConversationID)
	s.mu.Unlock()

	notify(seq, snap, targets)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, key)
	s.disarmLocked(key)
	seq, snap, targets := s.snapshotLocked(key.ConversationID)
	s.mu.Unlock()

	notify(seq, snap, targets)
	return nil
}

func (s *MemoryStore) RegisterDisconnectDelete(sessionID string, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = make(map[Key]struct{})
	}
	s.sessions[sessionID][key] = struct{}{}
	return nil
}

// Disconnect atomically removes every entry armed by the session and notifies
// observers. Called on websocket teardown; tests call it directly to simulate
// a crash or network loss.
func (s *MemoryStore) Disconnect(sessionID string) {
	s.mu.Lock()
	affected := make(map[string]struct{})
	for key := range s.sessions[sessionID] {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			affected[key.ConversationID] = struct{}{}
		}
	}
	delete(s.sessions, sessionID)

	type fanout struct {
		seq     uint64
		snap    map[string]Entry
		targets []*Subscription
	}
	var outs []fanout
	for conv := range affected {
		seq, snap, targets := s.snapshotLocked(conv)
		outs = append(outs, fanout{seq, snap, targets})
	}
	s.mu.Unlock()

	for _, o := range outs {
		notify(o.seq, o.snap, o.targets)
	}
}

func (s *MemoryStore) Subscribe(conversationID string, onChange func(entries map[string]Entry)) (*Subscription, error) {
	sub := &Subscription{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		onChange:       onChange,
	}

	s.mu.Lock()
	if _, ok := s.subs[conversationID]; !ok {
		s.subs[conversationID] = make(map[*Subscription]struct{})
	}
	s.subs[conversationID][sub] = struct{}{}
	seq, snap, _ := s.snapshotLocked(conversationID)
	s.mu.Unlock()

	// Initial snapshot so an observer joining mid-typing sees the
	// indicator without waiting for the next write.
	sub.deliver(seq, snap)
	return sub, nil
}

func (s *MemoryStore) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	if convSubs, ok := s.subs[sub.ConversationID]; ok {
		delete(convSubs, sub)
		if len(convSubs) == 0 {
			delete(s.subs, sub.ConversationID)
		}
	}
	s.mu.Unlock()

	sub.close()
}

// disarmLocked removes key from every session's arming set, so a later
// disconnect does not re-announce a key that was already explicitly deleted.
func (s *MemoryStore) disarmLocked(key Key) {
	for sessionID, keys := range s.sessions {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.sessions, sessionID)
		}
	}
}

// snapshotLocked builds the full current entry set for a conversation plus
// the subscriptions to notify. Caller holds s.mu.
func (s *MemoryStore) snapshotLocked(conversationID string) (uint64, map[string]Entry, []*Subscription) {
	s.seq++

	snap := make(map[string]Entry)
	for key, entry := range s.entries {
		if key.ConversationID == conversationID {
			snap[key.UserID] = entry
		}
	}

	var targets []*Subscription
	for sub := range s.subs[conversationID] {
		targets = append(targets, sub)
	}
	return s.seq, snap, targets
}

// notify runs outside the store lock so slow callbacks (display-name lookups,
// websocket writes) never serialize unrelated writers.
func notify(seq uint64, snap map[string]Entry, targets []*Subscription) {
	for _, sub := range targets {
		sub.deliver(seq, snap)
	}
}
