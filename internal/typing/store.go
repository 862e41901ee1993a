package typing

import (
	"context"
	"sync"
	"time"
)

// Key identifies one user's typing state within one conversation.
// Writes are idempotent upserts keyed by this pair.
type Key struct {
	ConversationID string
	UserID         string
}

// Entry is the ephemeral fact that a user is currently composing a message.
// An entry only exists while the user is typing; "not typing" is the absence
// of the entry, never a stored false.
type Entry struct {
	IsTyping    bool      `json:"is_typing"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store is the narrow contract the publisher and aggregator depend on.
// Implementations must remove every key armed via RegisterDisconnectDelete
// when the owning session terminates, without any explicit client call.
type Store interface {
	// Put upserts the entry for key with a store-assigned timestamp.
	Put(ctx context.Context, key Key) error
	// Delete removes the entry for key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key Key) error
	// RegisterDisconnectDelete arms automatic removal of key if the given
	// session disconnects. Re-armed after every Put.
	RegisterDisconnectDelete(sessionID string, key Key) error
	// Subscribe registers a live listener for all entries under a
	// conversation. The callback always receives the full current entry
	// set, including once immediately on subscribe.
	Subscribe(conversationID string, onChange func(entries map[string]Entry)) (*Subscription, error)
	// Unsubscribe cancels the listener. Once it returns, the callback will
	// not be invoked again.
	Unsubscribe(sub *Subscription)
}

// Subscription is an opaque handle for one live listener.
type Subscription struct {
	ID             string
	ConversationID string

	mu       sync.Mutex
	closed   bool
	lastSeq  uint64
	onChange func(entries map[string]Entry)
}

// deliver invokes the callback unless the subscription is closed or the
// snapshot is older than one already delivered. Snapshots are sequenced by
// the store so racing writers cannot roll a listener's view backwards.
func (s *Subscription) deliver(seq uint64, entries map[string]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.onChange(entries)
}

// close marks the subscription dead. Any in-flight delivery finishes before
// close returns, so no callback runs afterwards.
func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
