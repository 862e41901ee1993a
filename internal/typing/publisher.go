package typing

import (
	"context"
	"sync"
	"time"

	"github.com/andepants/buzzbox-backend/internal/utils"
)

// typingTimeout bounds both the write rate and the maximum lifetime of a
// stale indicator: one store write per window, and an automatic stop when the
// window elapses without an explicit one.
const typingTimeout = 3 * time.Second

// newThrottleTimer is swapped out in tests for deterministic expiry.
var newThrottleTimer = func(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}

// Publisher translates the local "user is composing" signal into throttled,
// self-expiring store writes. One Publisher per client session; the session
// ID ties every write to the connection whose death must clear it.
//
// Everything here is best-effort: a failed write means a peer briefly misses
// the indicator, which is never worth surfacing to the user. Errors are
// logged and swallowed.
type Publisher struct {
	store     Store
	sessionID string
	userID    string

	mu sync.Mutex
	// conversationID -> active throttle timer
	timers map[string]*time.Timer
}

func NewPublisher(store Store, sessionID, userID string) *Publisher {
	return &Publisher{
		store:     store,
		sessionID: sessionID,
		userID:    userID,
		timers:    make(map[string]*time.Timer),
	}
}

// StartTyping publishes the typing entry for a conversation unless a throttle
// window is already open for it. Calls inside an open window are no-ops and
// do not restart the timer, so an abandoned input stops indicating after at
// most the full window.
func (p *Publisher) StartTyping(ctx context.Context, conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, active := p.timers[conversationID]; active {
		return
	}

	key := Key{ConversationID: conversationID, UserID: p.userID}
	if err := p.store.Put(ctx, key); err != nil {
		utils.LogError(err, "typing put")
		return
	}
	if err := p.store.RegisterDisconnectDelete(p.sessionID, key); err != nil {
		utils.LogError(err, "typing arm disconnect")
	}

	var t *time.Timer
	t = newThrottleTimer(typingTimeout, func() {
		p.expire(conversationID, t)
	})
	p.timers[conversationID] = t
}

// StopTyping cancels the throttle timer and removes the entry. Safe to call
// when nothing is being published.
func (p *Publisher) StopTyping(ctx context.Context, conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[conversationID]; ok {
		t.Stop()
		delete(p.timers, conversationID)
	}

	// Delete under the same lock as the put in StartTyping, so a stop
	// racing a fresh start can never wipe the newer window's entry.
	if err := p.store.Delete(ctx, Key{ConversationID: conversationID, UserID: p.userID}); err != nil {
		utils.LogError(err, "typing delete")
	}
}

// expire is the timer path of StopTyping. It only acts if its timer is still
// the registered one; an explicit stop or a fresh start supersedes it, so a
// late firing cannot tear down a newer window.
func (p *Publisher) expire(conversationID string, t *time.Timer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timers[conversationID] != t {
		return
	}
	delete(p.timers, conversationID)

	if err := p.store.Delete(context.Background(), Key{ConversationID: conversationID, UserID: p.userID}); err != nil {
		utils.LogError(err, "typing auto-stop")
	}
}

// Close stops every open window and removes the session's entries. The store
// side disconnect-delete covers the crash path; Close is the orderly one.
func (p *Publisher) Close() {
	p.mu.Lock()
	conversations := make([]string, 0, len(p.timers))
	for conversationID, t := range p.timers {
		t.Stop()
		conversations = append(conversations, conversationID)
	}
	p.timers = make(map[string]*time.Timer)
	p.mu.Unlock()

	for _, conversationID := range conversations {
		if err := p.store.Delete(context.Background(), Key{ConversationID: conversationID, UserID: p.userID}); err != nil {
			utils.LogError(err, "typing close")
		}
	}
}
