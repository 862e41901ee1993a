package typing

// Aggregator observes the live set of typing users for a conversation. It
// does not share any in-process state with publishers; the store is the only
// thing between them, so one client can publish in one conversation while
// observing another with no coordination.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Subscribe fires onChange with the full current set of typing user IDs
// whenever it changes, including store-driven disconnect removals. The set is
// rebuilt from scratch on every delivery, so update reordering across
// different typists can only cause transient staleness, never a wrong set.
func (a *Aggregator) Subscribe(conversationID string, onChange func(typingUserIDs map[string]struct{})) (*Subscription, error) {
	return a.store.Subscribe(conversationID, func(entries map[string]Entry) {
		ids := make(map[string]struct{}, len(entries))
		for userID, entry := range entries {
			if entry.IsTyping {
				ids[userID] = struct{}{}
			}
		}
		onChange(ids)
	})
}

func (a *Aggregator) Unsubscribe(sub *Subscription) {
	a.store.Unsubscribe(sub)
}
