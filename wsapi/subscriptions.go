package wsapi

import "sync"

// Topic is a notification fan-out channel clients may subscribe to.
type Topic string

const (
	TopicBlocks  Topic = "BLOCKS"
	TopicEpochs  Topic = "EPOCHS"
	TopicMempool Topic = "MEMPOOL"
)

// SubscriptionTable tracks, per topic, the set of subscribed client ids.
type SubscriptionTable struct {
	mu   sync.RWMutex
	subs map[Topic]map[string]struct{}
}

// NewSubscriptionTable builds an empty SubscriptionTable.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{subs: make(map[Topic]map[string]struct{})}
}

// Subscribe registers clientID under topic.
func (t *SubscriptionTable) Subscribe(topic Topic, clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[string]struct{})
	}
	t.subs[topic][clientID] = struct{}{}
}

// Unsubscribe removes clientID from topic.
func (t *SubscriptionTable) Unsubscribe(topic Topic, clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs[topic], clientID)
}

// UnsubscribeAll removes clientID from every topic, for use on disconnect.
func (t *SubscriptionTable) UnsubscribeAll(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, set := range t.subs {
		delete(set, clientID)
	}
}

// Subscribers returns a snapshot of client ids subscribed to topic.
func (t *SubscriptionTable) Subscribers(topic Topic) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.subs[topic]))
	for id := range t.subs[topic] {
		out = append(out, id)
	}
	return out
}
