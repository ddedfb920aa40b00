package breeze

import "sort"

// PendingStore holds purchase intents keyed by id.
//
// It does no locking of its own: the Engine owns it and only touches it while
// holding the engine lock.
type PendingStore struct {
	intents map[string]*PurchaseIntent
}

// NewPendingStore creates an empty store
func NewPendingStore() *PendingStore {
	return &PendingStore{intents: make(map[string]*PurchaseIntent)}
}

// Put inserts or replaces the intent with the same id
func (s *PendingStore) Put(intent *PurchaseIntent) {
	s.intents[intent.ID] = intent
}

// Get returns the stored intent. Callers holding the engine lock may mutate it.
func (s *PendingStore) Get(id string) (*PurchaseIntent, bool) {
	intent, ok := s.intents[id]
	return intent, ok
}

// Remove deletes id. Removing an unknown id is a no-op.
func (s *PendingStore) Remove(id string) {
	delete(s.intents, id)
}

// Len returns the number of stored intents
func (s *PendingStore) Len() int {
	return len(s.intents)
}

// PendingCount returns the number of intents still awaiting an outcome
func (s *PendingStore) PendingCount() int {
	n := 0
	for _, intent := range s.intents {
		if intent.Status == IntentPending {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all intents, oldest first
func (s *PendingStore) Snapshot() []PurchaseIntent {
	out := make([]PurchaseIntent, 0, len(s.intents))
	for _, intent := range s.intents {
		out = append(out, *intent)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
