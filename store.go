package hxstate

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// Store is the server capture store: the keyed values a render has touched,
// destined for the embedded page state. Values flow one way, into the store;
// there is no read-back API.
//
// A Store belongs to exactly one *Page. It is safe for the goroutines of that
// render, but must never be shared between renders.
type Store struct {
	mu   sync.Mutex
	data map[string]any
}

// NewStore creates an empty capture store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Reset clears all entries.
func (s *Store) Reset() {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.mu.Unlock()
}

// Put stores a JSON-sanitized copy of v under key, replacing any previous
// entry.
func (s *Store) Put(key string, v any) error {
	clean, err := sanitize(v)
	if err != nil {
		return fmt.Errorf("hxstate: capture %q: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = clean
	s.mu.Unlock()
	return nil
}

// Serialize returns a copy of the captured mapping.
func (s *Store) Serialize() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data)
}

// Len returns the number of captured keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// sanitize deep-copies v through a JSON round trip, leaving only
// map[string]any, []any, float64, string, bool and nil.
func sanitize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeInto converts a sanitized value into T.
func decodeInto[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
