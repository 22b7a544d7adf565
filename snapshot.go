package hxstate

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State is the page state embedded in rendered output and read back during
// hydration.
type State struct {
	SSRRefs map[string]any `json:"ssrRefs"`
	Fetch   []any          `json:"fetch"`
}

// ErrorEntry returns the error marker stored at a fetch index, if any.
func (s *State) ErrorEntry(i int) (*ErrorInfo, bool) {
	if s == nil || i < 0 || i >= len(s.Fetch) {
		return nil, false
	}
	m, ok := s.Fetch[i].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := m["_error"]
	if !ok {
		return nil, false
	}
	info, err := decodeInto[ErrorInfo](raw)
	if err != nil {
		return &ErrorInfo{StatusCode: 500, Message: fmt.Sprint(raw)}, true
	}
	return &info, true
}

// HXEncode implements encoding.Encodable so state can be sealed.
func (s *State) HXEncode() map[string]any {
	refs := s.SSRRefs
	if refs == nil {
		refs = map[string]any{}
	}
	fetch := s.Fetch
	if fetch == nil {
		fetch = []any{}
	}
	return map[string]any{"ssrRefs": refs, "fetch": fetch}
}

// HXDecode implements encoding.Decodable.
func (s *State) HXDecode(m map[string]any) error {
	// msgpack and cbor decode into slightly different shapes; normalize
	// through JSON so values match what the JSON transport produces.
	clean, err := sanitize(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	raw, _ := json.Marshal(clean)
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	*s = out
	return nil
}

// ParseState decodes a JSON page state.
func ParseState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &s, nil
}

// snapshot is the client's read-only view of embedded state. Each ref key
// is consumed at most once; the whole snapshot is dropped when hydration
// ends.
type snapshot struct {
	mu       sync.Mutex
	state    *State
	consumed map[string]bool
}

func newSnapshot(s *State) *snapshot {
	return &snapshot{state: s, consumed: make(map[string]bool)}
}

// take returns the snapshot value for key and marks it consumed.
func (s *snapshot) take(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || s.consumed[key] {
		return nil, false
	}
	v, ok := s.state.SSRRefs[key]
	if !ok {
		return nil, false
	}
	s.consumed[key] = true
	return v, true
}

// fetchEntry returns the fetch array entry at i.
func (s *snapshot) fetchEntry(i int) (any, *ErrorInfo, bool) {
	if s == nil {
		return nil, nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || i < 0 || i >= len(s.state.Fetch) {
		return nil, nil, false
	}
	if info, isErr := s.state.ErrorEntry(i); isErr {
		return nil, info, true
	}
	return s.state.Fetch[i], nil, true
}

func (s *snapshot) discard() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.state = nil
	s.consumed = nil
	s.mu.Unlock()
}

func (s *snapshot) active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}
