package hxstate

import (
	"testing"
)

type captureUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
	priv string
}

func TestStorePutSanitizes(t *testing.T) {
	s := NewStore()
	if err := s.Put("user", captureUser{Name: "ada", Age: 36, priv: "x"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok := s.Serialize()["user"].(map[string]any)
	if !ok {
		t.Fatalf("user = %T, want map[string]any", s.Serialize()["user"])
	}
	if got["name"] != "ada" || got["age"] != float64(36) {
		t.Errorf("user = %v, want name=ada age=36", got)
	}
	if _, ok := got["priv"]; ok {
		t.Error("unexported field was captured")
	}
}

func TestStoreOverwriteAndReset(t *testing.T) {
	s := NewStore()
	s.Put("k", 1)
	s.Put("k", 2)
	if got := s.Serialize()["k"]; got != float64(2) {
		t.Errorf("k = %v, want 2", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", s.Len())
	}
}

func TestStoreSerializeIsCopy(t *testing.T) {
	s := NewStore()
	s.Put("a", "x")
	out := s.Serialize()
	out["b"] = "y"
	if s.Len() != 1 {
		t.Error("mutating Serialize() output changed the store")
	}
}

func TestStoreUnserializable(t *testing.T) {
	s := NewStore()
	if err := s.Put("ch", make(chan int)); err == nil {
		t.Error("Put(chan) error = nil, want error")
	}
	if s.Len() != 0 {
		t.Error("failed Put left an entry")
	}
}

func TestResetServerCapture(t *testing.T) {
	p := NewServerPage()
	NewRef(p, 0, "a").Set(1)
	p.pushFetch(map[string]any{})

	ResetServerCapture(p)
	st := p.State()
	if len(st.SSRRefs) != 0 || len(st.Fetch) != 0 {
		t.Errorf("State() after reset = %+v, want empty", st)
	}
}

func TestPagesAreIsolated(t *testing.T) {
	a, b := NewServerPage(), NewServerPage()
	NewRef(a, "", "shared").Set("from a")
	NewRef(b, "", "shared").Set("from b")

	if got := a.State().SSRRefs["shared"]; got != "from a" {
		t.Errorf("page a shared = %v, want from a", got)
	}
	if got := b.State().SSRRefs["shared"]; got != "from b" {
		t.Errorf("page b shared = %v, want from b", got)
	}
}
