package hxstate

import (
	"errors"
	"testing"
)

type pathDoc struct {
	Name   string            `json:"name"`
	Score  float64           `json:"score"`
	Count  int               `json:"count,omitempty"`
	Labels map[string]string `json:"labels"`
	Items  []pathItem        `json:"items"`
	Owner  *pathItem         `json:"owner"`
	Any    map[string]any    `json:"any"`
}

type pathItem struct {
	ID   int `json:"id"`
	Done bool
}

func newPathDoc() pathDoc {
	return pathDoc{
		Name:   "doc",
		Labels: map[string]string{"env": "dev"},
		Items:  []pathItem{{ID: 1}, {ID: 2}},
		Owner:  &pathItem{ID: 9},
		Any:    map[string]any{"nested": map[string]any{"x": 1.0}},
	}
}

func TestAccessorSet(t *testing.T) {
	tests := []struct {
		name  string
		path  []string
		value any
		check func(d pathDoc) bool
	}{
		{"struct field by json tag", []string{"name"}, "renamed", func(d pathDoc) bool { return d.Name == "renamed" }},
		{"struct field by go name", []string{"Score"}, 1.5, func(d pathDoc) bool { return d.Score == 1.5 }},
		{"tag with options", []string{"count"}, 7, func(d pathDoc) bool { return d.Count == 7 }},
		{"numeric coercion", []string{"count"}, 3.0, func(d pathDoc) bool { return d.Count == 3 }},
		{"map entry", []string{"labels", "env"}, "prod", func(d pathDoc) bool { return d.Labels["env"] == "prod" }},
		{"new map entry", []string{"labels", "team"}, "core", func(d pathDoc) bool { return d.Labels["team"] == "core" }},
		{"slice element field", []string{"items", "1", "id"}, 20, func(d pathDoc) bool { return d.Items[1].ID == 20 }},
		{"untagged field", []string{"items", "0", "Done"}, true, func(d pathDoc) bool { return d.Items[0].Done }},
		{"through pointer", []string{"owner", "id"}, 10, func(d pathDoc) bool { return d.Owner.ID == 10 }},
		{"through interface", []string{"any", "nested", "x"}, 2.0, func(d pathDoc) bool {
			return d.Any["nested"].(map[string]any)["x"] == 2.0
		}},
		{"nil value", []string{"owner"}, nil, func(d pathDoc) bool { return d.Owner == nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRef(NewClientPage(nil), newPathDoc(), "doc")
			if err := r.At(tt.path...).Set(tt.value); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if !tt.check(r.Peek()) {
				t.Errorf("value after Set(%v) = %+v", tt.value, r.Peek())
			}
		})
	}
}

func TestAccessorErrors(t *testing.T) {
	tests := []struct {
		name  string
		path  []string
		value any
	}{
		{"unknown field", []string{"missing"}, 1},
		{"index out of range", []string{"items", "5", "id"}, 1},
		{"bad index", []string{"items", "first"}, 1},
		{"type mismatch", []string{"name"}, 42},
		{"index scalar", []string{"name", "x"}, "y"},
		{"missing intermediate key", []string{"labels", "no", "deeper"}, "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRef(NewClientPage(nil), newPathDoc(), "doc")
			err := r.At(tt.path...).Set(tt.value)
			if !errors.Is(err, ErrPath) {
				t.Errorf("Set() error = %v, want ErrPath", err)
			}
		})
	}
}

func TestAccessorGet(t *testing.T) {
	r := NewRef(NewClientPage(nil), newPathDoc(), "doc")

	got, err := r.At("items").At("1", "id").Get()
	if err != nil || got != 2 {
		t.Errorf("Get(items.1.id) = %v, %v; want 2", got, err)
	}
	got, err = r.At("any", "nested", "x").Get()
	if err != nil || got != 1.0 {
		t.Errorf("Get(any.nested.x) = %v, %v; want 1", got, err)
	}
	if _, err := r.At("labels", "none").Get(); !errors.Is(err, ErrPath) {
		t.Errorf("Get(missing) error = %v, want ErrPath", err)
	}
}

func TestAccessorSetFailureLeavesValue(t *testing.T) {
	p := NewServerPage()
	r := NewRef(p, newPathDoc(), "doc")
	if err := r.At("name").Set(42); err == nil {
		t.Fatal("Set() error = nil")
	}
	if r.Peek().Name != "doc" {
		t.Errorf("Name = %q after failed Set", r.Peek().Name)
	}
	if _, ok := p.State().SSRRefs["doc"]; ok {
		t.Error("failed Set was captured")
	}
}
