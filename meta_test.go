package hxstate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestUseMetaRequiresHead(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, ErrHeadNotEnabled) {
			t.Errorf("recover() = %v, want ErrHeadNotEnabled", err)
		}
	}()
	UseMeta(NewInstance(NewServerPage(), "page"))
}

func TestUseMeta(t *testing.T) {
	p := NewServerPage()
	inst := NewInstance(p, "page", WithHead(Head{TitleTemplate: "%s | Site"}))
	meta := UseMeta(inst, Head{Title: "Home"})
	if err := meta.At("title").Set("Todos"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	h, ok := inst.Head()
	if !ok {
		t.Fatal("Head() not enabled")
	}
	if got := h.FullTitle(); got != "Todos" {
		t.Errorf("FullTitle() = %q, want Todos (UseMeta resets the head)", got)
	}
	if p.Store().Len() != 0 {
		t.Error("head values were captured")
	}
}

func TestHeadFuncDefaults(t *testing.T) {
	p := NewServerPage()
	inst := NewInstance(p, "page", WithHeadFunc(func() Head {
		return Head{Title: "Default", TitleTemplate: "%s - Site"}
	}))
	if h, _ := inst.Head(); h.FullTitle() != "Default - Site" {
		t.Errorf("FullTitle() = %q, want Default - Site", h.FullTitle())
	}
	UseMeta(inst).At("title").Set("Item")
	if h, _ := inst.Head(); h.FullTitle() != "Item - Site" {
		t.Errorf("FullTitle() = %q, want Item - Site", h.FullTitle())
	}
}

func TestPageHeadLaterInstanceWins(t *testing.T) {
	p := NewServerPage()
	NewInstance(p, "layout", WithHead(Head{Title: "Layout", Meta: []Tag{{"hid": "desc", "content": "layout"}}}))
	NewInstance(p, "plain")
	NewInstance(p, "page", WithHead(Head{Title: "Page", Meta: []Tag{{"hid": "desc", "content": "page"}}}))

	h := p.Head()
	if h.Title != "Page" {
		t.Errorf("Title = %q, want Page", h.Title)
	}
	if len(h.Meta) != 1 || h.Meta[0]["content"] != "page" {
		t.Errorf("Meta = %v, want single page description", h.Meta)
	}
}

func TestMergeHead(t *testing.T) {
	h := Head{
		HTMLAttrs: map[string]string{"lang": "fr"},
		Meta:      []Tag{{"hid": "a", "content": "1"}, {"name": "x"}},
		DangerouslyDisableSanitizers: []string{"script"},
	}
	defaults := Head{
		Title:     "Site",
		HTMLAttrs: map[string]string{"lang": "en", "dir": "ltr"},
		Meta:      []Tag{{"vmid": "a", "content": "0"}, {"name": "y"}},
		DangerouslyDisableSanitizers: []string{"script", "style"},
	}

	out := MergeHead(h, defaults)
	if out.Title != "Site" {
		t.Errorf("Title = %q, want Site", out.Title)
	}
	if out.HTMLAttrs["lang"] != "fr" || out.HTMLAttrs["dir"] != "ltr" {
		t.Errorf("HTMLAttrs = %v", out.HTMLAttrs)
	}
	if len(out.Meta) != 3 || out.Meta[0]["content"] != "1" || out.Meta[2]["name"] != "y" {
		t.Errorf("Meta = %v, want [a=1 x y]", out.Meta)
	}
	if len(out.DangerouslyDisableSanitizers) != 2 {
		t.Errorf("DangerouslyDisableSanitizers = %v", out.DangerouslyDisableSanitizers)
	}

	out.HTMLAttrs["lang"] = "de"
	if h.HTMLAttrs["lang"] != "fr" {
		t.Error("MergeHead aliased its input")
	}
}

func TestFullTitle(t *testing.T) {
	tests := []struct {
		head Head
		want string
	}{
		{Head{}, ""},
		{Head{Title: "A"}, "A"},
		{Head{TitleTemplate: "%s | S"}, ""},
		{Head{Title: "A", TitleTemplate: "%s | S"}, "A | S"},
	}
	for _, tt := range tests {
		if got := tt.head.FullTitle(); got != tt.want {
			t.Errorf("FullTitle(%+v) = %q, want %q", tt.head, got, tt.want)
		}
	}
}

func TestRenderHead(t *testing.T) {
	h := Head{
		Title: "<script>alert(1)</script>Hi",
		Meta: []Tag{
			{"name": "description", "content": `say "hi"`, "hid": "desc"},
		},
		Link:   []Tag{{"rel": "stylesheet", "href": "/app.css"}},
		Script: []Tag{{"type": "module", "innerHTML": "init()"}},
		Style:  []Tag{{"innerHTML": "<b>body{}</b>"}},
		DangerouslyDisableSanitizers: []string{"script"},
	}

	var buf bytes.Buffer
	if err := RenderHead(h).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>Hi</title>",
		`<meta content="say &#34;hi&#34;" name="description" data-hid="desc">`,
		`<link href="/app.css" rel="stylesheet">`,
		`<script type="module">init()</script>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<b>") || strings.Contains(out, "alert") {
		t.Errorf("sanitized content leaked:\n%s", out)
	}
}

func TestAttrsOf(t *testing.T) {
	attrs := AttrsOf(map[string]string{"lang": "en"})
	if attrs["lang"] != "en" {
		t.Errorf("AttrsOf() = %v", attrs)
	}
}
