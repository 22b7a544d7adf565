package hxstate

import (
	"context"
	"fmt"
	"html"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
)

// Tag is one head element as attribute name to value. The "innerHTML" key
// holds element content for style, script and noscript tags; "hid" (or
// "vmid") identifies a tag so a later definition replaces an earlier one.
type Tag map[string]string

// Head describes page metadata.
type Head struct {
	Title         string            `json:"title,omitempty"`
	TitleTemplate string            `json:"titleTemplate,omitempty"`
	HTMLAttrs     map[string]string `json:"htmlAttrs,omitempty"`
	HeadAttrs     map[string]string `json:"headAttrs,omitempty"`
	BodyAttrs     map[string]string `json:"bodyAttrs,omitempty"`
	Base          Tag               `json:"base,omitempty"`
	Meta          []Tag             `json:"meta,omitempty"`
	Link          []Tag             `json:"link,omitempty"`
	Style         []Tag             `json:"style,omitempty"`
	Script        []Tag             `json:"script,omitempty"`
	Noscript      []Tag             `json:"noscript,omitempty"`

	// DangerouslyDisableSanitizers lists element kinds ("title", "style",
	// "script", "noscript") whose content is written without sanitizing.
	DangerouslyDisableSanitizers []string `json:"__dangerouslyDisableSanitizers,omitempty"`
}

type headState struct {
	enabled bool
	fn      func() Head
	ref     *Ref[Head]
}

// WithHead enables head management for an instance with a static head.
func WithHead(h Head) InstanceOption {
	return func(i *Instance) {
		i.head.enabled = true
		i.head.ref = newLocalRef(i.page, h)
	}
}

// WithHeadFunc enables head management with a head computed at render time.
// Values set through UseMeta take precedence over it.
func WithHeadFunc(fn func() Head) InstanceOption {
	return func(i *Instance) {
		i.head.enabled = true
		i.head.fn = fn
		i.head.ref = newLocalRef(i.page, Head{})
	}
}

// UseMeta returns the instance's reactive head, reset to init. The
// instance must have been created with WithHead or WithHeadFunc; UseMeta
// panics with ErrHeadNotEnabled otherwise.
//
//	meta := hxstate.UseMeta(inst)
//	meta.At("title").Set("My page")
func UseMeta(inst *Instance, init ...Head) *Ref[Head] {
	inst.mu.Lock()
	hs := inst.head
	inst.mu.Unlock()
	if !hs.enabled {
		panic(fmt.Errorf("%w: create %s with WithHead or WithHeadFunc", ErrHeadNotEnabled, inst.key))
	}
	var h Head
	if len(init) > 0 {
		h = init[0]
	}
	hs.ref.Set(h)
	return hs.ref
}

// Head returns the instance's effective head, or false when head management
// is not enabled.
func (i *Instance) Head() (Head, bool) {
	i.mu.Lock()
	hs := i.head
	i.mu.Unlock()
	if !hs.enabled {
		return Head{}, false
	}
	h := hs.ref.Get()
	if hs.fn != nil {
		h = MergeHead(h, hs.fn())
	}
	return h, true
}

// Head merges the heads of all instances in creation order; later
// instances win.
func (p *Page) Head() Head {
	var out Head
	for _, inst := range p.Instances() {
		if h, ok := inst.Head(); ok {
			out = MergeHead(h, out)
		}
	}
	return out
}

// MergeHead returns h with gaps filled from defaults. Scalars from h win,
// attribute maps are unioned, tag lists are concatenated with h first and
// default tags dropped when h has a tag with the same hid.
func MergeHead(h, defaults Head) Head {
	out := Head{
		Title:         firstNonEmpty(h.Title, defaults.Title),
		TitleTemplate: firstNonEmpty(h.TitleTemplate, defaults.TitleTemplate),
		HTMLAttrs:     mergeAttrs(h.HTMLAttrs, defaults.HTMLAttrs),
		HeadAttrs:     mergeAttrs(h.HeadAttrs, defaults.HeadAttrs),
		BodyAttrs:     mergeAttrs(h.BodyAttrs, defaults.BodyAttrs),
		Base:          Tag(mergeAttrs(h.Base, defaults.Base)),
		Meta:          mergeTags(h.Meta, defaults.Meta),
		Link:          mergeTags(h.Link, defaults.Link),
		Style:         mergeTags(h.Style, defaults.Style),
		Script:        mergeTags(h.Script, defaults.Script),
		Noscript:      mergeTags(h.Noscript, defaults.Noscript),
	}
	for _, s := range slices.Concat(h.DangerouslyDisableSanitizers, defaults.DangerouslyDisableSanitizers) {
		if !slices.Contains(out.DangerouslyDisableSanitizers, s) {
			out.DangerouslyDisableSanitizers = append(out.DangerouslyDisableSanitizers, s)
		}
	}
	return out
}

// FullTitle applies TitleTemplate ("%s" placeholder) to Title.
func (h Head) FullTitle() string {
	if h.Title == "" || h.TitleTemplate == "" {
		return h.Title
	}
	return strings.ReplaceAll(h.TitleTemplate, "%s", h.Title)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func mergeAttrs(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := maps.Clone(b)
	if out == nil {
		out = make(map[string]string, len(a))
	}
	maps.Copy(out, a)
	return out
}

func tagID(t Tag) string {
	if id := t["hid"]; id != "" {
		return id
	}
	return t["vmid"]
}

func mergeTags(a, b []Tag) []Tag {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]Tag, 0, len(a)+len(b))
	for _, t := range a {
		if id := tagID(t); id != "" {
			seen[id] = true
		}
		out = append(out, maps.Clone(t))
	}
	for _, t := range b {
		if id := tagID(t); id != "" && seen[id] {
			continue
		}
		out = append(out, maps.Clone(t))
	}
	return out
}

// RenderHead renders the head elements (title, base, meta, link, style,
// script, noscript). Text content goes through a strict sanitizer unless
// its element kind is listed in DangerouslyDisableSanitizers.
func RenderHead(h Head) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		policy := bluemonday.StrictPolicy()
		content := func(kind, s string) string {
			if slices.Contains(h.DangerouslyDisableSanitizers, kind) {
				return s
			}
			return policy.Sanitize(s)
		}

		if title := h.FullTitle(); title != "" {
			sb.WriteString("<title>")
			sb.WriteString(content("title", title))
			sb.WriteString("</title>")
		}
		if len(h.Base) > 0 {
			writeTag(&sb, "base", h.Base, true, content)
		}
		for _, t := range h.Meta {
			writeTag(&sb, "meta", t, true, content)
		}
		for _, t := range h.Link {
			writeTag(&sb, "link", t, true, content)
		}
		for _, t := range h.Style {
			writeTag(&sb, "style", t, false, content)
		}
		for _, t := range h.Script {
			writeTag(&sb, "script", t, false, content)
		}
		for _, t := range h.Noscript {
			writeTag(&sb, "noscript", t, false, content)
		}
		_, err := io.WriteString(w, sb.String())
		return err
	})
}

func writeTag(sb *strings.Builder, name string, t Tag, void bool, content func(kind, s string) string) {
	sb.WriteString("<")
	sb.WriteString(name)
	keys := make([]string, 0, len(t))
	for k := range t {
		switch k {
		case "innerHTML", "hid", "vmid":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(html.EscapeString(k))
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(t[k]))
		sb.WriteString(`"`)
	}
	if id := tagID(t); id != "" {
		sb.WriteString(` data-hid="`)
		sb.WriteString(html.EscapeString(id))
		sb.WriteString(`"`)
	}
	sb.WriteString(">")
	if void {
		return
	}
	sb.WriteString(content(name, t["innerHTML"]))
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteString(">")
}

// AttrsOf converts a head attribute map into templ attributes.
//
//	<html { hxstate.AttrsOf(head.HTMLAttrs)... }>
func AttrsOf(m map[string]string) templ.Attributes {
	attrs := make(templ.Attributes, len(m))
	for k, v := range m {
		attrs[k] = v
	}
	return attrs
}
