// Package htmlstate locates embedded page state and hydration markers in
// server-rendered markup.
package htmlstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markup attributes shared with the renderer.
const (
	FetchKeyAttr = "data-fetch-key"
	InstanceAttr = "data-hxstate-instance"
	SealedAttr   = "data-hxstate"
)

// ErrNoState is returned when the document carries no state element.
var ErrNoState = errors.New("htmlstate: no embedded state")

// StateID returns the id of the state element for a global name.
func StateID(global string) string {
	return global + "_state"
}

// Marker is one element carrying a fetch key.
type Marker struct {
	Instance string `json:"instance,omitempty"`
	FetchKey int    `json:"fetchKey"`
	Tag      string `json:"tag"`
}

// Document is what Extract found.
type Document struct {
	// StateJSON is the JSON state literal (JSON transport).
	StateJSON []byte
	// Sealed is the sealed state string (sealed transport).
	Sealed  string
	Markers []Marker
}

// HasState reports whether state was found in either form.
func (d *Document) HasState() bool {
	return len(d.StateJSON) > 0 || d.Sealed != ""
}

// MarkerMap returns instance key to fetch key for markers that name an
// instance. The first marker of an instance wins.
func (d *Document) MarkerMap() map[string]int {
	m := make(map[string]int, len(d.Markers))
	for _, mk := range d.Markers {
		if mk.Instance == "" {
			continue
		}
		if _, ok := m[mk.Instance]; !ok {
			m[mk.Instance] = mk.FetchKey
		}
	}
	return m
}

// Extract parses r and collects the state element with the id
// StateID(global) plus every fetch-key marker in document order. A missing
// state element is not an error; check HasState.
func Extract(r io.Reader, global string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmlstate: parse: %w", err)
	}

	id := StateID(global)
	doc := &Document{}
	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr(n, "id") == id {
				if err := readState(n, doc); err != nil && walkErr == nil {
					walkErr = err
				}
			}
			if raw, ok := lookupAttr(n, FetchKeyAttr); ok {
				k, err := strconv.Atoi(strings.TrimSpace(raw))
				if err == nil {
					doc.Markers = append(doc.Markers, Marker{
						Instance: attr(n, InstanceAttr),
						FetchKey: k,
						Tag:      n.Data,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if walkErr != nil {
		return nil, walkErr
	}
	return doc, nil
}

// ExtractString is Extract over a string.
func ExtractString(s, global string) (*Document, error) {
	return Extract(strings.NewReader(s), global)
}

func readState(n *html.Node, doc *Document) error {
	if sealed, ok := lookupAttr(n, SealedAttr); ok {
		doc.Sealed = sealed
		return nil
	}
	if n.DataAtom != atom.Script {
		return nil
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}
	literal, err := stateLiteral(text.String())
	if err != nil {
		return err
	}
	doc.StateJSON = literal
	return nil
}

// stateLiteral extracts the JSON from `window["NAME"]=<json>;`.
func stateLiteral(script string) ([]byte, error) {
	_, rhs, ok := strings.Cut(script, "]=")
	if !ok {
		return nil, fmt.Errorf("htmlstate: state script has no assignment")
	}
	lit := bytes.TrimSpace([]byte(rhs))
	lit = bytes.TrimSuffix(lit, []byte(";"))
	if !json.Valid(lit) {
		return nil, fmt.Errorf("htmlstate: state literal is not valid JSON")
	}
	return lit, nil
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
