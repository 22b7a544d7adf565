package encoding

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes state documents (string-keyed maps of JSON-like values).
type Codec interface {
	Name() string
	Marshal(doc map[string]any) ([]byte, error)
	Unmarshal(data []byte) (map[string]any, error)
}

// JSON is the codec used for state embedded in markup.
var JSON Codec = jsonCodec{}

// CBOR is a compact binary codec for state files.
var CBOR Codec = newCBORCodec()

// Msgpack is the codec used inside sealed strings.
var Msgpack Codec = msgpackCodec{}

// ByName returns the codec with the given name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON, true
	case "cbor":
		return CBOR, true
	case "msgpack":
		return Msgpack, true
	}
	return nil, false
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(doc map[string]any) ([]byte, error) { return json.Marshal(doc) }

func (jsonCodec) Unmarshal(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	// Nested maps decode as map[string]any, matching the JSON codec.
	dec, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(doc map[string]any) ([]byte, error) { return c.enc.Marshal(doc) }

func (c cborCodec) Unmarshal(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := c.dec.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(doc map[string]any) ([]byte, error) { return msgpack.Marshal(doc) }

func (msgpackCodec) Unmarshal(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
