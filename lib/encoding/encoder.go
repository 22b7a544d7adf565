// Package encoding seals page state for transport through markup and
// request parameters, and provides the document codecs used for state
// files.
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors returned by Decode.
var (
	ErrInvalidFormat    = errors.New("encoding: invalid format")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
	ErrDecryptFailed    = errors.New("encoding: decryption failed")
	ErrNotEncodable     = errors.New("encoding: type does not implement Encodable")
	ErrNotDecodable     = errors.New("encoding: type does not implement Decodable")
)

// Encoder seals values in one of two modes:
//   - Signed (default): base64 msgpack + HMAC tag, readable but
//     tamper-proof
//   - Encrypted: AES-256-GCM, fully opaque
//
// The two modes use separate keys derived from the one passed to
// NewEncoder, so a signed token never verifies as ciphertext or the
// reverse.
type Encoder struct {
	macKey []byte
	aead   cipher.AEAD
}

// tagSize is the length of the truncated HMAC-SHA256 tag.
const tagSize = 16

var b64 = base64.RawURLEncoding

// NewEncoder creates an encoder. Any key length is accepted.
func NewEncoder(key []byte) (*Encoder, error) {
	block, err := aes.NewCipher(derive(key, "seal"))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encoder{macKey: derive(key, "sign"), aead: aead}, nil
}

// derive returns a 32-byte subkey of key for one purpose.
func derive(key []byte, purpose string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte("hxstate/" + purpose))
	return h.Sum(nil)
}

// Encodable is implemented by values that can be sealed.
type Encodable interface {
	HXEncode() map[string]any
}

// Decodable is implemented by values that can be opened.
type Decodable interface {
	HXDecode(map[string]any) error
}

// Encode seals v. If sensitive is true the data is encrypted, otherwise
// signed.
func (e *Encoder) Encode(v any, sensitive bool) (string, error) {
	enc, ok := v.(Encodable)
	if !ok {
		return "", ErrNotEncodable
	}
	packed, err := msgpack.Marshal(enc.HXEncode())
	if err != nil {
		return "", err
	}
	if !sensitive {
		return b64.EncodeToString(packed) + "." + b64.EncodeToString(e.tag(packed)), nil
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(packed)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return b64.EncodeToString(e.aead.Seal(nonce, nonce, packed, nil)), nil
}

// Decode opens a sealed string into v.
func (e *Encoder) Decode(encoded string, sensitive bool, v any) error {
	dec, ok := v.(Decodable)
	if !ok {
		return ErrNotDecodable
	}
	open := e.verify
	if sensitive {
		open = e.decrypt
	}
	packed, err := open(encoded)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := msgpack.Unmarshal(packed, &doc); err != nil {
		return ErrInvalidFormat
	}
	return dec.HXDecode(doc)
}

func (e *Encoder) tag(data []byte) []byte {
	h := hmac.New(sha256.New, e.macKey)
	h.Write(data)
	return h.Sum(nil)[:tagSize]
}

// verify checks a "payload.tag" token and returns the payload.
func (e *Encoder) verify(token string) ([]byte, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidFormat
	}
	data, err := b64.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	want, err := b64.DecodeString(sig)
	if err != nil || !hmac.Equal(want, e.tag(data)) {
		return nil, ErrSignatureInvalid
	}
	return data, nil
}

// decrypt opens a base64 "nonce || ciphertext" token.
func (e *Encoder) decrypt(token string) ([]byte, error) {
	raw, err := b64.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	n := e.aead.NonceSize()
	if len(raw) < n+e.aead.Overhead() {
		return nil, ErrDecryptFailed
	}
	out, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return out, nil
}
