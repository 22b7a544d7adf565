package hxstate

import (
	"errors"
	"fmt"

	"github.com/pthm/hxstate/lib/encoding"
)

// Encoder is an alias for encoding.Encoder for convenience.
type Encoder = encoding.Encoder

// NewEncoder creates an encoder for sealed state.
func NewEncoder(key []byte) (*Encoder, error) {
	return encoding.NewEncoder(key)
}

// SealState encodes s for the sealed transport: signed msgpack, or
// AES-GCM encrypted when sensitive is set.
func SealState(enc *Encoder, s *State, sensitive bool) (string, error) {
	if s == nil {
		s = &State{}
	}
	out, err := enc.Encode(s, sensitive)
	if err != nil {
		return "", fmt.Errorf("hxstate: seal state: %w", err)
	}
	return out, nil
}

// OpenState decodes a string produced by SealState.
func OpenState(enc *Encoder, sealed string, sensitive bool) (*State, error) {
	var s State
	if err := enc.Decode(sealed, sensitive, &s); err != nil {
		return nil, wrapEncodingError(err)
	}
	return &s, nil
}

// NewClientPageFromSealed opens sealed state and builds a hydration page
// from it.
func NewClientPageFromSealed(enc *Encoder, sealed string, sensitive bool, opts ...PageOption) (*Page, error) {
	s, err := OpenState(enc, sealed, sensitive)
	if err != nil {
		return nil, err
	}
	return NewClientPage(s, opts...), nil
}

// sealer returns the encoder configured for sealed transport.
func (c Config) sealer() (*Encoder, error) {
	if c.SealKey == "" {
		return nil, fmt.Errorf("hxstate: transport %q requires seal_key", TransportSealed)
	}
	return NewEncoder([]byte(c.SealKey))
}

// wrapEncodingError maps encoding package errors to hxstate sentinels.
func wrapEncodingError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, encoding.ErrSignatureInvalid) {
		return ErrSignatureInvalid
	}
	if errors.Is(err, encoding.ErrDecryptFailed) {
		return ErrDecryptFailed
	}
	if errors.Is(err, encoding.ErrInvalidFormat) {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return err
}
