package hxstate

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for synchronization and lifecycle operations.
var (
	ErrMissingKey        = errors.New("hxstate: missing synchronization key")
	ErrExtraKeys         = errors.New("hxstate: more than one synchronization key")
	ErrInvalidHandler    = errors.New("hxstate: invalid handler")
	ErrHeadNotEnabled    = errors.New("hxstate: head not enabled for instance")
	ErrFetch             = errors.New("hxstate: fetch failed")
	ErrHydrationMismatch = errors.New("hxstate: hydration mismatch")
	ErrPath              = errors.New("hxstate: invalid value path")
	ErrInvalidState      = errors.New("hxstate: invalid page state")
	ErrSignatureInvalid  = errors.New("hxstate: state signature verification failed")
	ErrDecryptFailed     = errors.New("hxstate: state decryption failed")
)

// MissingKeyError is raised when a synchronized value is constructed
// without a key. Keys are normally appended by `hxstate keys`; hand-written
// call sites must pass one explicitly.
type MissingKeyError struct {
	Func string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("hxstate: %s requires a key (run `hxstate keys` or pass one explicitly)", e.Func)
}

func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }

// ErrorInfo is the normalized, serializable form of a fetch failure. It is
// what ends up in FetchState.Error and in the `_error` marker of the
// embedded fetch array.
type ErrorInfo struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// StatusCoder lets fetch callbacks attach an HTTP status to their errors.
type StatusCoder interface {
	StatusCode() int
}

// NormalizeError converts any error into an ErrorInfo. Errors implementing
// StatusCoder keep their status; everything else maps to 500.
func NormalizeError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		info := fe.Info
		return &info
	}
	info := &ErrorInfo{StatusCode: http.StatusInternalServerError, Message: err.Error()}
	var sc StatusCoder
	if errors.As(err, &sc) {
		info.StatusCode = sc.StatusCode()
	}
	return info
}

// FetchError carries a normalized fetch failure. It is recorded in
// FetchState and never returned from lifecycle hooks.
type FetchError struct {
	Info ErrorInfo
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("hxstate: fetch failed (%d): %s", e.Info.StatusCode, e.Info.Message)
}

func (e *FetchError) Unwrap() error { return ErrFetch }

// StatusCode implements StatusCoder.
func (e *FetchError) StatusCode() int { return e.Info.StatusCode }

// HydrationMismatchWarning reports a snapshot field that could not be
// assigned onto a live instance. Remaining fields are still applied.
type HydrationMismatchWarning struct {
	Instance string
	Field    string
	Err      error
}

func (w *HydrationMismatchWarning) Error() string {
	if w.Err == nil {
		return fmt.Sprintf("hxstate: could not hydrate %s.%s", w.Instance, w.Field)
	}
	return fmt.Sprintf("hxstate: could not hydrate %s.%s: %v", w.Instance, w.Field, w.Err)
}

func (w *HydrationMismatchWarning) Is(target error) bool {
	return target == ErrHydrationMismatch
}

func (w *HydrationMismatchWarning) Unwrap() error { return w.Err }

// IsMissingKey checks if err is a missing-key error.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}

// IsFetchError checks if err is a normalized fetch failure.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrFetch)
}

// IsSealError checks if err is a sealed-state verification or decryption
// failure. These indicate tampering or a rotated key.
func IsSealError(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrDecryptFailed)
}
