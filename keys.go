package hxstate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
)

// validateKey returns the single key supplied to a constructor. It panics
// with a *MissingKeyError when there is none and with ErrExtraKeys when
// there is more than one. A key that differs between server and client
// silently breaks hydration, so neither case falls back.
func validateKey(fn string, key []string) string {
	if len(key) == 0 || key[0] == "" {
		panic(&MissingKeyError{Func: fn})
	}
	if len(key) > 1 {
		panic(fmt.Errorf("%w: %s takes one key, got %d", ErrExtraKeys, fn, len(key)))
	}
	return key[0]
}

// CallSiteKey derives a key from name and the caller's file and line.
//
//	items := hxstate.NewRef(p, []Item{}, hxstate.CallSiteKey("items"))
//
// The key is stable only while server and client are built from the same
// source, so prefer keys written by `hxstate keys`.
func CallSiteKey(name string) string {
	return name + "-" + callSiteHash(name, 1)
}

func callSiteHash(name string, skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	var input string
	if ok {
		// Base filename only so keys survive different checkout paths.
		input = fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, name)
	} else {
		input = name
	}
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:4])
}
