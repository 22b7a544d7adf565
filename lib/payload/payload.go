// Package payload stores page state per route for pre-rendered pages, so a
// client navigation can hydrate from a file instead of a server round trip.
package payload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"
	"github.com/pthm/hxstate"
	"github.com/pthm/hxstate/lib/encoding"
)

// ErrNotFound is returned by Read when no payload exists for a route.
var ErrNotFound = errors.New("payload: not found")

// Store reads and writes payload files in one directory.
type Store struct {
	dir   string
	codec encoding.Codec
	cache *cache.Cache
}

// Option configures a Store.
type Option func(*Store)

// WithCodec selects the file codec (default CBOR).
func WithCodec(c encoding.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithCache keeps file contents in memory for ttl after a read or write.
// Every Read still decodes a fresh State, so pages never share one.
func WithCache(ttl time.Duration) Option {
	return func(s *Store) { s.cache = cache.New(ttl, 2*ttl) }
}

// New creates a store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, codec: encoding.CBOR}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FileName returns the payload file name for route under codec: the hex
// xxhash64 of the normalized route plus the codec name as extension.
func FileName(route string, codec encoding.Codec) string {
	sum := xxhash.Sum64String(normalize(route))
	return strconv.FormatUint(sum, 16) + "." + codec.Name()
}

// Path returns the payload file path for route.
func (s *Store) Path(route string) string {
	return filepath.Join(s.dir, FileName(route, s.codec))
}

// Write stores the state of a rendered route. The file is replaced
// atomically.
func (s *Store) Write(route string, st *hxstate.State) error {
	if st == nil {
		st = &hxstate.State{}
	}
	data, err := s.codec.Marshal(st.HXEncode())
	if err != nil {
		return fmt.Errorf("payload: encode %s: %w", route, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := s.Path(route)
	tmp, err := os.CreateTemp(s.dir, ".payload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if s.cache != nil {
		s.cache.SetDefault(path, data)
	}
	return nil
}

// Read loads the state stored for route.
func (s *Store) Read(route string) (*hxstate.State, error) {
	data, err := s.load(s.Path(route))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, route)
	}
	if err != nil {
		return nil, err
	}
	doc, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("payload: decode %s: %w", route, err)
	}
	var st hxstate.State
	if err := st.HXDecode(doc); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) load(path string) ([]byte, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(path); ok {
			return v.([]byte), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(path, data)
	}
	return data, nil
}

// Remove deletes the payload for route. Missing files are not an error.
func (s *Store) Remove(route string) error {
	path := s.Path(route)
	if s.cache != nil {
		s.cache.Delete(path)
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ClientPage builds a hydration page from the payload for route.
func (s *Store) ClientPage(route string, opts ...hxstate.PageOption) (*hxstate.Page, error) {
	st, err := s.Read(route)
	if err != nil {
		return nil, err
	}
	return hxstate.NewClientPage(st, opts...), nil
}

func normalize(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}
