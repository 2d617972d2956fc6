package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu    sync.RWMutex
	files map[string][]record.Record
	dirs  map[string]struct{}
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		files: make(map[string][]record.Record),
		dirs:  map[string]struct{}{"": {}},
	}
}

var _ store.Store = (*Store)(nil)

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string) (store.Writer, error) {
	return s.open(ctx, p, true)
}

// Append implements store.Store.
func (s *Store) Append(ctx context.Context, p string) (store.Writer, error) {
	return s.open(ctx, p, false)
}

func (s *Store) open(ctx context.Context, p string, truncate bool) (store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	p = store.Clean(p)
	if p == "" {
		return nil, internalerr.Storage("create", p, store.ErrNotDir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, isDir := s.dirs[p]; isDir {
		return nil, internalerr.Storage("create", p, store.ErrNotDir)
	}
	s.mkdirs(parentOf(p))
	if _, ok := s.files[p]; !ok || truncate {
		s.files[p] = nil
	}
	return &writer{s: s, path: p}, nil
}

// mkdirs registers dir and all its ancestors. Caller holds the lock.
func (s *Store) mkdirs(dir string) {
	for dir != "" {
		s.dirs[dir] = struct{}{}
		dir = parentOf(dir)
	}
}

// Open implements store.Store.
func (s *Store) Open(ctx context.Context, p string) (store.Iterator, error) {
	p = store.Clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, ok := s.files[p]
	if !ok {
		return nil, internalerr.Storage("open", p, internalerr.ErrNotFound)
	}
	cp := make([]record.Record, len(recs))
	copy(cp, recs)
	return &iterator{recs: cp, pos: -1}, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, p string) ([]store.Entry, error) {
	p = store.Clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[p]; ok {
		return nil, internalerr.Storage("list", p, store.ErrNotDir)
	}
	if _, ok := s.dirs[p]; !ok {
		return nil, internalerr.Storage("list", p, internalerr.ErrNotFound)
	}

	seen := make(map[string]store.Entry)
	for dir := range s.dirs {
		if name, ok := childName(p, dir); ok {
			seen[name] = store.Entry{Name: name, Dir: true}
		}
	}
	for file := range s.files {
		if parentOf(file) != p {
			continue
		}
		if name, ok := childName(p, file); ok {
			seen[name] = store.Entry{Name: name}
		}
	}

	out := make([]store.Entry, 0, len(seen))
	for name, e := range seen {
		if store.IsMarker(name) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, p string) error {
	p = store.Clean(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == "" {
		s.files = make(map[string][]record.Record)
		s.dirs = map[string]struct{}{"": {}}
		return nil
	}
	prefix := p + "/"
	delete(s.files, p)
	delete(s.dirs, p)
	for file := range s.files {
		if strings.HasPrefix(file, prefix) {
			delete(s.files, file)
		}
	}
	for dir := range s.dirs {
		if strings.HasPrefix(dir, prefix) {
			delete(s.dirs, dir)
		}
	}
	return nil
}

// Paths returns every file path, sorted. Used by tests to compare trees.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type writer struct {
	s      *Store
	path   string
	closed bool
}

func (w *writer) Write(key record.Key, value string) error {
	if w.closed {
		return internalerr.Storage("write", w.path, errClosed)
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if _, ok := w.s.files[w.path]; !ok {
		return internalerr.Storage("write", w.path, internalerr.ErrNotFound)
	}
	w.s.files[w.path] = append(w.s.files[w.path], record.Record{Key: key, Value: value})
	return nil
}

func (w *writer) Close() error {
	w.closed = true
	return nil
}

type iterator struct {
	recs []record.Record
	pos  int
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.recs) {
		it.pos = len(it.recs)
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Record() record.Record { return it.recs[it.pos] }
func (it *iterator) Err() error            { return nil }
func (it *iterator) Close() error          { return nil }

var errClosed = errors.New("writer is closed")

func parentOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

// childName returns the first path segment of full below dir.
func childName(dir, full string) (string, bool) {
	if full == dir {
		return "", false
	}
	rest := full
	if dir != "" {
		if !strings.HasPrefix(full, dir+"/") {
			return "", false
		}
		rest = full[len(dir)+1:]
	}
	if rest == "" {
		return "", false
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}
