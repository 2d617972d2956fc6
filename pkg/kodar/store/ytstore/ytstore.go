// Package ytstore keeps Sequence Records in YTsaurus Cypress. Files are static
// tables with one row per record, directories are map nodes.
package ytstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.ytsaurus.tech/yt/go/ypath"
	"go.ytsaurus.tech/yt/go/yt"
	"go.ytsaurus.tech/yt/go/yt/ythttp"
	"go.ytsaurus.tech/yt/go/yterrors"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Config selects the cluster and the Cypress directory used as the root.
type Config struct {
	Proxy string
	Token string
	Root  string
}

// Store is a store.Store over a Cypress subtree.
type Store struct {
	yc   yt.Client
	root ypath.Path
}

var _ store.Store = (*Store)(nil)

// Open connects to the cluster over HTTP and makes sure the root exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	yc, err := ythttp.NewClient(&yt.Config{Proxy: cfg.Proxy, Token: cfg.Token})
	if err != nil {
		return nil, internalerr.Storage("open", cfg.Root, err)
	}
	return New(ctx, yc, ypath.Path(cfg.Root))
}

// New wraps an existing client.
func New(ctx context.Context, yc yt.Client, root ypath.Path) (*Store, error) {
	_, err := yc.CreateNode(ctx, root, yt.NodeMap, &yt.CreateNodeOptions{Recursive: true, IgnoreExisting: true})
	if err != nil {
		return nil, internalerr.Storage("open", string(root), err)
	}
	return &Store{yc: yc, root: root}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.yc.Stop()
	return nil
}

func (s *Store) node(p string) ypath.Path {
	n := s.root
	p = store.Clean(p)
	if p == "" {
		return n
	}
	for _, part := range strings.Split(p, "/") {
		n = n.Child(part)
	}
	return n
}

func (s *Store) nodeType(ctx context.Context, n ypath.Path) (yt.NodeType, error) {
	var typ yt.NodeType
	if err := s.yc.GetNode(ctx, n.Attr("type"), &typ, nil); err != nil {
		return "", err
	}
	return typ, nil
}

func wrap(op, p string, err error) error {
	if err == nil {
		return nil
	}
	if yterrors.ContainsResolveError(err) {
		return &internalerr.StorageError{Op: op, Path: p, Err: notFoundError{err}}
	}
	return internalerr.Storage(op, p, err)
}

// notFoundError keeps the cluster error text while matching ErrNotFound.
type notFoundError struct{ err error }

func (e notFoundError) Error() string        { return e.err.Error() }
func (e notFoundError) Unwrap() error        { return e.err }
func (e notFoundError) Is(target error) bool { return target == internalerr.ErrNotFound }

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string) (store.Writer, error) {
	w, err := yt.WriteTable(ctx, s.yc, s.node(p),
		yt.WithCreateOptions(yt.WithRecursive(), yt.WithForce()))
	if err != nil {
		return nil, wrap("create", p, err)
	}
	return &writer{path: p, tw: w}, nil
}

// Append implements store.Store.
func (s *Store) Append(ctx context.Context, p string) (store.Writer, error) {
	n := s.node(p)
	_, err := s.yc.CreateNode(ctx, n, yt.NodeTable, &yt.CreateNodeOptions{Recursive: true, IgnoreExisting: true})
	if err != nil {
		return nil, wrap("append", p, err)
	}
	w, err := yt.WriteTable(ctx, s.yc, ypath.Path("<append=%true>"+string(n)), yt.WithExistingTable())
	if err != nil {
		return nil, wrap("append", p, err)
	}
	return &writer{path: p, tw: w}, nil
}

// Open implements store.Store.
func (s *Store) Open(ctx context.Context, p string) (store.Iterator, error) {
	r, err := s.yc.ReadTable(ctx, s.node(p), nil)
	if err != nil {
		return nil, wrap("open", p, err)
	}
	return &iterator{path: p, tr: r}, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, p string) ([]store.Entry, error) {
	n := s.node(p)
	typ, err := s.nodeType(ctx, n)
	if err != nil {
		return nil, wrap("list", p, err)
	}
	if typ != yt.NodeMap {
		return nil, internalerr.Storage("list", p, store.ErrNotDir)
	}

	var children []struct {
		Type yt.NodeType `yson:"type,attr"`
		Name string      `yson:",value"`
	}
	if err := s.yc.ListNode(ctx, n, &children, &yt.ListNodeOptions{Attributes: []string{"type"}}); err != nil {
		return nil, wrap("list", p, err)
	}

	out := make([]store.Entry, 0, len(children))
	for _, c := range children {
		if store.IsMarker(c.Name) {
			continue
		}
		out = append(out, store.Entry{Name: c.Name, Dir: c.Type == yt.NodeMap})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, p string) error {
	if store.Clean(p) == "" {
		var names []string
		if err := s.yc.ListNode(ctx, s.root, &names, nil); err != nil {
			return wrap("delete", p, err)
		}
		for _, name := range names {
			if err := s.Delete(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}
	err := s.yc.RemoveNode(ctx, s.node(p), &yt.RemoveNodeOptions{Recursive: true, Force: true})
	return wrap("delete", p, err)
}

type writer struct {
	path string
	tw   yt.TableWriter
	err  error
	done bool
}

func (w *writer) Write(key record.Key, value string) error {
	if w.err != nil {
		return w.err
	}
	if err := w.tw.Write(record.Record{Key: key, Value: value}.ToRow()); err != nil {
		w.err = wrap("write", w.path, err)
	}
	return w.err
}

// Close commits the table, or aborts the upload when a write failed so a
// partial table is never published.
func (w *writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.err != nil {
		if err := w.tw.Rollback(); err != nil {
			return errors.Join(w.err, wrap("rollback", w.path, err))
		}
		return w.err
	}
	return wrap("write", w.path, w.tw.Commit())
}

type iterator struct {
	path string
	tr   yt.TableReader
	cur  record.Record
	err  error
}

func (it *iterator) Next() bool {
	if it.err != nil || !it.tr.Next() {
		return false
	}
	var row record.Row
	if err := it.tr.Scan(&row); err != nil {
		it.err = wrap("read", it.path, err)
		return false
	}
	it.cur = record.FromRow(row)
	return true
}

func (it *iterator) Record() record.Record { return it.cur }

func (it *iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return wrap("read", it.path, it.tr.Err())
}

func (it *iterator) Close() error { return it.tr.Close() }
