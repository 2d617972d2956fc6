// Package seqfile stores Sequence Records as files in a local directory tree.
//
// A file is a run of rows, each one a uvarint length followed by the binary
// YSON encoding of record.Row. With the zstd codec every writer session
// becomes one zstd frame; frames are concatenated so appending never rewrites
// earlier data.
package seqfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"go.ytsaurus.tech/yt/go/yson"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Codec selects the on-disk compression.
type Codec string

const (
	CodecNone Codec = "none"
	CodecZstd Codec = "zstd"
)

// maxRowSize bounds a single encoded row so a corrupt length cannot make the
// reader allocate without limit.
const maxRowSize = 256 << 20

var errIsDir = errors.New("is a directory")

// Store is a store.Store rooted at a local directory.
type Store struct {
	root  string
	codec Codec
}

var _ store.Store = (*Store)(nil)

// Open creates root if needed and returns a store over it.
func Open(root string, codec Codec) (*Store, error) {
	switch codec {
	case "":
		codec = CodecNone
	case CodecNone, CodecZstd:
	default:
		return nil, fmt.Errorf("%w: unknown seqfile codec %q", internalerr.ErrInvalidConfig, codec)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, internalerr.Storage("open", root, err)
	}
	return &Store{root: root, codec: codec}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) local(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(store.Clean(p)))
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string) (store.Writer, error) {
	return s.openWriter(ctx, p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// Append implements store.Store.
func (s *Store) Append(ctx context.Context, p string) (store.Writer, error) {
	return s.openWriter(ctx, p, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func (s *Store) openWriter(ctx context.Context, p string, flag int) (store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	p = store.Clean(p)
	if p == "" {
		return nil, internalerr.Storage("create", p, errIsDir)
	}
	name := s.local(p)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	f, err := os.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, internalerr.Storage("create", p, err)
	}

	w := &writer{path: p, file: f}
	if s.codec == CodecZstd {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(3)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			f.Close()
			return nil, internalerr.Storage("create", p, err)
		}
		w.enc = enc
	}
	return w, nil
}

// Open implements store.Store.
func (s *Store) Open(ctx context.Context, p string) (store.Iterator, error) {
	p = store.Clean(p)
	f, err := os.Open(s.local(p))
	if err != nil {
		return nil, internalerr.Storage("open", p, notFound(err))
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, internalerr.Storage("open", p, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, internalerr.Storage("open", p, errIsDir)
	}

	it := &iterator{path: p, file: f}
	if st.Size() == 0 {
		it.done = true
		return it, nil
	}
	var src io.Reader = f
	if s.codec == CodecZstd {
		dec, err := zstd.NewReader(f,
			zstd.WithDecoderMaxMemory(maxRowSize),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			f.Close()
			return nil, internalerr.Storage("open", p, err)
		}
		it.dec = dec
		src = dec
	}
	it.r = bufio.NewReader(src)
	return it, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, p string) ([]store.Entry, error) {
	p = store.Clean(p)
	name := s.local(p)
	st, err := os.Stat(name)
	if err != nil {
		return nil, internalerr.Storage("list", p, notFound(err))
	}
	if !st.IsDir() {
		return nil, internalerr.Storage("list", p, store.ErrNotDir)
	}
	dirents, err := os.ReadDir(name)
	if err != nil {
		return nil, internalerr.Storage("list", p, err)
	}
	out := make([]store.Entry, 0, len(dirents))
	for _, d := range dirents {
		if store.IsMarker(d.Name()) {
			continue
		}
		out = append(out, store.Entry{Name: d.Name(), Dir: d.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, p string) error {
	p = store.Clean(p)
	if p == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return internalerr.Storage("delete", p, err)
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
				return internalerr.Storage("delete", e.Name(), err)
			}
		}
		return nil
	}
	if err := os.RemoveAll(s.local(p)); err != nil {
		return internalerr.Storage("delete", p, err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", internalerr.ErrNotFound, err)
	}
	return err
}

type writer struct {
	path string
	file *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
	n    int
	lenb [binary.MaxVarintLen64]byte
}

func (w *writer) Write(key record.Key, value string) error {
	if w.file == nil {
		return internalerr.Storage("write", w.path, os.ErrClosed)
	}
	if w.buf == nil {
		var dst io.Writer = w.file
		if w.enc != nil {
			w.enc.Reset(w.file)
			dst = w.enc
		}
		w.buf = bufio.NewWriter(dst)
	}

	row, err := yson.MarshalFormat(record.Record{Key: key, Value: value}.ToRow(), yson.FormatBinary)
	if err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	n := binary.PutUvarint(w.lenb[:], uint64(len(row)))
	if _, err := w.buf.Write(w.lenb[:n]); err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	if _, err := w.buf.Write(row); err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	w.n++
	return nil
}

func (w *writer) Close() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	var err error
	if w.buf != nil {
		err = w.buf.Flush()
		if w.enc != nil {
			if cerr := w.enc.Close(); err == nil {
				err = cerr
			}
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return internalerr.Storage("write", w.path, err)
}

type iterator struct {
	path string
	file *os.File
	dec  *zstd.Decoder
	r    *bufio.Reader
	cur  record.Record
	err  error
	done bool
}

func (it *iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	size, err := binary.ReadUvarint(it.r)
	if err != nil {
		if err != io.EOF {
			it.err = internalerr.Storage("read", it.path, err)
		}
		it.done = true
		return false
	}
	if size > maxRowSize {
		it.err = internalerr.Storage("read", it.path, fmt.Errorf("row of %d bytes exceeds limit", size))
		return false
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(it.r, buf); err != nil {
		it.err = internalerr.Storage("read", it.path, err)
		return false
	}
	var row record.Row
	if err := yson.Unmarshal(buf, &row); err != nil {
		it.err = internalerr.Storage("read", it.path, err)
		return false
	}
	it.cur = record.FromRow(row)
	return true
}

func (it *iterator) Record() record.Record { return it.cur }
func (it *iterator) Err() error            { return it.err }

func (it *iterator) Close() error {
	if it.dec != nil {
		it.dec.Close()
		it.dec = nil
	}
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	return err
}
