package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

const (
	flushEvery = 512
	pageSize   = 256
)

var errIsDir = errors.New("is a directory")

// sqliteStore implements store.Store on a single SQLite database file.
// Directories are not stored: a directory exists while some file path has it
// as a prefix.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, internalerr.Storage("open", path, err)
	}
	// One connection: writers never race for the database lock and readers
	// page through results instead of holding a cursor.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, internalerr.Storage("open", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, internalerr.Storage("open", path, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, internalerr.Storage("open", path, err)
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS records (
	path TEXT NOT NULL,
	seq INTEGER NOT NULL,
	key_kind INTEGER NOT NULL,
	key_text TEXT NOT NULL,
	key_long INTEGER NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(path, seq)
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) isFile(ctx context.Context, p string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE path = ?", p).Scan(&n)
	return n > 0, err
}

// isDir reports whether any file lives below p.
func (s *sqliteStore) isDir(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return true, nil
	}
	prefix := p + "/"
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE substr(path, 1, ?) = ?", len(prefix), prefix).Scan(&n)
	return n > 0, err
}

// Create implements store.Store.
func (s *sqliteStore) Create(ctx context.Context, p string) (store.Writer, error) {
	return s.openWriter(ctx, p, true)
}

// Append implements store.Store.
func (s *sqliteStore) Append(ctx context.Context, p string) (store.Writer, error) {
	return s.openWriter(ctx, p, false)
}

func (s *sqliteStore) openWriter(ctx context.Context, p string, truncate bool) (store.Writer, error) {
	p = store.Clean(p)
	if p == "" {
		return nil, internalerr.Storage("create", p, errIsDir)
	}
	dir, err := s.isDir(ctx, p)
	if err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	if dir {
		return nil, internalerr.Storage("create", p, errIsDir)
	}

	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO files(path) VALUES (?)", p); err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	if truncate {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE path = ?", p); err != nil {
			return nil, internalerr.Storage("create", p, err)
		}
	}

	var next int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM records WHERE path = ?", p).Scan(&next); err != nil {
		return nil, internalerr.Storage("create", p, err)
	}
	return &writer{ctx: ctx, db: s.db, path: p, seq: next}, nil
}

// Open implements store.Store.
func (s *sqliteStore) Open(ctx context.Context, p string) (store.Iterator, error) {
	p = store.Clean(p)
	ok, err := s.isFile(ctx, p)
	if err != nil {
		return nil, internalerr.Storage("open", p, err)
	}
	if !ok {
		return nil, internalerr.Storage("open", p, internalerr.ErrNotFound)
	}
	return &iterator{ctx: ctx, db: s.db, path: p, after: -1}, nil
}

// List implements store.Store.
func (s *sqliteStore) List(ctx context.Context, p string) ([]store.Entry, error) {
	p = store.Clean(p)
	file, err := s.isFile(ctx, p)
	if err != nil {
		return nil, internalerr.Storage("list", p, err)
	}
	if file {
		return nil, internalerr.Storage("list", p, store.ErrNotDir)
	}

	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM files WHERE substr(path, 1, ?) = ?", len(prefix), prefix)
	if err != nil {
		return nil, internalerr.Storage("list", p, err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return nil, internalerr.Storage("list", p, err)
		}
		rest := full[len(prefix):]
		name, _, nested := strings.Cut(rest, "/")
		seen[name] = seen[name] || nested
	}
	if err := rows.Err(); err != nil {
		return nil, internalerr.Storage("list", p, err)
	}
	if len(seen) == 0 && p != "" {
		return nil, internalerr.Storage("list", p, internalerr.ErrNotFound)
	}

	out := make([]store.Entry, 0, len(seen))
	for name, dir := range seen {
		if store.IsMarker(name) {
			continue
		}
		out = append(out, store.Entry{Name: name, Dir: dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements store.Store.
func (s *sqliteStore) Delete(ctx context.Context, p string) error {
	p = store.Clean(p)
	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalerr.Storage("delete", p, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "files"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE path = ? OR substr(path, 1, ?) = ?", p, len(prefix), prefix); err != nil {
			return internalerr.Storage("delete", p, err)
		}
	}
	return internalerr.Storage("delete", p, tx.Commit())
}

type writer struct {
	ctx     context.Context
	db      *sql.DB
	path    string
	seq     int64
	pending []record.Record
	closed  bool
}

func (w *writer) Write(key record.Key, value string) error {
	if w.closed {
		return internalerr.Storage("write", w.path, sql.ErrTxDone)
	}
	w.pending = append(w.pending, record.Record{Key: key, Value: value})
	if len(w.pending) >= flushEvery {
		return w.flush()
	}
	return nil
}

func (w *writer) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(w.ctx, nil)
	if err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(w.ctx,
		"INSERT INTO records(path, seq, key_kind, key_text, key_long, value) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	defer stmt.Close()

	for _, r := range w.pending {
		row := r.ToRow()
		if _, err := stmt.ExecContext(w.ctx, w.path, w.seq, row.KeyKind, row.KeyText, row.KeyLong, row.Value); err != nil {
			return internalerr.Storage("write", w.path, err)
		}
		w.seq++
	}
	if err := tx.Commit(); err != nil {
		return internalerr.Storage("write", w.path, err)
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.flush()
}

// iterator reads a file page by page so no cursor stays open between calls.
type iterator struct {
	ctx   context.Context
	db    *sql.DB
	path  string
	after int64
	page  []record.Record
	pos   int
	cur   record.Record
	err   error
	done  bool
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if err := it.fetch(); err != nil {
			it.err = internalerr.Storage("read", it.path, err)
			return false
		}
		if len(it.page) == 0 {
			return false
		}
	}
	it.cur = it.page[it.pos]
	it.pos++
	return true
}

func (it *iterator) fetch() error {
	rows, err := it.db.QueryContext(it.ctx, `
SELECT seq, key_kind, key_text, key_long, value FROM records
WHERE path = ? AND seq > ? ORDER BY seq LIMIT ?`, it.path, it.after, pageSize)
	if err != nil {
		return err
	}
	defer rows.Close()

	it.page = it.page[:0]
	it.pos = 0
	for rows.Next() {
		var seq int64
		var row record.Row
		if err := rows.Scan(&seq, &row.KeyKind, &row.KeyText, &row.KeyLong, &row.Value); err != nil {
			return err
		}
		it.page = append(it.page, record.FromRow(row))
		it.after = seq
	}
	if len(it.page) < pageSize {
		it.done = true
	}
	return rows.Err()
}

func (it *iterator) Record() record.Record { return it.cur }
func (it *iterator) Err() error            { return it.err }
func (it *iterator) Close() error          { return nil }
