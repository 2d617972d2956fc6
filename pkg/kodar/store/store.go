package store

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
)

// MarkerPrefix starts the names of job-completion markers (e.g. _SUCCESS).
// Listings never return them.
const MarkerPrefix = "_"

// SuccessMarker is written by a stage once its output is complete.
const SuccessMarker = "_SUCCESS"

// Store is the main interface for persisting and reading Sequence Records.
// Paths are slash separated and relative to the backend root.
type Store interface {
	Close() error

	// Create opens a truncating writer, creating parent directories.
	Create(ctx context.Context, path string) (Writer, error)
	// Append opens a writer that adds records after the existing ones,
	// creating the file and its parents when absent.
	Append(ctx context.Context, path string) (Writer, error)
	// Open returns a lazy iterator over a file's records.
	Open(ctx context.Context, path string) (Iterator, error)
	// List returns the children of a directory sorted by name, skipping
	// marker entries. A missing directory yields internalerr.ErrNotFound.
	List(ctx context.Context, path string) ([]Entry, error)
	// Delete removes path recursively; removing a missing path is not an error.
	Delete(ctx context.Context, path string) error
}

// Entry is one directory child.
type Entry struct {
	Name string
	Dir  bool
}

// Writer appends records to one file.
type Writer interface {
	Write(key record.Key, value string) error
	Close() error
}

// Iterator walks a file's records. Always Close it and check Err.
type Iterator interface {
	Next() bool
	Record() record.Record
	Err() error
	Close() error
}

// ErrNotDir is returned by List when the path is a file.
var ErrNotDir = errors.New("not a directory")

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool { return errors.Is(err, internalerr.ErrNotFound) }

// IsNotDir reports whether err means the path is a file.
func IsNotDir(err error) bool { return errors.Is(err, ErrNotDir) }

// IsMarker reports whether an entry name is a job marker.
func IsMarker(name string) bool {
	return strings.HasPrefix(name, MarkerPrefix)
}

// Clean normalises a store path: no leading/trailing slashes, no dot segments.
func Clean(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Join joins path elements.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// WriteMarker writes an empty _SUCCESS marker into dir.
func WriteMarker(ctx context.Context, s Store, dir string) error {
	w, err := s.Create(ctx, Join(dir, SuccessMarker))
	if err != nil {
		return err
	}
	return w.Close()
}

// Exists reports whether path is a file or directory in s.
func Exists(ctx context.Context, s Store, p string) (bool, error) {
	p = Clean(p)
	parent, name := path.Split(p)
	entries, err := s.List(ctx, parent)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ReadAll calls fn for every record under p. When p is a directory every
// non-marker file below it is read in name order, like a job reading all
// part files of a previous job.
func ReadAll(ctx context.Context, s Store, p string, fn func(record.Record) error) error {
	entries, err := s.List(ctx, p)
	switch {
	case err == nil:
		for _, e := range entries {
			if err := ReadAll(ctx, s, Join(p, e.Name), fn); err != nil {
				return err
			}
		}
		return nil
	case !IsNotDir(err):
		return err
	}

	it, err := s.Open(ctx, p)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Record()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Collect reads every record under p into memory.
func Collect(ctx context.Context, s Store, p string) ([]record.Record, error) {
	var out []record.Record
	err := ReadAll(ctx, s, p, func(r record.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// WriteAll writes records into a fresh file at p.
func WriteAll(ctx context.Context, s Store, p string, recs []record.Record) error {
	w, err := s.Create(ctx, p)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(r.Key, r.Value); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
