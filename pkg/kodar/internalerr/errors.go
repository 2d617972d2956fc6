package internalerr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrMalformedInput   = errors.New("malformed input")
	ErrNoFinalPartition = errors.New("no final partition")
	ErrFieldExtraction  = errors.New("field extraction failed")
	ErrStorage          = errors.New("storage failure")
	ErrExternalEngine   = errors.New("external engine failure")
)

// MalformedInputError reports a dataset row that cannot be split.
type MalformedInputError struct {
	Line   int
	Got    int
	Want   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed input at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed input at line %d: got %d fields, want %d", e.Line, e.Got, e.Want)
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// NoFinalPartitionError is returned when a clustering output directory has no
// entry carrying the "final" naming convention.
type NoFinalPartitionError struct {
	Dir string
}

func (e *NoFinalPartitionError) Error() string {
	return fmt.Sprintf("no final partition in %s", e.Dir)
}

func (e *NoFinalPartitionError) Is(target error) bool { return target == ErrNoFinalPartition }

// FieldExtractionError is returned when a document block lacks a marker.
type FieldExtractionError struct {
	Marker string
	Block  string
}

func (e *FieldExtractionError) Error() string {
	block := e.Block
	if len(block) > 80 {
		block = block[:80] + "..."
	}
	return fmt.Sprintf("marker %q not found in %q", e.Marker, block)
}

func (e *FieldExtractionError) Is(target error) bool { return target == ErrFieldExtraction }

// StorageError wraps an I/O failure against the record store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ExternalEngineError wraps a failure of the clustering, labeling or
// evaluation collaborators.
type ExternalEngineError struct {
	Op  string
	Err error
}

func (e *ExternalEngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *ExternalEngineError) Unwrap() error { return e.Err }

func (e *ExternalEngineError) Is(target error) bool { return target == ErrExternalEngine }

// Storage wraps err as a StorageError. A nil err stays nil, and errors that
// already carry the storage classification are returned unchanged.
func Storage(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

// Engine wraps err as an ExternalEngineError. Cancellation and deadline
// errors are returned as they are.
func Engine(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ee *ExternalEngineError
	if errors.As(err, &ee) {
		return err
	}
	return &ExternalEngineError{Op: op, Err: err}
}
