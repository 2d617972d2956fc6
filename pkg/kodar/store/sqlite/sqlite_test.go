package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/storetest"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, openTestStore(t))
}

// TestSchemaCreationIdempotent tests that running initSchema multiple times is safe
func TestSchemaCreationIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := initSchema(ctx, db); err != nil {
			t.Fatalf("initSchema iteration %d: %v", i, err)
		}
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&count)
	if err != nil {
		t.Fatalf("Count tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 tables, got %d", count)
	}
}

// TestIteratorPagesWhileWriting reads a file larger than one page while a
// second file is written, which must not block on the single connection.
func TestIteratorPagesWhileWriting(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	const n = pageSize*2 + 7
	w, err := st.Create(ctx, "in/part-0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(record.LongKey(int64(i)), fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	it, err := st.Open(ctx, "in/part-0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()
	out, err := st.Create(ctx, "out/part-0")
	if err != nil {
		t.Fatalf("Create out: %v", err)
	}

	i := 0
	for it.Next() {
		r := it.Record()
		if r.Key.Long != int64(i) {
			t.Fatalf("record %d has key %d", i, r.Key.Long)
		}
		if err := out.Write(r.Key, r.Value); err != nil {
			t.Fatalf("Write out: %v", err)
		}
		i++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close out: %v", err)
	}
	if i != n {
		t.Fatalf("read %d records, want %d", i, n)
	}

	copied, err := store.Collect(ctx, st, "out")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(copied) != n {
		t.Errorf("copied %d records, want %d", len(copied), n)
	}
}

func TestCreateOverDirectoryFails(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if err := store.WriteAll(ctx, st, "a/b", nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if _, err := st.Create(ctx, "a"); err == nil {
		t.Fatal("expected error creating a file over a directory")
	}
}
