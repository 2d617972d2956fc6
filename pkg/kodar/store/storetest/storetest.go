// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Run exercises s against the store contract. The store must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateOpenRoundTrip", func(t *testing.T) {
		want := []record.Record{
			{Key: record.TextKey("0"), Value: "alice\tGraphs\tk1,k2"},
			{Key: record.LongKey(1), Value: "bob\tTrees\tk3"},
			{Key: record.TextKey(""), Value: ""},
		}
		require.NoError(t, store.WriteAll(ctx, s, "rt/part-r-00000", want))

		got, err := store.Collect(ctx, s, "rt/part-r-00000")
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}

		// Re-iterable by reopening.
		again, err := store.Collect(ctx, s, "rt/part-r-00000")
		require.NoError(t, err)
		require.Len(t, again, len(want))
	})

	t.Run("CreateTruncates", func(t *testing.T) {
		require.NoError(t, store.WriteAll(ctx, s, "trunc/f", []record.Record{
			{Key: record.LongKey(1), Value: "a"},
			{Key: record.LongKey(2), Value: "b"},
		}))
		require.NoError(t, store.WriteAll(ctx, s, "trunc/f", []record.Record{
			{Key: record.LongKey(3), Value: "c"},
		}))
		got, err := store.Collect(ctx, s, "trunc/f")
		require.NoError(t, err)
		require.Equal(t, []record.Record{{Key: record.LongKey(3), Value: "c"}}, got)
	})

	t.Run("AppendKeepsExisting", func(t *testing.T) {
		w, err := s.Append(ctx, "app/log")
		require.NoError(t, err)
		require.NoError(t, w.Write(record.LongKey(1), "first"))
		require.NoError(t, w.Close())

		w, err = s.Append(ctx, "app/log")
		require.NoError(t, err)
		require.NoError(t, w.Write(record.LongKey(2), "second"))
		require.NoError(t, w.Close())

		got, err := store.Collect(ctx, s, "app/log")
		require.NoError(t, err)
		require.Equal(t, []record.Record{
			{Key: record.LongKey(1), Value: "first"},
			{Key: record.LongKey(2), Value: "second"},
		}, got)
	})

	t.Run("ListSortedSkipsMarkers", func(t *testing.T) {
		for _, name := range []string{"part-2", "part-10", "part-1"} {
			require.NoError(t, store.WriteAll(ctx, s, store.Join("ls", name), nil))
		}
		require.NoError(t, store.WriteAll(ctx, s, "ls/sub/inner", nil))
		require.NoError(t, store.WriteMarker(ctx, s, "ls"))

		entries, err := s.List(ctx, "ls")
		require.NoError(t, err)
		want := []store.Entry{
			{Name: "part-1"},
			{Name: "part-10"},
			{Name: "part-2"},
			{Name: "sub", Dir: true},
		}
		if diff := cmp.Diff(want, entries); diff != "" {
			t.Errorf("listing mismatch (-want +got):\n%s", diff)
		}

		ok, err := store.Exists(ctx, s, "ls/part-10")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("ListErrors", func(t *testing.T) {
		_, err := s.List(ctx, "does/not/exist")
		require.True(t, store.IsNotFound(err), "missing dir: %v", err)

		require.NoError(t, store.WriteAll(ctx, s, "file-only", nil))
		_, err = s.List(ctx, "file-only")
		require.True(t, store.IsNotDir(err), "file listing: %v", err)

		_, err = s.Open(ctx, "does/not/exist")
		require.True(t, store.IsNotFound(err), "missing file: %v", err)
	})

	t.Run("ReadAllWalksDirectory", func(t *testing.T) {
		require.NoError(t, store.WriteAll(ctx, s, "walk/b/part-0", []record.Record{{Key: record.LongKey(2), Value: "b"}}))
		require.NoError(t, store.WriteAll(ctx, s, "walk/a", []record.Record{{Key: record.LongKey(1), Value: "a"}}))
		require.NoError(t, store.WriteMarker(ctx, s, "walk"))

		got, err := store.Collect(ctx, s, "walk")
		require.NoError(t, err)
		require.Equal(t, []record.Record{
			{Key: record.LongKey(1), Value: "a"},
			{Key: record.LongKey(2), Value: "b"},
		}, got)
	})

	t.Run("DeleteRecursiveAndIdempotent", func(t *testing.T) {
		require.NoError(t, store.WriteAll(ctx, s, "del/x/y/z", []record.Record{{Key: record.LongKey(1), Value: "v"}}))
		require.NoError(t, store.WriteAll(ctx, s, "delkeep", nil))

		require.NoError(t, s.Delete(ctx, "del"))
		require.NoError(t, s.Delete(ctx, "del"))

		ok, err := store.Exists(ctx, s, "del")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = store.Exists(ctx, s, "delkeep")
		require.NoError(t, err)
		require.True(t, ok, "sibling with shared prefix must survive")
	})
}
