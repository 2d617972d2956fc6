package memstore

import (
	"context"
	"testing"

	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, New())
}

func TestCreateOverDirectoryFails(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := store.WriteAll(ctx, s, "a/b", nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if _, err := s.Create(ctx, "a"); !store.IsNotDir(err) {
		t.Fatalf("expected not-a-directory error, got %v", err)
	}
}

func TestPathsSorted(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, p := range []string{"z", "a/2", "a/1"} {
		if err := store.WriteAll(ctx, s, p, []record.Record{{Key: record.LongKey(0), Value: p}}); err != nil {
			t.Fatalf("WriteAll %s: %v", p, err)
		}
	}
	got := s.Paths()
	want := []string{"a/1", "a/2", "z"}
	if len(got) != len(want) {
		t.Fatalf("Paths = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListReportsNestedDirectories(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, p := range []string{"mr_jobs/kmeans/sort/part-0", "mr_jobs/top"} {
		if err := store.WriteAll(ctx, s, p, []record.Record{{Key: record.LongKey(0), Value: p}}); err != nil {
			t.Fatalf("WriteAll %s: %v", p, err)
		}
	}
	got, err := s.List(ctx, "mr_jobs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []store.Entry{{Name: "kmeans", Dir: true}, {Name: "top"}}
	if len(got) != len(want) {
		t.Fatalf("List = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
