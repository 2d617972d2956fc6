package seqfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/storetest"
)

func TestSeqfileContract(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			s, err := Open(t.TempDir(), codec)
			require.NoError(t, err)
			defer s.Close()
			storetest.Run(t, s)
		})
	}
}

func TestOpenRejectsUnknownCodec(t *testing.T) {
	_, err := Open(t.TempDir(), "lz4")
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestZstdAppendAcrossSessions(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), CodecZstd)
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		w, err := s.Append(ctx, "log/part-0")
		require.NoError(t, err)
		for j := int64(0); j < 100; j++ {
			require.NoError(t, w.Write(record.LongKey(i*100+j), "repeated value repeated value"))
		}
		require.NoError(t, w.Close())
	}

	recs, err := store.Collect(ctx, s, "log/part-0")
	require.NoError(t, err)
	require.Len(t, recs, 300)
	for i, r := range recs {
		require.Equal(t, int64(i), r.Key.Long)
	}
}

func TestEmptyFileHasNoRecords(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := Open(root, CodecZstd)
	require.NoError(t, err)

	require.NoError(t, store.WriteMarker(ctx, s, "job"))
	info, err := os.Stat(filepath.Join(root, "job", store.SuccessMarker))
	require.NoError(t, err)
	require.Zero(t, info.Size())

	it, err := s.Open(ctx, "job/_SUCCESS")
	require.NoError(t, err)
	defer it.Close()
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestTruncatedFileReportsError(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := Open(root, CodecNone)
	require.NoError(t, err)

	require.NoError(t, store.WriteAll(ctx, s, "f", []record.Record{{Key: record.TextKey("k"), Value: "some value"}}))
	name := filepath.Join(root, "f")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(name, data[:len(data)-3], 0o644))

	_, err = store.Collect(ctx, s, "f")
	if !errors.Is(err, internalerr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestOpenDirectoryFails(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), CodecNone)
	require.NoError(t, err)
	require.NoError(t, store.WriteAll(ctx, s, "d/f", nil))

	_, err = s.Open(ctx, "d")
	require.Error(t, err)
}
