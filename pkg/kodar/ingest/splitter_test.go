package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/memstore"
)

const dataset = `name,authorUri,publicationUri,title,keywords
Ana Perez,http://ex.org/a/1,http://ex.org/p/1,Linked Data in Ecuador,"linked data, ontologies"
Luis Mora,http://ex.org/a/2,http://ex.org/p/2,<b>Graph</b> mining,graph mining;clustering
`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestSplitWritesThreeStreams(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	raw := filepath.Join(t.TempDir(), "raw")
	sp := &Splitter{Store: st, RawDir: raw, StripMarkup: true}

	stats, err := sp.Split(ctx, writeDataset(t, dataset))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Rows)

	text, err := store.Collect(ctx, st, layout.KeywordsText)
	require.NoError(t, err)
	long, err := store.Collect(ctx, st, layout.KeywordsLong)
	require.NoError(t, err)
	authors, err := store.Collect(ctx, st, layout.Authors)
	require.NoError(t, err)
	require.Len(t, text, 2)
	require.Len(t, long, 2)
	require.Len(t, authors, 2)

	require.Equal(t, record.TextKey("1"), text[1].Key)
	require.Equal(t, record.LongKey(1), long[1].Key)
	require.Equal(t, text[1].Value, long[1].Value, "both keyword streams carry the same bundle")

	kv, err := record.DecodeKeywordValue(long[1].Value)
	require.NoError(t, err)
	require.Equal(t, record.KeywordValue{Name: "Luis Mora", Title: "Graph mining", Keywords: "graph mining;clustering"}, kv)

	av, err := record.DecodeAuthorValue(authors[0].Value)
	require.NoError(t, err)
	require.Equal(t, record.AuthorValue{
		Name:           "Ana Perez",
		AuthorURI:      "http://ex.org/a/1",
		PublicationURI: "http://ex.org/p/1",
		Title:          "Linked Data in Ecuador",
	}, av)

	ok, err := store.Exists(ctx, st, store.Join(layout.Sequence, store.SuccessMarker))
	require.NoError(t, err)
	require.False(t, ok, "markers never show up in listings")

	keywordsCSV, err := os.ReadFile(filepath.Join(raw, layout.RawKeywords))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(keywordsCSV), "rowId,name,title,keywords\n"))
	_, err = os.Stat(filepath.Join(raw, layout.RawAuthors))
	require.NoError(t, err)
}

func TestSplitShortRow(t *testing.T) {
	sp := &Splitter{Store: memstore.New()}
	_, err := sp.Split(context.Background(), writeDataset(t, "name,authorUri,publicationUri,title,keywords\nonly,three,fields\n"))

	var me *internalerr.MalformedInputError
	require.True(t, errors.As(err, &me), "got %v", err)
	require.Equal(t, 2, me.Line)
	require.Equal(t, 3, me.Got)
	require.Equal(t, 5, me.Want)
}

func TestSplitEmptyFile(t *testing.T) {
	sp := &Splitter{Store: memstore.New()}
	_, err := sp.Split(context.Background(), writeDataset(t, ""))
	require.ErrorIs(t, err, internalerr.ErrMalformedInput)
}

func TestSplitHeaderOnly(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	sp := &Splitter{Store: st}
	stats, err := sp.Split(ctx, writeDataset(t, "name,authorUri,publicationUri,title,keywords\n"))
	require.NoError(t, err)
	require.Zero(t, stats.Rows)

	recs, err := store.Collect(ctx, st, layout.KeywordsLong)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestSplitSanitizesTabs(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	sp := &Splitter{Store: st}
	_, err := sp.Split(ctx, writeDataset(t, "name,authorUri,publicationUri,title,keywords\n"+
		"a\tb,u,p,\"multi\nline\",k1\tk2\n"))
	require.NoError(t, err)

	recs, err := store.Collect(ctx, st, layout.KeywordsLong)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	kv, err := record.DecodeKeywordValue(recs[0].Value)
	require.NoError(t, err)
	require.Equal(t, record.KeywordValue{Name: "a b", Title: "multi line", Keywords: "k1 k2"}, kv)
}

func TestSplitReplacesPreviousOutput(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	sp := &Splitter{Store: st}
	path := writeDataset(t, dataset)

	_, err := sp.Split(ctx, path)
	require.NoError(t, err)
	first := st.Paths()
	_, err = sp.Split(ctx, path)
	require.NoError(t, err)
	require.Equal(t, first, st.Paths())

	recs, err := store.Collect(ctx, st, layout.Authors)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
