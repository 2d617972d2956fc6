package kodar

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/cognicore/kodar/pkg/kodar/config"
	"github.com/cognicore/kodar/pkg/kodar/engine/local"
	"github.com/cognicore/kodar/pkg/kodar/export"
	"github.com/cognicore/kodar/pkg/kodar/ingest"
	"github.com/cognicore/kodar/pkg/kodar/label"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/memstore"
	"github.com/cognicore/kodar/pkg/kodar/store/seqfile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const twoRows = `name,authorUri,publicationUri,title,keywords
Ana Perez,http://ex.org/a/1,http://ex.org/p/1,Linked Data in Ecuador,"linked data, ontologies"
Luis Mora,http://ex.org/a/2,http://ex.org/p/2,Graph mining for libraries,graph mining;clustering
`

// topicStub labels a group with the number of its documents.
type topicStub struct {
	mu    sync.Mutex
	calls int
}

func (s *topicStub) Label(ctx context.Context, docs []string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return "group of " + string(rune('0'+len(docs))), nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newClustering(t *testing.T, st store.Store, home string, evaluate bool) *Clustering {
	t.Helper()
	tok := ingest.NewTokenizer(nil)
	return New(Options{
		Store:         st,
		Home:          home,
		Engine:        local.New(st, tok, nil, nil),
		Mode:          label.TopicModel,
		Topic:         &topicStub{},
		Categorizer:   ingest.NewTaxonomy(),
		Evaluate:      evaluate,
		LabelWorkers:  2,
		ExportWorkers: 2,
		Logger:        zaptest.NewLogger(t),
	})
}

func TestRunTwoRowsOneCluster(t *testing.T) {
	for _, backend := range []string{"memory", "seqfile+zstd"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			home := t.TempDir()
			var st store.Store = memstore.New()
			if backend != "memory" {
				s, err := seqfile.Open(home, seqfile.CodecZstd)
				require.NoError(t, err)
				st = s
			}
			c := newClustering(t, st, home, false)
			defer c.Close()

			res, err := c.Run(ctx, writeFile(t, t.TempDir(), "data.csv", twoRows), 1)
			require.NoError(t, err)
			require.Equal(t, 2, res.Rows)
			require.Nil(t, res.Density)
			require.NotEmpty(t, res.RunID)
			require.Equal(t, export.Stats{Clusters: 2, Documents: 4}, res.Export)

			for _, algo := range Algorithms {
				named, err := store.Collect(ctx, st, store.Join(layout.NamedClusters, algo))
				require.NoError(t, err)
				require.Len(t, named, 1, algo)
				require.Equal(t, record.TextKey("group of 2"), named[0].Key)

				dir := filepath.Join(home, layout.Result, algo, "0")
				f, err := os.Open(filepath.Join(dir, export.CSVFile))
				require.NoError(t, err)
				rows, err := csv.NewReader(f).ReadAll()
				f.Close()
				require.NoError(t, err)
				require.Len(t, rows, 3)
				require.Equal(t, "Ana Perez", rows[1][2])
				require.Equal(t, "Luis Mora", rows[2][2])

				data, err := os.ReadFile(filepath.Join(dir, export.JSONFile))
				require.NoError(t, err)
				var cards []export.Card
				require.NoError(t, json.Unmarshal(data, &cards))
				require.Len(t, cards, 1)
				require.Len(t, cards[0].Documents, 2)

				nt, err := os.ReadFile(filepath.Join(dir, export.RDFFile))
				require.NoError(t, err)
				require.Contains(t, string(nt), "<http://ex.org/p/1>")
				require.Contains(t, string(nt), "<http://ex.org/p/2>")
			}

			raw, err := os.ReadFile(filepath.Join(home, layout.Raw, layout.RawAuthors))
			require.NoError(t, err)
			require.Equal(t, 3, strings.Count(string(raw), "\n"))
		})
	}
}

func TestRunEvaluationStopsAfterClustering(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	st := memstore.New()
	c := newClustering(t, st, home, true)
	require.True(t, c.Evaluating())

	res, err := c.Run(ctx, writeFile(t, t.TempDir(), "data.csv", twoRows), 1)
	require.NoError(t, err)
	require.NotNil(t, res.Density)
	require.Zero(t, res.Density.Hard, "one cluster has no inter-cluster distance")
	require.Zero(t, res.Density.Fuzzy)

	density, err := store.Collect(ctx, st, layout.Density)
	require.NoError(t, err)
	require.Len(t, density, 2)

	for _, dir := range []string{layout.MRJobs, layout.NamedClusters} {
		ok, err := store.Exists(ctx, st, dir)
		require.NoError(t, err)
		require.False(t, ok, dir)
	}
	_, err = os.Stat(filepath.Join(home, layout.Result))
	require.True(t, os.IsNotExist(err))
}

func TestRunIsRepeatable(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	st := memstore.New()
	c := newClustering(t, st, home, false)
	dataset := writeFile(t, t.TempDir(), "data.csv", twoRows)

	_, err := c.Run(ctx, dataset, 1)
	require.NoError(t, err)
	first := st.Paths()
	firstNamed, err := store.Collect(ctx, st, layout.NamedClusters)
	require.NoError(t, err)

	_, err = c.Run(ctx, dataset, 1)
	require.NoError(t, err)
	require.Equal(t, first, st.Paths())
	secondNamed, err := store.Collect(ctx, st, layout.NamedClusters)
	require.NoError(t, err)
	require.Equal(t, firstNamed, secondNamed)
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	c := newClustering(t, memstore.New(), t.TempDir(), false)

	_, err := c.Run(ctx, "unused.csv", 0)
	require.Error(t, err)

	_, err = c.Run(ctx, filepath.Join(t.TempDir(), "missing.csv"), 1)
	require.Error(t, err)
}

func TestOpenFromConfig(t *testing.T) {
	t.Setenv(layout.EnvHome, "")
	cfg := config.Default()
	cfg.Home = filepath.Join(t.TempDir(), "root")
	cfg.Store.Backend = config.BackendMemory
	cfg.Engine.Evaluate = true
	cfg.Labeling.Mode = label.SemanticFingerprint.String()

	c, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, label.SemanticFingerprint, c.Mode())
	require.True(t, c.Evaluating())
	require.Equal(t, cfg.Home, c.Home())
	require.NotNil(t, c.fingerprint)
	require.Nil(t, c.topic)
	_, err = os.Stat(cfg.Home)
	require.NoError(t, err)
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	cfg := config.Default()

	for _, backend := range []string{config.BackendSeqfile, config.BackendSQLite, config.BackendMemory} {
		cfg.Store.Backend = backend
		st, err := OpenStore(ctx, cfg, home)
		require.NoError(t, err, backend)
		require.NoError(t, store.WriteAll(ctx, st, "probe/part-0", []record.Record{{Key: record.LongKey(1), Value: "x"}}))
		got, err := store.Collect(ctx, st, "probe")
		require.NoError(t, err)
		require.Len(t, got, 1, backend)
		require.NoError(t, st.Delete(ctx, "probe"))
		require.NoError(t, st.Close())
	}

	cfg.Store.Backend = "tape"
	_, err := OpenStore(ctx, cfg, home)
	require.Error(t, err)
}
