package label

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTopic struct {
	mu   sync.Mutex
	seen [][]string
	err  error
}

func (f *fakeTopic) Label(ctx context.Context, docs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, docs)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("topic-%d", len(docs)), nil
}

type fakeFingerprint struct{}

func (fakeFingerprint) NewSession() Session { return &fakeSession{} }

type fakeSession struct{ titles []string }

func (s *fakeSession) AddLabels(ctx context.Context, doc string) error {
	title, _, _ := strings.Cut(doc, "\n")
	s.titles = append(s.titles, strings.ToLower(title))
	return nil
}

func (s *fakeSession) GetLabel(ctx context.Context) (string, error) {
	return strings.Join(s.titles, "+"), nil
}

func block(id int64, keywords, title string) string {
	return record.WithAuthor(record.KeywordBlock(id, keywords), record.AuthorValue{
		Name: "Ana", AuthorURI: "http://ex.org/a", PublicationURI: fmt.Sprintf("http://ex.org/p/%d", id), Title: title,
	})
}

func seed(t *testing.T, s store.Store, path string, clusterID int64, blocks ...string) string {
	t.Helper()
	value := record.JoinGroup(blocks)
	require.NoError(t, store.WriteAll(context.Background(), s, path, []record.Record{
		{Key: record.LongKey(clusterID), Value: value},
	}))
	return value
}

var categories = CategorizerFunc(func(text string) string {
	if strings.Contains(text, "graph") {
		return "graphs"
	}
	return ""
})

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"topic-model":          TopicModel,
		"LDA":                  TopicModel,
		"semantic-fingerprint": SemanticFingerprint,
		" cortical ":           SemanticFingerprint,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseMode("both")
	require.Error(t, err)
	require.Equal(t, "semantic-fingerprint", SemanticFingerprint.String())
}

func TestRunTopicModel(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	k0 := seed(t, s, "mr_jobs/kmeans/sort/part-0", 0,
		block(0, "graph mining, clustering", "Graph Mining"),
		block(3, "graph theory", "Graphs"))
	k1 := seed(t, s, "mr_jobs/kmeans/sort/part-1", 1, block(1, "ontologies", "Linked Data"))
	f0 := seed(t, s, "mr_jobs/fkmeans/sort/part-0", 0, block(2, "web", "Semantic Web"))
	require.NoError(t, store.WriteMarker(ctx, s, "mr_jobs/kmeans/sort"))
	// Left over from an earlier run.
	require.NoError(t, store.WriteAll(ctx, s, "named_clusters/kmeans/7", nil))

	topic := &fakeTopic{}
	e := &Engine{Mode: TopicModel, Topic: topic, Categorizer: categories, Store: s, Workers: 2}
	stats, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Files: 3, Groups: 3, Documents: 4}, stats)

	for path, want := range map[string][]record.Record{
		"named_clusters/kmeans/0":  {{Key: record.TextKey("topic-2"), Value: k0}},
		"named_clusters/kmeans/1":  {{Key: record.TextKey("topic-1"), Value: k1}},
		"named_clusters/fkmeans/0": {{Key: record.TextKey("topic-1"), Value: f0}},
		"topmodel/labels/kmeans/0": {{Key: record.TextKey("topic-2"), Value: "0"}},
		"topmodel/documents/kmeans/0": {
			{Key: record.LongKey(0), Value: "Graph Mining\ngraph mining, clustering\ngraphs"},
			{Key: record.LongKey(1), Value: "Graphs\ngraph theory\ngraphs"},
		},
	} {
		got, err := store.Collect(ctx, s, path)
		require.NoError(t, err, path)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", path, diff)
		}
	}

	entries, err := s.List(ctx, "named_clusters/kmeans")
	require.NoError(t, err)
	require.Equal(t, []store.Entry{{Name: "0"}, {Name: "1"}}, entries)
}

func TestRunSemanticFingerprint(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	value := seed(t, s, "mr_jobs/kmeans/sort/part-4", 4,
		block(0, "graph", "Graph Mining"),
		block(1, "web", "Semantic Web"))

	e := &Engine{Mode: SemanticFingerprint, Fingerprint: fakeFingerprint{}, Store: s, Workers: 1}
	_, err := e.Run(ctx)
	require.NoError(t, err)

	got, err := store.Collect(ctx, s, "named_clusters/kmeans/4")
	require.NoError(t, err)
	require.Equal(t, []record.Record{{Key: record.TextKey("graph mining+semantic web"), Value: value}}, got)
}

func TestRunFieldExtractionFailure(t *testing.T) {
	s := memstore.New()
	seed(t, s, "mr_jobs/kmeans/sort/part-0", 0, "0 Content: k1,k2 Title: T1")

	e := &Engine{Mode: TopicModel, Topic: &fakeTopic{}, Store: s, Workers: 4}
	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, internalerr.ErrFieldExtraction)

	var fe *internalerr.FieldExtractionError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, record.AuthorMarker, fe.Marker)
}

func TestRunLabelerFailure(t *testing.T) {
	s := memstore.New()
	seed(t, s, "mr_jobs/kmeans/sort/part-0", 0, block(0, "graph", "Graph"))
	cause := errors.New("model diverged")

	e := &Engine{Mode: TopicModel, Topic: &fakeTopic{err: cause}, Store: s, Workers: 1}
	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, internalerr.ErrExternalEngine)
	require.ErrorIs(t, err, cause)
}

func TestRunReturnsCancellationUnwrapped(t *testing.T) {
	s := memstore.New()
	seed(t, s, "mr_jobs/kmeans/sort/part-0", 0, block(0, "graph", "Graph"))

	e := &Engine{Mode: TopicModel, Topic: &fakeTopic{err: context.Canceled}, Store: s, Workers: 1}
	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, internalerr.ErrExternalEngine)
}

func TestJobsFindsNestedSortFiles(t *testing.T) {
	s := memstore.New()
	seed(t, s, "mr_jobs/kmeans/sort/part-0", 0, block(0, "graph", "Graph"))

	jobs, err := Jobs(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Job{{Algorithm: "kmeans", ClusterID: "0"}}, jobs)
}

func TestRunWithoutJobs(t *testing.T) {
	e := &Engine{Mode: TopicModel, Topic: &fakeTopic{}, Store: memstore.New()}
	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats)
}

func TestRunRequiresMatchingCollaborator(t *testing.T) {
	s := memstore.New()
	_, err := (&Engine{Mode: TopicModel, Store: s}).Run(context.Background())
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, err = (&Engine{Mode: SemanticFingerprint, Topic: &fakeTopic{}, Store: s}).Run(context.Background())
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestJobsSkipsAlgorithmsWithoutSortDir(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, "mr_jobs/kmeans/sort/part-2", 2)
	seed(t, s, "mr_jobs/kmeans/sort/part-10", 10)
	require.NoError(t, store.WriteAll(ctx, s, "mr_jobs/fkmeans/points_to_clusters/part-m-00000", nil))

	jobs, err := Jobs(ctx, s)
	require.NoError(t, err)
	require.Equal(t, []Job{{"kmeans", "10"}, {"kmeans", "2"}}, jobs)
}
