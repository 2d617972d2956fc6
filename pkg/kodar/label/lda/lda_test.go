package lda

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/kodar/pkg/kodar/label"
)

func TestLabelEmptyGroups(t *testing.T) {
	l := New(0, 0, 0, []string{"the"})
	require.Equal(t, 3, l.Topics)

	got, err := l.Label(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, label.Unlabeled, got)

	got, err = l.Label(context.Background(), []string{" ", "\n\n"})
	require.NoError(t, err)
	require.Equal(t, label.Unlabeled, got)
}

func TestLabelUsesCorpusWords(t *testing.T) {
	docs := []string{
		"Graph mining\ngraph mining, clustering\n",
		"Graph clustering\nclustering, graph partitioning\n",
		"Community detection\ngraph clustering, communities\n",
	}
	l := New(2, 3, 20, nil)
	got, err := l.Label(context.Background(), docs)
	require.NoError(t, err)

	words := strings.Fields(got)
	require.Len(t, words, 3)
	corpus := strings.ToLower(strings.Join(docs, " "))
	for _, w := range words {
		require.Contains(t, corpus, strings.ToLower(w))
	}
}

func TestLabelHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(1, 1, 1, nil).Label(ctx, []string{"graph"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDominantTopic(t *testing.T) {
	// topics x docs
	m := mat.NewDense(3, 2, []float64{
		0.1, 0.2,
		0.6, 0.5,
		0.3, 0.3,
	})
	require.Equal(t, 1, dominantTopic(m))
}

func TestTopWordsBreaksTiesAlphabetically(t *testing.T) {
	m := mat.NewDense(1, 4, []float64{0.2, 0.5, 0.2, 0.1})
	vocab := map[string]int{"zeta": 0, "alpha": 1, "beta": 2, "gamma": 3}
	require.Equal(t, []string{"alpha", "beta", "zeta"}, topWords(0, m, vocab, 3))
	require.Equal(t, []string{"alpha", "beta", "zeta", "gamma"}, topWords(0, m, vocab, 10))
}
