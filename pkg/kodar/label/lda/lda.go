// Package lda labels a group of documents with the most significant words of
// its dominant latent Dirichlet allocation topic.
package lda

import (
	"context"
	"sort"
	"strings"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/kodar/pkg/kodar/label"
)

// Labeler is a label.TopicLabeler backed by an LDA topic model.
type Labeler struct {
	Topics     int
	TopWords   int
	Iterations int
	Stopwords  []string
}

var _ label.TopicLabeler = (*Labeler)(nil)

// New creates a labeler. Zero values fall back to 3 topics, 3 words and 100
// iterations.
func New(topics, topWords, iterations int, stopwords []string) *Labeler {
	if topics < 1 {
		topics = 3
	}
	if topWords < 1 {
		topWords = 3
	}
	if iterations < 1 {
		iterations = 100
	}
	return &Labeler{Topics: topics, TopWords: topWords, Iterations: iterations, Stopwords: stopwords}
}

type weighted struct {
	word string
	w    float64
}

// Label fits a model over docs and returns the top words of the topic with
// the largest accumulated weight across documents, joined by spaces.
func (l *Labeler) Label(ctx context.Context, docs []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var corpus []string
	for _, d := range docs {
		if strings.TrimSpace(d) != "" {
			corpus = append(corpus, d)
		}
	}
	if len(corpus) == 0 {
		return label.Unlabeled, nil
	}

	vectoriser := nlp.NewCountVectoriser(l.Stopwords...)
	vectoriser.Fit(corpus...)
	if len(vectoriser.Vocabulary) == 0 {
		return label.Unlabeled, nil
	}

	topics := min(l.Topics, len(vectoriser.Vocabulary))
	model := nlp.NewLatentDirichletAllocation(topics)
	model.Iterations = l.Iterations
	model.TransformationPasses = max(l.Iterations/2, 1)
	model.Processes = 1

	docsOverTopics, err := nlp.NewPipeline(vectoriser, model).FitTransform(corpus...)
	if err != nil {
		return "", err
	}
	words := topWords(dominantTopic(docsOverTopics), model.Components(), vectoriser.Vocabulary, l.TopWords)
	if len(words) == 0 {
		return label.Unlabeled, nil
	}
	return strings.Join(words, " "), nil
}

// dominantTopic sums each topic's weight over all documents and returns the
// heaviest one.
func dominantTopic(docsOverTopics mat.Matrix) int {
	rows, cols := docsOverTopics.Dims()
	best, bestW := 0, -1.0
	for topic := 0; topic < rows; topic++ {
		var w float64
		for doc := 0; doc < cols; doc++ {
			w += docsOverTopics.At(topic, doc)
		}
		if w > bestW {
			best, bestW = topic, w
		}
	}
	return best
}

// topWords returns the n most significant words of topic. Equal weights are
// ordered alphabetically.
func topWords(topic int, topicsOverWords mat.Matrix, vocabulary map[string]int, n int) []string {
	_, cols := topicsOverWords.Dims()
	vocab := make([]string, len(vocabulary))
	for w, i := range vocabulary {
		vocab[i] = w
	}
	ws := make([]weighted, 0, cols)
	for i := 0; i < cols && i < len(vocab); i++ {
		ws = append(ws, weighted{word: vocab[i], w: topicsOverWords.At(topic, i)})
	}
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].w != ws[j].w {
			return ws[i].w > ws[j].w
		}
		return ws[i].word < ws[j].word
	})
	out := make([]string, 0, n)
	for _, w := range ws[:min(n, len(ws))] {
		out = append(out, w.word)
	}
	return out
}
