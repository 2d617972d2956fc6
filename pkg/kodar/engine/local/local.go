// Package local is an in-process implementation of engine.Engine that keeps
// the batch engine's on-store layout, so the rest of the pipeline cannot tell
// it from a cluster job.
package local

import (
	"context"
	"fmt"
	"sort"

	"github.com/james-bowman/nlp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/kodar/pkg/kodar/engine"
	"github.com/cognicore/kodar/pkg/kodar/ingest"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Output names inside a vectorization directory.
const (
	TFVectorsDir    = "tf-vectors"
	TFIDFVectorsDir = "tfidf-vectors"
	DictionaryFile  = "dictionary.file-0"
	VectorsPart     = "part-r-00000"
)

// Engine runs vectorization and clustering jobs in the calling process.
type Engine struct {
	Store     store.Store
	Tokenizer *ingest.Tokenizer
	Phrases   *ingest.PhraseParser
	Logger    *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine over s.
func New(s store.Store, tokenizer *ingest.Tokenizer, phrases *ingest.PhraseParser, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Store: s, Tokenizer: tokenizer, Phrases: phrases, Logger: logger}
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

type document struct {
	name  string
	terms map[string]int
}

// documentText picks the text to vectorize from a keyword bundle: title and
// keywords. Values that are not bundles are used whole.
func documentText(value string) string {
	kv, err := record.DecodeKeywordValue(value)
	if err != nil {
		return value
	}
	return kv.Title + "\n" + kv.Keywords
}

// Vectorize implements engine.Engine.
func (e *Engine) Vectorize(ctx context.Context, cfg engine.VectorizeConfig) error {
	if cfg.Overwrite {
		if err := e.Store.Delete(ctx, cfg.Output); err != nil {
			return err
		}
	}

	analyzer := ingest.NewAnalyzer(e.Tokenizer, e.Phrases, cfg.NGramSize)
	var docs []document
	df := make(map[string]int)
	err := store.ReadAll(ctx, e.Store, cfg.Input, func(r record.Record) error {
		terms := make(map[string]int)
		for _, t := range analyzer.Terms(documentText(r.Value)) {
			terms[t]++
		}
		for t := range terms {
			df[t]++
		}
		docs = append(docs, document{name: r.Key.String(), terms: terms})
		return nil
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Input, err)
	}

	vocab := pruneVocabulary(df, len(docs), cfg.MinDocFreq, cfg.MaxDocFreqPercent)
	index := make(map[string]int, len(vocab))
	dict := make([]record.Record, len(vocab))
	for i, t := range vocab {
		index[t] = i
		dict[i] = record.Record{Key: record.TextKey(t), Value: fmt.Sprint(i)}
	}
	if err := store.WriteAll(ctx, e.Store, store.Join(cfg.Output, DictionaryFile), dict); err != nil {
		return err
	}

	tf, weighted, err := weigh(docs, index, cfg.Weighting)
	if err != nil {
		return err
	}

	tfRecs := make([]record.Record, len(docs))
	vecRecs := make([]record.Record, len(docs))
	for j, d := range docs {
		tfRecs[j] = record.Record{Key: record.TextKey(d.name), Value: FormatVector(column(tf, j, len(vocab)))}
		v := column(weighted, j, len(vocab))
		if cfg.Normalize {
			if n := floats.Norm(v, 2); n > 0 {
				floats.Scale(1/n, v)
			}
		}
		vecRecs[j] = record.Record{Key: record.TextKey(d.name), Value: FormatVector(v)}
	}

	for _, out := range []struct {
		dir  string
		recs []record.Record
	}{
		{store.Join(cfg.Output, TFVectorsDir), tfRecs},
		{store.Join(cfg.Output, TFIDFVectorsDir), vecRecs},
	} {
		if err := store.WriteAll(ctx, e.Store, store.Join(out.dir, VectorsPart), out.recs); err != nil {
			return err
		}
		if err := store.WriteMarker(ctx, e.Store, out.dir); err != nil {
			return err
		}
	}

	e.log().Debug("vectorized",
		zap.Int("documents", len(docs)),
		zap.Int("terms", len(df)),
		zap.Int("vocabulary", len(vocab)))
	return store.WriteMarker(ctx, e.Store, cfg.Output)
}

// pruneVocabulary keeps terms seen in at least minDF documents and in no more
// than maxPercent of them, sorted.
func pruneVocabulary(df map[string]int, n, minDF, maxPercent int) []string {
	var vocab []string
	for t, c := range df {
		if c < minDF {
			continue
		}
		if maxPercent > 0 && c*100 > maxPercent*n {
			continue
		}
		vocab = append(vocab, t)
	}
	sort.Strings(vocab)
	return vocab
}

// weigh builds the terms x documents count matrix and its weighted form.
// Both are nil when the vocabulary or the corpus is empty.
func weigh(docs []document, index map[string]int, w engine.Weighting) (mat.Matrix, mat.Matrix, error) {
	if len(index) == 0 || len(docs) == 0 {
		return nil, nil, nil
	}
	counts := mat.NewDense(len(index), len(docs), nil)
	for j, d := range docs {
		for t, c := range d.terms {
			if i, ok := index[t]; ok {
				counts.Set(i, j, float64(c))
			}
		}
	}
	if w != engine.WeightTFIDF {
		return counts, counts, nil
	}
	weighted, err := nlp.NewTfidfTransformer().FitTransform(counts)
	if err != nil {
		return nil, nil, fmt.Errorf("tfidf: %w", err)
	}
	return counts, weighted, nil
}

func column(m mat.Matrix, j, rows int) []float64 {
	v := make([]float64, rows)
	if m == nil {
		return v
	}
	for i := range v {
		v[i] = m.At(i, j)
	}
	return v
}
