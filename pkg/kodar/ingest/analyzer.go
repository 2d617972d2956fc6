package ingest

// Analyzer turns document text into vectorizer terms:
// text → tokenization → phrase recognition → n-grams.
type Analyzer struct {
	tokenizer *Tokenizer
	phrases   *PhraseParser
	ngram     int
}

// NewAnalyzer creates an analyzer. phrases may be nil.
func NewAnalyzer(tokenizer *Tokenizer, phrases *PhraseParser, ngram int) *Analyzer {
	if tokenizer == nil {
		tokenizer = NewTokenizer(nil)
	}
	return &Analyzer{tokenizer: tokenizer, phrases: phrases, ngram: ngram}
}

// Terms returns the terms of text in order, repeated terms included.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.tokenizer.Tokenize(text)
	tokens = a.phrases.Parse(tokens)
	return NGrams(tokens, a.ngram)
}

// Tokenizer returns the underlying tokenizer.
func (a *Analyzer) Tokenizer() *Tokenizer { return a.tokenizer }
