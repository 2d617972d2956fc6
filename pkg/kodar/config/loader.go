package config

import (
	"fmt"

	"github.com/cognicore/kodar/pkg/kodar/ingest"
)

// Loader loads the term-extraction files and constructs components
type Loader struct {
	StoplistPath string
	DictPath     string
	TaxonomyPath string
}

// NewLoader points a loader at the files named in cfg.
func NewLoader(cfg *AppConfig) Loader {
	return Loader{
		StoplistPath: cfg.Ingest.Stoplist,
		DictPath:     cfg.Ingest.Dictionary,
		TaxonomyPath: cfg.Ingest.Taxonomy,
	}
}

// Components holds all loaded configuration components
type Components struct {
	Tokenizer *ingest.Tokenizer
	Phrases   *ingest.PhraseParser
	Taxonomy  *ingest.Taxonomy
}

// Load reads all configuration files and returns initialized components.
// Empty paths yield empty components.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	if l.StoplistPath != "" {
		stoplist, err := LoadStoplist(l.StoplistPath)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		comp.Tokenizer = ingest.NewTokenizer(stoplist.Terms)
	} else {
		comp.Tokenizer = ingest.NewTokenizer(nil)
	}

	if l.DictPath != "" {
		dict, err := LoadDict(l.DictPath)
		if err != nil {
			return nil, fmt.Errorf("load dictionary: %w", err)
		}
		phrases := make([]ingest.Phrase, len(dict))
		for i, e := range dict {
			phrases[i] = ingest.Phrase{Canonical: e.Canonical, Variants: e.Variants}
		}
		comp.Phrases = ingest.NewPhraseParser(phrases)
	} else {
		comp.Phrases = ingest.NewPhraseParser(nil)
	}

	comp.Taxonomy = ingest.NewTaxonomy()
	if l.TaxonomyPath != "" {
		taxConfig, err := LoadTaxonomy(l.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		for name, keywords := range taxConfig.Sectors {
			comp.Taxonomy.AddSector(name, keywords)
		}
		for name, keywords := range taxConfig.Events {
			comp.Taxonomy.AddEvent(name, keywords)
		}
		for name, keywords := range taxConfig.Regions {
			comp.Taxonomy.AddRegion(name, keywords)
		}
	}

	return comp, nil
}
