package ingest

import (
	"sort"
	"strings"
)

// Taxonomy maps keywords to categories. It is the categorizer used to enrich
// documents before labeling.
type Taxonomy struct {
	tokenizer *Tokenizer
	sectors   map[string][]string // category → keywords (lowercase)
	events    map[string][]string
	regions   map[string][]string
}

// NewTaxonomy creates an empty taxonomy.
func NewTaxonomy() *Taxonomy {
	return &Taxonomy{
		tokenizer: NewTokenizer(nil),
		sectors:   make(map[string][]string),
		events:    make(map[string][]string),
		regions:   make(map[string][]string),
	}
}

func lower(keywords []string) []string {
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	return normalized
}

// AddSector adds a sector category with its keywords
func (t *Taxonomy) AddSector(name string, keywords []string) { t.sectors[name] = lower(keywords) }

// AddEvent adds an event category with its keywords
func (t *Taxonomy) AddEvent(name string, keywords []string) { t.events[name] = lower(keywords) }

// AddRegion adds a region category with its keywords
func (t *Taxonomy) AddRegion(name string, keywords []string) { t.regions[name] = lower(keywords) }

// Len returns the number of categories.
func (t *Taxonomy) Len() int { return len(t.sectors) + len(t.events) + len(t.regions) }

// AssignCategories returns the sorted categories whose keywords occur among
// tokens. A multi-word keyword matches when its words appear consecutively.
func (t *Taxonomy) AssignCategories(tokens []string) []string {
	tokenSet := make(map[string]struct{}, len(tokens)*2)
	for i, tok := range tokens {
		tok = strings.ToLower(tok)
		tokenSet[tok] = struct{}{}
		if i > 0 {
			tokenSet[strings.ToLower(tokens[i-1])+" "+tok] = struct{}{}
		}
	}

	cats := make(map[string]struct{})
	for _, group := range []map[string][]string{t.sectors, t.events, t.regions} {
		for cat, keywords := range group {
			for _, kw := range keywords {
				if _, ok := tokenSet[kw]; ok {
					cats[cat] = struct{}{}
					break
				}
			}
		}
	}

	result := make([]string, 0, len(cats))
	for cat := range cats {
		result = append(result, cat)
	}
	sort.Strings(result)
	return result
}

// Categorize returns the matching categories of text joined by ", ", or the
// empty string when none match.
func (t *Taxonomy) Categorize(text string) string {
	return strings.Join(t.AssignCategories(t.tokenizer.Tokenize(text)), ", ")
}
