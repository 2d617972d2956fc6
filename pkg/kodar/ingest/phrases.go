package ingest

import "strings"

// PhraseParser folds known multi-word keywords ("data mining") into single
// terms so the vectorizer treats them as one dimension.
type PhraseParser struct {
	dict   map[string]Phrase
	maxLen int
}

// Phrase is a dictionary entry: the canonical term and its spellings.
type Phrase struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// NewPhraseParser creates a new parser with the given dictionary
func NewPhraseParser(entries []Phrase) *PhraseParser {
	dict := make(map[string]Phrase)
	maxLen := 1
	add := func(s string, e Phrase) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			return
		}
		dict[key] = e
		if l := len(strings.Fields(key)); l > maxLen {
			maxLen = l
		}
	}
	for _, e := range entries {
		add(e.Canonical, e)
		for _, v := range e.Variants {
			add(v, e)
		}
	}
	return &PhraseParser{dict: dict, maxLen: maxLen}
}

// Parse applies greedy longest-match over tokens.
func (p *PhraseParser) Parse(tokens []string) []string {
	if p == nil || len(p.dict) == 0 {
		return tokens
	}
	result := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		maxPhrase := min(p.maxLen, len(tokens)-i)
		matched := false
		for n := maxPhrase; n >= 2; n-- {
			if entry, ok := p.dict[strings.Join(tokens[i:i+n], " ")]; ok {
				result = append(result, strings.ToLower(entry.Canonical))
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if entry, ok := p.dict[tokens[i]]; ok {
			result = append(result, strings.ToLower(entry.Canonical))
		} else {
			result = append(result, tokens[i])
		}
		i++
	}
	return result
}
