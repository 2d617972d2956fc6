package export

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/kodar/pkg/kodar/record"
)

// CardBuilder constructs cluster cards with time-ordered IDs
type CardBuilder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewCardBuilder creates a new card builder
func NewCardBuilder() *CardBuilder {
	return &CardBuilder{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Card is the JSON export of one labeled cluster group.
type Card struct {
	ID        string     `json:"id"`
	Algorithm string     `json:"algorithm"`
	Cluster   string     `json:"cluster"`
	Label     string     `json:"label"`
	Documents []Document `json:"documents"`
}

// Document is one publication of a card.
type Document struct {
	RowID          int64    `json:"rowId"`
	Name           string   `json:"name"`
	AuthorURI      string   `json:"authorUri"`
	PublicationURI string   `json:"publicationUri"`
	Title          string   `json:"title"`
	Keywords       []string `json:"keywords"`
}

// Build creates a card. Safe for concurrent use.
func (b *CardBuilder) Build(algorithm, cluster, label string, docs []record.Document) Card {
	b.mu.Lock()
	id := ulid.MustNew(ulid.Now(), b.entropy).String()
	b.mu.Unlock()

	card := Card{
		ID:        id,
		Algorithm: algorithm,
		Cluster:   cluster,
		Label:     label,
		Documents: make([]Document, 0, len(docs)),
	}
	for _, d := range docs {
		card.Documents = append(card.Documents, Document{
			RowID:          d.RowID,
			Name:           d.Name,
			AuthorURI:      d.AuthorURI,
			PublicationURI: d.PublicationURI,
			Title:          d.Title,
			Keywords:       record.SplitKeywords(d.Keywords),
		})
	}
	return card
}
