// Package label names every sorted cluster group with a human-readable label
// produced by a topic model or a semantic-fingerprint service.
package label

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects which external engine labels the groups of a run.
type Mode int

const (
	TopicModel Mode = iota
	SemanticFingerprint
)

func (m Mode) String() string {
	switch m {
	case TopicModel:
		return "topic-model"
	case SemanticFingerprint:
		return "semantic-fingerprint"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the textual form used in configuration and flags.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "topic-model", "topicmodel", "lda":
		return TopicModel, nil
	case "semantic-fingerprint", "fingerprint", "cortical":
		return SemanticFingerprint, nil
	default:
		return 0, fmt.Errorf("unknown labeling mode %q", s)
	}
}

// Unlabeled is the label given to a group with no usable text.
const Unlabeled = "unlabeled"

// TopicLabeler labels a whole group at once.
type TopicLabeler interface {
	Label(ctx context.Context, docs []string) (string, error)
}

// Fingerprint hands out one labeling session per group.
type Fingerprint interface {
	NewSession() Session
}

// Session accumulates the documents of one group.
type Session interface {
	AddLabels(ctx context.Context, doc string) error
	GetLabel(ctx context.Context) (string, error)
}

// Categorizer annotates keyword text with category names.
type Categorizer interface {
	Categorize(text string) string
}

// CategorizerFunc adapts a function to Categorizer.
type CategorizerFunc func(string) string

func (f CategorizerFunc) Categorize(text string) string { return f(text) }
