package record

import (
	"strconv"
	"strings"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
)

// Markers and the group delimiter used inside Clustered-Data values. They are
// plain substrings: if user data contains one of them, parsing silently picks
// the wrong boundaries. This is a known limitation of the record layout and
// every producer/consumer goes through this file so it stays in one place.
const (
	GroupDelimiter = "2db5c8"
	ContentMarker  = " Content: "
	AuthorMarker   = " Author:"
	TitleMarker    = " Title: "

	authorFieldSep = " | "
	bundleSep      = "\t"
)

// KeywordValue is the value bundled in both keyword streams: every column of
// a raw row except the two URIs.
type KeywordValue struct {
	Name     string
	Title    string
	Keywords string
}

// Encode renders the tab-joined bundle.
func (v KeywordValue) Encode() string {
	return strings.Join([]string{v.Name, v.Title, v.Keywords}, bundleSep)
}

// DecodeKeywordValue parses a keyword bundle.
func DecodeKeywordValue(s string) (KeywordValue, error) {
	parts := strings.Split(s, bundleSep)
	if len(parts) != 3 {
		return KeywordValue{}, &internalerr.MalformedInputError{Reason: "keyword record has " + strconv.Itoa(len(parts)) + " fields, want 3"}
	}
	return KeywordValue{Name: parts[0], Title: parts[1], Keywords: parts[2]}, nil
}

// AuthorValue is the value of an author record.
type AuthorValue struct {
	Name           string
	AuthorURI      string
	PublicationURI string
	Title          string
}

// Encode renders the tab-joined bundle.
func (v AuthorValue) Encode() string {
	return strings.Join([]string{v.Name, v.AuthorURI, v.PublicationURI, v.Title}, bundleSep)
}

// DecodeAuthorValue parses an author bundle.
func DecodeAuthorValue(s string) (AuthorValue, error) {
	parts := strings.Split(s, bundleSep)
	if len(parts) != 4 {
		return AuthorValue{}, &internalerr.MalformedInputError{Reason: "author record has " + strconv.Itoa(len(parts)) + " fields, want 4"}
	}
	return AuthorValue{Name: parts[0], AuthorURI: parts[1], PublicationURI: parts[2], Title: parts[3]}, nil
}

// KeywordBlock builds the per-document block emitted by the keyword join.
func KeywordBlock(rowID int64, keywords string) string {
	return strconv.FormatInt(rowID, 10) + ContentMarker + keywords
}

// BlockRowID returns the row id a block starts with.
func BlockRowID(block string) (int64, error) {
	i := strings.Index(block, ContentMarker)
	if i < 0 {
		return 0, &internalerr.FieldExtractionError{Marker: ContentMarker, Block: block}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(block[:i]), 10, 64)
	if err != nil {
		return 0, &internalerr.MalformedInputError{Reason: "block does not start with a row id: " + strconv.Quote(block[:i])}
	}
	return id, nil
}

// WithAuthor appends the author text to a keyword block.
func WithAuthor(block string, a AuthorValue) string {
	var b strings.Builder
	b.Grow(len(block) + len(a.Name) + len(a.AuthorURI) + len(a.PublicationURI) + len(a.Title) + 32)
	b.WriteString(block)
	b.WriteString(AuthorMarker)
	b.WriteString(" ")
	b.WriteString(a.Name)
	b.WriteString(authorFieldSep)
	b.WriteString(a.AuthorURI)
	b.WriteString(authorFieldSep)
	b.WriteString(a.PublicationURI)
	b.WriteString(TitleMarker)
	b.WriteString(a.Title)
	return b.String()
}

// SplitGroup splits a group value into its document blocks.
func SplitGroup(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, GroupDelimiter)
}

// JoinGroup concatenates document blocks into one group value.
func JoinGroup(blocks []string) string {
	return strings.Join(blocks, GroupDelimiter)
}

// Fields are the sub-fields the labeler needs from a block.
type Fields struct {
	Keywords string
	Title    string
}

// ParseBlock extracts keywords (between the Content and Author markers) and
// title (after the Title marker, to the end).
func ParseBlock(block string) (Fields, error) {
	ci := strings.Index(block, ContentMarker)
	if ci < 0 {
		return Fields{}, &internalerr.FieldExtractionError{Marker: ContentMarker, Block: block}
	}
	start := ci + len(ContentMarker)
	ai := strings.Index(block[start:], AuthorMarker)
	if ai < 0 {
		return Fields{}, &internalerr.FieldExtractionError{Marker: AuthorMarker, Block: block}
	}
	ti := strings.Index(block, TitleMarker)
	if ti < 0 {
		return Fields{}, &internalerr.FieldExtractionError{Marker: TitleMarker, Block: block}
	}
	return Fields{
		Keywords: block[start : start+ai],
		Title:    block[ti+len(TitleMarker):],
	}, nil
}

// Document is a fully parsed block.
type Document struct {
	RowID          int64
	Name           string
	AuthorURI      string
	PublicationURI string
	Title          string
	Keywords       string
}

// ParseDocument parses every field of a Clustered-Data block.
func ParseDocument(block string) (Document, error) {
	f, err := ParseBlock(block)
	if err != nil {
		return Document{}, err
	}
	id, err := BlockRowID(block)
	if err != nil {
		return Document{}, err
	}
	ai := strings.Index(block, AuthorMarker)
	ti := strings.Index(block[ai:], TitleMarker)
	if ti < 0 {
		return Document{}, &internalerr.FieldExtractionError{Marker: TitleMarker, Block: block}
	}
	author := strings.TrimPrefix(block[ai+len(AuthorMarker):ai+ti], " ")
	parts := strings.SplitN(author, authorFieldSep, 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return Document{
		RowID:          id,
		Name:           parts[0],
		AuthorURI:      parts[1],
		PublicationURI: parts[2],
		Title:          f.Title,
		Keywords:       strings.TrimSpace(f.Keywords),
	}, nil
}

// SplitKeywords splits a keyword field on commas and semicolons.
func SplitKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
