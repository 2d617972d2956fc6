package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cognicore/kodar/pkg/kodar/record"
)

// Vocabulary used in the N-Triples export.
const (
	dctTitle     = "http://purl.org/dc/terms/title"
	dctCreator   = "http://purl.org/dc/terms/creator"
	dctSubject   = "http://purl.org/dc/terms/subject"
	foafName     = "http://xmlns.com/foaf/0.1/name"
	kodarCluster = "http://cognicore.io/kodar/ns#cluster"
)

var csvHeader = []string{"label", "rowId", "name", "authorUri", "publicationUri", "title", "keywords"}

// group is one Named-Cluster Record with its documents parsed.
type group struct {
	label string
	docs  []record.Document
}

func writeCSV(w io.Writer, groups []group) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, g := range groups {
		for _, d := range g.docs {
			err := cw.Write([]string{
				g.label,
				strconv.FormatInt(d.RowID, 10),
				d.Name,
				d.AuthorURI,
				d.PublicationURI,
				d.Title,
				strings.Join(record.SplitKeywords(d.Keywords), "; "),
			})
			if err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, cards []Card) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cards)
}

func writeRDF(w io.Writer, groups []group) error {
	nt := &ntWriter{w: w}
	for _, g := range groups {
		for _, d := range g.docs {
			pub := resource(d.PublicationURI, "pub", d.RowID)
			author := resource(d.AuthorURI, "author", d.RowID)
			nt.triple(pub, iri(dctTitle), literal(d.Title))
			nt.triple(pub, iri(dctCreator), author)
			for _, k := range record.SplitKeywords(d.Keywords) {
				nt.triple(pub, iri(dctSubject), literal(k))
			}
			nt.triple(pub, iri(kodarCluster), literal(g.label))
			nt.triple(author, iri(foafName), literal(d.Name))
		}
	}
	return nt.err
}

type ntWriter struct {
	w   io.Writer
	err error
}

func (n *ntWriter) triple(s, p, o string) {
	if n.err != nil {
		return
	}
	_, n.err = fmt.Fprintf(n.w, "%s %s %s .\n", s, p, o)
}

func iri(u string) string { return "<" + u + ">" }

// resource renders u as an IRI, or as a blank node when u is empty or holds
// characters N-Triples does not allow in an IRI.
func resource(u, kind string, rowID int64) string {
	if u == "" || strings.ContainsAny(u, " <>\"{}|^`\\\t\n\r") {
		return "_:" + kind + strconv.FormatInt(rowID, 10)
	}
	return iri(u)
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

func literal(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}
