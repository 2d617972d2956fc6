package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Raw dataset columns, in file order.
const (
	colName = iota
	colAuthorURI
	colPublicationURI
	colTitle
	colKeywords
	numColumns
)

// Splitter converts the raw dataset into the record streams the rest of the
// pipeline reads.
type Splitter struct {
	Store       store.Store
	RawDir      string // local directory for the disjoined CSV files
	StripMarkup bool
	Logger      *zap.Logger
}

// SplitStats counts what one Split produced.
type SplitStats struct {
	Rows int
}

type rawRow struct {
	id  int64
	kw  record.KeywordValue
	aut record.AuthorValue
}

// Split reads datasetPath and writes the keyword, long-keyword and author
// streams. Existing outputs are replaced.
func (s *Splitter) Split(ctx context.Context, datasetPath string) (SplitStats, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	f, err := os.Open(datasetPath)
	if err != nil {
		return SplitStats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := s.readRows(f)
	if err != nil {
		return SplitStats{}, err
	}

	if s.RawDir != "" {
		if err := writeRaw(s.RawDir, rows); err != nil {
			return SplitStats{}, err
		}
	}

	if err := s.Store.Delete(ctx, layout.Sequence); err != nil {
		return SplitStats{}, err
	}
	if err := s.writeStreams(ctx, rows); err != nil {
		return SplitStats{}, err
	}

	log.Info("dataset split",
		zap.String("stage", "split"),
		zap.String("dataset", datasetPath),
		zap.Int("rows", len(rows)))
	return SplitStats{Rows: len(rows)}, nil
}

func (s *Splitter) readRows(r io.Reader) ([]rawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &internalerr.MalformedInputError{Line: 1, Reason: "missing header"}
	}
	if err != nil {
		return nil, &internalerr.MalformedInputError{Line: 1, Reason: err.Error()}
	}
	want := max(len(header), numColumns)

	var rows []rawRow
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &internalerr.MalformedInputError{Line: line, Reason: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		if len(fields) < want {
			return nil, &internalerr.MalformedInputError{Line: line, Got: len(fields), Want: want}
		}

		title, keywords := fields[colTitle], fields[colKeywords]
		if s.StripMarkup {
			title, keywords = StripMarkup(title), StripMarkup(keywords)
		}
		rows = append(rows, rawRow{
			id: int64(len(rows)),
			kw: record.KeywordValue{
				Name:     sanitize(fields[colName]),
				Title:    sanitize(title),
				Keywords: sanitize(keywords),
			},
			aut: record.AuthorValue{
				Name:           sanitize(fields[colName]),
				AuthorURI:      sanitize(fields[colAuthorURI]),
				PublicationURI: sanitize(fields[colPublicationURI]),
				Title:          sanitize(title),
			},
		})
	}
	return rows, nil
}

// sanitize keeps field text from breaking the tab-joined bundles.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, strings.TrimSpace(s))
}

func writeRaw(dir string, rows []rawRow) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	keywords := [][]string{{"rowId", "name", "title", "keywords"}}
	authors := [][]string{{"rowId", "name", "authorUri", "publicationUri", "title"}}
	for _, r := range rows {
		id := strconv.FormatInt(r.id, 10)
		keywords = append(keywords, []string{id, r.kw.Name, r.kw.Title, r.kw.Keywords})
		authors = append(authors, []string{id, r.aut.Name, r.aut.AuthorURI, r.aut.PublicationURI, r.aut.Title})
	}
	if err := writeCSV(filepath.Join(dir, layout.RawKeywords), keywords); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, layout.RawAuthors), authors)
}

func writeCSV(name string, rows [][]string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	return f.Close()
}

func (s *Splitter) writeStreams(ctx context.Context, rows []rawRow) error {
	text, err := s.Store.Create(ctx, layout.KeywordsText)
	if err != nil {
		return err
	}
	defer text.Close()
	long, err := s.Store.Create(ctx, layout.KeywordsLong)
	if err != nil {
		return err
	}
	defer long.Close()
	authors, err := s.Store.Create(ctx, layout.Authors)
	if err != nil {
		return err
	}
	defer authors.Close()

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		kv := r.kw.Encode()
		if err := text.Write(record.TextKey(strconv.FormatInt(r.id, 10)), kv); err != nil {
			return err
		}
		if err := long.Write(record.LongKey(r.id), kv); err != nil {
			return err
		}
		if err := authors.Write(record.LongKey(r.id), r.aut.Encode()); err != nil {
			return err
		}
	}

	for _, w := range []store.Writer{text, long, authors} {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return store.WriteMarker(ctx, s.Store, layout.Sequence)
}
