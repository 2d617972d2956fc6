// Package export writes every named cluster as CSV, JSON and N-Triples result
// files under the local working root.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Result file names inside result/<algorithm>/<cluster>.
const (
	CSVFile  = "final.csv"
	JSONFile = "final.json"
	RDFFile  = "final.nt"
)

// Exporter converts named_clusters into result files.
type Exporter struct {
	Store   store.Store
	Home    string
	Workers int
	Cards   *CardBuilder
	Logger  *zap.Logger

	once sync.Once
}

// Stats counts what a run exported.
type Stats struct {
	Clusters  int
	Documents int
}

func (e *Exporter) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Exporter) cards() *CardBuilder {
	e.once.Do(func() {
		if e.Cards == nil {
			e.Cards = NewCardBuilder()
		}
	})
	return e.Cards
}

// Run replaces <home>/result with one directory per named cluster holding
// final.csv, final.json and final.nt.
func (e *Exporter) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	if err := os.RemoveAll(filepath.Join(e.Home, layout.Result)); err != nil {
		return Stats{}, fmt.Errorf("clear results: %w", err)
	}
	algos, err := e.Store.List(ctx, layout.NamedClusters)
	if err != nil {
		if store.IsNotFound(err) {
			return Stats{}, nil
		}
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for _, a := range algos {
		clusters, err := e.Store.List(ctx, store.Join(layout.NamedClusters, a.Name))
		if err != nil {
			if store.IsNotDir(err) {
				continue
			}
			g.Go(func() error { return err })
			break
		}
		for _, c := range clusters {
			if c.Dir {
				continue
			}
			algorithm, cluster := a.Name, c.Name
			g.Go(func() error {
				n, err := e.exportCluster(gctx, algorithm, cluster)
				if err != nil {
					return fmt.Errorf("export %s/%s: %w", algorithm, cluster, err)
				}
				mu.Lock()
				total.Clusters++
				total.Documents += n
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	e.log().Info("export finished",
		zap.Int("clusters", total.Clusters),
		zap.Int("documents", total.Documents),
		zap.Duration("took", time.Since(start)))
	return total, nil
}

func (e *Exporter) exportCluster(ctx context.Context, algorithm, cluster string) (int, error) {
	groups, err := load(ctx, e.Store, layout.NamedCluster(algorithm, cluster))
	if err != nil {
		return 0, err
	}
	dir := layout.ResultDir(e.Home, algorithm, cluster)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	cards := e.buildCards(algorithm, cluster, groups)
	for _, f := range []struct {
		name  string
		write func(io.Writer) error
	}{
		{CSVFile, func(w io.Writer) error { return writeCSV(w, groups) }},
		{JSONFile, func(w io.Writer) error { return writeJSON(w, cards) }},
		{RDFFile, func(w io.Writer) error { return writeRDF(w, groups) }},
	} {
		if err := writeAtomic(ctx, filepath.Join(dir, f.name), f.write); err != nil {
			return 0, err
		}
	}
	var n int
	for _, g := range groups {
		n += len(g.docs)
	}
	return n, nil
}

func (e *Exporter) buildCards(algorithm, cluster string, groups []group) []Card {
	cards := make([]Card, len(groups))
	for i, g := range groups {
		cards[i] = e.cards().Build(algorithm, cluster, g.label, g.docs)
	}
	return cards
}

// ToCSV exports the named-cluster file at source to dest.
func (e *Exporter) ToCSV(ctx context.Context, source, dest string) error {
	groups, err := load(ctx, e.Store, source)
	if err != nil {
		return err
	}
	return writeAtomic(ctx, dest, func(w io.Writer) error { return writeCSV(w, groups) })
}

// ToJSON exports the named-cluster file at source to dest as an array of
// cluster cards. The algorithm and cluster are taken from source's last two
// path elements.
func (e *Exporter) ToJSON(ctx context.Context, source, dest string) error {
	groups, err := load(ctx, e.Store, source)
	if err != nil {
		return err
	}
	dir, cluster := path.Split(store.Clean(source))
	algorithm := path.Base(dir)
	cards := e.buildCards(algorithm, cluster, groups)
	return writeAtomic(ctx, dest, func(w io.Writer) error { return writeJSON(w, cards) })
}

// ToRDF exports the named-cluster file at source to dest as N-Triples.
func (e *Exporter) ToRDF(ctx context.Context, source, dest string) error {
	groups, err := load(ctx, e.Store, source)
	if err != nil {
		return err
	}
	return writeAtomic(ctx, dest, func(w io.Writer) error { return writeRDF(w, groups) })
}

// load reads a named-cluster file and parses every document block.
func load(ctx context.Context, s store.Store, source string) ([]group, error) {
	var groups []group
	err := store.ReadAll(ctx, s, source, func(r record.Record) error {
		g := group{label: r.Key.String()}
		for _, b := range record.SplitGroup(r.Value) {
			d, err := record.ParseDocument(b)
			if err != nil {
				return err
			}
			g.docs = append(g.docs, d)
		}
		groups = append(groups, g)
		return nil
	})
	return groups, err
}

// writeAtomic writes dest through a temporary file in the same directory and
// renames it into place.
func writeAtomic(ctx context.Context, dest string, fn func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
