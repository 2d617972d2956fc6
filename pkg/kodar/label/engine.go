package label

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Engine labels every sorted cluster file under mr_jobs and writes the
// Named-Cluster Records.
type Engine struct {
	Mode        Mode
	Topic       TopicLabeler
	Fingerprint Fingerprint
	Categorizer Categorizer
	Store       store.Store
	Workers     int
	Logger      *zap.Logger
}

// Stats counts what a run labeled.
type Stats struct {
	Files     int
	Groups    int
	Documents int
}

// Job is one sorted cluster file.
type Job struct {
	Algorithm string
	ClusterID string
}

func (j Job) source() string {
	return store.Join(layout.SortDir(j.Algorithm), "part-"+j.ClusterID)
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) check() error {
	switch e.Mode {
	case TopicModel:
		if e.Topic == nil {
			return fmt.Errorf("%w: topic-model mode without a topic labeler", internalerr.ErrInvalidConfig)
		}
	case SemanticFingerprint:
		if e.Fingerprint == nil {
			return fmt.Errorf("%w: semantic-fingerprint mode without a fingerprint client", internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: labeling mode %v", internalerr.ErrInvalidConfig, e.Mode)
	}
	if e.Store == nil {
		return fmt.Errorf("%w: labeling without a store", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Run clears named_clusters and topmodel, then labels every job found by
// Jobs. Files are labeled concurrently; the first failure cancels the rest.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	if err := e.check(); err != nil {
		return Stats{}, err
	}
	start := time.Now()
	for _, dir := range []string{layout.NamedClusters, layout.TopicModel} {
		if err := e.Store.Delete(ctx, dir); err != nil {
			return Stats{}, err
		}
	}
	jobs, err := Jobs(ctx, e.Store)
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for _, job := range jobs {
		g.Go(func() error {
			st, err := e.LabelFile(gctx, job)
			if err != nil {
				return fmt.Errorf("label %s: %w", job.source(), err)
			}
			mu.Lock()
			total.Files++
			total.Groups += st.Groups
			total.Documents += st.Documents
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	e.log().Info("labeling finished",
		zap.Stringer("mode", e.Mode),
		zap.Int("files", total.Files),
		zap.Int("groups", total.Groups),
		zap.Int("documents", total.Documents),
		zap.Duration("took", time.Since(start)))
	return total, nil
}

// Jobs lists the sorted cluster files of every algorithm under mr_jobs.
func Jobs(ctx context.Context, s store.Store) ([]Job, error) {
	algos, err := s.List(ctx, layout.MRJobs)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []Job
	for _, a := range algos {
		if !a.Dir {
			continue
		}
		parts, err := s.List(ctx, layout.SortDir(a.Name))
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, p := range parts {
			id, ok := strings.CutPrefix(p.Name, "part-")
			if p.Dir || !ok {
				continue
			}
			jobs = append(jobs, Job{Algorithm: a.Name, ClusterID: id})
		}
	}
	return jobs, nil
}

// outputs are the three files one job writes.
type outputs struct {
	named, docs, labels store.Writer
}

func (e *Engine) create(ctx context.Context, job Job) (*outputs, error) {
	var out outputs
	var err error
	if out.named, err = e.Store.Create(ctx, layout.NamedCluster(job.Algorithm, job.ClusterID)); err != nil {
		return nil, err
	}
	if out.docs, err = e.Store.Create(ctx, layout.TopicDocuments(job.Algorithm, job.ClusterID)); err != nil {
		out.named.Close()
		return nil, err
	}
	if out.labels, err = e.Store.Create(ctx, layout.TopicLabel(job.Algorithm, job.ClusterID)); err != nil {
		out.named.Close()
		out.docs.Close()
		return nil, err
	}
	return &out, nil
}

func (o *outputs) Close() error {
	return errors.Join(o.named.Close(), o.docs.Close(), o.labels.Close())
}

// LabelFile runs the group state machine over every record of one sorted
// file, in record order.
func (e *Engine) LabelFile(ctx context.Context, job Job) (stats Stats, err error) {
	out, err := e.create(ctx, job)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	docIndex := int64(0)
	err = store.ReadAll(ctx, e.Store, job.source(), func(r record.Record) error {
		docs, err := e.extract(r.Value)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := out.docs.Write(record.LongKey(docIndex), d); err != nil {
				return err
			}
			docIndex++
		}
		name, err := e.label(ctx, docs)
		if err != nil {
			return err
		}
		if err := out.labels.Write(record.TextKey(name), job.ClusterID); err != nil {
			return err
		}
		stats.Groups++
		stats.Documents += len(docs)
		return out.named.Write(record.TextKey(name), r.Value)
	})
	if err != nil {
		return Stats{}, err
	}
	e.log().Debug("cluster labeled",
		zap.String("algorithm", job.Algorithm),
		zap.String("cluster", job.ClusterID),
		zap.Int("documents", stats.Documents))
	return stats, nil
}

// extract splits a group into its documents and turns each into labeler
// text: title, keywords and category, one per line.
func (e *Engine) extract(group string) ([]string, error) {
	blocks := record.SplitGroup(group)
	docs := make([]string, 0, len(blocks))
	for _, b := range blocks {
		f, err := record.ParseBlock(b)
		if err != nil {
			return nil, err
		}
		keywords := strings.TrimSpace(f.Keywords)
		var category string
		if e.Categorizer != nil {
			category = e.Categorizer.Categorize(keywords)
		}
		docs = append(docs, f.Title+"\n"+keywords+"\n"+category)
	}
	return docs, nil
}

func (e *Engine) label(ctx context.Context, docs []string) (string, error) {
	switch e.Mode {
	case SemanticFingerprint:
		s := e.Fingerprint.NewSession()
		for _, d := range docs {
			if err := s.AddLabels(ctx, d); err != nil {
				return "", internalerr.Engine("fingerprint", err)
			}
		}
		name, err := s.GetLabel(ctx)
		return name, internalerr.Engine("fingerprint", err)
	default:
		name, err := e.Topic.Label(ctx, docs)
		return name, internalerr.Engine("topic model", err)
	}
}
