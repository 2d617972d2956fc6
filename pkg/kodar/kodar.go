package kodar

import (
	"context"
	"crypto/rand"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/kodar/pkg/kodar/engine"
	"github.com/cognicore/kodar/pkg/kodar/export"
	"github.com/cognicore/kodar/pkg/kodar/ingest"
	"github.com/cognicore/kodar/pkg/kodar/join"
	"github.com/cognicore/kodar/pkg/kodar/label"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Algorithms are the clustering outputs joined, labeled and exported.
var Algorithms = []string{layout.KMeans, layout.FuzzyKMeans}

// Clustering is the pipeline coordinator
type Clustering struct {
	store       store.Store
	home        string
	engine      engine.Engine
	mode        label.Mode
	topic       label.TopicLabeler
	fingerprint label.Fingerprint
	categorizer label.Categorizer
	evaluate    bool
	stripMarkup bool
	labelers    int
	exporters   int
	cards       *export.CardBuilder
	logger      *zap.Logger
}

// Options configures a Clustering run
type Options struct {
	Store       store.Store
	Home        string
	Engine      engine.Engine
	Mode        label.Mode
	Topic       label.TopicLabeler
	Fingerprint label.Fingerprint
	Categorizer label.Categorizer
	// Evaluate stops after clustering and reports inter-cluster density.
	Evaluate      bool
	StripMarkup   bool
	LabelWorkers  int
	ExportWorkers int
	Logger        *zap.Logger
}

// New creates a coordinator with the given dependencies
func New(opts Options) *Clustering {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clustering{
		store:       opts.Store,
		home:        opts.Home,
		engine:      opts.Engine,
		mode:        opts.Mode,
		topic:       opts.Topic,
		fingerprint: opts.Fingerprint,
		categorizer: opts.Categorizer,
		evaluate:    opts.Evaluate,
		stripMarkup: opts.StripMarkup,
		labelers:    max(opts.LabelWorkers, 1),
		exporters:   max(opts.ExportWorkers, 1),
		cards:       export.NewCardBuilder(),
		logger:      logger,
	}
}

// Close releases the record store.
func (c *Clustering) Close() error {
	return c.store.Close()
}

// Mode is the labeling mode of this coordinator.
func (c *Clustering) Mode() label.Mode { return c.mode }

// Evaluating reports whether Run stops after the density evaluation.
func (c *Clustering) Evaluating() bool { return c.evaluate }

// Home is the working root.
func (c *Clustering) Home() string { return c.home }

// Result summarises one run.
type Result struct {
	RunID string
	Rows  int
	// Density is set only in evaluation mode.
	Density *engine.Density
	Joins   map[string][]join.StageStats
	Labels  label.Stats
	Export  export.Stats
}

// Run executes the whole pipeline on dataset with k hard clusters: split,
// vectorize, k-means, fuzzy k-means, then either the density evaluation or
// join, labeling and export.
func (c *Clustering) Run(ctx context.Context, dataset string, k int) (Result, error) {
	if k < 1 {
		return Result{}, fmt.Errorf("cluster count must be positive, got %d", k)
	}
	res := Result{RunID: ulid.MustNew(ulid.Now(), rand.Reader).String()}
	log := c.logger.With(zap.String("run", res.RunID))
	start := time.Now()
	log.Info("run started",
		zap.String("dataset", dataset),
		zap.Int("k", k),
		zap.String("home", c.home),
		zap.Stringer("mode", c.mode),
		zap.Bool("evaluate", c.evaluate))

	splitter := &ingest.Splitter{
		Store:       c.store,
		RawDir:      filepath.Join(c.home, layout.Raw),
		StripMarkup: c.stripMarkup,
		Logger:      log,
	}
	split, err := splitter.Split(ctx, dataset)
	if err != nil {
		return Result{}, fmt.Errorf("split: %w", err)
	}
	res.Rows = split.Rows

	driver := &engine.Driver{Engine: c.engine, Store: c.store, Logger: log}
	if err := driver.Vectorize(ctx); err != nil {
		return Result{}, err
	}
	if err := driver.ClusterHard(ctx, k); err != nil {
		return Result{}, err
	}
	if err := driver.ClusterFuzzy(ctx); err != nil {
		return Result{}, err
	}

	if c.evaluate {
		density, err := driver.Evaluate(ctx)
		if err != nil {
			return Result{}, err
		}
		res.Density = &density
		log.Info("run finished", zap.Duration("took", time.Since(start)))
		return res, nil
	}

	res.Joins = make(map[string][]join.StageStats, len(Algorithms))
	pipeline := &join.Pipeline{Store: c.store, Logger: log}
	for _, algo := range Algorithms {
		stats, err := pipeline.Run(ctx, algo)
		if err != nil {
			return Result{}, fmt.Errorf("join: %w", err)
		}
		res.Joins[algo] = stats
	}

	labeler := &label.Engine{
		Mode:        c.mode,
		Topic:       c.topic,
		Fingerprint: c.fingerprint,
		Categorizer: c.categorizer,
		Store:       c.store,
		Workers:     c.labelers,
		Logger:      log,
	}
	if res.Labels, err = labeler.Run(ctx); err != nil {
		return Result{}, err
	}

	exporter := &export.Exporter{
		Store:   c.store,
		Home:    c.home,
		Workers: c.exporters,
		Cards:   c.cards,
		Logger:  log,
	}
	if res.Export, err = exporter.Run(ctx); err != nil {
		return Result{}, err
	}

	log.Info("run finished",
		zap.Int("rows", res.Rows),
		zap.Int("clusters", res.Export.Clusters),
		zap.Duration("took", time.Since(start)))
	return res, nil
}
