package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Job profiles.
const (
	DefaultMinDocFreq        = 2
	DefaultMaxDocFreqPercent = 60
	DefaultNGramSize         = 2
	DefaultMaxIterations     = 100
	DefaultFuzziness         = 1.8
	DefaultFuzzyConvergence  = 0.5
)

// FinalMarker is the substring that identifies the last clustering iteration.
const FinalMarker = "final"

// Driver invokes the engine with the pipeline's job profiles.
type Driver struct {
	Engine Engine
	Store  store.Store
	Logger *zap.Logger
}

func (d *Driver) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Driver) timed(stage string, fn func() error) error {
	start := time.Now()
	d.log().Info("stage started", zap.String("stage", stage))
	if err := fn(); err != nil {
		d.log().Error("stage failed", zap.String("stage", stage), zap.Error(err))
		return err
	}
	d.log().Info("stage finished", zap.String("stage", stage), zap.Duration("took", time.Since(start)))
	return nil
}

// VectorizeProfile is the fixed vectorization job.
func VectorizeProfile() VectorizeConfig {
	return VectorizeConfig{
		Input:             layout.KeywordsText,
		Output:            layout.Sparse,
		MinDocFreq:        DefaultMinDocFreq,
		MaxDocFreqPercent: DefaultMaxDocFreqPercent,
		NGramSize:         DefaultNGramSize,
		Weighting:         WeightTFIDF,
		Normalize:         true,
		Overwrite:         true,
	}
}

// HardClusterProfile is the fixed k-means job for k clusters.
func HardClusterProfile(k int) HardClusterConfig {
	return HardClusterConfig{
		Input:         layout.TFIDFVectors,
		Output:        layout.KMeans,
		Seeds:         layout.Seeds,
		K:             k,
		Distance:      DistanceCosine,
		MaxIterations: DefaultMaxIterations,
		Overwrite:     true,
	}
}

// FuzzyClusterProfile is the fixed fuzzy k-means job seeded from seeds.
func FuzzyClusterProfile(seeds string) FuzzyClusterConfig {
	return FuzzyClusterConfig{
		Input:                layout.TFIDFVectors,
		Output:               layout.FuzzyKMeans,
		Seeds:                seeds,
		Fuzziness:            DefaultFuzziness,
		Distance:             DistanceCosine,
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultFuzzyConvergence,
		EmitMostLikely:       true,
		Overwrite:            true,
	}
}

// Vectorize runs the vectorization job.
func (d *Driver) Vectorize(ctx context.Context) error {
	return d.timed("vectorize", func() error {
		return internalerr.Engine("vectorize", d.Engine.Vectorize(ctx, VectorizeProfile()))
	})
}

// ClusterHard runs k-means with k clusters.
func (d *Driver) ClusterHard(ctx context.Context, k int) error {
	return d.timed("kmeans", func() error {
		return internalerr.Engine("kmeans", d.Engine.HardCluster(ctx, HardClusterProfile(k)))
	})
}

// ClusterFuzzy runs fuzzy k-means seeded from the final k-means partition.
func (d *Driver) ClusterFuzzy(ctx context.Context) error {
	return d.timed("fkmeans", func() error {
		final, err := LocateFinalPartition(ctx, d.Store, layout.KMeans)
		if err != nil {
			return err
		}
		return internalerr.Engine("fkmeans", d.Engine.FuzzyCluster(ctx, FuzzyClusterProfile(final)))
	})
}

// Evaluate computes the inter-cluster density of both final partitions and
// records them under evaluation/density.
func (d *Driver) Evaluate(ctx context.Context) (Density, error) {
	var out Density
	err := d.timed("evaluate", func() error {
		for _, job := range []struct {
			dir string
			dst *float64
		}{
			{layout.KMeans, &out.Hard},
			{layout.FuzzyKMeans, &out.Fuzzy},
		} {
			final, err := LocateFinalPartition(ctx, d.Store, job.dir)
			if err != nil {
				return err
			}
			v, err := d.Engine.EvaluateDensity(ctx, final)
			if err != nil {
				return internalerr.Engine("evaluate "+job.dir, err)
			}
			*job.dst = v
		}

		if err := d.Store.Delete(ctx, layout.Evaluation); err != nil {
			return err
		}
		return store.WriteAll(ctx, d.Store, layout.Density, []record.Record{
			{Key: record.TextKey(layout.KMeans), Value: strconv.FormatFloat(out.Hard, 'g', -1, 64)},
			{Key: record.TextKey(layout.FuzzyKMeans), Value: strconv.FormatFloat(out.Fuzzy, 'g', -1, 64)},
		})
	})
	if err != nil {
		return Density{}, err
	}
	d.log().Info("inter-cluster density",
		zap.Float64("kmeans", out.Hard),
		zap.Float64("fkmeans", out.Fuzzy))
	return out, nil
}

// LocateFinalPartition returns the path of the first entry of dir, in listing
// order, whose name contains "final".
func LocateFinalPartition(ctx context.Context, s store.Store, dir string) (string, error) {
	entries, err := s.List(ctx, dir)
	if err != nil {
		if store.IsNotFound(err) {
			return "", &internalerr.NoFinalPartitionError{Dir: dir}
		}
		return "", err
	}
	if name, ok := FindFinal(names(entries)); ok {
		return store.Join(dir, name), nil
	}
	return "", &internalerr.NoFinalPartitionError{Dir: dir}
}

// FindFinal returns the first name containing "final".
func FindFinal(names []string) (string, bool) {
	for _, n := range names {
		if strings.Contains(n, FinalMarker) {
			return n, true
		}
	}
	return "", false
}

func names(entries []store.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
