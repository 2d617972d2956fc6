package local

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/kodar/pkg/kodar/engine"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Clustering output names.
const (
	ClusteredPointsDir = "clusteredPoints"
	PointsPart         = "part-m-0"
	SeedPart           = "part-randomSeed"

	// DefaultConvergenceDelta applies when a k-means job leaves the delta at 0.
	DefaultConvergenceDelta = 0.001
)

var errNoVectors = errors.New("no input vectors")

// ClustersDir names the centroid directory of iteration i.
func ClustersDir(out string, i int, final bool) string {
	name := fmt.Sprintf("clusters-%d", i)
	if final {
		name += "-" + engine.FinalMarker
	}
	return store.Join(out, name)
}

func distanceFor(d engine.Distance) (distanceFunc, error) {
	switch d {
	case engine.DistanceCosine, "":
		return cosineDistance, nil
	case engine.DistanceEuclidean:
		return euclideanDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance measure %q", d)
	}
}

// moved is the distance a centroid travelled between two iterations.
func moved(dist distanceFunc, a, b []float64) float64 {
	if floats.Equal(a, b) {
		return 0
	}
	return dist(a, b)
}

// HardCluster implements engine.Engine with Lloyd's k-means. Seeds are the
// first K distinct input vectors, so runs are reproducible.
func (e *Engine) HardCluster(ctx context.Context, cfg engine.HardClusterConfig) error {
	if cfg.K < 1 {
		return fmt.Errorf("k must be positive, got %d", cfg.K)
	}
	dist, err := distanceFor(cfg.Distance)
	if err != nil {
		return err
	}
	delta := cfg.ConvergenceDelta
	if delta <= 0 {
		delta = DefaultConvergenceDelta
	}
	if cfg.Overwrite {
		if err := e.Store.Delete(ctx, cfg.Output); err != nil {
			return err
		}
	}

	points, _, err := readPoints(ctx, e.Store, cfg.Input)
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Input, err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%s: %w", cfg.Input, errNoVectors)
	}

	centroids := pickSeeds(points, cfg.K)
	ids := clusterIDs(len(centroids))
	if cfg.Seeds != "" {
		if err := writeCentroids(ctx, e.Store, store.Join(cfg.Seeds, SeedPart), ids, centroids); err != nil {
			return err
		}
	}
	if err := writeCentroids(ctx, e.Store, store.Join(ClustersDir(cfg.Output, 0, false), VectorsPart), ids, centroids); err != nil {
		return err
	}

	maxIter := max(cfg.MaxIterations, 1)
	assign := make([]int, len(points))
	for it := 1; ; it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, p := range points {
			assign[i], _ = nearest(dist, p.vec, centroids)
		}
		next := recompute(points, assign, centroids)
		converged := true
		for j := range next {
			if moved(dist, centroids[j], next[j]) > delta {
				converged = false
				break
			}
		}
		centroids = next

		final := converged || it >= maxIter
		if err := writeCentroids(ctx, e.Store, store.Join(ClustersDir(cfg.Output, it, final), VectorsPart), ids, centroids); err != nil {
			return err
		}
		if final {
			e.log().Debug("kmeans finished",
				zap.Int("k", len(centroids)),
				zap.Int("points", len(points)),
				zap.Int("iterations", it),
				zap.Bool("converged", converged))
			break
		}
	}

	for i, p := range points {
		assign[i], _ = nearest(dist, p.vec, centroids)
	}
	recs := make([]record.Record, len(points))
	for i, p := range points {
		recs[i] = record.Record{Key: record.LongKey(ids[assign[i]]), Value: p.name}
	}
	return e.writeClusteredPoints(ctx, cfg.Output, recs)
}

func (e *Engine) writeClusteredPoints(ctx context.Context, out string, recs []record.Record) error {
	dir := store.Join(out, ClusteredPointsDir)
	if err := store.WriteAll(ctx, e.Store, store.Join(dir, PointsPart), recs); err != nil {
		return err
	}
	if err := store.WriteMarker(ctx, e.Store, dir); err != nil {
		return err
	}
	return store.WriteMarker(ctx, e.Store, out)
}

// pickSeeds returns copies of the first k pairwise distinct vectors. Fewer
// are returned when the input has fewer distinct vectors.
func pickSeeds(points []point, k int) [][]float64 {
	var seeds [][]float64
	seen := make(map[string]bool)
	for _, p := range points {
		key := FormatVector(p.vec)
		if seen[key] {
			continue
		}
		seen[key] = true
		seeds = append(seeds, append([]float64(nil), p.vec...))
		if len(seeds) == k {
			break
		}
	}
	return seeds
}

// recompute averages the members of each cluster. A cluster that lost all
// its members keeps its previous centroid.
func recompute(points []point, assign []int, prev [][]float64) [][]float64 {
	dim := len(prev[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[assign[i]], p.vec)
		counts[assign[i]]++
	}
	for j := range sums {
		if counts[j] == 0 {
			copy(sums[j], prev[j])
			continue
		}
		floats.Scale(1/float64(counts[j]), sums[j])
	}
	return sums
}

func clusterIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}
