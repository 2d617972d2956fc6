package local

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/kodar/pkg/kodar/engine"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// FuzzyCluster implements engine.Engine with fuzzy c-means seeded from the
// centroids stored at cfg.Seeds.
func (e *Engine) FuzzyCluster(ctx context.Context, cfg engine.FuzzyClusterConfig) error {
	if cfg.Fuzziness <= 1 {
		return fmt.Errorf("fuzziness must be greater than 1, got %g", cfg.Fuzziness)
	}
	dist, err := distanceFor(cfg.Distance)
	if err != nil {
		return err
	}

	points, dim, err := readPoints(ctx, e.Store, cfg.Input)
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Input, err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%s: %w", cfg.Input, errNoVectors)
	}
	// Seeds usually live under another job's output; read them before
	// clearing ours.
	ids, centroids, err := readCentroids(ctx, e.Store, cfg.Seeds, dim)
	if err != nil {
		return fmt.Errorf("read seeds %s: %w", cfg.Seeds, err)
	}
	if len(centroids) == 0 {
		return fmt.Errorf("seeds %s: no centroids", cfg.Seeds)
	}
	for i := range points {
		if len(points[i].vec) < len(centroids[0]) {
			points[i].vec = append(points[i].vec, make([]float64, len(centroids[0])-len(points[i].vec))...)
		}
	}
	if cfg.Overwrite {
		if err := e.Store.Delete(ctx, cfg.Output); err != nil {
			return err
		}
	}
	if err := writeCentroids(ctx, e.Store, store.Join(ClustersDir(cfg.Output, 0, false), VectorsPart), ids, centroids); err != nil {
		return err
	}

	maxIter := max(cfg.MaxIterations, 1)
	u := make([][]float64, len(points))
	for it := 1; ; it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, p := range points {
			u[i] = memberships(dist, p.vec, centroids, cfg.Fuzziness)
		}
		next := weightedCentroids(points, u, centroids, cfg.Fuzziness)
		shift := 0.0
		for j := range next {
			shift = math.Max(shift, moved(dist, centroids[j], next[j]))
		}
		centroids = next

		final := shift <= cfg.ConvergenceThreshold || it >= maxIter
		if err := writeCentroids(ctx, e.Store, store.Join(ClustersDir(cfg.Output, it, final), VectorsPart), ids, centroids); err != nil {
			return err
		}
		if final {
			e.log().Debug("fuzzy kmeans finished",
				zap.Int("clusters", len(centroids)),
				zap.Int("points", len(points)),
				zap.Int("iterations", it),
				zap.Float64("shift", shift))
			break
		}
	}

	var recs []record.Record
	for i, p := range points {
		m := memberships(dist, p.vec, centroids, cfg.Fuzziness)
		if cfg.EmitMostLikely {
			recs = append(recs, record.Record{Key: record.LongKey(ids[floats.MaxIdx(m)]), Value: p.name})
			continue
		}
		for j, w := range m {
			if w > 0 {
				recs = append(recs, record.Record{Key: record.LongKey(ids[j]), Value: p.name})
			}
		}
	}
	return e.writeClusteredPoints(ctx, cfg.Output, recs)
}

// memberships returns the degree to which v belongs to each centroid:
// u_j = 1 / sum_k (d_j/d_k)^(2/(m-1)). A point sitting on one or more
// centroids belongs to them in equal shares.
func memberships(dist distanceFunc, v []float64, centroids [][]float64, m float64) []float64 {
	d := make([]float64, len(centroids))
	var zero int
	for j, c := range centroids {
		d[j] = dist(v, c)
		if d[j] == 0 {
			zero++
		}
	}
	u := make([]float64, len(centroids))
	if zero > 0 {
		for j := range d {
			if d[j] == 0 {
				u[j] = 1 / float64(zero)
			}
		}
		return u
	}
	exp := 2 / (m - 1)
	for j := range d {
		var sum float64
		for k := range d {
			sum += math.Pow(d[j]/d[k], exp)
		}
		u[j] = 1 / sum
	}
	return u
}

// weightedCentroids recomputes each centroid as sum(u^m x) / sum(u^m).
func weightedCentroids(points []point, u [][]float64, prev [][]float64, m float64) [][]float64 {
	dim := len(prev[0])
	out := make([][]float64, len(prev))
	for j := range prev {
		c := make([]float64, dim)
		var norm float64
		for i, p := range points {
			w := math.Pow(u[i][j], m)
			if w == 0 {
				continue
			}
			floats.AddScaled(c, w, p.vec)
			norm += w
		}
		if norm == 0 {
			copy(c, prev[j])
		} else {
			floats.Scale(1/norm, c)
		}
		out[j] = c
	}
	return out
}
