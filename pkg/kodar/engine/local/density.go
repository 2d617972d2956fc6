package local

import (
	"context"
	"fmt"
	"math"
)

// EvaluateDensity implements engine.Engine. The inter-cluster density is the
// mean pairwise cosine distance between centroids, scaled into [0, 1] by the
// smallest and largest pairwise distance. Partitions with fewer than two
// clusters, or whose distances are all equal, have density 0.
func (e *Engine) EvaluateDensity(ctx context.Context, dir string) (float64, error) {
	_, centroids, err := readCentroids(ctx, e.Store, dir, 1)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	return interClusterDensity(centroids), nil
}

func interClusterDensity(centroids [][]float64) float64 {
	if len(centroids) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	var n int
	for i := range centroids {
		for j := i + 1; j < len(centroids); j++ {
			d := cosineDistance(centroids[i], centroids[j])
			lo = math.Min(lo, d)
			hi = math.Max(hi, d)
			sum += d
			n++
		}
	}
	if hi == lo {
		return 0
	}
	return (sum/float64(n) - lo) / (hi - lo)
}
