package local

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// FormatVector renders the non-zero entries of v as "idx:weight idx:weight".
func FormatVector(v []float64) string {
	var b strings.Builder
	for i, w := range v {
		if w == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(w, 'g', -1, 64))
	}
	return b.String()
}

// sparseEntry is one parsed "idx:weight" pair.
type sparseEntry struct {
	idx int
	w   float64
}

// parseVector parses the text form of a vector.
func parseVector(s string) ([]sparseEntry, error) {
	fields := strings.Fields(s)
	out := make([]sparseEntry, 0, len(fields))
	for _, f := range fields {
		i, w, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("vector entry %q: missing ':'", f)
		}
		idx, err := strconv.Atoi(i)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("vector entry %q: bad index", f)
		}
		weight, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, fmt.Errorf("vector entry %q: %w", f, err)
		}
		out = append(out, sparseEntry{idx: idx, w: weight})
	}
	return out, nil
}

// point is a named dense vector.
type point struct {
	name string
	vec  []float64
}

// readPoints loads every vector stored under p and densifies them to a common
// dimension of at least 1.
func readPoints(ctx context.Context, s store.Store, p string) ([]point, int, error) {
	type raw struct {
		name    string
		entries []sparseEntry
	}
	var raws []raw
	dim := 1
	err := store.ReadAll(ctx, s, p, func(r record.Record) error {
		entries, err := parseVector(r.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Key, err)
		}
		for _, e := range entries {
			dim = max(dim, e.idx+1)
		}
		raws = append(raws, raw{name: r.Key.String(), entries: entries})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	points := make([]point, len(raws))
	for i, r := range raws {
		v := make([]float64, dim)
		for _, e := range r.entries {
			v[e.idx] = e.w
		}
		points[i] = point{name: r.name, vec: v}
	}
	return points, dim, nil
}

// readCentroids loads a partition's centroids in cluster id order, padded to dim.
func readCentroids(ctx context.Context, s store.Store, dir string, dim int) ([]int64, [][]float64, error) {
	var ids []int64
	var centroids [][]float64
	err := store.ReadAll(ctx, s, dir, func(r record.Record) error {
		id, ok := r.Key.AsLong()
		if !ok {
			return fmt.Errorf("centroid key %q is not a cluster id", r.Key)
		}
		entries, err := parseVector(r.Value)
		if err != nil {
			return err
		}
		for _, e := range entries {
			dim = max(dim, e.idx+1)
		}
		c := make([]float64, dim)
		for _, e := range entries {
			c[e.idx] = e.w
		}
		ids = append(ids, id)
		centroids = append(centroids, c)
		return nil
	})
	for i := range centroids {
		if len(centroids[i]) < dim {
			centroids[i] = append(centroids[i], make([]float64, dim-len(centroids[i]))...)
		}
	}
	return ids, centroids, err
}

func writeCentroids(ctx context.Context, s store.Store, p string, ids []int64, centroids [][]float64) error {
	recs := make([]record.Record, len(centroids))
	for i, c := range centroids {
		recs[i] = record.Record{Key: record.LongKey(ids[i]), Value: FormatVector(c)}
	}
	return store.WriteAll(ctx, s, p, recs)
}

// distanceFunc returns the distance between two vectors of equal length.
type distanceFunc func(a, b []float64) float64

// cosineDistance is 1 - cos(a, b); a zero vector is at distance 1 from
// everything.
func cosineDistance(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - floats.Dot(a, b)/(na*nb)
	if d < 0 {
		return 0
	}
	return d
}

func euclideanDistance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func nearest(dist distanceFunc, v []float64, centroids [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for j, c := range centroids {
		if d := dist(v, c); d < bestD {
			best, bestD = j, d
		}
	}
	return best, bestD
}
