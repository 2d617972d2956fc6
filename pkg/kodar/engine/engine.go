// Package engine drives the batch vectorization and clustering collaborator
// with the fixed job profiles of the pipeline and locates its outputs.
package engine

import (
	"context"
)

// Weighting selects the term weighting of Vectorize.
type Weighting string

const (
	WeightTF    Weighting = "tf"
	WeightTFIDF Weighting = "tfidf"
)

// Distance selects the distance measure of a clustering job.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceEuclidean Distance = "euclidean"
)

// VectorizeConfig turns a text-keyed record stream into weighted vectors.
type VectorizeConfig struct {
	Input             string
	Output            string
	MinDocFreq        int
	MaxDocFreqPercent int
	NGramSize         int
	Weighting         Weighting
	Normalize         bool
	Overwrite         bool
}

// HardClusterConfig configures a k-means run.
type HardClusterConfig struct {
	Input            string
	Output           string
	Seeds            string
	K                int
	Distance         Distance
	MaxIterations    int
	ConvergenceDelta float64 // 0 selects the engine default
	Overwrite        bool
}

// FuzzyClusterConfig configures a fuzzy k-means run seeded from an existing
// partition.
type FuzzyClusterConfig struct {
	Input                string
	Output               string
	Seeds                string
	Fuzziness            float64
	Distance             Distance
	MaxIterations        int
	ConvergenceThreshold float64
	EmitMostLikely       bool
	Overwrite            bool
}

// Engine is the batch clustering collaborator. Implementations read and
// write records through a store and follow the output naming contract:
//
//	<vectorize out>/tfidf-vectors/part-r-00000   (Text docName, "idx:weight ...")
//	<vectorize out>/dictionary.file-0            (Text term, Long index)
//	<cluster out>/clusters-<i>[-final]/part-r-00000  (Long clusterId, centroid)
//	<cluster out>/clusteredPoints/part-m-0       (Long clusterId, Text docName)
type Engine interface {
	Vectorize(ctx context.Context, cfg VectorizeConfig) error
	HardCluster(ctx context.Context, cfg HardClusterConfig) error
	FuzzyCluster(ctx context.Context, cfg FuzzyClusterConfig) error
	// EvaluateDensity returns the inter-cluster density of the partition
	// stored at dir.
	EvaluateDensity(ctx context.Context, dir string) (float64, error)
}

// Density holds the inter-cluster density of both algorithms.
type Density struct {
	Hard  float64
	Fuzzy float64
}
