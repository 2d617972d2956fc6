// Package layout names the directories of a working root and resolves where
// that root lives.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Top-level directories of the working root.
const (
	Raw           = "raw"
	Sequence      = "sequence"
	Sparse        = "sparse"
	KMeans        = "kmeans"
	FuzzyKMeans   = "fkmeans"
	Evaluation    = "evaluation"
	Result        = "result"
	MRJobs        = "mr_jobs"
	TopicModel    = "topmodel"
	NamedClusters = "named_clusters"
)

// Record streams produced by the splitter.
var (
	KeywordsText = store.Join(Sequence, "output")
	KeywordsLong = store.Join(Sequence, "outputLong")
	Authors      = store.Join(Sequence, "outputAuthors")
)

// Raw disjoin files, relative to the local root.
const (
	RawKeywords = "keywords.csv"
	RawAuthors  = "authors.csv"
)

// Engine outputs.
var (
	TFIDFVectors = store.Join(Sparse, "tfidf-vectors")
	Dictionary   = store.Join(Sparse, "dictionary.file-0")
	Seeds        = store.Join(KMeans, "seed")
	Density      = store.Join(Evaluation, "density")
)

// ClusteredPoints is the point assignment directory of a clustering output.
func ClusteredPoints(algorithm string) string {
	return store.Join(algorithm, "clusteredPoints")
}

// Join pipeline directories for one algorithm.
func JobDir(algorithm string) string { return store.Join(MRJobs, algorithm) }

func PointsToClusters(algorithm string) string {
	return store.Join(JobDir(algorithm), "points_to_clusters")
}

func ClusteredKeywords(algorithm string) string {
	return store.Join(JobDir(algorithm), "clusteredKeywords")
}

func ClusteredData(algorithm string) string {
	return store.Join(JobDir(algorithm), "clusteredData")
}

func SortDir(algorithm string) string { return store.Join(JobDir(algorithm), "sort") }

// SortPart names the sorted file holding one cluster.
func SortPart(algorithm string, clusterID int64) string {
	return store.Join(SortDir(algorithm), fmt.Sprintf("part-%d", clusterID))
}

// NamedCluster is the labeled output of one cluster.
func NamedCluster(algorithm, clusterID string) string {
	return store.Join(NamedClusters, algorithm, clusterID)
}

// TopicDocuments holds the enriched documents fed to the labeler.
func TopicDocuments(algorithm, clusterID string) string {
	return store.Join(TopicModel, "documents", algorithm, clusterID)
}

// TopicLabel records the label chosen for one cluster.
func TopicLabel(algorithm, clusterID string) string {
	return store.Join(TopicModel, "labels", algorithm, clusterID)
}

// ResultDir is the local export directory of one cluster.
func ResultDir(home, algorithm, clusterID string) string {
	return filepath.Join(home, Result, algorithm, clusterID)
}

// EnvHome overrides the working root.
const EnvHome = "KODAR_HOME"

// ResolveHome picks the working root: $KODAR_HOME, then configured, then
// <cwd>/target/kodar_home. The directory is created when absent.
func ResolveHome(configured string) (string, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		home = configured
	}
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working root: %w", err)
		}
		home = filepath.Join(cwd, "target", "kodar_home")
	}
	abs, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("resolve working root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create working root: %w", err)
	}
	return abs, nil
}
