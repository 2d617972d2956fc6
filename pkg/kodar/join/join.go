// Package join reassembles clustering output with the source records: points
// are mapped to clusters, joined with keywords and authors, then grouped into
// one sorted file per cluster.
package join

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// Part file names written by the stages.
const (
	MapPart    = "part-m-00000"
	ReducePart = "part-r-00000"
)

// StageStats counts the records a stage read and wrote.
type StageStats struct {
	Stage string
	In    int
	Out   int
}

// Pipeline runs the join stages for one clustering algorithm.
type Pipeline struct {
	Store  store.Store
	Logger *zap.Logger
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

type stage struct {
	name string
	run  func(context.Context, string) (StageStats, error)
}

// Run deletes mr_jobs/<algorithm> and runs the four stages in order. The
// first failing stage aborts the run.
func (p *Pipeline) Run(ctx context.Context, algorithm string) ([]StageStats, error) {
	if err := p.Store.Delete(ctx, layout.JobDir(algorithm)); err != nil {
		return nil, err
	}
	stages := []stage{
		{"points-to-clusters", p.MapPointsToClusters},
		{"join-keywords", p.JoinKeywords},
		{"join-authors", p.JoinAuthors},
		{"sort-and-group", p.SortAndGroup},
	}
	out := make([]StageStats, 0, len(stages))
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		start := time.Now()
		st, err := s.run(ctx, algorithm)
		if err != nil {
			p.log().Error("join stage failed",
				zap.String("algorithm", algorithm),
				zap.String("stage", s.name),
				zap.Error(err))
			return out, fmt.Errorf("%s %s: %w", algorithm, s.name, err)
		}
		st.Stage = s.name
		p.log().Info("join stage finished",
			zap.String("algorithm", algorithm),
			zap.String("stage", s.name),
			zap.Int("in", st.In),
			zap.Int("out", st.Out),
			zap.Duration("took", time.Since(start)))
		out = append(out, st)
	}
	return out, nil
}

// reset clears a stage's target directory.
func (p *Pipeline) reset(ctx context.Context, dir string) error {
	return p.Store.Delete(ctx, dir)
}

// finish writes the completion marker of a stage's directory.
func (p *Pipeline) finish(ctx context.Context, dir string) error {
	return store.WriteMarker(ctx, p.Store, dir)
}
