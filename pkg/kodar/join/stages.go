package join

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/record"
	"github.com/cognicore/kodar/pkg/kodar/store"
)

// MapPointsToClusters turns the engine's (clusterId, pointName) output into
// (Long pointId, Text clusterId) records.
func (p *Pipeline) MapPointsToClusters(ctx context.Context, algorithm string) (StageStats, error) {
	dir := layout.PointsToClusters(algorithm)
	if err := p.reset(ctx, dir); err != nil {
		return StageStats{}, err
	}
	w, err := p.Store.Create(ctx, store.Join(dir, MapPart))
	if err != nil {
		return StageStats{}, err
	}
	var st StageStats
	err = store.ReadAll(ctx, p.Store, layout.ClusteredPoints(algorithm), func(r record.Record) error {
		st.In++
		pointID, ok := record.TextKey(r.Value).AsLong()
		if !ok {
			return &internalerr.MalformedInputError{Reason: fmt.Sprintf("point name %q is not a row id", r.Value)}
		}
		st.Out++
		return w.Write(record.LongKey(pointID), r.Key.String())
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return StageStats{}, err
	}
	return st, p.finish(ctx, dir)
}

// group collects values per cluster in order of first appearance.
type group struct {
	order  []int64
	blocks map[int64][]string
}

func newGroup() *group { return &group{blocks: make(map[int64][]string)} }

func (g *group) add(clusterID int64, blocks ...string) {
	if _, ok := g.blocks[clusterID]; !ok {
		g.order = append(g.order, clusterID)
	}
	g.blocks[clusterID] = append(g.blocks[clusterID], blocks...)
}

func (g *group) write(ctx context.Context, s store.Store, path string) (int, error) {
	var recs []record.Record
	for _, id := range g.order {
		if len(g.blocks[id]) == 0 {
			continue
		}
		recs = append(recs, record.Record{Key: record.LongKey(id), Value: record.JoinGroup(g.blocks[id])})
	}
	return len(recs), store.WriteAll(ctx, s, path, recs)
}

func parseClusterID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &internalerr.MalformedInputError{Reason: fmt.Sprintf("cluster id %q is not numeric", s)}
	}
	return id, nil
}

// JoinKeywords inner-joins the long-keyed keyword stream with the point
// assignments by row id. Each cluster becomes one record whose value holds
// a "<rowId> Content: <keywords>" block per member, in stream order.
func (p *Pipeline) JoinKeywords(ctx context.Context, algorithm string) (StageStats, error) {
	dir := layout.ClusteredKeywords(algorithm)
	if err := p.reset(ctx, dir); err != nil {
		return StageStats{}, err
	}

	assigned := make(map[int64]int64)
	err := store.ReadAll(ctx, p.Store, layout.PointsToClusters(algorithm), func(r record.Record) error {
		id, err := parseClusterID(r.Value)
		if err != nil {
			return err
		}
		if _, dup := assigned[r.Key.Long]; !dup {
			assigned[r.Key.Long] = id
		}
		return nil
	})
	if err != nil {
		return StageStats{}, err
	}

	var st StageStats
	g := newGroup()
	err = store.ReadAll(ctx, p.Store, layout.KeywordsLong, func(r record.Record) error {
		st.In++
		rowID, ok := r.Key.AsLong()
		if !ok {
			return &internalerr.MalformedInputError{Reason: fmt.Sprintf("keyword key %q is not a row id", r.Key)}
		}
		clusterID, ok := assigned[rowID]
		if !ok {
			return nil
		}
		kv, err := record.DecodeKeywordValue(r.Value)
		if err != nil {
			return err
		}
		g.add(clusterID, record.KeywordBlock(rowID, kv.Keywords))
		return nil
	})
	if err != nil {
		return StageStats{}, err
	}
	if st.Out, err = g.write(ctx, p.Store, store.Join(dir, ReducePart)); err != nil {
		return StageStats{}, err
	}
	return st, p.finish(ctx, dir)
}

// JoinAuthors appends the author record of every block's row id. Blocks
// without an author are dropped, and so are clusters left empty.
func (p *Pipeline) JoinAuthors(ctx context.Context, algorithm string) (StageStats, error) {
	dir := layout.ClusteredData(algorithm)
	if err := p.reset(ctx, dir); err != nil {
		return StageStats{}, err
	}

	authors := make(map[int64]record.AuthorValue)
	err := store.ReadAll(ctx, p.Store, layout.Authors, func(r record.Record) error {
		rowID, ok := r.Key.AsLong()
		if !ok {
			return &internalerr.MalformedInputError{Reason: fmt.Sprintf("author key %q is not a row id", r.Key)}
		}
		a, err := record.DecodeAuthorValue(r.Value)
		if err != nil {
			return err
		}
		authors[rowID] = a
		return nil
	})
	if err != nil {
		return StageStats{}, err
	}

	var st StageStats
	g := newGroup()
	err = store.ReadAll(ctx, p.Store, layout.ClusteredKeywords(algorithm), func(r record.Record) error {
		st.In++
		var merged []string
		for _, b := range record.SplitGroup(r.Value) {
			rowID, err := record.BlockRowID(b)
			if err != nil {
				return err
			}
			if a, ok := authors[rowID]; ok {
				merged = append(merged, record.WithAuthor(b, a))
			}
		}
		g.add(r.Key.Long, merged...)
		return nil
	})
	if err != nil {
		return StageStats{}, err
	}
	if st.Out, err = g.write(ctx, p.Store, store.Join(dir, ReducePart)); err != nil {
		return StageStats{}, err
	}
	return st, p.finish(ctx, dir)
}

// SortAndGroup stably partitions the clustered data by cluster id into
// sort/part-<clusterId>, keeping record order inside each group.
func (p *Pipeline) SortAndGroup(ctx context.Context, algorithm string) (StageStats, error) {
	dir := layout.SortDir(algorithm)
	if err := p.reset(ctx, dir); err != nil {
		return StageStats{}, err
	}

	var st StageStats
	groups := make(map[int64][]record.Record)
	err := store.ReadAll(ctx, p.Store, layout.ClusteredData(algorithm), func(r record.Record) error {
		st.In++
		id, ok := r.Key.AsLong()
		if !ok {
			return &internalerr.MalformedInputError{Reason: fmt.Sprintf("cluster key %q is not numeric", r.Key)}
		}
		groups[id] = append(groups[id], r)
		return nil
	})
	if err != nil {
		return StageStats{}, err
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := store.WriteAll(ctx, p.Store, layout.SortPart(algorithm, id), groups[id]); err != nil {
			return StageStats{}, err
		}
		st.Out += len(groups[id])
	}
	return st, p.finish(ctx, dir)
}
