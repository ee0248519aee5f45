package queryplan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/deltatriples"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/matview"
	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/textindex"
	"github.com/aleksaelezovic/trigo/internal/transitivepath"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func vid(n int64) valueid.ValueId {
	v, err := valueid.FromInt(n)
	if err != nil {
		panic(err)
	}
	return v
}

func drain(t *testing.T, op Operator) idtable.Fragment {
	t.Helper()
	stream, err := op.Compute(context.Background())
	require.NoError(t, err)
	fragment, _, err := idtable.Collect(context.Background(), stream)
	require.NoError(t, err)
	return fragment
}

func TestValuesPlanRoundTrips(t *testing.T) {
	p := &ValuesPlan{
		Width:     2,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1), vid(2)}, {vid(3), vid(4)}},
	}
	require.Equal(t, int64(2), p.SizeEstimate())
	require.False(t, p.KnownEmptyResult())

	f := drain(t, p)
	require.Equal(t, 2, f.RowCount())
	require.Equal(t, vid(3), f.At(1, 0))
}

func TestValuesPlanEmptyIsKnownEmpty(t *testing.T) {
	p := &ValuesPlan{Width: 1}
	require.True(t, p.KnownEmptyResult())
}

func TestUnionPlanConcatenatesBothChildren(t *testing.T) {
	left := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}}}
	right := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(2)}, {vid(3)}}}
	u := &UnionPlan{Left: left, Right: right}

	require.Equal(t, int64(3), u.SizeEstimate())
	f := drain(t, u)
	require.Equal(t, 3, f.RowCount())
	require.Equal(t, vid(1), f.At(0, 0))
	require.Equal(t, vid(3), f.At(2, 0))
}

func TestUnionPlanKnownEmptyOnlyWhenBothChildrenAre(t *testing.T) {
	empty := &ValuesPlan{Width: 1}
	nonEmpty := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}}}
	require.True(t, (&UnionPlan{Left: empty, Right: empty}).KnownEmptyResult())
	require.False(t, (&UnionPlan{Left: empty, Right: nonEmpty}).KnownEmptyResult())
}

func TestDistinctPlanDropsDuplicateRows(t *testing.T) {
	input := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}, {vid(1)}, {vid(2)}}}
	d := &DistinctPlan{Input: input}

	f := drain(t, d)
	require.Equal(t, 2, f.RowCount())
}

func TestBindPlanAppendsComputedColumn(t *testing.T) {
	input := &ValuesPlan{
		Width:     1,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1)}, {vid(2)}},
	}
	double := func(row []valueid.ValueId) valueid.ValueId {
		n, _ := valueid.FromInt(int64(row[0])*0 + 2) // stand-in computed value
		return n
	}
	b := NewBindPlan(input, "doubled", double, "doubled=2")

	require.Equal(t, 2, b.ResultWidth())
	cols := b.VariableColumns()
	require.Equal(t, 1, cols["doubled"].Column)

	f := drain(t, b)
	require.Equal(t, 2, f.RowCount())
	require.Equal(t, vid(2), f.At(0, 1))
}

func TestCacheKeyIsStableAndDiscriminating(t *testing.T) {
	a := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}}}
	b := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}}}
	c := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(2)}}}

	require.Equal(t, a.CacheKey(), b.CacheKey())
	require.NotEqual(t, a.CacheKey(), c.CacheKey())
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	p := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}}}
	clone := p.Clone().(*ValuesPlan)
	clone.Rows[0][0] = vid(99)

	require.Equal(t, vid(1), p.Rows[0][0])
}

func TestTransitivePathPlanProducesStartTargetPairs(t *testing.T) {
	plan, err := transitivepath.New(transitivepath.FixedSide(vid(1)), transitivepath.FreeSide(), 1, 2, nil)
	require.NoError(t, err)

	edges := []transitivepath.Edge{{From: vid(1), To: vid(2)}, {From: vid(2), To: vid(3)}}
	op := &TransitivePathPlan{
		Inner:    plan,
		Edges:    edges,
		Starts:   []valueid.ValueId{vid(1)},
		LeftVar:  "s",
		RightVar: "o",
	}

	require.Equal(t, 2, op.ResultWidth())
	f := drain(t, op)
	require.Equal(t, 2, f.RowCount())
}

func TestTransitivePathPlanKnownEmptyWithNoStarts(t *testing.T) {
	plan, err := transitivepath.New(transitivepath.FixedSide(vid(1)), transitivepath.FreeSide(), 1, 2, nil)
	require.NoError(t, err)
	op := &TransitivePathPlan{Inner: plan, LeftVar: "s", RightVar: "o"}
	require.True(t, op.KnownEmptyResult())
}

func TestTextIndexScanPlanFixedEntityNarrowsWidth(t *testing.T) {
	entity := vid(7)
	idx := textindex.Build([]textindex.Record{
		{TextRecord: vid(100), Entity: entity, Text: "red apple"},
	})
	op := &TextIndexScanPlan{Index: idx, Word: "red", FixedEntity: &entity, TextVar: "t"}

	require.Equal(t, 2, op.ResultWidth())
	f := drain(t, op)
	require.Equal(t, 1, f.RowCount())
}

func TestTextIndexScanPlanFreeEntityReturnsWidthThree(t *testing.T) {
	idx := textindex.Build([]textindex.Record{
		{TextRecord: vid(100), Entity: vid(7), Text: "red apple"},
	})
	op := &TextIndexScanPlan{Index: idx, Word: "red", TextVar: "t", EntityVar: "e"}
	require.Equal(t, 3, op.ResultWidth())
}

func TestMaterializedViewScanPlanExposesViewVariables(t *testing.T) {
	view := &matview.View{
		Predicates: matview.PredicatePair{P1: "p1", P2: "p2"},
		SubjectVar: "s", MidVar: "m", ObjectVar: "o",
	}
	op := &MaterializedViewScanPlan{
		View: view,
		Rows: [][3]valueid.ValueId{{vid(1), vid(2), vid(3)}},
	}

	cols := op.VariableColumns()
	require.Equal(t, 0, cols["s"].Column)
	require.Equal(t, 2, cols["o"].Column)

	f := drain(t, op)
	require.Equal(t, 1, f.RowCount())
	require.Equal(t, vid(2), f.At(0, 1))
}

func TestDeltaOverlayPlanAppliesInsertsAndDeletes(t *testing.T) {
	base := &ValuesPlan{Width: 3, Rows: [][]valueid.ValueId{
		{vid(1), vid(2), vid(3)},
		{vid(4), vid(5), vid(6)},
	}}

	dt := deltatriples.New()
	dt.Delete(permutation.TripleKey{vid(1), vid(2), vid(3)})
	dt.Insert(permutation.TripleKey{vid(7), vid(8), vid(9)})
	snap := dt.Snapshot()

	overlay := &DeltaOverlayPlan{Input: base, Snapshot: snap}
	f := drain(t, overlay)

	require.Equal(t, 2, f.RowCount())
	seen := map[int64]bool{}
	for r := 0; r < f.RowCount(); r++ {
		seen[int64(f.At(r, 0))] = true
	}
	require.False(t, seen[int64(vid(1))])
	require.True(t, seen[int64(vid(4))])
	require.True(t, seen[int64(vid(7))])
}

func TestDeltaOverlayPlanKnownEmptyRequiresNoInserts(t *testing.T) {
	base := &ValuesPlan{Width: 3}
	dt := deltatriples.New()
	overlay := &DeltaOverlayPlan{Input: base, Snapshot: dt.Snapshot()}
	require.True(t, overlay.KnownEmptyResult())

	dt.Insert(permutation.TripleKey{vid(1), vid(2), vid(3)})
	overlay2 := &DeltaOverlayPlan{Input: base, Snapshot: dt.Snapshot()}
	require.False(t, overlay2.KnownEmptyResult())
}
