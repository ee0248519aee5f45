package transitivepath

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/config"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func vid(n int64) valueid.ValueId {
	v, err := valueid.FromInt(n)
	if err != nil {
		panic(err)
	}
	return v
}

// chain: 1 -> 2 -> 3 -> 4
func chainEdges() []Edge {
	return []Edge{
		{From: vid(1), To: vid(2)},
		{From: vid(2), To: vid(3)},
		{From: vid(3), To: vid(4)},
	}
}

func targetsOf(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		v, _ := r.Target.Int()
		out[i] = v
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestBFSHullReachabilityMatchesBinarySearchVariant(t *testing.T) {
	edges := chainEdges()

	bfsCfg := config.Default()
	bfsCfg.UseBinSearchTransitivePath = false
	binCfg := config.Default()
	binCfg.UseBinSearchTransitivePath = true

	for _, cfg := range []*config.Config{bfsCfg, binCfg} {
		plan, err := New(FreeSide(), FreeSide(), 1, 3, cfg)
		require.NoError(t, err)
		rows, err := plan.Compute(context.Background(), edges, []valueid.ValueId{vid(1)})
		require.NoError(t, err)
		require.Equal(t, []int64{2, 3, 4}, targetsOf(rows))
	}
}

func TestMinDistZeroIncludesStartNode(t *testing.T) {
	plan, err := New(FreeSide(), FreeSide(), 0, 1, config.Default())
	require.NoError(t, err)
	rows, err := plan.Compute(context.Background(), chainEdges(), []valueid.ValueId{vid(1)})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, targetsOf(rows))
}

func TestBothFixedDistinctLiftsMinDistToOne(t *testing.T) {
	plan, err := New(FixedSide(vid(1)), FixedSide(vid(2)), 0, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, 1, plan.MinDist)
}

func TestBothFreeUnboundAttachesEmptyPathSide(t *testing.T) {
	plan, err := New(FreeSide(), FreeSide(), 0, 5, config.Default())
	require.NoError(t, err)
	require.True(t, plan.EmitEmptyPathSide)
}

func TestOneFixedOneFreeUsesSingleRowValuesJoin(t *testing.T) {
	plan, err := New(FixedSide(vid(1)), FreeSide(), 0, 5, config.Default())
	require.NoError(t, err)
	require.True(t, plan.SingleRowValuesJoin)
}

func TestDirectionPrefersBoundOrFixedLeft(t *testing.T) {
	plan, err := New(FixedSide(vid(1)), FreeSide(), 1, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, LeftToRight, plan.Direction)

	plan2, err := New(FreeSide(), FixedSide(vid(1)), 1, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, RightToLeft, plan2.Direction)
}

func TestSizeEstimateFixedSideIsHeuristicConstant(t *testing.T) {
	plan, err := New(FixedSide(vid(1)), FreeSide(), 1, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, config.Default().TransitivePathFixedSizeEstimate, plan.SizeEstimate(999))
}

func TestSizeEstimateBothFreeScalesWithSubtree(t *testing.T) {
	plan, err := New(FreeSide(), FreeSide(), 1, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, config.Default().TransitivePathBlowupFactor*7, plan.SizeEstimate(7))
}

func TestCostEstimateAddsChildrenCosts(t *testing.T) {
	plan, err := New(FixedSide(vid(1)), FreeSide(), 1, 5, config.Default())
	require.NoError(t, err)
	require.Equal(t, plan.SizeEstimate(0)+42, plan.CostEstimate(0, 42))
}

func TestBindLeftSideDropsUndefinedRows(t *testing.T) {
	plan, err := New(FreeSide(), FreeSide(), 1, 3, config.Default())
	require.NoError(t, err)
	rebound, rows := plan.BindLeftSide([]valueid.ValueId{vid(1), valueid.UndefinedId, vid(2)})
	require.Equal(t, []valueid.ValueId{vid(1), vid(2)}, rows)
	require.True(t, rebound.Left.IsBound)
	require.Equal(t, LeftToRight, rebound.Direction)
}

func TestRejectsInvertedDistanceBounds(t *testing.T) {
	_, err := New(FreeSide(), FreeSide(), 5, 1, config.Default())
	require.Error(t, err)
}
