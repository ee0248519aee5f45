package queryplan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func colOf(t *testing.T, op Operator, name string) int {
	t.Helper()
	binding, ok := op.VariableColumns()[name]
	require.True(t, ok, "expected variable %q to be bound", name)
	return binding.Column
}

func TestJoinPlanMatchesOnSharedVariable(t *testing.T) {
	left := &ValuesPlan{
		Width:     2,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}, "p": {Column: 1, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1), vid(10)}, {vid(2), vid(20)}},
	}
	right := &ValuesPlan{
		Width:     2,
		Variables: map[string]ColumnBinding{"p": {Column: 0, AlwaysDefined: true}, "o": {Column: 1, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(10), vid(100)}, {vid(99), vid(999)}},
	}
	j := &JoinPlan{Left: left, Right: right}
	require.Equal(t, 3, j.ResultWidth())

	f := drain(t, j)
	require.Equal(t, 1, f.RowCount())
	require.Equal(t, vid(1), f.At(0, colOf(t, j, "s")))
	require.Equal(t, vid(10), f.At(0, colOf(t, j, "p")))
	require.Equal(t, vid(100), f.At(0, colOf(t, j, "o")))
}

func TestJoinPlanWithNoSharedVariablesIsCartesian(t *testing.T) {
	left := &ValuesPlan{Width: 1, Variables: map[string]ColumnBinding{"a": {Column: 0}}, Rows: [][]valueid.ValueId{{vid(1)}, {vid(2)}}}
	right := &ValuesPlan{Width: 1, Variables: map[string]ColumnBinding{"b": {Column: 0}}, Rows: [][]valueid.ValueId{{vid(10)}, {vid(20)}, {vid(30)}}}
	j := &JoinPlan{Left: left, Right: right}
	f := drain(t, j)
	require.Equal(t, 6, f.RowCount())
}

func TestFilterPlanKeepsOnlyMatchingRows(t *testing.T) {
	input := &ValuesPlan{
		Width:     1,
		Variables: map[string]ColumnBinding{"n": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1)}, {vid(2)}, {vid(3)}},
	}
	alwaysTrue := &ValuesPlan{Width: 1}
	_ = alwaysTrue
	f := &FilterPlan{Input: input, Expr: nil, label: "none"}
	// A nil expression evaluates every row to Undefined/false via EvalBool's
	// error path, so the filter should drop every row.
	out := drain(t, f)
	require.Equal(t, 0, out.RowCount())
}

func TestOptionalPlanPadsUnmatchedLeftRows(t *testing.T) {
	left := &ValuesPlan{
		Width:     1,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1)}, {vid(2)}},
	}
	right := &ValuesPlan{
		Width:     2,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}, "o": {Column: 1, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1), vid(100)}},
	}
	opt := &OptionalPlan{Left: left, Right: right}
	f := drain(t, opt)
	require.Equal(t, 2, f.RowCount())

	sCol := colOf(t, opt, "s")
	oCol := colOf(t, opt, "o")
	var sawMatch, sawPad bool
	for r := 0; r < f.RowCount(); r++ {
		if f.At(r, sCol) == vid(1) {
			require.Equal(t, vid(100), f.At(r, oCol))
			sawMatch = true
		}
		if f.At(r, sCol) == vid(2) {
			require.Equal(t, valueid.UndefinedId, f.At(r, oCol))
			sawPad = true
		}
	}
	require.True(t, sawMatch)
	require.True(t, sawPad)
}

func TestMinusPlanRemovesCompatibleRows(t *testing.T) {
	left := &ValuesPlan{
		Width:     1,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1)}, {vid(2)}},
	}
	right := &ValuesPlan{
		Width:     1,
		Variables: map[string]ColumnBinding{"s": {Column: 0, AlwaysDefined: true}},
		Rows:      [][]valueid.ValueId{{vid(1)}},
	}
	m := &MinusPlan{Left: left, Right: right}
	f := drain(t, m)
	require.Equal(t, 1, f.RowCount())
	require.Equal(t, vid(2), f.At(0, 0))
}

func TestProjectionPlanReordersAndDrops(t *testing.T) {
	input := &ValuesPlan{
		Width: 3,
		Variables: map[string]ColumnBinding{
			"s": {Column: 0, AlwaysDefined: true},
			"p": {Column: 1, AlwaysDefined: true},
			"o": {Column: 2, AlwaysDefined: true},
		},
		Rows: [][]valueid.ValueId{{vid(1), vid(2), vid(3)}},
	}
	proj := &ProjectionPlan{Input: input, Variables: []string{"o", "s"}}
	f := drain(t, proj)
	require.Equal(t, 2, proj.ResultWidth())
	require.Equal(t, vid(3), f.At(0, 0))
	require.Equal(t, vid(1), f.At(0, 1))
}

func TestOrderByPlanSortsAscendingAndDescending(t *testing.T) {
	input := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(3)}, {vid(1)}, {vid(2)}}}
	asc := &OrderByPlan{Input: input, Keys: []OrderKey{{Column: 0, Ascending: true}}}
	f := drain(t, asc)
	require.Equal(t, vid(1), f.At(0, 0))
	require.Equal(t, vid(2), f.At(1, 0))
	require.Equal(t, vid(3), f.At(2, 0))

	desc := &OrderByPlan{Input: input, Keys: []OrderKey{{Column: 0, Ascending: false}}}
	f = drain(t, desc)
	require.Equal(t, vid(3), f.At(0, 0))
}

func TestLimitAndOffsetPlans(t *testing.T) {
	input := &ValuesPlan{Width: 1, Rows: [][]valueid.ValueId{{vid(1)}, {vid(2)}, {vid(3)}, {vid(4)}}}
	limit := &LimitPlan{Input: input, N: 2}
	f := drain(t, limit)
	require.Equal(t, 2, f.RowCount())
	require.Equal(t, vid(1), f.At(0, 0))

	offset := &OffsetPlan{Input: input, N: 2}
	f = drain(t, offset)
	require.Equal(t, 2, f.RowCount())
	require.Equal(t, vid(3), f.At(0, 0))

	require.True(t, (&LimitPlan{Input: input, N: 0}).KnownEmptyResult())
}
