package prefilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func vid(n int64) valueid.ValueId {
	v, err := valueid.FromInt(n)
	if err != nil {
		panic(err)
	}
	return v
}

func key(a, b, c int64) permutation.TripleKey {
	return permutation.TripleKey{vid(a), vid(b), vid(c)}
}

// n single-row blocks on column 0: values 0..n-1.
func makeBlocks(n int) []permutation.Block {
	blocks := make([]permutation.Block, n)
	for i := 0; i < n; i++ {
		blocks[i] = permutation.Block{
			BlockIndex: uint64(i),
			First:      key(int64(i), 0, 0),
			Last:       key(int64(i), 0, 0),
		}
	}
	return blocks
}

func indexesOf(blocks []permutation.Block) []uint64 {
	out := make([]uint64, len(blocks))
	for i, b := range blocks {
		out[i] = b.BlockIndex
	}
	return out
}

func TestRelationalLT(t *testing.T) {
	blocks := makeBlocks(10)
	expr := NewRelational(LT, vid(4))
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3}, indexesOf(got))
}

func TestRelationalGE(t *testing.T) {
	blocks := makeBlocks(10)
	expr := NewRelational(GE, vid(7))
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{7, 8, 9}, indexesOf(got))
}

func TestRelationalEQKeepsSingleMatchingBlock(t *testing.T) {
	blocks := makeBlocks(10)
	expr := NewRelational(EQ, vid(5))
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, indexesOf(got))
}

func TestRelationalEQKeepsBlockWhoseRangeStraddlesReference(t *testing.T) {
	blocks := []permutation.Block{
		{BlockIndex: 0, First: key(0, 0, 0), Last: key(10, 0, 0)},
		{BlockIndex: 1, First: key(11, 0, 0), Last: key(20, 0, 0)},
	}
	expr := NewRelational(EQ, vid(5))
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, indexesOf(got))
}

func TestRelationalNEExcludesOnlyExactBlock(t *testing.T) {
	blocks := makeBlocks(10)
	expr := NewRelational(NE, vid(5))
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 6, 7, 8, 9}, indexesOf(got))
}

func TestAndIsIntersection(t *testing.T) {
	blocks := makeBlocks(10)
	expr := &And{Left: NewRelational(GE, vid(3)), Right: NewRelational(LT, vid(7))}
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4, 5, 6}, indexesOf(got))
}

func TestOrIsUnionSortedAndDeduped(t *testing.T) {
	blocks := makeBlocks(10)
	expr := &Or{Left: NewRelational(LT, vid(2)), Right: NewRelational(GE, vid(8))}
	got, err := expr.Evaluate(blocks, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 8, 9}, indexesOf(got))
}

func TestNotCancelsOnDoubleApplication(t *testing.T) {
	inner := NewRelational(LT, vid(5))
	notNot := &Not{Inner: &Not{Inner: inner}}
	require.True(t, notNot.LogicalComplement().Equal(&Not{Inner: inner}))
}

func TestDeMorganOnAndOr(t *testing.T) {
	a := NewRelational(LT, vid(5))
	b := NewRelational(GE, vid(2))

	and := &And{Left: a, Right: b}
	or := &Or{Left: a.LogicalComplement(), Right: b.LogicalComplement()}
	require.True(t, and.LogicalComplement().Equal(or))
}

func TestComparatorComplementIsInvolutive(t *testing.T) {
	for _, c := range []Comparator{LT, LE, EQ, NE, GE, GT} {
		require.Equal(t, c, c.Complement().Complement())
	}
}

func TestEvaluateRejectsUnsortedBlocks(t *testing.T) {
	blocks := makeBlocks(3)
	blocks[0], blocks[1] = blocks[1], blocks[0]
	expr := NewRelational(LT, vid(2))
	_, err := expr.Evaluate(blocks, 0)
	require.Error(t, err)
}
