package permutation

import (
	"testing"

	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/stretchr/testify/require"
)

func vid(n int64) valueid.ValueId {
	v, err := valueid.FromInt(n)
	if err != nil {
		panic(err)
	}
	return v
}

func key(a, b, c int64) TripleKey {
	return TripleKey{vid(a), vid(b), vid(c)}
}

func TestValidateBlocksAcceptsWellFormed(t *testing.T) {
	blocks := []Block{
		{BlockIndex: 0, First: key(1, 1, 1), Last: key(1, 1, 10)},
		{BlockIndex: 1, First: key(1, 1, 11), Last: key(1, 1, 20)},
	}
	require.NoError(t, ValidateBlocks(blocks, 2))
}

func TestValidateBlocksRejectsOutOfOrderIndex(t *testing.T) {
	blocks := []Block{
		{BlockIndex: 1, First: key(1, 1, 1), Last: key(1, 1, 10)},
		{BlockIndex: 0, First: key(1, 1, 11), Last: key(1, 1, 20)},
	}
	require.Error(t, ValidateBlocks(blocks, 2))
}

func TestValidateBlocksRejectsOverlap(t *testing.T) {
	blocks := []Block{
		{BlockIndex: 0, First: key(1, 1, 1), Last: key(1, 1, 15)},
		{BlockIndex: 1, First: key(1, 1, 10), Last: key(1, 1, 20)},
	}
	require.Error(t, ValidateBlocks(blocks, 2))
}

func TestValidateBlocksRejectsColumnInconsistency(t *testing.T) {
	blocks := []Block{
		{BlockIndex: 0, First: key(1, 1, 1), Last: key(1, 1, 10)},
		{BlockIndex: 1, First: key(2, 1, 11), Last: key(2, 1, 20)},
	}
	// evalCol=2 requires columns 0 and 1 to be consistent across blocks.
	require.Error(t, ValidateBlocks(blocks, 2))
	// evalCol=0 doesn't require column 0 to match.
	require.NoError(t, ValidateBlocks(blocks, 0))
}
