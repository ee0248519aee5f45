// Package permutation describes the sorted-run block metadata shared by
// the six SPO/SOP/PSO/POS/OSP/OPS permutations and consumed by prefilter
// pushdown and index scans.
package permutation

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// Permutation names one of the six sort orders of the triple store.
type Permutation int

const (
	SPO Permutation = iota
	SOP
	PSO
	POS
	OSP
	OPS
)

func (p Permutation) String() string {
	return [...]string{"SPO", "SOP", "PSO", "POS", "OSP", "OPS"}[p]
}

// TripleKey is the three-column-id boundary of a block, in the
// permutation's own column order.
type TripleKey [3]valueid.ValueId

// Compare orders two TripleKeys lexicographically column by column.
func (k TripleKey) Compare(other TripleKey) int {
	for i := 0; i < 3; i++ {
		if c := valueid.Compare(k[i], other[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Less reports whether k sorts strictly before other.
func (k TripleKey) Less(other TripleKey) bool {
	return k.Compare(other) < 0
}

// Block is a contiguous sorted run within a permutation: the unit of
// prefilter pruning (spec.md §3, §6).
type Block struct {
	BlockIndex uint64
	First      TripleKey
	Last       TripleKey
	ByteOffset int64
	ByteLength int64
}

// ValidateBlocks checks the invariants spec.md §3/§4.4 require before any
// prefilter expression may evaluate against blocks: blocks are unique and
// strictly ordered by BlockIndex; for consecutive blocks, Last(b1) <
// First(b2) on the full 3-tuple; and, up to evalCol, all four boundary
// tuples of any adjacent pair agree column by column (column-consistency).
// A violation is a programmer invariant breach, not a recoverable error.
func ValidateBlocks(blocks []Block, evalCol int) error {
	if evalCol < 0 || evalCol > 2 {
		return fmt.Errorf("permutation: invalid evalCol %d", evalCol)
	}
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if cur.BlockIndex <= prev.BlockIndex {
			return fmt.Errorf("permutation: blocks not strictly ordered by index at %d (%d <= %d)",
				i, cur.BlockIndex, prev.BlockIndex)
		}
		if !prev.Last.Less(cur.First) {
			return fmt.Errorf("permutation: block %d overlaps block %d", prev.BlockIndex, cur.BlockIndex)
		}
		for col := 0; col < evalCol; col++ {
			if valueid.Compare(prev.First[col], cur.First[col]) != 0 ||
				valueid.Compare(prev.First[col], prev.Last[col]) != 0 ||
				valueid.Compare(prev.First[col], cur.Last[col]) != 0 {
				return fmt.Errorf("permutation: blocks %d/%d are not column-consistent up to column %d",
					prev.BlockIndex, cur.BlockIndex, evalCol)
			}
		}
	}
	return nil
}

// IdAt returns the column value at evalCol for the block's first and last
// boundary triples, as prefilter evaluation consumes them.
func (b Block) IdAt(evalCol int) (first, last valueid.ValueId) {
	return b.First[evalCol], b.Last[evalCol]
}
