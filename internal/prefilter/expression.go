// Package prefilter implements the predicate algebra used to prune
// permutation blocks before an IndexScan reads them: relational leaves
// over a reference ValueId, combined with And/Or/Not, each evaluating a
// sorted block list down to the subset that may still qualify
// (spec.md §4.4).
package prefilter

import (
	"fmt"
	"sort"

	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// Comparator names one of the six relational operators a leaf expression
// can test a column value against.
type Comparator int

const (
	LT Comparator = iota
	LE
	EQ
	NE
	GE
	GT
)

func (c Comparator) String() string {
	switch c {
	case LT:
		return "<"
	case LE:
		return "<="
	case EQ:
		return "=="
	case NE:
		return "!="
	case GE:
		return ">="
	case GT:
		return ">"
	default:
		return fmt.Sprintf("Comparator(%d)", int(c))
	}
}

// Complement returns the relational operator whose match set is the
// exact negation of c's (¬< = ≥, ¬= = ≠, …).
func (c Comparator) Complement() Comparator {
	switch c {
	case LT:
		return GE
	case LE:
		return GT
	case EQ:
		return NE
	case NE:
		return EQ
	case GE:
		return LT
	case GT:
		return LE
	default:
		panic(fmt.Sprintf("prefilter: unknown comparator %d", int(c)))
	}
}

// Expression is a node in the prefilter predicate tree: a leaf
// RelationalExpression or an internal And/Or/Not combinator.
type Expression interface {
	// Evaluate returns the sorted, duplicate-free subset of blocks that
	// may contain qualifying rows, reading each block's boundary ids at
	// evalCol.
	Evaluate(blocks []permutation.Block, evalCol int) ([]permutation.Block, error)

	// LogicalComplement returns a tree equivalent to the negation of
	// this one, via De Morgan and per-relation complement.
	LogicalComplement() Expression

	Clone() Expression
	Equal(other Expression) bool
	String() string
}

// checkEvalRequirements asserts blocks are unique, strictly ordered by
// BlockIndex, and column-consistent up to evalCol. A violation is a
// programmer bug, not a data error, so it is returned as a plain error
// for the caller to treat as fatal (spec.md §4.4 "a hard runtime error").
func checkEvalRequirements(blocks []permutation.Block, evalCol int) error {
	return permutation.ValidateBlocks(blocks, evalCol)
}

// idRange is a half-open-or-closed range of ids used internally to
// express what one relational comparator matches.
type idRange struct {
	Lo, Hi                 valueid.ValueId
	LoInclusive, HiInclusive bool
}

// getRangesForId returns the id range(s) that satisfy `col OP reference`.
// NE is the only comparator needing two disjoint ranges; every other
// comparator needs exactly one.
func getRangesForId(reference valueid.ValueId, cmp Comparator) []idRange {
	switch cmp {
	case LT:
		return []idRange{{Lo: valueid.MinValueId, Hi: reference, LoInclusive: true, HiInclusive: false}}
	case LE:
		return []idRange{{Lo: valueid.MinValueId, Hi: reference, LoInclusive: true, HiInclusive: true}}
	case EQ:
		return []idRange{{Lo: reference, Hi: reference, LoInclusive: true, HiInclusive: true}}
	case GE:
		return []idRange{{Lo: reference, Hi: valueid.MaxValueId, LoInclusive: true, HiInclusive: true}}
	case GT:
		return []idRange{{Lo: reference, Hi: valueid.MaxValueId, LoInclusive: false, HiInclusive: true}}
	case NE:
		return []idRange{
			{Lo: valueid.MinValueId, Hi: reference, LoInclusive: true, HiInclusive: false},
			{Lo: reference, Hi: valueid.MaxValueId, LoInclusive: false, HiInclusive: true},
		}
	default:
		panic(fmt.Sprintf("prefilter: unknown comparator %d", int(cmp)))
	}
}

// blockOverlapsRange reports whether block's boundary ids at evalCol can
// contain a value inside r. A block whose two boundary ids carry
// different datatype tags is always kept: its interior may straddle the
// range's datatype domain in a way the boundary comparison alone can't
// rule out. This direct per-block overlap test plays the role spec.md
// §4.4 describes as "map range bounds back to block indices": instead of
// flattening boundary ids into one vector and binary-searching it, each
// block is tested against the range directly, which also makes EQ's
// "keep a block when the reference lies strictly inside it" fall out of
// the inclusive-both-ends overlap test with no separate flag needed.
func blockOverlapsRange(block permutation.Block, evalCol int, r idRange) bool {
	first, last := block.IdAt(evalCol)
	if first.Tag() != last.Tag() {
		return true
	}

	cmpLastLo := valueid.Compare(last, r.Lo)
	below := cmpLastLo < 0 || (cmpLastLo == 0 && !r.LoInclusive)

	cmpFirstHi := valueid.Compare(first, r.Hi)
	above := cmpFirstHi > 0 || (cmpFirstHi == 0 && !r.HiInclusive)

	return !below && !above
}

func filterBlocksByRanges(blocks []permutation.Block, evalCol int, ranges []idRange) []permutation.Block {
	out := make([]permutation.Block, 0, len(blocks))
	for _, b := range blocks {
		for _, r := range ranges {
			if blockOverlapsRange(b, evalCol, r) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// RelationalExpression is a leaf predicate `col OP reference`.
type RelationalExpression struct {
	Comparator Comparator
	Reference  valueid.ValueId
}

// NewRelational builds a leaf expression.
func NewRelational(cmp Comparator, reference valueid.ValueId) *RelationalExpression {
	return &RelationalExpression{Comparator: cmp, Reference: reference}
}

func (e *RelationalExpression) Evaluate(blocks []permutation.Block, evalCol int) ([]permutation.Block, error) {
	if err := checkEvalRequirements(blocks, evalCol); err != nil {
		return nil, err
	}
	ranges := getRangesForId(e.Reference, e.Comparator)
	return filterBlocksByRanges(blocks, evalCol, ranges), nil
}

func (e *RelationalExpression) LogicalComplement() Expression {
	return &RelationalExpression{Comparator: e.Comparator.Complement(), Reference: e.Reference}
}

func (e *RelationalExpression) Clone() Expression {
	cp := *e
	return &cp
}

func (e *RelationalExpression) Equal(other Expression) bool {
	o, ok := other.(*RelationalExpression)
	return ok && o.Comparator == e.Comparator && o.Reference == e.Reference
}

func (e *RelationalExpression) String() string {
	return fmt.Sprintf("(col %s %d)", e.Comparator, uint64(e.Reference))
}

// And is the conjunction of two expressions.
type And struct {
	Left, Right Expression
}

func (e *And) Evaluate(blocks []permutation.Block, evalCol int) ([]permutation.Block, error) {
	left, err := e.Left.Evaluate(blocks, evalCol)
	if err != nil {
		return nil, err
	}
	return e.Right.Evaluate(left, evalCol)
}

func (e *And) LogicalComplement() Expression {
	return &Or{Left: e.Left.LogicalComplement(), Right: e.Right.LogicalComplement()}
}

func (e *And) Clone() Expression {
	return &And{Left: e.Left.Clone(), Right: e.Right.Clone()}
}

func (e *And) Equal(other Expression) bool {
	o, ok := other.(*And)
	return ok && e.Left.Equal(o.Left) && e.Right.Equal(o.Right)
}

func (e *And) String() string {
	return fmt.Sprintf("(%s AND %s)", e.Left, e.Right)
}

// Or is the disjunction of two expressions.
type Or struct {
	Left, Right Expression
}

func (e *Or) Evaluate(blocks []permutation.Block, evalCol int) ([]permutation.Block, error) {
	left, err := e.Left.Evaluate(blocks, evalCol)
	if err != nil {
		return nil, err
	}
	right, err := e.Right.Evaluate(blocks, evalCol)
	if err != nil {
		return nil, err
	}
	return unionSortedBlocks(left, right), nil
}

func (e *Or) LogicalComplement() Expression {
	return &And{Left: e.Left.LogicalComplement(), Right: e.Right.LogicalComplement()}
}

func (e *Or) Clone() Expression {
	return &Or{Left: e.Left.Clone(), Right: e.Right.Clone()}
}

func (e *Or) Equal(other Expression) bool {
	o, ok := other.(*Or)
	return ok && e.Left.Equal(o.Left) && e.Right.Equal(o.Right)
}

func (e *Or) String() string {
	return fmt.Sprintf("(%s OR %s)", e.Left, e.Right)
}

// Not is the negation of an expression. It never scans blocks itself:
// evaluating it rewrites the inner expression via LogicalComplement and
// evaluates that, so a double Not cancels rather than compounding.
type Not struct {
	Inner Expression
}

func (e *Not) Evaluate(blocks []permutation.Block, evalCol int) ([]permutation.Block, error) {
	return e.Inner.LogicalComplement().Evaluate(blocks, evalCol)
}

func (e *Not) LogicalComplement() Expression {
	return e.Inner.Clone()
}

func (e *Not) Clone() Expression {
	return &Not{Inner: e.Inner.Clone()}
}

func (e *Not) Equal(other Expression) bool {
	o, ok := other.(*Not)
	return ok && e.Inner.Equal(o.Inner)
}

func (e *Not) String() string {
	return fmt.Sprintf("(NOT %s)", e.Inner)
}

// unionSortedBlocks merges two already blockIndex-sorted, duplicate-free
// slices into one sorted, duplicate-free slice (spec.md §4.4
// "setUnion"), preserving the block-index order invariant prefilter
// output must uphold (spec.md §5).
func unionSortedBlocks(a, b []permutation.Block) []permutation.Block {
	out := make([]permutation.Block, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].BlockIndex < b[j].BlockIndex:
			out = append(out, a[i])
			i++
		case a[i].BlockIndex > b[j].BlockIndex:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// sortBlocksByIndex sorts blocks by BlockIndex in place. Evaluate never
// sorts its input; checkEvalRequirements rejects unsorted blocks.
func sortBlocksByIndex(blocks []permutation.Block) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].BlockIndex < blocks[j].BlockIndex })
}
