package queryplan

// JoinPlan, FilterPlan, OptionalPlan, MinusPlan, ProjectionPlan,
// OrderByPlan, LimitPlan, and OffsetPlan round out the Operator set
// operator.go started: together with ScanPlan (internal/quadstore) they
// give the tree enough node types to execute a full SPARQL SELECT —
// basic graph pattern joins, FILTER, OPTIONAL, MINUS, SELECT projection,
// ORDER BY, and LIMIT/OFFSET — rather than stopping at the handful of
// specialised leaves (TransitivePath, TextIndexScan, ...) the teacher's
// gap-repair pass left as the only concrete nodes.

import (
	"context"
	"fmt"
	"sort"

	"github.com/aleksaelezovic/trigo/internal/exprvm"
	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

// JoinPlan is a hash join on the variables shared between Left and
// Right's VariableColumns. Left's columns come first in the output,
// followed by Right's columns for every variable Right doesn't share
// with Left.
type JoinPlan struct {
	Left, Right Operator
}

func (p *JoinPlan) operatorNode() {}

// sharedAndExtra returns the shared-variable join keys and Right's
// extra (non-shared) columns, in a stable order.
func (p *JoinPlan) sharedAndExtra() (shared []string, rightExtra []int, rightExtraVars []string) {
	leftVars := p.Left.VariableColumns()
	rightVars := p.Right.VariableColumns()
	names := make([]string, 0, len(rightVars))
	for name := range rightVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := leftVars[name]; ok {
			shared = append(shared, name)
		} else {
			rightExtra = append(rightExtra, rightVars[name].Column)
			rightExtraVars = append(rightExtraVars, name)
		}
	}
	return
}

func (p *JoinPlan) ResultWidth() int {
	_, rightExtra, _ := p.sharedAndExtra()
	return p.Left.ResultWidth() + len(rightExtra)
}

func (p *JoinPlan) ResultSortedOn() []int { return nil }

func (p *JoinPlan) VariableColumns() map[string]ColumnBinding {
	cols := make(map[string]ColumnBinding)
	for name, binding := range p.Left.VariableColumns() {
		cols[name] = binding
	}
	_, rightExtra, rightExtraVars := p.sharedAndExtra()
	base := p.Left.ResultWidth()
	for i, name := range rightExtraVars {
		binding := p.Right.VariableColumns()[name]
		cols[name] = ColumnBinding{Column: base + i, AlwaysDefined: binding.AlwaysDefined}
	}
	_ = rightExtra
	return cols
}

func (p *JoinPlan) CacheKey() string {
	return hashKey("Join", p.Left.CacheKey(), p.Right.CacheKey())
}

func (p *JoinPlan) SizeEstimate() int64 {
	l, r := p.Left.SizeEstimate(), p.Right.SizeEstimate()
	if l < r {
		return l
	}
	return r
}

func (p *JoinPlan) CostEstimate() int64 {
	return p.Left.CostEstimate() + p.Right.CostEstimate() + p.SizeEstimate()
}

func (p *JoinPlan) KnownEmptyResult() bool {
	return p.Left.KnownEmptyResult() || p.Right.KnownEmptyResult()
}

func (p *JoinPlan) Children() []Operator { return []Operator{p.Left, p.Right} }

func (p *JoinPlan) Clone() Operator {
	return &JoinPlan{Left: p.Left.Clone(), Right: p.Right.Clone()}
}

func (p *JoinPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	leftStream, err := p.Left.Compute(ctx)
	if err != nil {
		return nil, err
	}
	leftFragment, leftVocab, err := idtable.Collect(ctx, leftStream)
	if err != nil {
		return nil, err
	}
	rightStream, err := p.Right.Compute(ctx)
	if err != nil {
		return nil, err
	}
	rightFragment, rightVocab, err := idtable.Collect(ctx, rightStream)
	if err != nil {
		return nil, err
	}

	leftVars := p.Left.VariableColumns()
	rightVars := p.Right.VariableColumns()
	shared, rightExtra, _ := p.sharedAndExtra()

	width := p.Left.ResultWidth() + len(rightExtra)
	b := idtable.NewBuilder(width)

	// Index the right side by its join-key values.
	type bucket struct{ rows []int }
	index := make(map[string]*bucket)
	keyOf := func(fragment idtable.Fragment, row int, vars map[string]ColumnBinding) string {
		parts := make([]string, len(shared))
		for i, name := range shared {
			parts[i] = fmt.Sprintf("%d", uint64(fragment.At(row, vars[name].Column)))
		}
		return hashKey(parts...)
	}
	if len(shared) == 0 {
		// Cartesian product: treat every right row as matching.
	} else {
		for r := 0; r < rightFragment.RowCount(); r++ {
			k := keyOf(rightFragment, r, rightVars)
			bk := index[k]
			if bk == nil {
				bk = &bucket{}
				index[k] = bk
			}
			bk.rows = append(bk.rows, r)
		}
	}

	merged, offsets := localvocab.MergeAll([]*localvocab.LocalVocab{leftVocab, rightVocab})
	for l := 0; l < leftFragment.RowCount(); l++ {
		leftRow := leftFragment.Row(l)
		var candidateRows []int
		if len(shared) == 0 {
			candidateRows = make([]int, rightFragment.RowCount())
			for i := range candidateRows {
				candidateRows[i] = i
			}
		} else {
			k := keyOf(leftFragment, l, leftVars)
			if bk := index[k]; bk != nil {
				candidateRows = bk.rows
			}
		}
		for _, r := range candidateRows {
			out := append([]valueid.ValueId(nil), leftRow...)
			for _, col := range rightExtra {
				out = append(out, localvocab.Remap(rightFragment.At(r, col), offsets[1]))
			}
			b.AddRow(out)
		}
	}

	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: merged}}), nil
}

// FilterPlan keeps only the input rows for which Expr's effective
// boolean value is true, evaluated via internal/exprvm against the
// input's variable bindings.
type FilterPlan struct {
	Input Operator
	Expr  parser.Expression
	Vocab *globalvocab.Vocabulary
	label string
}

// NewFilterPlan builds a FilterPlan; label should uniquely describe expr
// for cache-key purposes (parser.Expression has no canonical string form).
func NewFilterPlan(input Operator, expr parser.Expression, vocab *globalvocab.Vocabulary, label string) *FilterPlan {
	return &FilterPlan{Input: input, Expr: expr, Vocab: vocab, label: label}
}

func (p *FilterPlan) operatorNode() {}

func (p *FilterPlan) ResultWidth() int { return p.Input.ResultWidth() }

func (p *FilterPlan) ResultSortedOn() []int { return p.Input.ResultSortedOn() }

func (p *FilterPlan) VariableColumns() map[string]ColumnBinding { return p.Input.VariableColumns() }

func (p *FilterPlan) CacheKey() string { return hashKey("Filter", p.label, p.Input.CacheKey()) }

func (p *FilterPlan) SizeEstimate() int64 { return p.Input.SizeEstimate() }

func (p *FilterPlan) CostEstimate() int64 { return p.Input.CostEstimate() + p.SizeEstimate() }

func (p *FilterPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *FilterPlan) Children() []Operator { return []Operator{p.Input} }

func (p *FilterPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	return &cp
}

func (p *FilterPlan) env() *exprvm.Env {
	cols := make(map[string]int, len(p.Input.VariableColumns()))
	for name, binding := range p.Input.VariableColumns() {
		cols[name] = binding.Column
	}
	return &exprvm.Env{Columns: cols, Vocab: p.Vocab}
}

func (p *FilterPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	env := p.env()
	width := fragment.Width
	if width == 0 {
		width = p.Input.ResultWidth()
	}
	b := idtable.NewBuilder(width)
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		if exprvm.EvalBool(p.Expr, row, env) {
			b.AddRow(row)
		}
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// OptionalPlan is a left outer join: every Left row is preserved, joined
// against Right when a match exists, padded with Undefined in Right's
// extra columns otherwise.
type OptionalPlan struct {
	Left, Right Operator
}

func (p *OptionalPlan) operatorNode() {}

func (p *OptionalPlan) sharedAndExtra() (shared []string, rightExtra []int, rightExtraVars []string) {
	return (&JoinPlan{Left: p.Left, Right: p.Right}).sharedAndExtra()
}

func (p *OptionalPlan) ResultWidth() int {
	_, rightExtra, _ := p.sharedAndExtra()
	return p.Left.ResultWidth() + len(rightExtra)
}

func (p *OptionalPlan) ResultSortedOn() []int { return nil }

func (p *OptionalPlan) VariableColumns() map[string]ColumnBinding {
	cols := make(map[string]ColumnBinding)
	for name, binding := range p.Left.VariableColumns() {
		cols[name] = binding
	}
	_, rightExtra, rightExtraVars := p.sharedAndExtra()
	base := p.Left.ResultWidth()
	for i, name := range rightExtraVars {
		cols[name] = ColumnBinding{Column: base + i, AlwaysDefined: false}
	}
	_ = rightExtra
	return cols
}

func (p *OptionalPlan) CacheKey() string {
	return hashKey("Optional", p.Left.CacheKey(), p.Right.CacheKey())
}

func (p *OptionalPlan) SizeEstimate() int64 { return p.Left.SizeEstimate() }

func (p *OptionalPlan) CostEstimate() int64 {
	return p.Left.CostEstimate() + p.Right.CostEstimate() + p.SizeEstimate()
}

func (p *OptionalPlan) KnownEmptyResult() bool { return p.Left.KnownEmptyResult() }

func (p *OptionalPlan) Children() []Operator { return []Operator{p.Left, p.Right} }

func (p *OptionalPlan) Clone() Operator {
	return &OptionalPlan{Left: p.Left.Clone(), Right: p.Right.Clone()}
}

func (p *OptionalPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	leftStream, err := p.Left.Compute(ctx)
	if err != nil {
		return nil, err
	}
	leftFragment, leftVocab, err := idtable.Collect(ctx, leftStream)
	if err != nil {
		return nil, err
	}
	rightStream, err := p.Right.Compute(ctx)
	if err != nil {
		return nil, err
	}
	rightFragment, rightVocab, err := idtable.Collect(ctx, rightStream)
	if err != nil {
		return nil, err
	}

	leftVars := p.Left.VariableColumns()
	rightVars := p.Right.VariableColumns()
	shared, rightExtra, _ := p.sharedAndExtra()

	width := p.Left.ResultWidth() + len(rightExtra)
	b := idtable.NewBuilder(width)

	keyOf := func(fragment idtable.Fragment, row int, vars map[string]ColumnBinding) string {
		parts := make([]string, len(shared))
		for i, name := range shared {
			parts[i] = fmt.Sprintf("%d", uint64(fragment.At(row, vars[name].Column)))
		}
		return hashKey(parts...)
	}
	index := make(map[string][]int)
	for r := 0; r < rightFragment.RowCount(); r++ {
		k := keyOf(rightFragment, r, rightVars)
		index[k] = append(index[k], r)
	}

	merged, offsets := localvocab.MergeAll([]*localvocab.LocalVocab{leftVocab, rightVocab})
	for l := 0; l < leftFragment.RowCount(); l++ {
		leftRow := leftFragment.Row(l)
		var matches []int
		if len(shared) == 0 {
			for i := 0; i < rightFragment.RowCount(); i++ {
				matches = append(matches, i)
			}
		} else {
			matches = index[keyOf(leftFragment, l, leftVars)]
		}
		if len(matches) == 0 {
			out := append([]valueid.ValueId(nil), leftRow...)
			for range rightExtra {
				out = append(out, valueid.UndefinedId)
			}
			b.AddRow(out)
			continue
		}
		for _, r := range matches {
			out := append([]valueid.ValueId(nil), leftRow...)
			for _, col := range rightExtra {
				out = append(out, localvocab.Remap(rightFragment.At(r, col), offsets[1]))
			}
			b.AddRow(out)
		}
	}

	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: merged}}), nil
}

// MinusPlan keeps Left's rows that do not share any compatible binding
// with a Right row (SPARQL MINUS).
type MinusPlan struct {
	Left, Right Operator
}

func (p *MinusPlan) operatorNode() {}

func (p *MinusPlan) ResultWidth() int { return p.Left.ResultWidth() }

func (p *MinusPlan) ResultSortedOn() []int { return p.Left.ResultSortedOn() }

func (p *MinusPlan) VariableColumns() map[string]ColumnBinding { return p.Left.VariableColumns() }

func (p *MinusPlan) CacheKey() string {
	return hashKey("Minus", p.Left.CacheKey(), p.Right.CacheKey())
}

func (p *MinusPlan) SizeEstimate() int64 { return p.Left.SizeEstimate() }

func (p *MinusPlan) CostEstimate() int64 {
	return p.Left.CostEstimate() + p.Right.CostEstimate()
}

func (p *MinusPlan) KnownEmptyResult() bool { return p.Left.KnownEmptyResult() }

func (p *MinusPlan) Children() []Operator { return []Operator{p.Left, p.Right} }

func (p *MinusPlan) Clone() Operator {
	return &MinusPlan{Left: p.Left.Clone(), Right: p.Right.Clone()}
}

func (p *MinusPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	leftStream, err := p.Left.Compute(ctx)
	if err != nil {
		return nil, err
	}
	leftFragment, leftVocab, err := idtable.Collect(ctx, leftStream)
	if err != nil {
		return nil, err
	}
	rightStream, err := p.Right.Compute(ctx)
	if err != nil {
		return nil, err
	}
	rightFragment, _, err := idtable.Collect(ctx, rightStream)
	if err != nil {
		return nil, err
	}

	leftVars := p.Left.VariableColumns()
	rightVars := p.Right.VariableColumns()
	var shared []string
	for name := range rightVars {
		if _, ok := leftVars[name]; ok {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)

	keyOf := func(fragment idtable.Fragment, row int, vars map[string]ColumnBinding) string {
		parts := make([]string, len(shared))
		for i, name := range shared {
			parts[i] = fmt.Sprintf("%d", uint64(fragment.At(row, vars[name].Column)))
		}
		return hashKey(parts...)
	}

	excluded := make(map[string]bool)
	if len(shared) > 0 {
		for r := 0; r < rightFragment.RowCount(); r++ {
			excluded[keyOf(rightFragment, r, rightVars)] = true
		}
	}

	width := p.Left.ResultWidth()
	b := idtable.NewBuilder(width)
	for l := 0; l < leftFragment.RowCount(); l++ {
		if len(shared) > 0 && excluded[keyOf(leftFragment, l, leftVars)] {
			continue
		}
		b.AddRow(leftFragment.Row(l))
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: leftVocab}}), nil
}

// ProjectionPlan keeps only the named variables' columns, in the given
// order (SELECT's projection list).
type ProjectionPlan struct {
	Input     Operator
	Variables []string
}

func (p *ProjectionPlan) operatorNode() {}

func (p *ProjectionPlan) ResultWidth() int { return len(p.Variables) }

func (p *ProjectionPlan) ResultSortedOn() []int { return nil }

func (p *ProjectionPlan) VariableColumns() map[string]ColumnBinding {
	cols := make(map[string]ColumnBinding, len(p.Variables))
	inputCols := p.Input.VariableColumns()
	for i, name := range p.Variables {
		binding := inputCols[name]
		cols[name] = ColumnBinding{Column: i, AlwaysDefined: binding.AlwaysDefined}
	}
	return cols
}

func (p *ProjectionPlan) CacheKey() string {
	parts := append([]string{"Projection"}, p.Variables...)
	return hashKey(append(parts, p.Input.CacheKey())...)
}

func (p *ProjectionPlan) SizeEstimate() int64 { return p.Input.SizeEstimate() }

func (p *ProjectionPlan) CostEstimate() int64 { return p.Input.CostEstimate() }

func (p *ProjectionPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *ProjectionPlan) Children() []Operator { return []Operator{p.Input} }

func (p *ProjectionPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	cp.Variables = append([]string(nil), p.Variables...)
	return &cp
}

func (p *ProjectionPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	inputCols := p.Input.VariableColumns()
	cols := make([]int, len(p.Variables))
	for i, name := range p.Variables {
		cols[i] = inputCols[name].Column
	}
	b := idtable.NewBuilder(len(p.Variables))
	for r := 0; r < fragment.RowCount(); r++ {
		out := make([]valueid.ValueId, len(cols))
		for i, c := range cols {
			out[i] = fragment.At(r, c)
		}
		b.AddRow(out)
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// OrderByPlan sorts its input by a list of (column, ascending) keys.
type OrderByPlan struct {
	Input Operator
	Keys  []OrderKey
}

// OrderKey is one ORDER BY clause resolved to a column index.
type OrderKey struct {
	Column    int
	Ascending bool
}

func (p *OrderByPlan) operatorNode() {}

func (p *OrderByPlan) ResultWidth() int { return p.Input.ResultWidth() }

func (p *OrderByPlan) ResultSortedOn() []int {
	if len(p.Keys) == 0 {
		return p.Input.ResultSortedOn()
	}
	return []int{p.Keys[0].Column}
}

func (p *OrderByPlan) VariableColumns() map[string]ColumnBinding { return p.Input.VariableColumns() }

func (p *OrderByPlan) CacheKey() string {
	parts := []string{"OrderBy"}
	for _, k := range p.Keys {
		parts = append(parts, fmt.Sprintf("%d:%v", k.Column, k.Ascending))
	}
	return hashKey(append(parts, p.Input.CacheKey())...)
}

func (p *OrderByPlan) SizeEstimate() int64 { return p.Input.SizeEstimate() }

func (p *OrderByPlan) CostEstimate() int64 { return p.Input.CostEstimate() + p.SizeEstimate() }

func (p *OrderByPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *OrderByPlan) Children() []Operator { return []Operator{p.Input} }

func (p *OrderByPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	cp.Keys = append([]OrderKey(nil), p.Keys...)
	return &cp
}

func (p *OrderByPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	rows := make([][]valueid.ValueId, fragment.RowCount())
	for r := range rows {
		rows[r] = fragment.Row(r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range p.Keys {
			c := valueid.Compare(rows[i][k.Column], rows[j][k.Column])
			if c == 0 {
				continue
			}
			if k.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	width := p.Input.ResultWidth()
	b := idtable.NewBuilder(width)
	for _, row := range rows {
		b.AddRow(row)
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// LimitPlan caps its input to at most N rows.
type LimitPlan struct {
	Input Operator
	N     int64
}

func (p *LimitPlan) operatorNode() {}

func (p *LimitPlan) ResultWidth() int { return p.Input.ResultWidth() }

func (p *LimitPlan) ResultSortedOn() []int { return p.Input.ResultSortedOn() }

func (p *LimitPlan) VariableColumns() map[string]ColumnBinding { return p.Input.VariableColumns() }

func (p *LimitPlan) CacheKey() string {
	return hashKey("Limit", fmt.Sprintf("%d", p.N), p.Input.CacheKey())
}

func (p *LimitPlan) SizeEstimate() int64 {
	if s := p.Input.SizeEstimate(); s < p.N {
		return s
	}
	return p.N
}

func (p *LimitPlan) CostEstimate() int64 { return p.Input.CostEstimate() }

func (p *LimitPlan) KnownEmptyResult() bool { return p.N == 0 || p.Input.KnownEmptyResult() }

func (p *LimitPlan) Children() []Operator { return []Operator{p.Input} }

func (p *LimitPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	return &cp
}

func (p *LimitPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	width := p.Input.ResultWidth()
	b := idtable.NewBuilder(width)
	limit := int(p.N)
	for r := 0; r < fragment.RowCount() && r < limit; r++ {
		b.AddRow(fragment.Row(r))
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// OffsetPlan skips the first N rows of its input.
type OffsetPlan struct {
	Input Operator
	N     int64
}

func (p *OffsetPlan) operatorNode() {}

func (p *OffsetPlan) ResultWidth() int { return p.Input.ResultWidth() }

func (p *OffsetPlan) ResultSortedOn() []int { return p.Input.ResultSortedOn() }

func (p *OffsetPlan) VariableColumns() map[string]ColumnBinding { return p.Input.VariableColumns() }

func (p *OffsetPlan) CacheKey() string {
	return hashKey("Offset", fmt.Sprintf("%d", p.N), p.Input.CacheKey())
}

func (p *OffsetPlan) SizeEstimate() int64 {
	s := p.Input.SizeEstimate() - p.N
	if s < 0 {
		return 0
	}
	return s
}

func (p *OffsetPlan) CostEstimate() int64 { return p.Input.CostEstimate() }

func (p *OffsetPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *OffsetPlan) Children() []Operator { return []Operator{p.Input} }

func (p *OffsetPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	return &cp
}

func (p *OffsetPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	width := p.Input.ResultWidth()
	b := idtable.NewBuilder(width)
	offset := int(p.N)
	for r := offset; r < fragment.RowCount(); r++ {
		b.AddRow(fragment.Row(r))
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}
