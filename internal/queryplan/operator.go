// Package queryplan generalizes the teacher's tagged-enum QueryPlan
// (internal/sparql/optimizer.QueryPlan) into the full Operator contract
// from spec.md §4.2: every node exposes resultWidth, resultSortedOn,
// variableColumns, cacheKey, size/cost estimates, knownEmptyResult,
// children, clone, and a lazy compute() returning a RowStream.
package queryplan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/trigo/internal/deltatriples"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/matview"
	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/textindex"
	"github.com/aleksaelezovic/trigo/internal/transitivepath"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// ColumnBinding records which result column a variable is bound to and
// whether it is always defined (never Undefined) in that column.
type ColumnBinding struct {
	Column        int
	AlwaysDefined bool
}

// Operator is the single contract every execution-tree node satisfies
// (spec.md §4.2).
type Operator interface {
	operatorNode()

	ResultWidth() int
	ResultSortedOn() []int
	VariableColumns() map[string]ColumnBinding
	CacheKey() string
	SizeEstimate() int64
	CostEstimate() int64
	KnownEmptyResult() bool
	Children() []Operator
	Clone() Operator
	Compute(ctx context.Context) (idtable.RowStream, error)
}

// hashKey folds parts into a single stable cache-key string via the
// same xxh3.Hash128 internal/textindex uses for its cache keys — never
// New()/Write(), which
// this module's pinned xxh3 version does not expose.
func hashKey(parts ...string) string {
	material := strings.Join(parts, "\x00")
	hash := xxh3.Hash128([]byte(material))
	return fmt.Sprintf("%016x%016x", hash.Hi, hash.Lo)
}

// ValuesPlan is a materialised row set: the VALUES operator, and also
// the leaf shape a permutation scan is reduced to once its rows are
// read (spec.md §4.2, §4.7).
type ValuesPlan struct {
	Width     int
	Variables map[string]ColumnBinding
	Rows      [][]valueid.ValueId
	Vocab     *localvocab.LocalVocab
}

func (p *ValuesPlan) operatorNode() {}

func (p *ValuesPlan) ResultWidth() int { return p.Width }

func (p *ValuesPlan) ResultSortedOn() []int { return nil }

func (p *ValuesPlan) VariableColumns() map[string]ColumnBinding { return p.Variables }

func (p *ValuesPlan) CacheKey() string {
	parts := []string{"Values", fmt.Sprintf("w=%d", p.Width)}
	for _, row := range p.Rows {
		for _, id := range row {
			parts = append(parts, fmt.Sprintf("%d", uint64(id)))
		}
	}
	return hashKey(parts...)
}

func (p *ValuesPlan) SizeEstimate() int64 { return int64(len(p.Rows)) }

func (p *ValuesPlan) CostEstimate() int64 { return p.SizeEstimate() }

func (p *ValuesPlan) KnownEmptyResult() bool { return len(p.Rows) == 0 }

func (p *ValuesPlan) Children() []Operator { return nil }

func (p *ValuesPlan) Clone() Operator {
	cp := *p
	cp.Rows = append([][]valueid.ValueId(nil), p.Rows...)
	return &cp
}

func (p *ValuesPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	b := idtable.NewBuilder(p.Width)
	for _, row := range p.Rows {
		b.AddRow(row)
	}
	vocab := p.Vocab
	if vocab == nil {
		vocab = localvocab.Empty
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// UnionPlan concatenates two same-width children's rows.
type UnionPlan struct {
	Left, Right Operator
}

func (p *UnionPlan) operatorNode() {}

func (p *UnionPlan) ResultWidth() int { return p.Left.ResultWidth() }

func (p *UnionPlan) ResultSortedOn() []int { return nil }

func (p *UnionPlan) VariableColumns() map[string]ColumnBinding { return p.Left.VariableColumns() }

func (p *UnionPlan) CacheKey() string {
	return hashKey("Union", p.Left.CacheKey(), p.Right.CacheKey())
}

func (p *UnionPlan) SizeEstimate() int64 {
	return p.Left.SizeEstimate() + p.Right.SizeEstimate()
}

func (p *UnionPlan) CostEstimate() int64 {
	return p.SizeEstimate() + p.Left.CostEstimate() + p.Right.CostEstimate()
}

func (p *UnionPlan) KnownEmptyResult() bool {
	return p.Left.KnownEmptyResult() && p.Right.KnownEmptyResult()
}

func (p *UnionPlan) Children() []Operator { return []Operator{p.Left, p.Right} }

func (p *UnionPlan) Clone() Operator {
	return &UnionPlan{Left: p.Left.Clone(), Right: p.Right.Clone()}
}

func (p *UnionPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	leftStream, err := p.Left.Compute(ctx)
	if err != nil {
		return nil, err
	}
	rightStream, err := p.Right.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return &concatStream{streams: []idtable.RowStream{leftStream, rightStream}}, nil
}

// concatStream pulls from each child stream in order, moving to the
// next once the current one is exhausted.
type concatStream struct {
	streams []idtable.RowStream
}

func (s *concatStream) Next(ctx context.Context) (idtable.Chunk, bool, error) {
	for len(s.streams) > 0 {
		chunk, ok, err := s.streams[0].Next(ctx)
		if err != nil {
			return idtable.Chunk{}, false, err
		}
		if ok {
			return chunk, true, nil
		}
		s.streams = s.streams[1:]
	}
	return idtable.Chunk{}, false, nil
}

// DistinctPlan removes duplicate rows from its input.
type DistinctPlan struct {
	Input Operator
}

func (p *DistinctPlan) operatorNode() {}

func (p *DistinctPlan) ResultWidth() int { return p.Input.ResultWidth() }

func (p *DistinctPlan) ResultSortedOn() []int { return p.Input.ResultSortedOn() }

func (p *DistinctPlan) VariableColumns() map[string]ColumnBinding { return p.Input.VariableColumns() }

func (p *DistinctPlan) CacheKey() string { return hashKey("Distinct", p.Input.CacheKey()) }

func (p *DistinctPlan) SizeEstimate() int64 { return p.Input.SizeEstimate() }

func (p *DistinctPlan) CostEstimate() int64 { return p.Input.CostEstimate() + p.SizeEstimate() }

func (p *DistinctPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *DistinctPlan) Children() []Operator { return []Operator{p.Input} }

func (p *DistinctPlan) Clone() Operator { return &DistinctPlan{Input: p.Input.Clone()} }

func (p *DistinctPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}

	width := fragment.Width
	if width == 0 {
		width = p.Input.ResultWidth()
	}
	b := idtable.NewBuilder(width)
	seen := make(map[string]bool)
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		b.AddRow(row)
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

func rowKey(row []valueid.ValueId) string {
	parts := make([]string, len(row))
	for i, id := range row {
		parts[i] = fmt.Sprintf("%d", uint64(id))
	}
	return hashKey(parts...)
}

// BindPlan appends one computed column to its input, standing in for a
// BIND(expr AS ?v) clause; the expression itself is supplied as a plain
// function, the seam where the expression evaluator (internal/exprvm,
// wired in by internal/querybuild) plugs in.
type BindPlan struct {
	Input     Operator
	Target    string
	Expr      func(row []valueid.ValueId) valueid.ValueId
	exprLabel string // diagnostic-only label folded into the cache key
}

// NewBindPlan builds a BindPlan; exprLabel should uniquely identify expr
// (e.g. its serialized AST) since the function value itself cannot
// contribute to a stable cache key.
func NewBindPlan(input Operator, target string, expr func(row []valueid.ValueId) valueid.ValueId, exprLabel string) *BindPlan {
	return &BindPlan{Input: input, Target: target, Expr: expr, exprLabel: exprLabel}
}

func (p *BindPlan) operatorNode() {}

func (p *BindPlan) ResultWidth() int { return p.Input.ResultWidth() + 1 }

func (p *BindPlan) ResultSortedOn() []int { return p.Input.ResultSortedOn() }

func (p *BindPlan) VariableColumns() map[string]ColumnBinding {
	cols := make(map[string]ColumnBinding, len(p.Input.VariableColumns())+1)
	for k, v := range p.Input.VariableColumns() {
		cols[k] = v
	}
	cols[p.Target] = ColumnBinding{Column: p.Input.ResultWidth(), AlwaysDefined: false}
	return cols
}

func (p *BindPlan) CacheKey() string {
	return hashKey("Bind", p.Target, p.exprLabel, p.Input.CacheKey())
}

func (p *BindPlan) SizeEstimate() int64 { return p.Input.SizeEstimate() }

func (p *BindPlan) CostEstimate() int64 { return p.Input.CostEstimate() + p.SizeEstimate() }

func (p *BindPlan) KnownEmptyResult() bool { return p.Input.KnownEmptyResult() }

func (p *BindPlan) Children() []Operator { return []Operator{p.Input} }

func (p *BindPlan) Clone() Operator {
	cp := *p
	cp.Input = p.Input.Clone()
	return &cp
}

func (p *BindPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}
	width := p.ResultWidth()
	b := idtable.NewBuilder(width)
	for r := 0; r < fragment.RowCount(); r++ {
		row := append(fragment.Row(r), p.Expr(fragment.Row(r)))
		b.AddRow(row)
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// TransitivePathPlan wraps a constructed transitivepath.Plan: column 0
// is the left variable's value, column 1 the right's (spec.md §4.3
// "Column layout").
type TransitivePathPlan struct {
	Inner      *transitivepath.Plan
	Edges      []transitivepath.Edge
	Starts     []valueid.ValueId
	LeftVar    string
	RightVar   string
	childCost  int64
	childSize  int64
}

func (p *TransitivePathPlan) operatorNode() {}

func (p *TransitivePathPlan) ResultWidth() int { return 2 }

func (p *TransitivePathPlan) ResultSortedOn() []int {
	if p.Inner.Direction == transitivepath.LeftToRight {
		return []int{0}
	}
	return []int{1}
}

func (p *TransitivePathPlan) VariableColumns() map[string]ColumnBinding {
	return map[string]ColumnBinding{
		p.LeftVar:  {Column: 0, AlwaysDefined: true},
		p.RightVar: {Column: 1, AlwaysDefined: true},
	}
}

func (p *TransitivePathPlan) CacheKey() string {
	return hashKey("TransitivePath", p.LeftVar, p.RightVar,
		fmt.Sprintf("%d-%d-%d", p.Inner.MinDist, p.Inner.MaxDist, p.Inner.Direction))
}

func (p *TransitivePathPlan) SizeEstimate() int64 { return p.Inner.SizeEstimate(p.childSize) }

func (p *TransitivePathPlan) CostEstimate() int64 {
	return p.Inner.CostEstimate(p.childSize, p.childCost)
}

func (p *TransitivePathPlan) KnownEmptyResult() bool { return len(p.Starts) == 0 }

func (p *TransitivePathPlan) Children() []Operator { return nil }

func (p *TransitivePathPlan) Clone() Operator {
	cp := *p
	return &cp
}

func (p *TransitivePathPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	rows, err := p.Inner.Compute(ctx, p.Edges, p.Starts)
	if err != nil {
		return nil, err
	}
	b := idtable.NewBuilder(2)
	for _, row := range rows {
		b.AddRow([]valueid.ValueId{row.Start, row.Target})
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: localvocab.Empty}}), nil
}

// TextIndexScanPlan wraps a built textindex.Index scan.
type TextIndexScanPlan struct {
	Index       *textindex.Index
	Word        string
	Prefix      bool
	FixedEntity *valueid.ValueId
	TextVar     string
	EntityVar   string
}

func (p *TextIndexScanPlan) operatorNode() {}

func (p *TextIndexScanPlan) ResultWidth() int {
	if p.FixedEntity != nil {
		return 2
	}
	return 3
}

func (p *TextIndexScanPlan) ResultSortedOn() []int { return nil }

func (p *TextIndexScanPlan) VariableColumns() map[string]ColumnBinding {
	if p.FixedEntity != nil {
		return map[string]ColumnBinding{p.TextVar: {Column: 0, AlwaysDefined: true}}
	}
	return map[string]ColumnBinding{
		p.TextVar:   {Column: 0, AlwaysDefined: true},
		p.EntityVar: {Column: 1, AlwaysDefined: true},
	}
}

func (p *TextIndexScanPlan) CacheKey() string {
	return hashKey("TextIndexScan", textindex.CacheKey(p.Word, p.Prefix, p.FixedEntity))
}

func (p *TextIndexScanPlan) SizeEstimate() int64 { return 100 }

func (p *TextIndexScanPlan) CostEstimate() int64 { return p.SizeEstimate() }

func (p *TextIndexScanPlan) KnownEmptyResult() bool { return false }

func (p *TextIndexScanPlan) Children() []Operator { return nil }

func (p *TextIndexScanPlan) Clone() Operator {
	cp := *p
	return &cp
}

func (p *TextIndexScanPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	rows, err := textindex.ScanForEntity(p.Index, p.Word, p.Prefix, p.FixedEntity)
	if err != nil {
		return nil, err
	}
	width := p.ResultWidth()
	b := idtable.NewBuilder(width)
	for _, row := range rows {
		score := valueid.FromDouble(row.Score)
		if p.FixedEntity != nil {
			b.AddRow([]valueid.ValueId{row.TextRecord, score})
		} else {
			b.AddRow([]valueid.ValueId{row.TextRecord, row.Entity, score})
		}
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: localvocab.Empty}}), nil
}

// MaterializedViewScanPlan substitutes a single scan over a precomputed
// view for the matching triples in the user query (spec.md §4.5).
type MaterializedViewScanPlan struct {
	View     *matview.View
	Rows     [][3]valueid.ValueId // (subject, mid, object) per row
}

func (p *MaterializedViewScanPlan) operatorNode() {}

func (p *MaterializedViewScanPlan) ResultWidth() int { return 3 }

func (p *MaterializedViewScanPlan) ResultSortedOn() []int { return nil }

func (p *MaterializedViewScanPlan) VariableColumns() map[string]ColumnBinding {
	return map[string]ColumnBinding{
		p.View.SubjectVar: {Column: 0, AlwaysDefined: true},
		p.View.MidVar:     {Column: 1, AlwaysDefined: true},
		p.View.ObjectVar:  {Column: 2, AlwaysDefined: true},
	}
}

func (p *MaterializedViewScanPlan) CacheKey() string {
	return hashKey("MaterializedViewScan", p.View.Predicates.P1, p.View.Predicates.P2)
}

func (p *MaterializedViewScanPlan) SizeEstimate() int64 { return int64(len(p.Rows)) }

func (p *MaterializedViewScanPlan) CostEstimate() int64 { return p.SizeEstimate() }

func (p *MaterializedViewScanPlan) KnownEmptyResult() bool { return len(p.Rows) == 0 }

func (p *MaterializedViewScanPlan) Children() []Operator { return nil }

func (p *MaterializedViewScanPlan) Clone() Operator {
	cp := *p
	cp.Rows = append([][3]valueid.ValueId(nil), p.Rows...)
	return &cp
}

func (p *MaterializedViewScanPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	b := idtable.NewBuilder(3)
	for _, row := range p.Rows {
		b.AddRow([]valueid.ValueId{row[0], row[1], row[2]})
	}
	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: localvocab.Empty}}), nil
}

// DeltaOverlayPlan layers a DeltaTriples snapshot on top of a
// triple-producing child: inserted triples not already produced by the
// child are appended, and deleted triples are filtered out of the
// child's output (spec.md §3 "DeltaTriples ... layered on top of the
// permutations").
type DeltaOverlayPlan struct {
	Input    Operator // width-3 triple scan
	Snapshot *deltatriples.Snapshot
}

func (p *DeltaOverlayPlan) operatorNode() {}

func (p *DeltaOverlayPlan) ResultWidth() int { return 3 }

func (p *DeltaOverlayPlan) ResultSortedOn() []int { return nil }

func (p *DeltaOverlayPlan) VariableColumns() map[string]ColumnBinding {
	return p.Input.VariableColumns()
}

func (p *DeltaOverlayPlan) CacheKey() string {
	c := p.Snapshot.Count()
	return hashKey("DeltaOverlay", p.Input.CacheKey(), fmt.Sprintf("%d-%d", c.Inserted, c.Deleted))
}

func (p *DeltaOverlayPlan) SizeEstimate() int64 {
	c := p.Snapshot.Count()
	return p.Input.SizeEstimate() + c.Inserted
}

func (p *DeltaOverlayPlan) CostEstimate() int64 {
	return p.Input.CostEstimate() + p.SizeEstimate()
}

func (p *DeltaOverlayPlan) KnownEmptyResult() bool {
	c := p.Snapshot.Count()
	return p.Input.KnownEmptyResult() && c.Inserted == 0
}

func (p *DeltaOverlayPlan) Children() []Operator { return []Operator{p.Input} }

func (p *DeltaOverlayPlan) Clone() Operator {
	return &DeltaOverlayPlan{Input: p.Input.Clone(), Snapshot: p.Snapshot}
}

func (p *DeltaOverlayPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	stream, err := p.Input.Compute(ctx)
	if err != nil {
		return nil, err
	}
	fragment, vocab, err := idtable.Collect(ctx, stream)
	if err != nil {
		return nil, err
	}

	b := idtable.NewBuilder(3)
	produced := make(map[permutation.TripleKey]bool)
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		triple := permutation.TripleKey{row[0], row[1], row[2]}
		if p.Snapshot.IsDeleted(triple) {
			continue
		}
		produced[triple] = true
		b.AddRow(row)
	}
	for _, triple := range p.Snapshot.Inserted() {
		if produced[triple] {
			continue
		}
		b.AddRow([]valueid.ValueId{triple[0], triple[1], triple[2]})
	}

	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: b.Build(), Vocab: vocab}}), nil
}

// sortedByCacheKey returns a copy of ops ordered by CacheKey.
func sortedByCacheKey(ops []Operator) []Operator {
	out := append([]Operator(nil), ops...)
	sort.Slice(out, func(i, j int) bool { return out[i].CacheKey() < out[j].CacheKey() })
	return out
}
