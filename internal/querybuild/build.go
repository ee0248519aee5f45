// Package querybuild lowers a pkg/sparql/parser.Query into an
// internal/queryplan.Operator tree over a quadstore.QuadStore — the
// missing link that makes the ValueId engine (internal/valueid,
// internal/queryplan, internal/quadstore, internal/exprvm,
// internal/globalvocab) the thing cmd/trigo-build and cmd/trigo-server
// actually run, instead of a set of packages only exercised by their own
// unit tests.
//
// The lowering is intentionally simpler than pkg/sparql/optimizer's
// cost-based planner: basic graph patterns join left-deep in the order
// their triple patterns appear in the query text, with no selectivity
// reordering or join-algorithm choice. SPARQL property paths
// (TriplePattern.PathPlus/PathStar) are recognised by the parser but not
// yet lowered to internal/queryplan.TransitivePathPlan here; a path
// pattern is executed as a plain single-hop scan, which under-returns
// for paths longer than one edge. Both simplifications are recorded in
// DESIGN.md rather than left silent.
package querybuild

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/exprvm"
	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/quadstore"
	"github.com/aleksaelezovic/trigo/internal/queryplan"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

// Plan is a built, ready-to-Compute query: the operator tree plus the
// ordered projection columns a result formatter should read.
type Plan struct {
	Operator  queryplan.Operator
	Variables []string // output column order; nil for ASK/CONSTRUCT/DESCRIBE (caller reads all bound vars instead)
}

// Builder lowers parsed queries against one QuadStore.
type Builder struct {
	store *quadstore.QuadStore
	vocab *globalvocab.Vocabulary
}

// New builds a Builder over store.
func New(store *quadstore.QuadStore) *Builder {
	return &Builder{store: store, vocab: store.Vocabulary()}
}

// Build lowers query into an executable Plan.
func (b *Builder) Build(query *parser.Query) (*Plan, error) {
	switch query.QueryType {
	case parser.QueryTypeSelect:
		return b.buildSelect(query.Select)
	case parser.QueryTypeAsk:
		op, err := b.buildGraphPattern(query.Ask.Where)
		if err != nil {
			return nil, err
		}
		return &Plan{Operator: op}, nil
	case parser.QueryTypeConstruct:
		op, err := b.buildGraphPattern(query.Construct.Where)
		if err != nil {
			return nil, err
		}
		return &Plan{Operator: op}, nil
	case parser.QueryTypeDescribe:
		if query.Describe.Where == nil {
			return &Plan{Operator: unitPlan()}, nil
		}
		op, err := b.buildGraphPattern(query.Describe.Where)
		if err != nil {
			return nil, err
		}
		return &Plan{Operator: op}, nil
	default:
		return nil, fmt.Errorf("querybuild: unsupported query type %v", query.QueryType)
	}
}

func (b *Builder) buildSelect(q *parser.SelectQuery) (*Plan, error) {
	op, err := b.buildGraphPattern(q.Where)
	if err != nil {
		return nil, err
	}

	for _, having := range q.Having {
		op = queryplan.NewFilterPlan(op, having.Expression, b.vocab, exprLabel(having.Expression))
	}

	vars := q.Variables
	projected := make([]string, 0, len(vars))
	if vars == nil {
		for name := range op.VariableColumns() {
			projected = append(projected, name)
		}
	} else {
		for _, v := range vars {
			projected = append(projected, v.Name)
		}
	}

	if len(q.OrderBy) > 0 {
		keys := make([]queryplan.OrderKey, 0, len(q.OrderBy))
		cols := op.VariableColumns()
		for _, oc := range q.OrderBy {
			if ve, ok := oc.Expression.(*parser.VariableExpression); ok {
				if binding, ok := cols[ve.Variable.Name]; ok {
					keys = append(keys, queryplan.OrderKey{Column: binding.Column, Ascending: oc.Ascending})
					continue
				}
			}
			// Non-variable ORDER BY expressions need a value computed per
			// row; materialise it via BindPlan under a throwaway name, then
			// sort on that column.
			tmp := fmt.Sprintf("__order%d", len(keys))
			op = bindExpr(op, tmp, oc.Expression, b.vocab)
			keys = append(keys, queryplan.OrderKey{Column: op.VariableColumns()[tmp].Column, Ascending: oc.Ascending})
		}
		op = &queryplan.OrderByPlan{Input: op, Keys: keys}
	}

	if vars != nil {
		op = &queryplan.ProjectionPlan{Input: op, Variables: projected}
	}
	if q.Distinct {
		op = &queryplan.DistinctPlan{Input: op}
	}
	if q.Offset != nil {
		op = &queryplan.OffsetPlan{Input: op, N: int64(*q.Offset)}
	}
	if q.Limit != nil {
		op = &queryplan.LimitPlan{Input: op, N: int64(*q.Limit)}
	}

	return &Plan{Operator: op, Variables: projected}, nil
}

func bindExpr(input queryplan.Operator, target string, expr parser.Expression, vocab *globalvocab.Vocabulary) queryplan.Operator {
	cols := make(map[string]int, len(input.VariableColumns()))
	for name, binding := range input.VariableColumns() {
		cols[name] = binding.Column
	}
	env := &exprvm.Env{Columns: cols, Vocab: vocab}
	fn := func(row []valueid.ValueId) valueid.ValueId {
		v, err := exprvm.Eval(expr, row, env)
		if err != nil {
			return valueid.UndefinedId
		}
		return v
	}
	return queryplan.NewBindPlan(input, target, fn, exprLabel(expr))
}

// unitPlan is the identity relation for an empty graph pattern: one row,
// no meaningful columns.
func unitPlan() queryplan.Operator {
	return &queryplan.ValuesPlan{
		Width:     1,
		Variables: map[string]queryplan.ColumnBinding{},
		Rows:      [][]valueid.ValueId{{valueid.UndefinedId}},
	}
}

func (b *Builder) buildGraphPattern(gp *parser.GraphPattern) (queryplan.Operator, error) {
	if gp == nil {
		return unitPlan(), nil
	}

	switch gp.Type {
	case parser.GraphPatternTypeUnion:
		return b.buildUnion(gp)
	default:
		return b.buildBasic(gp)
	}
}

func (b *Builder) buildUnion(gp *parser.GraphPattern) (queryplan.Operator, error) {
	if len(gp.Children) != 2 {
		return nil, fmt.Errorf("querybuild: UNION pattern expects exactly two branches, got %d", len(gp.Children))
	}
	left, err := b.buildGraphPattern(gp.Children[0])
	if err != nil {
		return nil, err
	}
	right, err := b.buildGraphPattern(gp.Children[1])
	if err != nil {
		return nil, err
	}
	return alignedUnion(left, right), nil
}

// buildBasic handles GraphPatternTypeBasic/Graph: its own triple
// patterns joined left-deep, then each child pattern folded in per its
// type (OPTIONAL/MINUS/UNION/nested basic), then Elements replayed in
// order for BIND/FILTER. A GRAPH clause's named graph is ignored — this
// engine indexes a single default graph only (see DESIGN.md).
func (b *Builder) buildBasic(gp *parser.GraphPattern) (queryplan.Operator, error) {
	var op queryplan.Operator

	for _, child := range gp.Children {
		childOp, err := b.buildGraphPattern(child)
		if err != nil {
			return nil, err
		}
		if op == nil {
			// An OPTIONAL/MINUS with nothing preceding it has no left side
			// to attach to; treat the child as a plain join input.
			op = childOp
			continue
		}
		switch child.Type {
		case parser.GraphPatternTypeOptional:
			op = &queryplan.OptionalPlan{Left: op, Right: childOp}
		case parser.GraphPatternTypeMinus:
			op = &queryplan.MinusPlan{Left: op, Right: childOp}
		default:
			op = &queryplan.JoinPlan{Left: op, Right: childOp}
		}
	}

	// Triple patterns and children are built independently above; now
	// replay Elements in document order so a triple pattern can be joined
	// onto the running plan and a bind/filter can see every variable bound
	// so far. This keeps BIND-then-FILTER-on-that-variable working while
	// still being a simplification versus full SPARQL group-scope filter
	// semantics (documented in DESIGN.md).
	for _, el := range gp.Elements {
		switch {
		case el.Triple != nil:
			scan, err := b.scanForTriple(el.Triple)
			if err != nil {
				return nil, err
			}
			if op == nil {
				op = scan
			} else {
				op = &queryplan.JoinPlan{Left: op, Right: scan}
			}
		case el.Bind != nil:
			if op == nil {
				op = unitPlan()
			}
			op = bindExpr(op, el.Bind.Variable.Name, el.Bind.Expression, b.vocab)
		case el.Filter != nil:
			if op == nil {
				op = unitPlan()
			}
			op = queryplan.NewFilterPlan(op, el.Filter.Expression, b.vocab, exprLabel(el.Filter.Expression))
		}
	}

	if op == nil {
		op = unitPlan()
	}
	return op, nil
}

// scanForTriple interns a pattern's fixed terms and builds a ScanPlan for
// its variable positions.
func (b *Builder) scanForTriple(tp *parser.TriplePattern) (queryplan.Operator, error) {
	sVar, s, err := b.resolveTerm(tp.Subject)
	if err != nil {
		return nil, err
	}
	pVar, p, err := b.resolveTerm(tp.Predicate)
	if err != nil {
		return nil, err
	}
	oVar, o, err := b.resolveTerm(tp.Object)
	if err != nil {
		return nil, err
	}
	return b.store.Scan(sVar, pVar, oVar, s, p, o), nil
}

func (b *Builder) resolveTerm(tv parser.TermOrVariable) (string, *valueid.ValueId, error) {
	if tv.IsVariable() {
		return tv.Variable.Name, nil, nil
	}
	id, err := b.vocab.InternTerm(tv.Term)
	if err != nil {
		return "", nil, fmt.Errorf("querybuild: interning term: %w", err)
	}
	return "", &id, nil
}

// exprLabel gives a FilterPlan/BindPlan a stable-enough cache-key label
// without needing a full expression serializer; collisions only degrade
// cache reuse, never correctness, since Compute always re-evaluates.
func exprLabel(expr parser.Expression) string {
	return fmt.Sprintf("%T:%p", expr, expr)
}

// alignedUnion materialises left and right eagerly and produces rows
// over the union of their variable names, padding missing columns with
// valueid.UndefinedId — the same pattern OptionalPlan uses for
// unmatched rows, needed here because queryplan.UnionPlan assumes both
// children already share one column layout.
func alignedUnion(left, right queryplan.Operator) queryplan.Operator {
	names := make(map[string]bool)
	for name := range left.VariableColumns() {
		names[name] = true
	}
	for name := range right.VariableColumns() {
		names[name] = true
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}

	leftProj := &queryplan.ProjectionPlan{Input: padMissing(left, ordered), Variables: ordered}
	rightProj := &queryplan.ProjectionPlan{Input: padMissing(right, ordered), Variables: ordered}
	return &queryplan.UnionPlan{Left: leftProj, Right: rightProj}
}

// padMissing wraps op with BindPlans for every name in ordered that op
// doesn't already bind, each producing Undefined, so a later
// ProjectionPlan can select the full ordered list from either side.
func padMissing(op queryplan.Operator, ordered []string) queryplan.Operator {
	cols := op.VariableColumns()
	for _, name := range ordered {
		if _, ok := cols[name]; ok {
			continue
		}
		target := name
		op = queryplan.NewBindPlan(op, target, func([]valueid.ValueId) valueid.ValueId {
			return valueid.UndefinedId
		}, "pad:"+target)
		cols = op.VariableColumns()
	}
	return op
}
