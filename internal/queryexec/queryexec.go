// Package queryexec turns a parsed SPARQL query into one of
// pkg/server/results' query-shaped answers (SELECT bindings, an ASK
// boolean, or CONSTRUCT/DESCRIBE triples), the same SELECT/ASK/
// CONSTRUCT/DESCRIBE dispatch pkg/sparql/executor.Executor.Execute did
// against the teacher's hash-keyed engine, retargeted at
// internal/querybuild's ValueId operator trees so the engine described
// in DESIGN.md's L0-L4 stack is what cmd/trigo-server actually runs.
package queryexec

import (
	"context"
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/quadstore"
	"github.com/aleksaelezovic/trigo/internal/querybuild"
	"github.com/aleksaelezovic/trigo/internal/queryplan"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/server/results"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

// Executor runs parsed queries against one QuadStore.
type Executor struct {
	store   *quadstore.QuadStore
	builder *querybuild.Builder
}

// New builds an Executor over store.
func New(store *quadstore.QuadStore) *Executor {
	return &Executor{store: store, builder: querybuild.New(store)}
}

// Execute runs query and returns a *results.SelectResult,
// *results.AskResult, or *results.ConstructResult depending on its type.
func (e *Executor) Execute(ctx context.Context, query *parser.Query) (any, error) {
	switch query.QueryType {
	case parser.QueryTypeSelect:
		return e.executeSelect(ctx, query)
	case parser.QueryTypeAsk:
		return e.executeAsk(ctx, query)
	case parser.QueryTypeConstruct:
		return e.executeConstruct(ctx, query)
	case parser.QueryTypeDescribe:
		return e.executeDescribe(ctx, query)
	default:
		return nil, fmt.Errorf("queryexec: unsupported query type %v", query.QueryType)
	}
}

func (e *Executor) executeSelect(ctx context.Context, query *parser.Query) (*results.SelectResult, error) {
	plan, err := e.builder.Build(query)
	if err != nil {
		return nil, err
	}
	fragment, lv, err := e.compute(ctx, plan.Operator)
	if err != nil {
		return nil, err
	}
	defer lv.Release()

	cols := plan.Operator.VariableColumns()
	bindings := make([]map[string]rdf.Term, 0, fragment.RowCount())
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		binding := make(map[string]rdf.Term, len(plan.Variables))
		for _, name := range plan.Variables {
			col, ok := cols[name]
			if !ok {
				continue
			}
			term, bound, err := e.resolveTerm(row[col.Column], lv)
			if err != nil {
				return nil, err
			}
			if bound {
				binding[name] = term
			}
		}
		bindings = append(bindings, binding)
	}

	return &results.SelectResult{Variables: plan.Variables, Bindings: bindings}, nil
}

func (e *Executor) executeAsk(ctx context.Context, query *parser.Query) (*results.AskResult, error) {
	plan, err := e.builder.Build(query)
	if err != nil {
		return nil, err
	}
	fragment, lv, err := e.compute(ctx, plan.Operator)
	if err != nil {
		return nil, err
	}
	lv.Release()
	return &results.AskResult{Result: fragment.RowCount() > 0}, nil
}

func (e *Executor) executeConstruct(ctx context.Context, query *parser.Query) (*results.ConstructResult, error) {
	plan, err := e.builder.Build(query)
	if err != nil {
		return nil, err
	}
	fragment, lv, err := e.compute(ctx, plan.Operator)
	if err != nil {
		return nil, err
	}
	defer lv.Release()

	cols := plan.Operator.VariableColumns()
	var triples []*rdf.Triple
	seen := make(map[string]bool)
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		for _, tp := range query.Construct.Template {
			triple, ok, err := e.instantiateTemplate(tp, row, cols, lv)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			key := triple.Subject.String() + "|" + triple.Predicate.String() + "|" + triple.Object.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			triples = append(triples, triple)
		}
	}
	return &results.ConstructResult{Triples: triples}, nil
}

// executeDescribe computes a Concise Bounded Description (every triple
// with the described resource as subject) for each resource, gathered
// either from DescribeQuery.Resources or, when a WHERE clause is given,
// from every IRI bound by evaluating it.
func (e *Executor) executeDescribe(ctx context.Context, query *parser.Query) (*results.ConstructResult, error) {
	dq := query.Describe
	var resources []*rdf.NamedNode

	if dq.Where != nil {
		plan, err := e.builder.Build(query)
		if err != nil {
			return nil, err
		}
		fragment, lv, err := e.compute(ctx, plan.Operator)
		if err != nil {
			return nil, err
		}
		cols := plan.Operator.VariableColumns()
		seen := make(map[string]bool)
		for r := 0; r < fragment.RowCount(); r++ {
			row := fragment.Row(r)
			for _, col := range cols {
				term, bound, err := e.resolveTerm(row[col.Column], lv)
				if err != nil {
					lv.Release()
					return nil, err
				}
				if !bound {
					continue
				}
				if nn, ok := term.(*rdf.NamedNode); ok && !seen[nn.IRI] {
					seen[nn.IRI] = true
					resources = append(resources, nn)
				}
			}
		}
		lv.Release()
	} else {
		resources = dq.Resources
	}

	var triples []*rdf.Triple
	seen := make(map[string]bool)
	for _, resource := range resources {
		subjectID, err := e.store.Vocabulary().InternTerm(resource)
		if err != nil {
			return nil, fmt.Errorf("queryexec: interning describe resource %s: %w", resource.IRI, err)
		}
		scan := e.store.Scan("", "p", "o", &subjectID, nil, nil)
		fragment, lv, err := e.compute(ctx, scan)
		if err != nil {
			return nil, err
		}
		cols := scan.VariableColumns()
		pCol, oCol := cols["p"].Column, cols["o"].Column
		for r := 0; r < fragment.RowCount(); r++ {
			row := fragment.Row(r)
			pred, _, err := e.resolveTerm(row[pCol], lv)
			if err != nil {
				lv.Release()
				return nil, err
			}
			obj, _, err := e.resolveTerm(row[oCol], lv)
			if err != nil {
				lv.Release()
				return nil, err
			}
			triple := rdf.NewTriple(resource, pred, obj)
			key := triple.Subject.String() + "|" + triple.Predicate.String() + "|" + triple.Object.String()
			if !seen[key] {
				seen[key] = true
				triples = append(triples, triple)
			}
		}
		lv.Release()
	}

	return &results.ConstructResult{Triples: triples}, nil
}

// instantiateTemplate substitutes tp's variables against row, returning
// ok=false if any variable the template needs is absent or unbound in
// this row (the teacher's instantiateTriplePattern skip-on-error rule).
func (e *Executor) instantiateTemplate(tp *parser.TriplePattern, row []valueid.ValueId, cols map[string]queryplan.ColumnBinding, lv *localvocab.LocalVocab) (*rdf.Triple, bool, error) {
	s, ok, err := e.instantiateTerm(tp.Subject, row, cols, lv)
	if !ok || err != nil {
		return nil, false, err
	}
	p, ok, err := e.instantiateTerm(tp.Predicate, row, cols, lv)
	if !ok || err != nil {
		return nil, false, err
	}
	o, ok, err := e.instantiateTerm(tp.Object, row, cols, lv)
	if !ok || err != nil {
		return nil, false, err
	}
	return rdf.NewTriple(s, p, o), true, nil
}

func (e *Executor) instantiateTerm(tv parser.TermOrVariable, row []valueid.ValueId, cols map[string]queryplan.ColumnBinding, lv *localvocab.LocalVocab) (rdf.Term, bool, error) {
	if !tv.IsVariable() {
		return tv.Term, true, nil
	}
	col, ok := cols[tv.Variable.Name]
	if !ok {
		return nil, false, nil
	}
	return e.resolveTerm(row[col.Column], lv)
}

func (e *Executor) compute(ctx context.Context, op queryplan.Operator) (idtable.Fragment, *localvocab.LocalVocab, error) {
	stream, err := op.Compute(ctx)
	if err != nil {
		return idtable.Fragment{}, nil, err
	}
	return idtable.Collect(ctx, stream)
}

// resolveTerm decodes a row value back into an rdf.Term, consulting lv
// for values minted during evaluation (e.g. BIND/CONCAT results) that
// never entered the persistent vocabulary. bound is false for
// valueid.UndefinedId, meaning the variable is unbound in this row.
func (e *Executor) resolveTerm(id valueid.ValueId, lv *localvocab.LocalVocab) (rdf.Term, bool, error) {
	if id.IsUndefined() {
		return nil, false, nil
	}
	if id.Tag() == valueid.LocalVocabIndex {
		s, ok := lv.String(id.Payload())
		if !ok {
			return nil, false, fmt.Errorf("queryexec: local vocab index %d out of range", id.Payload())
		}
		return rdf.NewLiteral(s), true, nil
	}
	term, err := e.store.Vocabulary().Resolve(id)
	if err != nil {
		return nil, false, err
	}
	return term, true, nil
}
