package results

import "github.com/aleksaelezovic/trigo/pkg/rdf"

// SelectResult is a SELECT query's answer: the projected variable names,
// in display order, and one binding map per result row. A variable
// absent from a given row's map is unbound in that row.
type SelectResult struct {
	Variables []string
	Bindings  []map[string]rdf.Term
}

// AskResult is an ASK query's boolean answer.
type AskResult struct {
	Result bool
}

// ConstructResult is a CONSTRUCT or DESCRIBE query's answer: the
// triples produced by instantiating the template (or describing the
// requested resources).
type ConstructResult struct {
	Triples []*rdf.Triple
}
