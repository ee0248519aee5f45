// Package matview implements materialized-view rewriting: detecting
// that a user query's basic graph pattern matches a stored view's
// write-query shape and substituting a single view scan for the
// matching triples (spec.md §4.5).
//
// The query here is deliberately a small self-contained shape rather
// than the full parser AST (pkg/sparql/parser's GraphPattern has
// no VALUES construct to filter, and matview needs one) — it is built
// the way pkg/sparql/parser/ast.go represents terms and variables
// (a term is either a variable or a fixed value) and Bind (a target
// variable assigned from an expression), so a caller holding a real
// parsed query can project into this shape trivially.
package matview

// Term is either a variable (Var != "") or a fixed value (IRI/literal).
type Term struct {
	Var   string
	Fixed string
}

func (t Term) isVariable() bool { return t.Var != "" }

// TriplePattern is `subject predicate object`.
type TriplePattern struct {
	Subject, Predicate, Object Term
}

// Bind is a BIND(expr AS ?v) clause, reduced to its target variable and
// the set of variables its expression reads.
type Bind struct {
	Target string
	Reads  []string
}

// Values is a VALUES clause's introduced variables.
type Values struct {
	Variables []string
}

// Optional is a (conservatively opaque) OPTIONAL block.
type Optional struct {
	Patterns []TriplePattern
}

// Pattern is a basic graph pattern plus the auxiliary clauses the
// invariance filter needs to reason about.
type Pattern struct {
	Triples   []TriplePattern
	Binds     []Bind
	Values    []Values
	Optionals []Optional
}

// FilterInvariant drops clauses that cannot affect the bindings of
// relevantVars: a Bind whose target isn't referenced, and a Values
// clause whose introduced variables aren't referenced. Optional is
// conservatively kept — treated as non-invariant unless proven
// otherwise (spec.md §4.5 "Invariance filter").
func FilterInvariant(p Pattern, relevantVars map[string]bool) Pattern {
	out := Pattern{Triples: p.Triples, Optionals: p.Optionals}

	for _, b := range p.Binds {
		if relevantVars[b.Target] {
			out.Binds = append(out.Binds, b)
		}
	}
	for _, v := range p.Values {
		keep := false
		for _, varName := range v.Variables {
			if relevantVars[varName] {
				keep = true
				break
			}
		}
		if keep {
			out.Values = append(out.Values, v)
		}
	}
	return out
}

// PredicatePair indexes a materialized view by its ordered write-query
// predicates.
type PredicatePair struct {
	P1, P2 string
}

// View is a registered materialized view: the simple two-hop chain
// `?s <P1> ?m . ?m <P2> ?o` it was built from.
type View struct {
	Predicates           PredicatePair
	SubjectVar, MidVar, ObjectVar string
}

// PatternCache indexes views by ordered predicate pair so a user
// query's two index scans can be checked against both orientations
// (spec.md §4.5 "Simple chain").
type PatternCache struct {
	views map[PredicatePair]*View
}

// NewPatternCache returns an empty cache.
func NewPatternCache() *PatternCache {
	return &PatternCache{views: make(map[PredicatePair]*View)}
}

// Register indexes view by its predicate pair.
func (c *PatternCache) Register(view *View) {
	c.views[view.Predicates] = view
}

// Rewrite looks for two triples in triples forming a chain matching a
// registered view in either predicate orientation. On a match it
// returns the matched view, the two matched triples' variable bindings
// (subject, mid, object — the caller substitutes a single view scan
// over these), and the remaining unmatched triples.
func (c *PatternCache) Rewrite(triples []TriplePattern) (view *View, subject, mid, object string, remaining []TriplePattern, matched bool) {
	for i := 0; i < len(triples); i++ {
		for j := 0; j < len(triples); j++ {
			if i == j {
				continue
			}
			a, b := triples[i], triples[j]
			if !isChainShape(a, b) {
				continue
			}

			s, m, o := a.Subject.Var, a.Object.Var, b.Object.Var
			pair := PredicatePair{P1: a.Predicate.Fixed, P2: b.Predicate.Fixed}

			if v, ok := c.views[pair]; ok {
				remaining = excludeIndices(triples, i, j)
				return v, s, m, o, remaining, true
			}
			// Check the view registered under the opposite orientation:
			// the same physical pair stored as (P2, P1) would match a
			// query written `?o <P2> ?m . ?m <P1> ?s` — already covered
			// by the symmetric (i, j) scan over all pairs above, so no
			// separate branch is needed here.
		}
	}
	return nil, "", "", "", triples, false
}

// isChainShape reports whether a, b form `?s <p1> ?m . ?m <p2> ?o` with
// three pairwise-distinct variables.
func isChainShape(a, b TriplePattern) bool {
	if !a.Subject.isVariable() || !a.Object.isVariable() {
		return false
	}
	if !b.Subject.isVariable() || !b.Object.isVariable() {
		return false
	}
	if a.Predicate.Fixed == "" || b.Predicate.Fixed == "" {
		return false
	}
	if a.Object.Var != b.Subject.Var {
		return false
	}
	s, m, o := a.Subject.Var, a.Object.Var, b.Object.Var
	return s != m && m != o && s != o
}

func excludeIndices(triples []TriplePattern, a, b int) []TriplePattern {
	out := make([]TriplePattern, 0, len(triples)-2)
	for i, t := range triples {
		if i == a || i == b {
			continue
		}
		out = append(out, t)
	}
	return out
}

// StarShape is a star pattern detected by DetectStar: a single subject
// with pairwise-distinct predicates and object variables.
type StarShape struct {
	Subject    string
	Predicates []string
	Objects    []string
	// Excluded holds triples that would create an internal join between
	// two arms of the star (an object variable of one arm reused
	// elsewhere) and so cannot be folded into the star scan.
	Excluded []TriplePattern
}

// DetectStar identifies a star pattern rooted at a single subject
// variable, for diagnostics only. It is deliberately never substituted
// into Rewrite's output: the teacher's own star-pattern rewrite
// (`checkStar`) builds a `UserQueryStar` value but never returns it, so
// its intended rewrite semantics are ambiguous; rather than guess, this
// keeps detection available for callers that want to log or explain
// query shape without changing the query plan (spec.md §9 Open
// Question).
func DetectStar(triples []TriplePattern) (*StarShape, bool) {
	bySubject := make(map[string][]TriplePattern)
	for _, t := range triples {
		if t.Subject.isVariable() {
			bySubject[t.Subject.Var] = append(bySubject[t.Subject.Var], t)
		}
	}

	for subject, arms := range bySubject {
		if len(arms) < 2 {
			continue
		}
		predicates := make(map[string]bool)
		objects := make(map[string]bool)
		distinct := true
		for _, t := range arms {
			if t.Predicate.Fixed == "" || predicates[t.Predicate.Fixed] {
				distinct = false
				break
			}
			predicates[t.Predicate.Fixed] = true
			objKey := t.Object.Var
			if !t.Object.isVariable() {
				objKey = "#" + t.Object.Fixed
			}
			if objects[objKey] {
				distinct = false
				break
			}
			objects[objKey] = true
		}
		if !distinct {
			continue
		}

		shape := &StarShape{Subject: subject}
		armObjectVars := make(map[string]bool)
		for _, t := range arms {
			shape.Predicates = append(shape.Predicates, t.Predicate.Fixed)
			shape.Objects = append(shape.Objects, t.Object.Var)
			if t.Object.isVariable() {
				armObjectVars[t.Object.Var] = true
			}
		}
		for _, t := range triples {
			if t.Subject.Var == subject {
				continue
			}
			if armObjectVars[t.Subject.Var] || armObjectVars[t.Object.Var] {
				shape.Excluded = append(shape.Excluded, t)
			}
		}
		return shape, true
	}
	return nil, false
}
