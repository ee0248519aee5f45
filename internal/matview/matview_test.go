package matview

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func v(name string) Term   { return Term{Var: name} }
func fixed(iri string) Term { return Term{Fixed: iri} }

func TestRewriteMatchesRegisteredChain(t *testing.T) {
	cache := NewPatternCache()
	cache.Register(&View{
		Predicates: PredicatePair{P1: "p1", P2: "p2"},
		SubjectVar: "s", MidVar: "m", ObjectVar: "o",
	})

	triples := []TriplePattern{
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("m")},
		{Subject: v("m"), Predicate: fixed("p2"), Object: v("o")},
		{Subject: v("o"), Predicate: fixed("unrelated"), Object: v("x")},
	}

	view, s, m, o, remaining, matched := cache.Rewrite(triples)
	require.True(t, matched)
	require.Equal(t, PredicatePair{P1: "p1", P2: "p2"}, view.Predicates)
	require.Equal(t, "s", s)
	require.Equal(t, "m", m)
	require.Equal(t, "o", o)
	require.Len(t, remaining, 1)
}

func TestRewriteMatchesOppositeOrientation(t *testing.T) {
	cache := NewPatternCache()
	cache.Register(&View{
		Predicates: PredicatePair{P1: "p2", P2: "p1"},
		SubjectVar: "o", MidVar: "m", ObjectVar: "s",
	})

	// View registered under the reversed pair (p2, p1); the query's chain
	// follows that order.
	triples := []TriplePattern{
		{Subject: v("o"), Predicate: fixed("p2"), Object: v("m")},
		{Subject: v("m"), Predicate: fixed("p1"), Object: v("s")},
	}

	_, _, _, _, _, matched := cache.Rewrite(triples)
	require.True(t, matched)
}

func TestRewriteNoMatchReturnsAllTriples(t *testing.T) {
	cache := NewPatternCache()
	triples := []TriplePattern{
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("m")},
	}
	_, _, _, _, remaining, matched := cache.Rewrite(triples)
	require.False(t, matched)
	require.Equal(t, triples, remaining)
}

func TestRewriteRejectsNonDistinctVariables(t *testing.T) {
	cache := NewPatternCache()
	cache.Register(&View{Predicates: PredicatePair{P1: "p1", P2: "p2"}})

	// m appears as both subject and the chain's would-be object.
	triples := []TriplePattern{
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("m")},
		{Subject: v("m"), Predicate: fixed("p2"), Object: v("s")},
	}
	_, _, _, _, _, matched := cache.Rewrite(triples)
	require.False(t, matched)
}

func TestFilterInvariantDropsUnreferencedBindAndValues(t *testing.T) {
	p := Pattern{
		Binds:  []Bind{{Target: "unused"}, {Target: "used"}},
		Values: []Values{{Variables: []string{"unused2"}}, {Variables: []string{"used"}}},
	}
	relevant := map[string]bool{"used": true}

	out := FilterInvariant(p, relevant)
	require.Len(t, out.Binds, 1)
	require.Equal(t, "used", out.Binds[0].Target)
	require.Len(t, out.Values, 1)
}

func TestFilterInvariantAlwaysKeepsOptional(t *testing.T) {
	p := Pattern{Optionals: []Optional{{}}}
	out := FilterInvariant(p, map[string]bool{})
	require.Len(t, out.Optionals, 1)
}

func TestDetectStarFindsMultiArmPatternAndExcludesJoiningTriple(t *testing.T) {
	triples := []TriplePattern{
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("o1")},
		{Subject: v("s"), Predicate: fixed("p2"), Object: v("o2")},
		{Subject: v("s"), Predicate: fixed("p3"), Object: v("o3")},
		{Subject: v("o1"), Predicate: fixed("extra"), Object: v("z")},
	}
	shape, found := DetectStar(triples)
	require.True(t, found)
	require.Equal(t, "s", shape.Subject)
	require.Len(t, shape.Predicates, 3)
	require.Len(t, shape.Excluded, 1)
}

func TestDetectStarRejectsRepeatedPredicate(t *testing.T) {
	triples := []TriplePattern{
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("o1")},
		{Subject: v("s"), Predicate: fixed("p1"), Object: v("o2")},
	}
	_, found := DetectStar(triples)
	require.False(t, found)
}
