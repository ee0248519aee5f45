package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTriplePatternPlainPredicateHasNoPathModifier(t *testing.T) {
	p := NewParser(`SELECT ?s WHERE { ?s <http://example.org/knows> ?o }`)
	query, err := p.Parse()
	require.NoError(t, err)

	pattern := query.Select.Where.Patterns[0]
	require.False(t, pattern.PathPlus)
	require.False(t, pattern.PathStar)
}

func TestParseTriplePatternPlusSetsPathPlus(t *testing.T) {
	p := NewParser(`SELECT ?s WHERE { ?s <http://example.org/knows>+ ?o }`)
	query, err := p.Parse()
	require.NoError(t, err)

	pattern := query.Select.Where.Patterns[0]
	require.True(t, pattern.PathPlus)
	require.False(t, pattern.PathStar)
	require.False(t, pattern.Predicate.IsVariable())
}

func TestParseTriplePatternStarSetsPathStar(t *testing.T) {
	p := NewParser(`SELECT ?s WHERE { ?s <http://example.org/knows>* ?o }`)
	query, err := p.Parse()
	require.NoError(t, err)

	pattern := query.Select.Where.Patterns[0]
	require.False(t, pattern.PathPlus)
	require.True(t, pattern.PathStar)
}

func TestParseTriplePatternVariablePredicateHasNoPathModifier(t *testing.T) {
	// A variable predicate can never carry a path modifier, since +/* only
	// apply to a fixed predicate term; '?p' followed by whitespace then an
	// object is just a plain triple.
	p := NewParser(`SELECT ?s WHERE { ?s ?p ?o }`)
	query, err := p.Parse()
	require.NoError(t, err)

	pattern := query.Select.Where.Patterns[0]
	require.True(t, pattern.Predicate.IsVariable())
	require.False(t, pattern.PathPlus)
	require.False(t, pattern.PathStar)
}
