package querybuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/quadstore"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

func openStore(t *testing.T) *quadstore.QuadStore {
	t.Helper()
	st, err := storage.NewBadgerStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	vocab, err := globalvocab.Open(st)
	require.NoError(t, err)
	return quadstore.New(st, vocab)
}

func mustBuild(t *testing.T, qs *quadstore.QuadStore, query string) *Plan {
	t.Helper()
	q, err := parser.NewParser(query).Parse()
	require.NoError(t, err)
	plan, err := New(qs).Build(q)
	require.NoError(t, err)
	return plan
}

func resolveColumn(t *testing.T, qs *quadstore.QuadStore, plan *Plan, varName string) []string {
	t.Helper()
	stream, err := plan.Operator.Compute(context.Background())
	require.NoError(t, err)
	fragment, _, err := idtable.Collect(context.Background(), stream)
	require.NoError(t, err)

	col := -1
	for i, name := range plan.Variables {
		if name == varName {
			col = i
		}
	}
	require.GreaterOrEqual(t, col, 0, "variable %q not projected", varName)

	out := make([]string, fragment.RowCount())
	for r := 0; r < fragment.RowCount(); r++ {
		term, err := qs.Vocabulary().Resolve(fragment.At(r, col))
		require.NoError(t, err)
		if lit, ok := term.(*rdf.Literal); ok {
			out[r] = lit.Value
			continue
		}
		out[r] = term.String()
	}
	return out
}

func seedFriends(t *testing.T, qs *quadstore.QuadStore) {
	t.Helper()
	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")
	knows := rdf.NewNamedNode("http://example.org/knows")
	name := rdf.NewNamedNode("http://example.org/name")

	err := qs.InsertQuads([]*rdf.Quad{
		rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, knows, carol, rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph()),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol"), rdf.NewDefaultGraph()),
	})
	require.NoError(t, err)
}

func TestBuildSelectSingleTriplePattern(t *testing.T) {
	qs := openStore(t)
	seedFriends(t, qs)

	plan := mustBuild(t, qs, `SELECT ?friend WHERE { <http://example.org/alice> <http://example.org/knows> ?friend }`)
	got := resolveColumn(t, qs, plan, "friend")
	require.Len(t, got, 2)
}

func TestBuildSelectJoinAcrossTwoPatterns(t *testing.T) {
	qs := openStore(t)
	seedFriends(t, qs)

	plan := mustBuild(t, qs, `SELECT ?name WHERE {
		<http://example.org/alice> <http://example.org/knows> ?friend .
		?friend <http://example.org/name> ?name .
	}`)
	got := resolveColumn(t, qs, plan, "name")
	require.ElementsMatch(t, []string{"Bob", "Carol"}, got)
}

func TestBuildSelectWithFilter(t *testing.T) {
	qs := openStore(t)
	seedFriends(t, qs)

	plan := mustBuild(t, qs, `SELECT ?name WHERE {
		?person <http://example.org/name> ?name .
		FILTER(?name != "Bob")
	}`)
	got := resolveColumn(t, qs, plan, "name")
	require.NotContains(t, got, "Bob")
	require.Contains(t, got, "Alice")
}

func TestBuildSelectOptionalPadsMissingRows(t *testing.T) {
	qs := openStore(t)
	alice := rdf.NewNamedNode("http://example.org/alice")
	name := rdf.NewNamedNode("http://example.org/name")
	err := qs.InsertQuads([]*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
	})
	require.NoError(t, err)

	plan := mustBuild(t, qs, `SELECT ?name ?nickname WHERE {
		?person <http://example.org/name> ?name .
		OPTIONAL { ?person <http://example.org/nickname> ?nickname }
	}`)
	names := resolveColumn(t, qs, plan, "name")
	require.Equal(t, []string{"Alice"}, names)
}

func TestBuildSelectLimitAndOffset(t *testing.T) {
	qs := openStore(t)
	seedFriends(t, qs)

	plan := mustBuild(t, qs, `SELECT ?name WHERE { ?p <http://example.org/name> ?name } ORDER BY ?name LIMIT 1 OFFSET 1`)
	got := resolveColumn(t, qs, plan, "name")
	require.Equal(t, []string{"Bob"}, got)
}
