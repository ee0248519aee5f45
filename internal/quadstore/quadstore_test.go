package quadstore

import (
	"context"
	"testing"

	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

func open(t *testing.T) *QuadStore {
	t.Helper()
	st, err := storage.NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	vocab, err := globalvocab.Open(st)
	if err != nil {
		t.Fatalf("open vocab: %v", err)
	}
	return New(st, vocab)
}

func collectRows(t *testing.T, stream idtable.RowStream) [][]uint64 {
	t.Helper()
	var out [][]uint64
	fragment, _, err := idtable.Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	for r := 0; r < fragment.RowCount(); r++ {
		row := fragment.Row(r)
		ids := make([]uint64, len(row))
		for i, v := range row {
			ids[i] = uint64(v)
		}
		out = append(out, ids)
	}
	return out
}

func TestInsertAndScanByBoundSubject(t *testing.T) {
	qs := open(t)

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph()),
	}
	if err := qs.InsertQuads(quads); err != nil {
		t.Fatalf("insert: %v", err)
	}

	count, err := qs.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 triples, got %d", count)
	}

	aliceID, err := qs.Vocabulary().InternTerm(alice)
	if err != nil {
		t.Fatalf("intern: %v", err)
	}

	scan := qs.Scan("", "p", "o", &aliceID, nil, nil)
	stream, err := scan.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	rows := collectRows(t, stream)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for alice, got %d", len(rows))
	}
	if rows[0][0] != uint64(aliceID) {
		t.Errorf("expected subject column to echo alice's id")
	}
}

func TestScanUnboundReturnsAllTriples(t *testing.T) {
	qs := open(t)
	alice := rdf.NewNamedNode("http://example.org/alice")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	if err := qs.InsertQuads([]*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	scan := qs.Scan("s", "p", "o", nil, nil, nil)
	stream, err := scan.Compute(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	rows := collectRows(t, stream)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}
