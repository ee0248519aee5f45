package globalvocab

import (
	"testing"

	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

func open(t *testing.T) *Vocabulary {
	t.Helper()
	st, err := storage.NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	v, err := Open(st)
	if err != nil {
		t.Fatalf("open vocab: %v", err)
	}
	return v
}

func TestInternResolveIRI(t *testing.T) {
	v := open(t)
	term := rdf.NewNamedNode("http://example.org/alice")
	id, err := v.InternTerm(term)
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	if id.Tag() != valueid.VocabIndex {
		t.Fatalf("expected VocabIndex tag, got %s", id.Tag())
	}
	got, err := v.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !got.Equals(term) {
		t.Errorf("expected %s, got %s", term, got)
	}
}

func TestInternIsIdempotent(t *testing.T) {
	v := open(t)
	term := rdf.NewNamedNode("http://example.org/alice")
	id1, _ := v.InternTerm(term)
	id2, _ := v.InternTerm(term)
	if id1 != id2 {
		t.Errorf("expected stable id across repeated interning, got %v and %v", id1, id2)
	}
}

func TestInternNumericLiteralsSkipVocabulary(t *testing.T) {
	v := open(t)
	id, err := v.InternTerm(rdf.NewIntegerLiteral(42))
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	if id.Tag() != valueid.Int {
		t.Fatalf("expected Int tag, got %s", id.Tag())
	}
	n, ok := id.Int()
	if !ok || n != 42 {
		t.Errorf("expected 42, got %d (ok=%v)", n, ok)
	}
}

func TestInternLangLiteralRoundTrips(t *testing.T) {
	v := open(t)
	term := rdf.NewLiteralWithLanguage("hello", "en")
	id, err := v.InternTerm(term)
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	got, err := v.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	lit, ok := got.(*rdf.Literal)
	if !ok {
		t.Fatalf("expected *rdf.Literal, got %T", got)
	}
	if lit.Value != "hello" || lit.Language != "en" {
		t.Errorf("expected hello@en, got %s@%s", lit.Value, lit.Language)
	}
}
