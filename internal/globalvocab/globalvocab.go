// Package globalvocab is the persistent dense vocabulary bridging
// pkg/rdf.Term, the wire-level RDF term representation, and
// internal/valueid.ValueId, the 64-bit tagged encoding every operator in
// internal/queryplan actually computes over (spec.md §3, §6 "Vocabulary
// file: stream of length-prefixed UTF-8 strings; random-access offset
// table alongside").
//
// Integer, double, decimal, boolean, and date literals are encoded
// directly as ValueIds and never touch the vocabulary. Everything else —
// IRIs, blank node labels, plain and language-tagged strings, and typed
// literals whose datatype this engine doesn't give a dedicated ValueId
// tag — round-trips through a dense uint64 index persisted in
// internal/storage. Vocabulary implements
// internal/geovocab.VocabularyWriter, so when a geo writer is attached,
// literal assignments also drive the geo-vocabulary writer's WKT-parsing
// pipeline (spec.md §4.1); IRIs and blank nodes never do.
package globalvocab

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aleksaelezovic/trigo/internal/geovocab"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

const epoch = "1970-01-01"

var vocabMetaKey = []byte("next")

// Vocabulary is the forward (string -> index) and reverse (index ->
// string) mapping backing VocabIndex ValueIds, plus direct encode/decode
// of the datatypes that never need interning.
type Vocabulary struct {
	store storage.Storage
	geo   *geovocab.Writer // nil when no geometry sidecar was requested

	mu   sync.Mutex
	next uint64
}

// Open loads (or initialises) the vocabulary backed by store. Callers
// that want geometry metadata computed for WKT literals build a
// geovocab.Writer against the returned Vocabulary (which satisfies
// geovocab.VocabularyWriter) and hand it back via AttachGeoWriter; tests
// that don't exercise spatial functions can skip that step entirely.
func Open(store storage.Storage) (*Vocabulary, error) {
	v := &Vocabulary{store: store}

	txn, err := store.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("globalvocab: begin: %w", err)
	}
	raw, err := txn.Get(storage.TableVocabMeta, vocabMetaKey)
	txn.Rollback()
	switch err {
	case nil:
		v.next = binary.BigEndian.Uint64(raw)
	case storage.ErrNotFound:
		v.next = 0
	default:
		return nil, fmt.Errorf("globalvocab: loading counter: %w", err)
	}

	return v, nil
}

// AttachGeoWriter attaches an already-constructed geovocab.Writer
// (built by the caller via geovocab.Open(path, v, ...), since the writer
// needs v itself as its VocabularyWriter). Kept as a separate step
// rather than folded into Open to avoid a constructor cycle.
func (v *Vocabulary) AttachGeoWriter(w *geovocab.Writer) {
	v.geo = w
}

// Append assigns (or returns the existing) dense index for word,
// implementing geovocab.VocabularyWriter so the geo-vocab writer
// pipeline can be driven directly off vocabulary insertion (spec.md
// §4.1). isExternal marks words stored out-of-line past
// config.ExternalisationThreshold; this implementation ignores the flag
// and stores every word the same way.
func (v *Vocabulary) Append(word string, isExternal bool) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	txn, err := v.store.Begin(true)
	if err != nil {
		return 0, fmt.Errorf("globalvocab: begin: %w", err)
	}
	defer txn.Rollback()

	key := []byte(word)
	if raw, err := txn.Get(storage.TableStr2ID, key); err == nil {
		return binary.BigEndian.Uint64(raw), nil
	} else if err != storage.ErrNotFound {
		return 0, fmt.Errorf("globalvocab: lookup: %w", err)
	}

	index := v.next
	v.next++

	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, index)
	if err := txn.Set(storage.TableStr2ID, key, idBuf); err != nil {
		return 0, fmt.Errorf("globalvocab: writing str2id: %w", err)
	}
	if err := txn.Set(storage.TableID2Str, idBuf, key); err != nil {
		return 0, fmt.Errorf("globalvocab: writing id2str: %w", err)
	}
	nextBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(nextBuf, v.next)
	if err := txn.Set(storage.TableVocabMeta, vocabMetaKey, nextBuf); err != nil {
		return 0, fmt.Errorf("globalvocab: writing counter: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("globalvocab: commit: %w", err)
	}
	return index, nil
}

// resolveString returns the vocabulary string for a dense index.
func (v *Vocabulary) resolveString(index uint64) (string, error) {
	txn, err := v.store.Begin(false)
	if err != nil {
		return "", fmt.Errorf("globalvocab: begin: %w", err)
	}
	defer txn.Rollback()

	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, index)
	raw, err := txn.Get(storage.TableID2Str, idBuf)
	if err != nil {
		return "", fmt.Errorf("globalvocab: resolving index %d: %w", index, err)
	}
	return string(raw), nil
}

// internedKind tags which vocabulary-shaped RDF term a string round-trips
// as, so Resolve can reconstruct the right concrete rdf.Term.
type internedKind byte

const (
	kindIRI internedKind = iota
	kindBlank
	kindPlainLiteral
	kindLangLiteral
	kindTypedLiteral
)

// InternTerm maps t onto its ValueId: integer/double/decimal/boolean/date
// literals encode directly, everything else is appended to the
// vocabulary (and, for literals, offered to the geo-vocab writer so WKT
// literals get geometry metadata regardless of their declared datatype,
// matching spec.md §4.1's "accepts a sequence of (word, isExternal)
// literals" — the writer itself decides via WKT parse success, not the
// caller).
func (v *Vocabulary) InternTerm(t rdf.Term) (valueid.ValueId, error) {
	switch term := t.(type) {
	case *rdf.NamedNode:
		return v.internString(kindIRI, term.IRI, false)
	case *rdf.BlankNode:
		return v.internString(kindBlank, term.ID, false)
	case *rdf.Literal:
		return v.internLiteral(term)
	default:
		return 0, fmt.Errorf("globalvocab: unsupported term type %T", t)
	}
}

func (v *Vocabulary) internLiteral(l *rdf.Literal) (valueid.ValueId, error) {
	if l.Datatype != nil {
		switch l.Datatype.IRI {
		case rdf.XSDInteger.IRI:
			if n, err := strconv.ParseInt(l.Value, 10, 64); err == nil {
				if id, err := valueid.FromInt(n); err == nil {
					return id, nil
				}
			}
		case rdf.XSDDouble.IRI, rdf.XSDDecimal.IRI:
			if f, err := strconv.ParseFloat(l.Value, 64); err == nil {
				return valueid.FromDouble(f), nil
			}
		case rdf.XSDBoolean.IRI:
			if b, err := strconv.ParseBool(l.Value); err == nil {
				return valueid.FromBool(b), nil
			}
		case rdf.XSDDate.IRI:
			if days, ok := parseDate(l.Value); ok {
				return valueid.FromDate(days), nil
			}
		}
	}

	encoded := encodeLiteralWord(l)
	kind := kindPlainLiteral
	switch {
	case l.Language != "":
		kind = kindLangLiteral
	case l.Datatype != nil:
		kind = kindTypedLiteral
	}
	return v.internString(kind, encoded, true)
}

func (v *Vocabulary) internString(kind internedKind, raw string, tryGeo bool) (valueid.ValueId, error) {
	word := string(byte(kind)) + raw
	var index uint64
	var err error
	if tryGeo && v.geo != nil {
		index, err = v.geo.Ingest(word, true)
	} else {
		index, err = v.Append(word, true)
	}
	if err != nil {
		return 0, err
	}
	return valueid.FromVocabIndex(index), nil
}

// Resolve decodes a ValueId back into an rdf.Term, reversing InternTerm.
func (v *Vocabulary) Resolve(id valueid.ValueId) (rdf.Term, error) {
	switch id.Tag() {
	case valueid.Int:
		n, _ := id.Int()
		return rdf.NewLiteralWithDatatype(strconv.FormatInt(n, 10), rdf.XSDInteger), nil
	case valueid.Double:
		f, _ := id.Double()
		return rdf.NewLiteralWithDatatype(strconv.FormatFloat(f, 'g', -1, 64), rdf.XSDDouble), nil
	case valueid.Bool:
		b, _ := id.Bool()
		return rdf.NewLiteralWithDatatype(strconv.FormatBool(b), rdf.XSDBoolean), nil
	case valueid.Date:
		days, _ := id.Date()
		t := time.Unix(days*86400, 0).UTC()
		return rdf.NewLiteralWithDatatype(t.Format("2006-01-02"), rdf.XSDDate), nil
	case valueid.GeoPoint:
		lat, lon, _ := id.GeoPoint()
		wkt := fmt.Sprintf("POINT(%g %g)", lon, lat)
		return rdf.NewLiteralWithDatatype(wkt, rdf.NewNamedNode("http://www.opengis.net/ont/geosparql#wktLiteral")), nil
	case valueid.VocabIndex:
		index, _ := id.VocabIndex()
		word, err := v.resolveString(index)
		if err != nil {
			return nil, err
		}
		return decodeWord(word)
	default:
		return nil, fmt.Errorf("globalvocab: cannot resolve ValueId tag %s", id.Tag())
	}
}

func decodeWord(word string) (rdf.Term, error) {
	if len(word) == 0 {
		return nil, fmt.Errorf("globalvocab: empty vocabulary word")
	}
	kind := internedKind(word[0])
	raw := word[1:]
	switch kind {
	case kindIRI:
		return rdf.NewNamedNode(raw), nil
	case kindBlank:
		return rdf.NewBlankNode(raw), nil
	case kindPlainLiteral:
		return decodeLiteralWord(raw), nil
	case kindLangLiteral:
		return decodeLiteralWord(raw), nil
	case kindTypedLiteral:
		return decodeLiteralWord(raw), nil
	default:
		return nil, fmt.Errorf("globalvocab: unknown vocabulary word kind %d", kind)
	}
}

// encodeLiteralWord/decodeLiteralWord give plain, language-tagged, and
// typed literals a single reversible string form so one vocabulary slot
// carries value+language+datatype together.
func encodeLiteralWord(l *rdf.Literal) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(l.Value)))
	b.WriteByte(':')
	b.WriteString(l.Value)
	b.WriteByte('@')
	b.WriteString(l.Language)
	b.WriteByte('^')
	if l.Datatype != nil {
		b.WriteString(l.Datatype.IRI)
	}
	return b.String()
}

func decodeLiteralWord(raw string) rdf.Term {
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return rdf.NewLiteral(raw)
	}
	n, err := strconv.Atoi(raw[:colon])
	if err != nil || colon+1+n > len(raw) {
		return rdf.NewLiteral(raw)
	}
	value := raw[colon+1 : colon+1+n]
	rest := raw[colon+1+n:]
	if len(rest) == 0 || rest[0] != '@' {
		return rdf.NewLiteral(value)
	}
	rest = rest[1:]
	caret := strings.IndexByte(rest, '^')
	if caret < 0 {
		return rdf.NewLiteral(value)
	}
	lang := rest[:caret]
	datatype := rest[caret+1:]
	switch {
	case lang != "":
		return rdf.NewLiteralWithLanguage(value, lang)
	case datatype != "":
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(datatype))
	default:
		return rdf.NewLiteral(value)
	}
}

func parseDate(s string) (int64, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, false
	}
	e, _ := time.Parse("2006-01-02", epoch)
	return int64(t.Sub(e).Hours() / 24), true
}
