// Package quadstore is the ValueId-keyed triple index spec.md §3/§6
// describes as the engine's on-disk permutation layer, replacing the
// teacher's hash-keyed pkg/store/internal/store pair: instead of 17-byte
// xxh3 hashes, every key is three 8-byte internal/valueid.ValueId values
// concatenated in SPO, POS, or OSP order. The spec's knowledge graph is
// a single default graph (multi-graph indexing is explicitly out of
// scope here, see DESIGN.md), so there is no graph column.
package quadstore

import (
	"context"
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/idtable"
	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/queryplan"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

const keyWidth = 8 // bytes per ValueId

// QuadStore is the default graph's triple index, keyed by ValueId across
// three permutations, fronted by a globalvocab.Vocabulary for term
// interning.
type QuadStore struct {
	storage storage.Storage
	vocab   *globalvocab.Vocabulary
}

// New builds a QuadStore over an already-open storage.Storage and
// globalvocab.Vocabulary (both own their own lifetime; QuadStore does
// not close either).
func New(st storage.Storage, vocab *globalvocab.Vocabulary) *QuadStore {
	return &QuadStore{storage: st, vocab: vocab}
}

// Vocabulary returns the backing vocabulary, e.g. for resolving result
// rows back to rdf.Term or for the builder to intern constant query
// terms.
func (q *QuadStore) Vocabulary() *globalvocab.Vocabulary { return q.vocab }

func encodeKey(a, b, c valueid.ValueId) []byte {
	buf := make([]byte, 3*keyWidth)
	putValueId(buf[0:keyWidth], a)
	putValueId(buf[keyWidth:2*keyWidth], b)
	putValueId(buf[2*keyWidth:3*keyWidth], c)
	return buf
}

func putValueId(dst []byte, v valueid.ValueId) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		dst[i] = byte(u)
		u >>= 8
	}
}

func getValueId(src []byte) valueid.ValueId {
	var u uint64
	for i := 0; i < 8; i++ {
		u = u<<8 | uint64(src[i])
	}
	return valueid.ValueId(u)
}

// InsertQuads interns every term of each quad (ignoring a non-default
// graph, since this engine indexes only the default graph — see
// DESIGN.md) and writes one entry per permutation in a single
// transaction.
func (q *QuadStore) InsertQuads(quads []*rdf.Quad) error {
	txn, err := q.storage.Begin(true)
	if err != nil {
		return fmt.Errorf("quadstore: begin: %w", err)
	}
	defer txn.Rollback()

	for _, quad := range quads {
		s, err := q.vocab.InternTerm(quad.Subject)
		if err != nil {
			return fmt.Errorf("quadstore: interning subject: %w", err)
		}
		p, err := q.vocab.InternTerm(quad.Predicate)
		if err != nil {
			return fmt.Errorf("quadstore: interning predicate: %w", err)
		}
		o, err := q.vocab.InternTerm(quad.Object)
		if err != nil {
			return fmt.Errorf("quadstore: interning object: %w", err)
		}

		if err := txn.Set(storage.TableSPO, encodeKey(s, p, o), nil); err != nil {
			return fmt.Errorf("quadstore: writing spo: %w", err)
		}
		if err := txn.Set(storage.TablePOS, encodeKey(p, o, s), nil); err != nil {
			return fmt.Errorf("quadstore: writing pos: %w", err)
		}
		if err := txn.Set(storage.TableOSP, encodeKey(o, s, p), nil); err != nil {
			return fmt.Errorf("quadstore: writing osp: %w", err)
		}
	}
	return txn.Commit()
}

// Count returns the number of triples (the SPO table's row count).
func (q *QuadStore) Count() (int64, error) {
	txn, err := q.storage.Begin(false)
	if err != nil {
		return 0, fmt.Errorf("quadstore: begin: %w", err)
	}
	defer txn.Rollback()

	it, err := txn.Scan(storage.TableSPO, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("quadstore: scan: %w", err)
	}
	defer it.Close()

	var count int64
	for it.Next() {
		count++
	}
	return count, nil
}

// Clear removes every triple from all three permutations, leaving the
// vocabulary intact. Used by the conformance test runner to reset the
// store between test cases without reopening storage.
func (q *QuadStore) Clear() error {
	txn, err := q.storage.Begin(true)
	if err != nil {
		return fmt.Errorf("quadstore: begin: %w", err)
	}
	defer txn.Rollback()

	for _, table := range []storage.Table{storage.TableSPO, storage.TablePOS, storage.TableOSP} {
		it, err := txn.Scan(table, nil, nil)
		if err != nil {
			return fmt.Errorf("quadstore: scan: %w", err)
		}
		var keys [][]byte
		for it.Next() {
			key := make([]byte, len(it.Key()))
			copy(key, it.Key())
			keys = append(keys, key)
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(table, key); err != nil {
				return fmt.Errorf("quadstore: delete: %w", err)
			}
		}
	}
	return txn.Commit()
}

// Bound is one column's binding in a scan pattern: either a fixed
// ValueId or unbound (Fixed == nil).
type Bound struct {
	Fixed *valueid.ValueId
}

func bound(id *valueid.ValueId) Bound { return Bound{Fixed: id} }

// choosePermutation picks the table and column order whose leading
// columns are bound, so the scan can seek instead of doing a full
// table scan: the quadstore analogue of permutation/block.go's six-way
// layout, trimmed to the three permutations this engine keeps for a
// single default graph.
func choosePermutation(s, p, o Bound) (storage.Table, permutation.Permutation, [3]int) {
	switch {
	case s.Fixed != nil:
		return storage.TableSPO, permutation.SPO, [3]int{0, 1, 2}
	case p.Fixed != nil:
		return storage.TablePOS, permutation.POS, [3]int{1, 2, 0}
	case o.Fixed != nil:
		return storage.TableOSP, permutation.OSP, [3]int{2, 0, 1}
	default:
		return storage.TableSPO, permutation.SPO, [3]int{0, 1, 2}
	}
}

// Scan returns a width-3 (subject, predicate, object) Operator reading
// every triple matching the given pattern (nil means "unbound"); bound
// columns are used to choose a permutation and a seek prefix rather than
// a full scan over every triple. sVar/pVar/oVar name the variable bound
// to each unbound column ("" for a column that is itself fixed), so
// VariableColumns can report them without the scan needing any other
// knowledge of the query it came from.
func (q *QuadStore) Scan(sVar, pVar, oVar string, s, p, o *valueid.ValueId) queryplan.Operator {
	return &ScanPlan{
		store: q,
		s:     bound(s), p: bound(p), o: bound(o),
		vars: [3]string{sVar, pVar, oVar},
	}
}

// ScanPlan is the leaf operator reading triples directly out of the
// quadstore's permutations, the piece the teacher's engine never had
// because it indexed terms by hash rather than by dense ValueId.
type ScanPlan struct {
	store   *QuadStore
	s, p, o Bound
	vars    [3]string
}

func (pl *ScanPlan) operatorNode() {}

func (pl *ScanPlan) ResultWidth() int { return 3 }

func (pl *ScanPlan) ResultSortedOn() []int {
	_, _, order := choosePermutation(pl.s, pl.p, pl.o)
	return []int{order[0]}
}

func (pl *ScanPlan) VariableColumns() map[string]queryplan.ColumnBinding {
	cols := make(map[string]queryplan.ColumnBinding, 3)
	for col, name := range pl.vars {
		if name != "" {
			cols[name] = queryplan.ColumnBinding{Column: col, AlwaysDefined: true}
		}
	}
	return cols
}

func (pl *ScanPlan) CacheKey() string {
	return fmt.Sprintf("Scan(%v,%v,%v)", fixedKey(pl.s), fixedKey(pl.p), fixedKey(pl.o))
}

func fixedKey(b Bound) string {
	if b.Fixed == nil {
		return "*"
	}
	return fmt.Sprintf("%d", uint64(*b.Fixed))
}

func (pl *ScanPlan) SizeEstimate() int64 {
	switch {
	case pl.s.Fixed != nil && pl.p.Fixed != nil && pl.o.Fixed != nil:
		return 1
	case pl.s.Fixed != nil || pl.p.Fixed != nil || pl.o.Fixed != nil:
		return 100
	default:
		return 100000
	}
}

func (pl *ScanPlan) CostEstimate() int64 { return pl.SizeEstimate() }

func (pl *ScanPlan) KnownEmptyResult() bool { return false }

func (pl *ScanPlan) Children() []queryplan.Operator { return nil }

func (pl *ScanPlan) Clone() queryplan.Operator {
	cp := *pl
	return &cp
}

func (pl *ScanPlan) Compute(ctx context.Context) (idtable.RowStream, error) {
	table, _, order := choosePermutation(pl.s, pl.p, pl.o)

	txn, err := pl.store.storage.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("quadstore: begin: %w", err)
	}
	defer txn.Rollback()

	bounds := [3]Bound{pl.s, pl.p, pl.o}
	// Seek prefix: bounds in the chosen permutation's own column order,
	// stopping at the first unbound column.
	var prefix []byte
	for _, col := range order {
		b := bounds[col]
		if b.Fixed == nil {
			break
		}
		buf := make([]byte, keyWidth)
		putValueId(buf, *b.Fixed)
		prefix = append(prefix, buf...)
	}

	it, err := txn.Scan(table, prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("quadstore: scan: %w", err)
	}
	defer it.Close()

	builder := idtable.NewBuilder(3)
	for it.Next() {
		key := it.Key()
		if len(prefix) > 0 && (len(key) < len(prefix) || !hasPrefix(key, prefix)) {
			break
		}
		if len(key) != 3*keyWidth {
			continue
		}
		permuted := [3]valueid.ValueId{
			getValueId(key[0:keyWidth]),
			getValueId(key[keyWidth : 2*keyWidth]),
			getValueId(key[2*keyWidth : 3*keyWidth]),
		}
		var row [3]valueid.ValueId
		for i, col := range order {
			row[col] = permuted[i]
		}
		matches := true
		for col, b := range bounds {
			if b.Fixed != nil && row[col] != *b.Fixed {
				matches = false
			}
		}
		if !matches {
			continue
		}
		builder.AddRow(row[:])
	}

	return idtable.NewSliceStream([]idtable.Chunk{{Fragment: builder.Build(), Vocab: localvocab.Empty}}), nil
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
