// Package deltatriples implements the L2 in-memory insert/delete overlay
// layered on top of the permutation indexes: queries consult the
// permutations for the persisted state and this package's sets for
// changes made since the last merge into the index.
package deltatriples

import (
	"encoding/json"
	"sync"

	"github.com/aleksaelezovic/trigo/internal/permutation"
)

// Count is the observable {inserted, deleted, total} triple reported for
// a DeltaTriples instance, with the JSON projection {"inserted":i,
// "deleted":d,"total":i+d}.
type Count struct {
	Inserted int64
	Deleted  int64
}

// Total returns Inserted + Deleted.
func (c Count) Total() int64 {
	return c.Inserted + c.Deleted
}

// Sub computes a - b component-wise on signed integers; the result may
// be negative in either component.
func (c Count) Sub(other Count) Count {
	return Count{
		Inserted: c.Inserted - other.Inserted,
		Deleted:  c.Deleted - other.Deleted,
	}
}

// MarshalJSON projects Count to {"inserted":i,"deleted":d,"total":i+d}.
func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Inserted int64 `json:"inserted"`
		Deleted  int64 `json:"deleted"`
		Total    int64 `json:"total"`
	}{
		Inserted: c.Inserted,
		Deleted:  c.Deleted,
		Total:    c.Total(),
	})
}

// DeltaTriples holds two sets of triples (inserted, deleted) overlaying
// the persisted permutations. State is process-wide and guarded by a
// single-writer / many-readers discipline: writers take the exclusive
// lock, readers snapshot under the shared lock at query start
// (spec.md §5 "Delta-triples state is process-wide").
type DeltaTriples struct {
	mu       sync.RWMutex
	inserted map[permutation.TripleKey]struct{}
	deleted  map[permutation.TripleKey]struct{}
}

// New returns an empty overlay.
func New() *DeltaTriples {
	return &DeltaTriples{
		inserted: make(map[permutation.TripleKey]struct{}),
		deleted:  make(map[permutation.TripleKey]struct{}),
	}
}

// Insert records t as inserted. If t was previously marked deleted, that
// mark is cleared (the triple is back to its persisted state or newly
// present, never both inserted and deleted at once).
func (d *DeltaTriples) Insert(t permutation.TripleKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.deleted, t)
	d.inserted[t] = struct{}{}
}

// Delete records t as deleted, clearing any pending insertion of t.
func (d *DeltaTriples) Delete(t permutation.TripleKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inserted, t)
	d.deleted[t] = struct{}{}
}

// Clear drops all pending changes, e.g. after they have been merged into
// the persisted permutations.
func (d *DeltaTriples) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserted = make(map[permutation.TripleKey]struct{})
	d.deleted = make(map[permutation.TripleKey]struct{})
}

// Count reports the current {inserted, deleted} sizes.
func (d *DeltaTriples) Count() Count {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Count{
		Inserted: int64(len(d.inserted)),
		Deleted:  int64(len(d.deleted)),
	}
}

// Snapshot is an immutable, point-in-time view of the overlay taken
// under the shared lock; a query holds one for its whole lifetime so
// concurrent writers cannot change the triples it is evaluating against
// mid-query (spec.md §5 "readers snapshot the delta index at query
// start").
type Snapshot struct {
	inserted map[permutation.TripleKey]struct{}
	deleted  map[permutation.TripleKey]struct{}
}

// Snapshot takes a consistent read-only view of the current overlay.
func (d *DeltaTriples) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := &Snapshot{
		inserted: make(map[permutation.TripleKey]struct{}, len(d.inserted)),
		deleted:  make(map[permutation.TripleKey]struct{}, len(d.deleted)),
	}
	for k := range d.inserted {
		s.inserted[k] = struct{}{}
	}
	for k := range d.deleted {
		s.deleted[k] = struct{}{}
	}
	return s
}

// IsInserted reports whether t is in this snapshot's insert set.
func (s *Snapshot) IsInserted(t permutation.TripleKey) bool {
	_, ok := s.inserted[t]
	return ok
}

// IsDeleted reports whether t is in this snapshot's delete set.
func (s *Snapshot) IsDeleted(t permutation.TripleKey) bool {
	_, ok := s.deleted[t]
	return ok
}

// Count reports the {inserted, deleted} sizes captured by this snapshot.
func (s *Snapshot) Count() Count {
	return Count{
		Inserted: int64(len(s.inserted)),
		Deleted:  int64(len(s.deleted)),
	}
}

// Inserted returns the triples this snapshot marks as inserted. The
// returned slice is a copy; mutating it does not affect the snapshot.
func (s *Snapshot) Inserted() []permutation.TripleKey {
	out := make([]permutation.TripleKey, 0, len(s.inserted))
	for k := range s.inserted {
		out = append(out, k)
	}
	return out
}

// Deleted returns the triples this snapshot marks as deleted. The
// returned slice is a copy; mutating it does not affect the snapshot.
func (s *Snapshot) Deleted() []permutation.TripleKey {
	out := make([]permutation.TripleKey, 0, len(s.deleted))
	for k := range s.deleted {
		out = append(out, k)
	}
	return out
}
