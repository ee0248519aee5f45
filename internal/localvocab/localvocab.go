// Package localvocab implements the L4 per-result LocalVocab: strings
// materialised during query evaluation that are not in the global
// vocabulary (e.g. the result of CONCAT), held alongside the IdTable
// fragment that references them via LocalVocabIndex ValueIds
// (spec.md §3, §4.7).
package localvocab

import (
	"sync/atomic"

	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// LocalVocab is an immutable, refcounted bag of strings. Immutable so it
// can be shared freely between IdTable fragments derived from the same
// evaluation step without copying; refcounted because its lifetime is
// "the longest holder among any IdTable derived from it" (spec.md §3),
// which Go's GC alone can't express once fragments are merged and
// re-split across operator boundaries.
type LocalVocab struct {
	strings []string
	refs    atomic.Int64
}

// New builds a LocalVocab over strings, in the order FromLocalVocabIndex
// indices will reference them. The caller owns the initial reference and
// must call Release when done with it.
func New(strings []string) *LocalVocab {
	lv := &LocalVocab{strings: strings}
	lv.refs.Store(1)
	return lv
}

// Empty is a zero-length LocalVocab, safe to share without refcounting
// since it is never mutated and Release/Retain on it are no-ops.
var Empty = &LocalVocab{strings: nil}

// Retain adds a reference, returning lv for chaining. Call once per new
// holder (e.g. a cloned IdTable fragment) that outlives the current one.
func (lv *LocalVocab) Retain() *LocalVocab {
	if lv == Empty {
		return lv
	}
	lv.refs.Add(1)
	return lv
}

// Release drops a reference. Once the count reaches zero the backing
// strings are dropped so the garbage collector can reclaim them; further
// use of lv after its last Release is a caller bug.
func (lv *LocalVocab) Release() {
	if lv == Empty {
		return
	}
	if lv.refs.Add(-1) == 0 {
		lv.strings = nil
	}
}

// Len returns the number of strings held.
func (lv *LocalVocab) Len() int {
	if lv == nil {
		return 0
	}
	return len(lv.strings)
}

// String resolves a LocalVocabIndex payload to its string.
func (lv *LocalVocab) String(index uint64) (string, bool) {
	if lv == nil || index >= uint64(len(lv.strings)) {
		return "", false
	}
	return lv.strings[index], true
}

// Append adds a string, returning the ValueId referencing it. Append
// must not be called concurrently with Retain/Release of the same
// instance from other goroutines without external synchronization — it
// mutates the backing slice, unlike the rest of the immutable-bag
// contract, and exists only for the builder that is assembling one
// fragment's LocalVocab before it is shared.
func (lv *LocalVocab) Append(s string) valueid.ValueId {
	index := uint64(len(lv.strings))
	lv.strings = append(lv.strings, s)
	return valueid.FromLocalVocabIndex(index)
}

// MergeAll combines several LocalVocabs into one, renumbering each
// source's LocalVocabIndex payloads by the offset of its strings in the
// merged slice. It returns the merged vocab and, per source (in the same
// order as vocabs), the offset to add to any ValueId's payload that
// referenced that source — used when yieldOnce merges multiple
// fragments into a single output table (spec.md §4.7).
func MergeAll(vocabs []*LocalVocab) (*LocalVocab, []uint64) {
	offsets := make([]uint64, len(vocabs))
	var merged []string
	for i, v := range vocabs {
		offsets[i] = uint64(len(merged))
		if v != nil {
			merged = append(merged, v.strings...)
		}
	}
	return New(merged), offsets
}

// Remap translates a LocalVocabIndex ValueId produced against one of the
// sources passed to MergeAll into the equivalent id against the merged
// vocabulary, using that source's offset.
func Remap(id valueid.ValueId, offset uint64) valueid.ValueId {
	if id.Tag() != valueid.LocalVocabIndex {
		return id
	}
	return valueid.FromLocalVocabIndex(id.Payload() + offset)
}
