// Package storage is the self-contained key-value persistence layer
// behind the global vocabulary and the ValueId-keyed quadstore
// (spec.md §6 "on-disk index layout"). It used to be a thin BadgerDB
// adapter fronting pkg/store's port interfaces; now that pkg/store's
// hash-keyed engine is gone, the port types live here directly.
package storage

import "errors"

var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrTransactionRO = errors.New("storage: transaction is read-only")
)

// Storage is the interface for the underlying key-value store.
type Storage interface {
	Begin(writable bool) (Transaction, error)
	Close() error
	Sync() error
}

// Transaction represents a database transaction with snapshot isolation.
type Transaction interface {
	Get(table Table, key []byte) ([]byte, error)
	Set(table Table, key, value []byte) error
	Delete(table Table, key []byte) error
	// Scan iterates over a key range [start, end) within table. A nil
	// start begins from the first key; a nil end scans to the last key
	// sharing the table's prefix.
	Scan(table Table, start, end []byte) (Iterator, error)
	Commit() error
	Rollback() error
}

// Iterator iterates over key-value pairs within one table, keys returned
// with the table prefix already stripped.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Close() error
}

// Table is a logical column family, namespaced by a one-byte prefix.
// The schema is the ValueId-keyed single-default-graph layout: a dense
// global vocabulary (forward/reverse/counter) and the three triple
// permutations spec.md §3 describes as sufficient for one knowledge
// graph (multi-graph indexing is explicitly out of scope, see
// DESIGN.md).
type Table byte

const (
	// TableStr2ID maps a vocabulary string to its dense uint64 index.
	TableStr2ID Table = iota
	// TableID2Str is the reverse mapping, index -> string.
	TableID2Str
	// TableVocabMeta holds the single "next index" counter.
	TableVocabMeta
	// TableSPO, TablePOS, TableOSP are the three permutations of the
	// default graph's triples, keyed by 24-byte concatenated ValueIds.
	TableSPO
	TablePOS
	TableOSP

	TableCount
)

func (t Table) String() string {
	switch t {
	case TableStr2ID:
		return "str2id"
	case TableID2Str:
		return "id2str"
	case TableVocabMeta:
		return "vocabmeta"
	case TableSPO:
		return "spo"
	case TablePOS:
		return "pos"
	case TableOSP:
		return "osp"
	default:
		return "unknown"
	}
}

// TablePrefix returns the one-byte prefix namespacing a table's keys.
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey prepends table's prefix to key.
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefix(table)
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}
