// Package textindex implements the L3 text-index scan operators:
// given a word (optionally with a trailing `*` prefix wildcard), a
// text-record variable, and an entity binding, produce
// (text-record, entity, score) rows (spec.md §4.6).
package textindex

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/trigo/internal/engineerr"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// Record is one indexed text literal attached to an entity.
type Record struct {
	TextRecord valueid.ValueId
	Entity     valueid.ValueId
	Text       string
}

// Row is one scan result: (text-record, entity, score). For a
// fixed-entity scan, Entity is always the construction-time fixed value
// and the operator's result width is 2 (score + text); for a free entity
// the width is 3.
type Row struct {
	TextRecord valueid.ValueId
	Entity     valueid.ValueId
	Score      float64
}

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index is a built BM25-style inverted index over a fixed record set.
// The index is immutable once built, matching the append-only,
// bulk-constructed style of the rest of the engine's on-disk structures.
type Index struct {
	records     []Record
	postings    map[string][]int // word -> sorted record indices
	docLengths  []int            // token count per record
	avgDocLen   float64
	entityToIdx map[valueid.ValueId][]int
}

// Build tokenises every record's text (lower-cased, whitespace-split)
// and constructs the inverted index.
func Build(records []Record) *Index {
	idx := &Index{
		records:     records,
		postings:    make(map[string][]int),
		docLengths:  make([]int, len(records)),
		entityToIdx: make(map[valueid.ValueId][]int),
	}

	var totalLen int
	for i, r := range records {
		tokens := tokenize(r.Text)
		idx.docLengths[i] = len(tokens)
		totalLen += len(tokens)

		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			idx.postings[tok] = append(idx.postings[tok], i)
		}
		idx.entityToIdx[r.Entity] = append(idx.entityToIdx[r.Entity], i)
	}
	if len(records) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(records))
	}
	for word := range idx.postings {
		sort.Ints(idx.postings[word])
	}

	return idx
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// matchingRecordIndices returns the record indices whose tokens include
// word, or any token with word as a prefix when prefix is true.
func (idx *Index) matchingRecordIndices(word string, prefix bool) []int {
	word = strings.ToLower(word)
	if !prefix {
		return append([]int(nil), idx.postings[word]...)
	}

	seen := make(map[int]bool)
	var out []int
	for tok, recs := range idx.postings {
		if strings.HasPrefix(tok, word) {
			for _, r := range recs {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// score computes the BM25 score of word against the record at recIdx.
func (idx *Index) score(word string, recIdx int) float64 {
	n := len(idx.records)
	df := len(idx.postings[strings.ToLower(word)])
	if df == 0 || n == 0 {
		return 0
	}
	idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

	tf := 0
	for _, tok := range tokenize(idx.records[recIdx].Text) {
		if tok == strings.ToLower(word) {
			tf++
		}
	}
	docLen := float64(idx.docLengths[recIdx])
	denom := float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/maxFloat(idx.avgDocLen, 1))
	if denom == 0 {
		return 0
	}
	return idf * (float64(tf) * (bm25K1 + 1)) / denom
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ScanForWord is TextIndexScanForWord: entity is a free variable, so
// every matching record's entity is emitted (width-3 rows).
func ScanForWord(idx *Index, word string, prefix bool) ([]Row, error) {
	recIdxs := idx.matchingRecordIndices(word, prefix)
	rows := make([]Row, 0, len(recIdxs))
	for _, i := range recIdxs {
		r := idx.records[i]
		rows = append(rows, Row{TextRecord: r.TextRecord, Entity: r.Entity, Score: idx.score(word, i)})
	}
	return rows, nil
}

// ScanForEntity is TextIndexScanForEntity. When fixedEntity is nil the
// entity is a free variable and behaves like ScanForWord. When
// fixedEntity is non-nil, it is checked against the index's known
// entities at construction time — a fixed entity absent from the
// knowledge graph is a hard construction-time error naming the entity
// and the predicate that would have produced it (spec.md §4.6, §8 S3).
func ScanForEntity(idx *Index, word string, prefix bool, fixedEntity *valueid.ValueId) ([]Row, error) {
	if fixedEntity == nil {
		return ScanForWord(idx, word, prefix)
	}

	recIdxsForEntity, known := idx.entityToIdx[*fixedEntity]
	if !known {
		return nil, engineerr.New(engineerr.UnknownEntity, "ql:contains-entity",
			fmt.Errorf("entity %d is not present in the knowledge graph", uint64(*fixedEntity)))
	}

	matching := idx.matchingRecordIndices(word, prefix)
	matchSet := make(map[int]bool, len(matching))
	for _, i := range matching {
		matchSet[i] = true
	}

	rows := make([]Row, 0)
	for _, i := range recIdxsForEntity {
		if !matchSet[i] {
			continue
		}
		r := idx.records[i]
		rows = append(rows, Row{TextRecord: r.TextRecord, Entity: *fixedEntity, Score: idx.score(word, i)})
	}
	return rows, nil
}

// CacheKey computes the operator's cache key: stable over the word, the
// prefix flag, and (if fixed) the entity's payload — deliberately not a
// function of any variable name, matching the cache-key law's "renames
// that don't change bindings don't change the key" (spec.md §4.2).
func CacheKey(word string, prefix bool, fixedEntity *valueid.ValueId) string {
	material := word
	if prefix {
		material += "*"
	}
	if fixedEntity != nil {
		material += fmt.Sprintf("|entity=%d", uint64(*fixedEntity))
	}
	hash := xxh3.Hash128([]byte(material))
	return fmt.Sprintf("textscan:%016x%016x", hash.Hi, hash.Lo)
}
