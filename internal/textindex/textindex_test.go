package textindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/engineerr"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func vid(n uint64) valueid.ValueId {
	return valueid.FromVocabIndex(n)
}

// buildGraph mirrors spec.md §8 S2/S3: four literal objects, each
// self-entity (the entity binding is the literal itself).
func buildGraph() *Index {
	texts := []string{
		"he failed the test",
		"testing can help",
		"the test on friday was really hard",
		"some other sentence",
	}
	records := make([]Record, len(texts))
	for i, text := range texts {
		id := vid(uint64(i))
		records[i] = Record{TextRecord: valueid.FromTextRecordIndex(uint64(i)), Entity: id, Text: text}
	}
	return Build(records)
}

func textsOf(rows []Row, idx *Index) []string {
	byEntity := make(map[valueid.ValueId]string)
	for _, r := range idx.records {
		byEntity[r.Entity] = r.Text
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = byEntity[row.Entity]
	}
	return out
}

func TestScanForEntityFreeEntityReturnsAllPrefixMatches(t *testing.T) {
	idx := buildGraph()
	rows, err := ScanForEntity(idx, "test", true, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.ElementsMatch(t, []string{
		"he failed the test",
		"testing can help",
		"the test on friday was really hard",
	}, textsOf(rows, idx))
}

func TestScanForEntityFixedEntityNarrowsToOneRow(t *testing.T) {
	idx := buildGraph()
	fixed := vid(3) // "some other sentence"
	rows, err := ScanForEntity(idx, "sentence", false, &fixed)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, fixed, rows[0].Entity)
}

func TestScanForEntityUnknownFixedEntityIsConstructionError(t *testing.T) {
	idx := buildGraph()
	unknown := vid(999)
	_, err := ScanForEntity(idx, "sentence", false, &unknown)
	require.Error(t, err)

	classified, ok := engineerr.As(err)
	require.True(t, ok)
	require.Equal(t, engineerr.UnknownEntity, classified.Kind)
	require.Equal(t, "ql:contains-entity", classified.Op)
}

func TestCacheKeyIgnoresNothingButWordPrefixAndEntity(t *testing.T) {
	fixedA := vid(1)
	fixedB := vid(2)
	require.Equal(t, CacheKey("test", true, nil), CacheKey("test", true, nil))
	require.NotEqual(t, CacheKey("test", true, nil), CacheKey("test", false, nil))
	require.NotEqual(t, CacheKey("test", true, &fixedA), CacheKey("test", true, &fixedB))
}
