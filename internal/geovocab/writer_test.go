package geovocab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeVocab assigns dense monotone indexes, matching the minimal
// VocabularyWriter contract the geo-vocab writer depends on.
type fakeVocab struct {
	mu   sync.Mutex
	next uint64
}

func (v *fakeVocab) Append(word string, isExternal bool) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.next
	v.next++
	return idx, nil
}

func TestWriterOrdersRecordsByIndexRegardlessOfCompletionOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.sidecar")

	w, err := Open(path, &fakeVocab{}, 8, 16, nil)
	require.NoError(t, err)

	words := []string{
		"POINT(1 1)",
		"not wkt at all",
		"POINT(2 2)",
		"POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))",
		"garbage",
		"POINT(3 3)",
	}

	indexes := make([]uint64, len(words))
	for i, word := range words {
		idx, err := w.Ingest(word, false)
		require.NoError(t, err)
		indexes[i] = idx
	}

	require.NoError(t, w.Finish(context.Background()))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(len(words)), r.Size())

	for i, word := range words {
		info, ok, err := r.GetGeoInfo(indexes[i])
		require.NoError(t, err)
		expected, parseErr := parseGeometry(word)
		if parseErr != nil {
			require.False(t, ok, "expected sentinel for %q", word)
			require.True(t, info.IsZero())
			continue
		}
		require.True(t, ok)
		require.Equal(t, expected, info)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.sidecar")

	w, err := Open(path, &fakeVocab{}, 2, 4, nil)
	require.NoError(t, err)

	_, err = w.Ingest("POINT(0 0)", false)
	require.NoError(t, err)

	require.NoError(t, w.Finish(context.Background()))
	require.NoError(t, w.Finish(context.Background())) // second call is a no-op
}

func TestSentinelIsNeverProducedByAValidGeometry(t *testing.T) {
	// A point at the origin has zero bounding box and zero area, but its
	// WKT-type tag is nonzero, so it must not collide with the sentinel.
	info, err := parseGeometry("POINT(0 0)")
	require.NoError(t, err)
	require.False(t, info.IsZero())
	require.Equal(t, WKTTypePoint, info.Type)
}

func TestWriterUnderConcurrencyMatchesReferenceComputation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.sidecar")

	const n = 2000
	words := make([]string, n)
	var invalidCount int64
	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			words[i] = fmt.Sprintf("POINT(%d %d)", i, i)
		case 1:
			words[i] = fmt.Sprintf("POLYGON((0 0, %d 0, %d %d, 0 %d, 0 0))", i+1, i+1, i+1, i+1)
		case 2:
			words[i] = "this is not valid wkt"
			atomic.AddInt64(&invalidCount, 1)
		}
	}

	w, err := Open(path, &fakeVocab{}, 8, 64, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	indexes := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := w.Ingest(words[i], false)
			require.NoError(t, err)
			indexes[i] = idx
		}(i)
	}
	wg.Wait()

	require.NoError(t, w.Finish(context.Background()))

	stats := w.Stats()
	require.Equal(t, uint64(n), stats.RecordsWritten)
	require.Equal(t, uint64(invalidCount), stats.InvalidWKT)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, uint64(n), r.Size())

	for i := 0; i < n; i++ {
		info, ok, err := r.GetGeoInfo(indexes[i])
		require.NoError(t, err)
		expected, parseErr := parseGeometry(words[i])
		if parseErr != nil {
			require.False(t, ok)
			continue
		}
		require.True(t, ok)
		require.Equal(t, expected, info)
	}
}

func TestVersionMismatchRefusesToOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.sidecar")

	w, err := Open(path, &fakeVocab{}, 1, 1, nil)
	require.NoError(t, err)
	require.NoError(t, w.Finish(context.Background()))

	// Corrupt the version header in place.
	raw, err := OpenReader(path)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenReader(path)
	require.Error(t, err)
}
