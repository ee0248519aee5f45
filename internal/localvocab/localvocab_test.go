package localvocab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func TestAppendAndResolve(t *testing.T) {
	lv := New(nil)
	id := lv.Append("hello")
	require.Equal(t, valueid.LocalVocabIndex, id.Tag())

	s, ok := lv.String(id.Payload())
	require.True(t, ok)
	require.Equal(t, "hello", s)
}

func TestRetainReleaseDropsStringsAtZero(t *testing.T) {
	lv := New([]string{"a", "b"})
	lv.Retain()
	lv.Release()
	require.Equal(t, 2, lv.Len())
	lv.Release()
	require.Equal(t, 0, lv.Len())
}

func TestMergeAllOffsetsEachSource(t *testing.T) {
	a := New([]string{"x", "y"})
	b := New([]string{"z"})

	merged, offsets := MergeAll([]*LocalVocab{a, b})
	require.Equal(t, []uint64{0, 2}, offsets)
	require.Equal(t, 3, merged.Len())

	idFromB := valueid.FromLocalVocabIndex(0)
	remapped := Remap(idFromB, offsets[1])
	s, ok := merged.String(remapped.Payload())
	require.True(t, ok)
	require.Equal(t, "z", s)
}

func TestRemapIsNoOpForNonLocalVocabIds(t *testing.T) {
	id, err := valueid.FromInt(42)
	require.NoError(t, err)
	require.Equal(t, id, Remap(id, 7))
}

func TestEmptyIsSafeToRetainRelease(t *testing.T) {
	require.NotPanics(t, func() {
		Empty.Retain()
		Empty.Release()
	})
	require.Equal(t, 0, Empty.Len())
}
