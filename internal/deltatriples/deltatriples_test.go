package deltatriples

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/permutation"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func tk(a, b, c int64) permutation.TripleKey {
	return permutation.TripleKey{
		must(valueid.FromInt(a)),
		must(valueid.FromInt(b)),
		must(valueid.FromInt(c)),
	}
}

func must(id valueid.ValueId, err error) valueid.ValueId {
	if err != nil {
		panic(err)
	}
	return id
}

func TestCountJSONProjection(t *testing.T) {
	c := Count{Inserted: 5, Deleted: 3}
	buf, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"inserted":5,"deleted":3,"total":8}`, string(buf))
}

func TestCountArithmetic(t *testing.T) {
	a := Count{Inserted: 10, Deleted: 5}
	b := Count{Inserted: 3, Deleted: 2}
	require.Equal(t, Count{Inserted: 7, Deleted: 3}, a.Sub(b))
	require.Equal(t, Count{Inserted: -7, Deleted: -3}, b.Sub(a))
}

func TestInsertDeleteAreMutuallyExclusive(t *testing.T) {
	d := New()
	triple := tk(1, 2, 3)

	d.Delete(triple)
	require.Equal(t, Count{Inserted: 0, Deleted: 1}, d.Count())

	d.Insert(triple)
	require.Equal(t, Count{Inserted: 1, Deleted: 0}, d.Count())

	d.Delete(triple)
	require.Equal(t, Count{Inserted: 0, Deleted: 1}, d.Count())
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	d := New()
	d.Insert(tk(1, 1, 1))

	snap := d.Snapshot()
	require.True(t, snap.IsInserted(tk(1, 1, 1)))

	d.Insert(tk(2, 2, 2))
	d.Delete(tk(1, 1, 1))

	// The snapshot must not observe writes made after it was taken.
	require.False(t, snap.IsInserted(tk(2, 2, 2)))
	require.True(t, snap.IsInserted(tk(1, 1, 1)))
	require.False(t, snap.IsDeleted(tk(1, 1, 1)))
}

func TestClearResetsCounts(t *testing.T) {
	d := New()
	d.Insert(tk(1, 1, 1))
	d.Delete(tk(2, 2, 2))
	d.Clear()
	require.Equal(t, Count{}, d.Count())
}
