package valueid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUndefinedSortsBelowEverything(t *testing.T) {
	others := []ValueId{
		FromTagAndPayload(Int, 0),
		FromDouble(-1.5),
		FromBool(false),
		FromVocabIndex(0),
	}
	for _, o := range others {
		require.True(t, Less(UndefinedId, o))
		require.False(t, Less(o, UndefinedId))
	}
	require.Equal(t, 0, Compare(UndefinedId, UndefinedId))
}

func TestIntRoundTripAndOrder(t *testing.T) {
	vals := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40)}
	ids := make([]ValueId, len(vals))
	for i, v := range vals {
		id, err := FromInt(v)
		require.NoError(t, err)
		ids[i] = id
		got, ok := id.Int()
		require.True(t, ok)
		require.Equal(t, v, got)
	}

	lt, err := FromInt(-5)
	require.NoError(t, err)
	gt, err := FromInt(5)
	require.NoError(t, err)
	require.True(t, Less(lt, gt))
}

func TestIntOutOfRange(t *testing.T) {
	_, err := FromInt(1 << 62)
	require.Error(t, err)
}

func TestDoubleOrderPreserved(t *testing.T) {
	values := []float64{-100.5, -1, 0, 1, 3.14159, 100.5}
	ids := make([]ValueId, len(values))
	for i, v := range values {
		ids[i] = FromDouble(v)
	}
	for i := 1; i < len(ids); i++ {
		require.True(t, Less(ids[i-1], ids[i]), "expected %v < %v", values[i-1], values[i])
	}
}

func TestBoolRoundTrip(t *testing.T) {
	tr := FromBool(true)
	fa := FromBool(false)
	vt, ok := tr.Bool()
	require.True(t, ok)
	require.True(t, vt)
	vf, ok := fa.Bool()
	require.True(t, ok)
	require.False(t, vf)
	require.True(t, Less(fa, tr))
}

func TestGeoPointRoundTripApprox(t *testing.T) {
	id := FromGeoPoint(48.8566, 2.3522)
	lat, lon, ok := id.GeoPoint()
	require.True(t, ok)
	require.InDelta(t, 48.8566, lat, 1e-4)
	require.InDelta(t, 2.3522, lon, 1e-4)
}

func TestCrossTagOrderIsFixed(t *testing.T) {
	i, _ := FromInt(1000000)
	d := FromDouble(0.0001)
	// Different tags: order is determined by tag, not value.
	if i.Tag() < d.Tag() {
		require.True(t, Less(i, d))
	} else {
		require.True(t, Less(d, i))
	}
}
