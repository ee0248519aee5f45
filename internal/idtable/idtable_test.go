package idtable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

func vid(n int64) valueid.ValueId {
	v, err := valueid.FromInt(n)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder(2)
	b.AddRow([]valueid.ValueId{vid(1), vid(2)})
	b.AddRow([]valueid.ValueId{vid(3), vid(4)})
	f := b.Build()

	require.Equal(t, 2, f.RowCount())
	require.Equal(t, vid(1), f.At(0, 0))
	require.Equal(t, vid(4), f.At(1, 1))
}

func TestCloneIsIndependent(t *testing.T) {
	b := NewBuilder(1)
	b.AddRow([]valueid.ValueId{vid(1)})
	f := b.Build()
	clone := f.Clone()

	require.Equal(t, f.Row(0), clone.Row(0))
}

func TestAddRowRejectsWrongWidth(t *testing.T) {
	b := NewBuilder(2)
	require.Panics(t, func() {
		b.AddRow([]valueid.ValueId{vid(1)})
	})
}

func TestCollectMergesChunksInOrder(t *testing.T) {
	f1 := NewFragment(1, []valueid.ValueId{vid(1), vid(2)})
	f2 := NewFragment(1, []valueid.ValueId{vid(3)})

	stream := NewSliceStream([]Chunk{
		{Fragment: f1, Vocab: localvocab.New([]string{"a"})},
		{Fragment: f2, Vocab: localvocab.New([]string{"b"})},
	})

	merged, vocab, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	require.Equal(t, 3, merged.RowCount())
	require.Equal(t, vid(1), merged.At(0, 0))
	require.Equal(t, vid(3), merged.At(2, 0))
	require.Equal(t, 2, vocab.Len())
}

func TestCollectOnEmptyStreamReturnsZeroRows(t *testing.T) {
	stream := NewSliceStream(nil)
	merged, _, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	require.Equal(t, 0, merged.RowCount())
}

func TestSliceStreamRespectsCancellation(t *testing.T) {
	stream := NewSliceStream([]Chunk{{Fragment: NewFragment(1, []valueid.ValueId{vid(1)})}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := stream.Next(ctx)
	require.Error(t, err)
}
