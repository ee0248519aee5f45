// Package idtable implements the row-major IdTable representation that
// flows between operators, and the lazy pull-based RowStream every
// operator's compute() returns (spec.md §3, §4.2).
package idtable

import (
	"context"
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/localvocab"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// Fragment is an immutable chunk of rows, row-major, with a statically
// known column count. Rows are never mutated in place; cloning is
// explicit (spec.md §3 "Rows are immutable once written... Cloning is
// explicit").
type Fragment struct {
	Width int
	rows  []valueid.ValueId // len == Width * rowCount, row i at [i*Width : i*Width+Width]
}

// NewFragment builds a Fragment from width and a flat row-major slice;
// it panics if the slice length isn't a multiple of width, a programmer
// error rather than a data error.
func NewFragment(width int, flat []valueid.ValueId) Fragment {
	if width <= 0 {
		panic("idtable: fragment width must be positive")
	}
	if len(flat)%width != 0 {
		panic(fmt.Sprintf("idtable: flat row data length %d is not a multiple of width %d", len(flat), width))
	}
	return Fragment{Width: width, rows: flat}
}

// RowCount returns the number of rows in the fragment.
func (f Fragment) RowCount() int {
	if f.Width == 0 {
		return 0
	}
	return len(f.rows) / f.Width
}

// At returns the value at (row, col).
func (f Fragment) At(row, col int) valueid.ValueId {
	return f.rows[row*f.Width+col]
}

// Row returns a copy of one row's values.
func (f Fragment) Row(row int) []valueid.ValueId {
	out := make([]valueid.ValueId, f.Width)
	copy(out, f.rows[row*f.Width:row*f.Width+f.Width])
	return out
}

// Clone returns an independent copy of the fragment (spec.md §3
// "Cloning is explicit").
func (f Fragment) Clone() Fragment {
	cp := make([]valueid.ValueId, len(f.rows))
	copy(cp, f.rows)
	return Fragment{Width: f.Width, rows: cp}
}

// Builder accumulates rows before producing an immutable Fragment.
type Builder struct {
	width int
	rows  []valueid.ValueId
}

// NewBuilder starts a Builder for fragments of the given width.
func NewBuilder(width int) *Builder {
	return &Builder{width: width}
}

// AddRow appends one row; it panics if len(row) != width.
func (b *Builder) AddRow(row []valueid.ValueId) {
	if len(row) != b.width {
		panic(fmt.Sprintf("idtable: row width %d does not match builder width %d", len(row), b.width))
	}
	b.rows = append(b.rows, row...)
}

// Build finalises the accumulated rows into an immutable Fragment.
func (b *Builder) Build() Fragment {
	return Fragment{Width: b.width, rows: b.rows}
}

// Chunk is one pulled unit from a RowStream: a Fragment plus the
// LocalVocab its LocalVocabIndex values reference.
type Chunk struct {
	Fragment Fragment
	Vocab    *localvocab.LocalVocab
}

// RowStream is the lazy pull-based sequence every operator's compute()
// returns. Next returns (chunk, true, nil) while more data is available,
// (zero, false, nil) at clean end of stream, or a non-nil error —
// including a cancellation error once ctx is done — that terminates the
// stream (spec.md §5 "Operators must check it at fragment boundaries").
type RowStream interface {
	Next(ctx context.Context) (Chunk, bool, error)
}

// Slice adapts a pre-built list of chunks into a RowStream, e.g. for
// leaf operators that materialise eagerly or for tests.
type Slice struct {
	chunks []Chunk
	pos    int
}

// NewSliceStream wraps chunks as a RowStream.
func NewSliceStream(chunks []Chunk) *Slice {
	return &Slice{chunks: chunks}
}

func (s *Slice) Next(ctx context.Context) (Chunk, bool, error) {
	select {
	case <-ctx.Done():
		return Chunk{}, false, fmt.Errorf("idtable: stream cancelled: %w", ctx.Err())
	default:
	}
	if s.pos >= len(s.chunks) {
		return Chunk{}, false, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, true, nil
}

// Collect drains a RowStream fully, merging every chunk's LocalVocab per
// spec.md §4.7's yieldOnce convention, and returns one Fragment plus the
// merged vocabulary.
func Collect(ctx context.Context, stream RowStream) (Fragment, *localvocab.LocalVocab, error) {
	var fragments []Fragment
	var vocabs []*localvocab.LocalVocab
	width := 0

	for {
		chunk, ok, err := stream.Next(ctx)
		if err != nil {
			return Fragment{}, nil, err
		}
		if !ok {
			break
		}
		width = chunk.Fragment.Width
		fragments = append(fragments, chunk.Fragment)
		vocabs = append(vocabs, chunk.Vocab)
	}

	merged, offsets := localvocab.MergeAll(vocabs)

	if width == 0 {
		return Fragment{}, merged, nil
	}
	b := NewBuilder(width)
	for i, f := range fragments {
		for r := 0; r < f.RowCount(); r++ {
			row := f.Row(r)
			for c := range row {
				row[c] = localvocab.Remap(row[c], offsets[i])
			}
			b.AddRow(row)
		}
	}
	return b.Build(), merged, nil
}
