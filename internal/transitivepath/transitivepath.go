// Package transitivepath implements the L3 TransitivePath operator:
// given a binary relation R and a (left, right) pair each either bound,
// free, or fixed, compute the (x, y) pairs with x R^k y for some
// k in [minDist, maxDist] (spec.md §4.3).
package transitivepath

import (
	"context"
	"fmt"
	"sort"

	"github.com/aleksaelezovic/trigo/internal/config"
	"github.com/aleksaelezovic/trigo/internal/valueid"
)

// Edge is one instance of the underlying relation R.
type Edge struct {
	From, To valueid.ValueId
}

// Direction says which end of the path is driven when walking hops.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

// Side describes one end of the path at construction time: a fixed term,
// a variable already bound by another subtree, or a free variable.
type Side struct {
	Fixed   *valueid.ValueId
	IsBound bool
	IsVar   bool
}

// FixedSide builds a Side pinned to a single term.
func FixedSide(id valueid.ValueId) Side { return Side{Fixed: &id} }

// BoundSide builds a Side already bound by another subtree.
func BoundSide() Side { return Side{IsBound: true, IsVar: true} }

// FreeSide builds a Side that is an unbound variable.
func FreeSide() Side { return Side{IsVar: true} }

func (s Side) isFixed() bool { return s.Fixed != nil }

// Plan is a constructed TransitivePath operator: the fixed left/right
// sides, hop bounds, and the structural decisions spec.md §4.3 makes at
// construction time.
type Plan struct {
	Left, Right Side
	MinDist     int
	MaxDist     int
	Direction   Direction

	// EmitEmptyPathSide is set when both sides are unbound and minDist
	// is (originally) 0: a synthetic scan seeding the zero-length case
	// is attached to the left.
	EmitEmptyPathSide bool

	// SingleRowValuesJoin is set when exactly one side is fixed and
	// minDist is (originally) 0: that side is bound via a one-row VALUES
	// join instead of a scan.
	SingleRowValuesJoin bool

	cfg *config.Config
}

// New applies spec.md §4.3's construction-time rewrites and chooses a
// walk direction.
func New(left, right Side, minDist, maxDist int, cfg *config.Config) (*Plan, error) {
	if minDist < 0 || maxDist < minDist {
		return nil, fmt.Errorf("transitivepath: invalid distance bounds [%d,%d]", minDist, maxDist)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Plan{Left: left, Right: right, MinDist: minDist, MaxDist: maxDist, cfg: cfg}

	bothFixed := left.isFixed() && right.isFixed()
	bothFixedDistinct := bothFixed && *left.Fixed != *right.Fixed
	bothFixedSame := bothFixed && *left.Fixed == *right.Fixed

	switch {
	case bothFixedDistinct && minDist == 0:
		// The identity case (x R^0 x) cannot match two distinct fixed
		// terms, so requiring it is vacuous; lift it away.
		p.MinDist = 1
	case !bothFixed && !left.isFixed() && !right.isFixed() && !left.IsBound && !right.IsBound && minDist == 0:
		p.EmitEmptyPathSide = true
	case (left.isFixed() != right.isFixed()) && minDist == 0:
		p.SingleRowValuesJoin = true
	case bothFixedSame:
		// identity trivially satisfies minDist==0; nothing to rewrite.
	}

	switch {
	case left.IsBound || left.isFixed():
		p.Direction = LeftToRight
	case right.IsBound || right.isFixed():
		p.Direction = RightToLeft
	default:
		p.Direction = LeftToRight
	}

	return p, nil
}

// bindSide is shared by BindLeftSide/BindRightSide: it marks the named
// side as bound and fixes the walk direction towards it.
func (p *Plan) bindSide(bindLeft bool) *Plan {
	cp := *p
	if bindLeft {
		cp.Left = BoundSide()
		cp.Direction = LeftToRight
	} else {
		cp.Right = BoundSide()
		cp.Direction = RightToLeft
	}
	return &cp
}

// BindLeftSide joins the left side against subtreeRows: (i) filters
// undefined values (the BOUND filter), (ii) conceptually joins with the
// knowledge graph when the subtree isn't already known to originate from
// it — left to the caller, which owns that join — (iii) the caller
// enforces sort order and picks the cheapest alternative subtree by cost
// estimate. Returns the rewritten plan plus the filtered row set to
// start walks from (spec.md §4.3 "bindLeftSide/bindRightSide").
func (p *Plan) BindLeftSide(subtreeRows []valueid.ValueId) (*Plan, []valueid.ValueId) {
	return p.bindSide(true), filterDefined(subtreeRows)
}

// BindRightSide is BindLeftSide's mirror for the right side.
func (p *Plan) BindRightSide(subtreeRows []valueid.ValueId) (*Plan, []valueid.ValueId) {
	return p.bindSide(false), filterDefined(subtreeRows)
}

func filterDefined(ids []valueid.ValueId) []valueid.ValueId {
	out := make([]valueid.ValueId, 0, len(ids))
	for _, id := range ids {
		if !id.IsUndefined() {
			out = append(out, id)
		}
	}
	return out
}

// SizeEstimate implements spec.md §4.3: 1000 if either side is fixed,
// else TransitivePathBlowupFactor * subtreeSizeEstimate.
func (p *Plan) SizeEstimate(subtreeSizeEstimate int64) int64 {
	if p.Left.isFixed() || p.Right.isFixed() {
		return p.cfg.TransitivePathFixedSizeEstimate
	}
	return p.cfg.TransitivePathBlowupFactor * subtreeSizeEstimate
}

// CostEstimate is the size estimate plus the sum of children's cost
// estimates (spec.md §4.3).
func (p *Plan) CostEstimate(subtreeSizeEstimate, childrenCostSum int64) int64 {
	return p.SizeEstimate(subtreeSizeEstimate) + childrenCostSum
}

// Row is one output row: column 0 the left variable's value, column 1
// the right's, columns 2+ the bound side's propagated remaining columns
// (spec.md §4.3 "Column layout").
type Row struct {
	Start, Target valueid.ValueId
	Extra         []valueid.ValueId
}

// Compute walks edges from each row in starts, producing the set of
// (start, target) pairs reachable at a depth in [MinDist, MaxDist],
// using the hash-map BFS or binary-search algorithm per
// cfg.UseBinSearchTransitivePath (both satisfy the same contract).
func (p *Plan) Compute(ctx context.Context, edges []Edge, starts []valueid.ValueId) ([]Row, error) {
	walkEdges := edges
	if p.Direction == RightToLeft {
		walkEdges = reverseEdges(edges)
	}

	var hull func(start valueid.ValueId) ([]valueid.ValueId, error)
	if p.cfg.UseBinSearchTransitivePath {
		sorted := append([]Edge(nil), walkEdges...)
		sort.Slice(sorted, func(i, j int) bool {
			return valueid.Less(sorted[i].From, sorted[j].From)
		})
		hull = func(start valueid.ValueId) ([]valueid.ValueId, error) {
			return sortedHull(ctx, sorted, start, p.MinDist, p.MaxDist)
		}
	} else {
		adjacency := make(map[valueid.ValueId][]valueid.ValueId, len(walkEdges))
		for _, e := range walkEdges {
			adjacency[e.From] = append(adjacency[e.From], e.To)
		}
		hull = func(start valueid.ValueId) ([]valueid.ValueId, error) {
			return bfsHull(ctx, adjacency, start, p.MinDist, p.MaxDist)
		}
	}

	var rows []Row
	for _, start := range starts {
		targets, err := hull(start)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			if p.Direction == RightToLeft {
				rows = append(rows, Row{Start: target, Target: start})
			} else {
				rows = append(rows, Row{Start: start, Target: target})
			}
		}
	}
	return rows, nil
}

func reverseEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = Edge{From: e.To, To: e.From}
	}
	return out
}

// bfsHull materialises successors in a dictionary and walks breadth
// first, collecting every node whose shortest depth from start falls in
// [minDist, maxDist]. It visits beyond maxDist only to the extent needed
// to bound the frontier, never past maxDist hops.
func bfsHull(ctx context.Context, adjacency map[valueid.ValueId][]valueid.ValueId, start valueid.ValueId, minDist, maxDist int) ([]valueid.ValueId, error) {
	type frontierEntry struct {
		node  valueid.ValueId
		depth int
	}

	visited := map[valueid.ValueId]bool{start: true}
	queue := []frontierEntry{{node: start, depth: 0}}
	var result []valueid.ValueId

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transitivepath: %w", ctx.Err())
		default:
		}

		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= minDist {
			result = append(result, cur.node)
		}

		if cur.depth >= maxDist {
			continue
		}
		for _, next := range adjacency[cur.node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frontierEntry{node: next, depth: cur.depth + 1})
		}
	}
	return result, nil
}

// sortedHull is the binary-search variant: the relation is kept sorted
// by From and each hop seeks its successor range with sort.Search
// instead of a hash lookup. It produces the same reachable set as
// bfsHull for the same inputs.
func sortedHull(ctx context.Context, sorted []Edge, start valueid.ValueId, minDist, maxDist int) ([]valueid.ValueId, error) {
	successorsOf := func(node valueid.ValueId) []valueid.ValueId {
		lo := sort.Search(len(sorted), func(i int) bool { return !valueid.Less(sorted[i].From, node) })
		hi := sort.Search(len(sorted), func(i int) bool { return valueid.Less(node, sorted[i].From) })
		out := make([]valueid.ValueId, 0, hi-lo)
		for _, e := range sorted[lo:hi] {
			out = append(out, e.To)
		}
		return out
	}

	type frontierEntry struct {
		node  valueid.ValueId
		depth int
	}

	visited := map[valueid.ValueId]bool{start: true}
	queue := []frontierEntry{{node: start, depth: 0}}
	var result []valueid.ValueId

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transitivepath: %w", ctx.Err())
		default:
		}

		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= minDist {
			result = append(result, cur.node)
		}

		if cur.depth >= maxDist {
			continue
		}
		for _, next := range successorsOf(cur.node) {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frontierEntry{node: next, depth: cur.depth + 1})
		}
	}
	return result, nil
}
