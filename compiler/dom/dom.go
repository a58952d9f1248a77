package dom

import (
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/set"
)

type (
	// Tree is the dominator tree of one region.
	Tree struct {
		Region ir.RegionID
		Entry  ir.BlockID

		// Order lists reachable blocks in reverse postorder.
		Order []ir.BlockID

		idom map[ir.BlockID]ir.BlockID
		post map[ir.BlockID]int
	}

	blockAndIndex struct {
		b     ir.BlockID
		index int // number of successor edges already explored
	}
)

func Succs(f *ir.Func, b ir.BlockID) (s []ir.BlockID) {
	t := f.Terminator(b)
	if t == ir.NoOp {
		return nil
	}

	for _, x := range f.Op(t).Succs {
		s = append(s, x.Block)
	}

	return s
}

// Preds returns predecessors of blocks of region r, in region block order.
func Preds(f *ir.Func, r ir.RegionID) map[ir.BlockID][]ir.BlockID {
	p := make(map[ir.BlockID][]ir.BlockID)

	for _, b := range f.Region(r).Blocks {
		for _, s := range Succs(f, b) {
			p[s] = append(p[s], b)
		}
	}

	return p
}

// Postorder computes a DFS postorder of blocks reachable from the region entry.
func Postorder(f *ir.Func, r ir.RegionID) []ir.BlockID {
	entry := f.Entry(r)
	if entry == ir.NoBlock {
		return nil
	}

	seen := set.MakeBits[ir.BlockID](len(f.Blocks))
	order := make([]ir.BlockID, 0, len(f.Region(r).Blocks))

	s := []blockAndIndex{{b: entry}}
	seen.Set(entry)

	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]

		succs := Succs(f, x.b)

		if x.index < len(succs) {
			s[tos].index++

			bb := succs[x.index]
			if f.Block(bb).Region == r && !seen.IsSet(bb) {
				seen.Set(bb)
				s = append(s, blockAndIndex{b: bb})
			}

			continue
		}

		s = s[:tos]
		order = append(order, x.b)
	}

	return order
}

func Compute(f *ir.Func, r ir.RegionID) *Tree {
	post := Postorder(f, r)

	t := &Tree{
		Region: r,
		Entry:  f.Entry(r),
		Order:  make([]ir.BlockID, len(post)),
		idom:   make(map[ir.BlockID]ir.BlockID, len(post)),
		post:   make(map[ir.BlockID]int, len(post)),
	}

	for i, b := range post {
		t.post[b] = i
		t.Order[len(post)-1-i] = b
	}

	if len(post) == 0 {
		return t
	}

	preds := Preds(f, r)

	t.idom[t.Entry] = t.Entry

	for changed := true; changed; {
		changed = false

		for _, b := range t.Order[1:] {
			d := ir.NoBlock

			for _, p := range preds[b] {
				if _, ok := t.idom[p]; !ok {
					continue
				}

				if d == ir.NoBlock {
					d = p
					continue
				}

				d = t.intersect(p, d)
			}

			if old, ok := t.idom[b]; d != ir.NoBlock && (!ok || old != d) {
				t.idom[b] = d
				changed = true
			}
		}
	}

	return t
}

// intersect finds the closest dominator of both b and c.
func (t *Tree) intersect(b, c ir.BlockID) ir.BlockID {
	for b != c {
		if t.post[b] < t.post[c] {
			b = t.idom[b]
		} else {
			c = t.idom[c]
		}
	}

	return b
}

func (t *Tree) Reachable(b ir.BlockID) bool {
	_, ok := t.post[b]
	return ok
}

// Idom returns the immediate dominator of b, NoBlock for the entry and unreachable blocks.
func (t *Tree) Idom(b ir.BlockID) ir.BlockID {
	d, ok := t.idom[b]
	if !ok || b == t.Entry {
		return ir.NoBlock
	}

	return d
}

// Dominates reports whether a dominates b. Unreachable blocks are dominated by everything.
func (t *Tree) Dominates(a, b ir.BlockID) bool {
	if !t.Reachable(b) {
		return true
	}

	for {
		if a == b {
			return true
		}

		if b == t.Entry {
			return false
		}

		b = t.idom[b]
	}
}
