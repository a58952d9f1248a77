package ir

import "tlog.app/go/errors"

// SplitBlock moves ops of b starting at pos into a new block
// inserted right after b. The new block has no arguments.
func (f *Func) SplitBlock(b BlockID, pos int) BlockID {
	r := f.Block(b).Region
	nb := f.NewBlock()

	f.attachBlock(r, nb, f.blockIndex(r, b)+1)

	blk := f.Block(b)
	moved := append([]OpID{}, blk.Ops[pos:]...)
	blk.Ops = blk.Ops[:pos:pos]

	for _, op := range moved {
		f.Op(op).Block = nb
	}

	f.Block(nb).Ops = moved

	f.record(BlockSplit, NoOp, b)

	return nb
}

// InlineRegionBefore moves all blocks of r into the region of target
// right before target. r becomes empty.
func (f *Func) InlineRegionBefore(r RegionID, target BlockID) {
	dst := f.Block(target).Region
	at := f.blockIndex(dst, target)

	moved := f.Region(r).Blocks
	f.Region(r).Blocks = nil

	for i, b := range moved {
		f.attachBlock(dst, b, at+i)
	}

	f.record(RegionInlined, f.Region(r).Op, target)
}

// ReplaceTerminator erases the terminator of b and appends the detached op term.
func (f *Func) ReplaceTerminator(b BlockID, term OpID) {
	old := f.Terminator(b)
	if old == NoOp {
		panic(errors.New("block %d has no terminator", b))
	}

	f.EraseOp(old)
	f.AppendOp(b, term)
}

func (f *Func) ReplaceAllUses(from, to Value) {
	if from == to {
		return
	}

	f.Walk(f.Body, func(op OpID) bool {
		o := f.Op(op)

		for i, x := range o.Operands {
			if x == from {
				o.Operands[i] = to
			}
		}

		for _, succ := range o.Succs {
			for i, x := range succ.Args {
				if x == from {
					succ.Args[i] = to
				}
			}
		}

		return true
	})

	f.record(UsesReplaced, f.Def(from).Op, f.Def(from).Block)
}

// ReplaceOp redirects uses of op results to vals positionally and erases op.
func (f *Func) ReplaceOp(op OpID, vals []Value) {
	res := f.Op(op).Results
	if len(res) != len(vals) {
		panic(errors.New("replace op %d: %d results, %d values", op, len(res), len(vals)))
	}

	for i, r := range res {
		f.ReplaceAllUses(r, vals[i])
	}

	f.EraseOp(op)
}

// EraseOp removes op and everything nested in it.
// Results must have no uses left.
func (f *Func) EraseOp(op OpID) {
	for _, r := range f.Op(op).Results {
		if uses := f.Uses(r); len(uses) != 0 {
			panic(errors.New("erase op %d: result %d still has %d uses", op, r, len(uses)))
		}
	}

	b := f.Op(op).Block
	if b != NoBlock {
		blk := f.Block(b)
		i := f.Index(op)

		blk.Ops = append(blk.Ops[:i:i], blk.Ops[i+1:]...)
	}

	f.detach(op)
}

func (f *Func) detach(op OpID) {
	f.Op(op).Block = NoBlock

	f.record(OpErased, op, NoBlock)

	for _, r := range f.Op(op).Regions {
		for _, b := range f.Region(r).Blocks {
			for _, nested := range f.Block(b).Ops {
				f.detach(nested)
			}

			f.Block(b).Region = NoRegion
		}

		f.Region(r).Blocks = nil
	}
}
