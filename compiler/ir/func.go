package ir

func NewFunc(name string, params, results []Type) *Func {
	f := &Func{
		Name:    name,
		Results: results,
	}

	f.Body = f.NewRegion(NoOp)
	f.AppendBlock(f.Body, params...)

	return f
}

func (f *Func) Op(id OpID) *Op             { return &f.Ops[id] }
func (f *Func) Block(id BlockID) *Block    { return &f.Blocks[id] }
func (f *Func) Region(id RegionID) *Region { return &f.Regions[id] }
func (f *Func) Def(v Value) ValueInfo      { return f.Values[v] }
func (f *Func) Type(v Value) Type          { return f.Values[v].Type }

func (f *Func) Params() []Value {
	return f.Block(f.Entry(f.Body)).Args
}

func (f *Func) NewRegion(owner OpID) RegionID {
	id := RegionID(len(f.Regions))
	f.Regions = append(f.Regions, Region{Op: owner})

	return id
}

func (f *Func) newValue(t Type, op OpID, b BlockID, i int) Value {
	id := Value(len(f.Values))
	f.Values = append(f.Values, ValueInfo{
		Type:  t,
		Op:    op,
		Block: b,
		Index: i,
	})

	return id
}

// NewBlock creates a detached block with arguments of the given types.
func (f *Func) NewBlock(args ...Type) BlockID {
	id := BlockID(len(f.Blocks))
	f.Blocks = append(f.Blocks, Block{Region: NoRegion})

	var vals []Value
	for i, t := range args {
		vals = append(vals, f.newValue(t, NoOp, id, i))
	}

	f.Blocks[id].Args = vals

	f.record(BlockCreated, NoOp, id)

	return id
}

// AddArg appends an argument to block b.
func (f *Func) AddArg(b BlockID, t Type) Value {
	v := f.newValue(t, NoOp, b, len(f.Block(b).Args))
	f.Block(b).Args = append(f.Block(b).Args, v)

	return v
}

// AttachBlock appends the detached block b to region r.
func (f *Func) AttachBlock(r RegionID, b BlockID) {
	if f.Block(b).Region != NoRegion {
		panic("block is already attached")
	}

	f.attachBlock(r, b, len(f.Region(r).Blocks))
}

func (f *Func) AppendBlock(r RegionID, args ...Type) BlockID {
	return f.InsertBlockBefore(r, NoBlock, args...)
}

// InsertBlockBefore creates a block in region r before block before,
// or at the end of the region if before is NoBlock.
func (f *Func) InsertBlockBefore(r RegionID, before BlockID, args ...Type) BlockID {
	b := f.NewBlock(args...)

	f.attachBlock(r, b, f.blockIndex(r, before))

	return b
}

func (f *Func) attachBlock(r RegionID, b BlockID, at int) {
	reg := f.Region(r)

	reg.Blocks = append(reg.Blocks, NoBlock)
	copy(reg.Blocks[at+1:], reg.Blocks[at:])
	reg.Blocks[at] = b

	f.Block(b).Region = r
}

func (f *Func) blockIndex(r RegionID, b BlockID) int {
	blocks := f.Region(r).Blocks

	if b == NoBlock {
		return len(blocks)
	}

	for i, x := range blocks {
		if x == b {
			return i
		}
	}

	panic(b)
}

// NewOp creates a detached operation.
func (f *Func) NewOp(k Kind, operands []Value, results ...Type) OpID {
	id := OpID(len(f.Ops))
	f.Ops = append(f.Ops, Op{
		Kind:     k,
		Block:    NoBlock,
		Operands: dup(operands),
	})

	var vals []Value
	for i, t := range results {
		vals = append(vals, f.newValue(t, id, NoBlock, i))
	}

	f.Ops[id].Results = vals

	f.record(OpCreated, id, NoBlock)

	return id
}

// InsertOp attaches a detached op to block b at position pos.
func (f *Func) InsertOp(b BlockID, pos int, op OpID) {
	if f.Op(op).Block != NoBlock {
		panic("op is already attached")
	}

	blk := f.Block(b)

	blk.Ops = append(blk.Ops, NoOp)
	copy(blk.Ops[pos+1:], blk.Ops[pos:])
	blk.Ops[pos] = op

	f.Op(op).Block = b

	f.record(OpInserted, op, b)
}

func (f *Func) AppendOp(b BlockID, op OpID) {
	f.InsertOp(b, len(f.Block(b).Ops), op)
}

func (f *Func) Entry(r RegionID) BlockID {
	reg := f.Region(r)
	if len(reg.Blocks) == 0 {
		return NoBlock
	}

	return reg.Blocks[0]
}

func (f *Func) Last(r RegionID) BlockID {
	reg := f.Region(r)
	if len(reg.Blocks) == 0 {
		return NoBlock
	}

	return reg.Blocks[len(reg.Blocks)-1]
}

// Terminator returns the last op of b if it is a terminator.
func (f *Func) Terminator(b BlockID) OpID {
	ops := f.Block(b).Ops
	if len(ops) == 0 {
		return NoOp
	}

	last := ops[len(ops)-1]
	if !f.Op(last).Kind.IsTerminator() {
		return NoOp
	}

	return last
}

// Index returns the position of op in its block.
func (f *Func) Index(op OpID) int {
	b := f.Op(op).Block
	if b == NoBlock {
		return -1
	}

	for i, x := range f.Block(b).Ops {
		if x == op {
			return i
		}
	}

	panic(op)
}

// ParentOp returns the structured op owning the region of b, or NoOp for the function body.
func (f *Func) ParentOp(b BlockID) OpID {
	r := f.Block(b).Region
	if r == NoRegion {
		return NoOp
	}

	return f.Region(r).Op
}

// Depth is the number of ops enclosing op.
func (f *Func) Depth(op OpID) (d int) {
	for {
		b := f.Op(op).Block
		if b == NoBlock {
			return d
		}

		op = f.ParentOp(b)
		if op == NoOp {
			return d
		}

		d++
	}
}

func (f *Func) Live(op OpID) bool {
	return f.Op(op).Block != NoBlock
}

// Walk calls fn for every op in r and in nested regions in pre-order.
// Returning false from fn skips the op's regions.
func (f *Func) Walk(r RegionID, fn func(op OpID) bool) {
	for _, b := range f.Region(r).Blocks {
		f.WalkBlock(b, fn)
	}
}

func (f *Func) WalkBlock(b BlockID, fn func(op OpID) bool) {
	ops := append([]OpID{}, f.Block(b).Ops...)

	for _, op := range ops {
		if !fn(op) {
			continue
		}

		for _, r := range f.Op(op).Regions {
			f.Walk(r, fn)
		}
	}
}

func (f *Func) Uses(v Value) (uses []Use) {
	f.Walk(f.Body, func(op OpID) bool {
		o := f.Op(op)

		for i, x := range o.Operands {
			if x == v {
				uses = append(uses, Use{Op: op, Succ: -1, Index: i})
			}
		}

		for s, succ := range o.Succs {
			for i, x := range succ.Args {
				if x == v {
					uses = append(uses, Use{Op: op, Succ: s, Index: i})
				}
			}
		}

		return true
	})

	return uses
}

func (f *Func) HasUses(v Value) bool {
	return len(f.Uses(v)) != 0
}

// Structured returns all live structured ops in pre-order.
func (f *Func) Structured() (ops []OpID) {
	f.Walk(f.Body, func(op OpID) bool {
		if f.Op(op).Kind.IsStructured() {
			ops = append(ops, op)
		}

		return true
	})

	return ops
}

func (p *Package) Func(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}
