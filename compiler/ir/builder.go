package ir

// Builder inserts ops at an insertion point.
// Pos advances past every inserted op.
type Builder struct {
	*Func

	Block BlockID
	Pos   int
}

func NewBuilder(f *Func) *Builder {
	return &Builder{Func: f, Block: NoBlock}
}

func (b *Builder) SetInsertionPointToEnd(blk BlockID) {
	b.Block = blk
	b.Pos = len(b.Func.Block(blk).Ops)
}

func (b *Builder) SetInsertionPointToStart(blk BlockID) {
	b.Block = blk
	b.Pos = 0
}

func (b *Builder) SetInsertionPointBefore(op OpID) {
	b.Block = b.Op(op).Block
	b.Pos = b.Index(op)
}

// SetInsertionPointAfter positions after op.
func (b *Builder) SetInsertionPointAfter(op OpID) {
	b.SetInsertionPointBefore(op)
	b.Pos++
}

func (b *Builder) Insert(op OpID) OpID {
	b.InsertOp(b.Block, b.Pos, op)
	b.Pos++

	return op
}

// CreateBlock creates a block before the given one in the same region.
// The insertion point moves to its end.
func (b *Builder) CreateBlock(before BlockID, args ...Type) BlockID {
	r := b.Func.Block(before).Region
	blk := b.InsertBlockBefore(r, before, args...)

	b.SetInsertionPointToEnd(blk)

	return blk
}

func (b *Builder) Const(t Type, imm int64) Value {
	return b.Result(b.Insert(b.NewConst(t, imm)), 0)
}

func (b *Builder) Add(x, y Value) Value {
	return b.Result(b.Insert(b.NewBinary(Add, x, y)), 0)
}

func (b *Builder) Sub(x, y Value) Value {
	return b.Result(b.Insert(b.NewBinary(Sub, x, y)), 0)
}

func (b *Builder) Mul(x, y Value) Value {
	return b.Result(b.Insert(b.NewBinary(Mul, x, y)), 0)
}

func (b *Builder) Cmp(p Pred, x, y Value) Value {
	return b.Result(b.Insert(b.NewCmp(p, x, y)), 0)
}

func (b *Builder) Br(target BlockID, args ...Value) OpID {
	return b.Insert(b.NewBr(target, args...))
}

func (b *Builder) CondBr(cond Value, t BlockID, targs []Value, e BlockID, eargs []Value) OpID {
	return b.Insert(b.NewCondBr(cond, t, targs, e, eargs))
}

func (b *Builder) Yield(vals ...Value) OpID {
	return b.Insert(b.NewYield(vals...))
}

func (b *Builder) Return(vals ...Value) OpID {
	return b.Insert(b.NewReturn(vals...))
}

func (b *Builder) For(lb, ub, step Value, inits ...Value) OpID {
	return b.Insert(b.NewFor(lb, ub, step, inits...))
}

func (b *Builder) If(cond Value, withElse bool, results ...Type) OpID {
	return b.Insert(b.NewIf(cond, withElse, results...))
}

func (b *Builder) Parallel(lbs, ubs, steps, inits []Value) OpID {
	return b.Insert(b.NewParallel(lbs, ubs, steps, inits))
}

func (b *Builder) Reduce(v Value) OpID {
	return b.Insert(b.NewReduce(v))
}

func (b *Builder) Clone(op OpID, m *Mapping) OpID {
	return b.Insert(b.Func.Clone(op, m))
}
