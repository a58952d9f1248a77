package ir

// Constructors below create detached ops. Use Builder to insert them.

func (f *Func) NewConst(t Type, imm int64) OpID {
	op := f.NewOp(Const, nil, t)
	f.Op(op).Imm = imm

	return op
}

func (f *Func) NewBinary(k Kind, x, y Value) OpID {
	return f.NewOp(k, []Value{x, y}, f.Type(x))
}

func (f *Func) NewCmp(p Pred, x, y Value) OpID {
	op := f.NewOp(Cmp, []Value{x, y}, I1)
	f.Op(op).Pred = p

	return op
}

func (f *Func) NewOpaque(name string, operands []Value, results ...Type) OpID {
	op := f.NewOp(Opaque, operands, results...)
	f.Op(op).Name = name

	return op
}

func (f *Func) NewBr(target BlockID, args ...Value) OpID {
	op := f.NewOp(Br, nil)
	f.Op(op).Succs = []Succ{{Block: target, Args: dup(args)}}

	return op
}

func (f *Func) NewCondBr(cond Value, t BlockID, targs []Value, e BlockID, eargs []Value) OpID {
	op := f.NewOp(CondBr, []Value{cond})
	f.Op(op).Succs = []Succ{
		{Block: t, Args: dup(targs)},
		{Block: e, Args: dup(eargs)},
	}

	return op
}

func (f *Func) NewReturn(vals ...Value) OpID {
	return f.NewOp(Return, vals)
}

func (f *Func) NewYield(vals ...Value) OpID {
	return f.NewOp(Yield, vals)
}

// NewFor creates a loop with an entry block [iv, carried...] and without a terminator.
// lb and ub may be NoValue.
func (f *Func) NewFor(lb, ub, step Value, inits ...Value) OpID {
	operands := append([]Value{lb, ub, step}, inits...)

	types := make([]Type, len(inits))
	for i, v := range inits {
		types[i] = f.Type(v)
	}

	op := f.NewOp(For, operands, types...)

	r := f.NewRegion(op)
	f.Op(op).Regions = []RegionID{r}

	f.AppendBlock(r, append([]Type{f.Type(step)}, types...)...)

	return op
}

// NewIf creates a conditional with an empty then block and,
// if withElse is set, an empty else block.
func (f *Func) NewIf(cond Value, withElse bool, results ...Type) OpID {
	op := f.NewOp(If, []Value{cond}, results...)

	then := f.NewRegion(op)
	els := f.NewRegion(op)
	f.Op(op).Regions = []RegionID{then, els}

	f.AppendBlock(then)

	if withElse {
		f.AppendBlock(els)
	}

	return op
}

// NewParallel creates an n-dimensional parallel loop
// with a body block declaring the induction variables.
func (f *Func) NewParallel(lbs, ubs, steps, inits []Value) OpID {
	if len(lbs) != len(ubs) || len(lbs) != len(steps) {
		panic("parallel bounds mismatch")
	}

	var operands []Value
	operands = append(operands, lbs...)
	operands = append(operands, ubs...)
	operands = append(operands, steps...)
	operands = append(operands, inits...)

	types := make([]Type, len(inits))
	for i, v := range inits {
		types[i] = f.Type(v)
	}

	op := f.NewOp(Parallel, operands, types...)
	f.Op(op).Imm = int64(len(lbs))

	r := f.NewRegion(op)
	f.Op(op).Regions = []RegionID{r}

	ivs := make([]Type, len(steps))
	for i, v := range steps {
		ivs[i] = f.Type(v)
	}

	f.AppendBlock(r, ivs...)

	return op
}

// NewReduce creates a reduction site with a combiner block (acc, v).
func (f *Func) NewReduce(v Value) OpID {
	op := f.NewOp(Reduce, []Value{v})

	r := f.NewRegion(op)
	f.Op(op).Regions = []RegionID{r}

	f.AppendBlock(r, f.Type(v), f.Type(v))

	return op
}

// ForBounds splits For operands.
func (f *Func) ForBounds(op OpID) (lb, ub, step Value, inits []Value) {
	o := f.Op(op)

	return o.Operands[0], o.Operands[1], o.Operands[2], o.Operands[3:]
}

// ParallelBounds splits Parallel operands per dimension.
func (f *Func) ParallelBounds(op OpID) (lbs, ubs, steps, inits []Value) {
	o := f.Op(op)
	n := int(o.Imm)

	return o.Operands[:n:n], o.Operands[n : 2*n : 2*n], o.Operands[2*n : 3*n : 3*n], o.Operands[3*n:]
}

func (f *Func) Result(op OpID, i int) Value {
	return f.Op(op).Results[i]
}

// BodyBlock is the entry block of the op's first region.
func (f *Func) BodyBlock(op OpID) BlockID {
	return f.Entry(f.Op(op).Regions[0])
}
