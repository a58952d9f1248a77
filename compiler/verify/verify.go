package verify

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/flatten/compiler/dom"
	"github.com/slowlang/flatten/compiler/ir"
)

type (
	Error struct {
		Func  string
		Block ir.BlockID
		Op    ir.OpID
		Msg   string

		// From is the caller which requested the verification.
		From loc.PC
	}

	verifier struct {
		f    *ir.Func
		from loc.PC

		trees map[ir.RegionID]*dom.Tree
	}
)

var ErrNotFlat = errors.New("structured ops remain")

func Package(p *ir.Package) error {
	for _, f := range p.Funcs {
		if err := fun(f, loc.Caller(1)); err != nil {
			return err
		}
	}

	return nil
}

// Func checks block structure, successor arity, operand types and dominance.
func Func(f *ir.Func) error {
	return fun(f, loc.Caller(1))
}

func fun(f *ir.Func, from loc.PC) error {
	v := &verifier{
		f:     f,
		from:  from,
		trees: make(map[ir.RegionID]*dom.Tree),
	}

	if len(f.Region(f.Body).Blocks) == 0 {
		return v.errorf(ir.NoBlock, ir.NoOp, "function has no entry block")
	}

	return v.region(f.Body)
}

// Flat checks that no structured op nor region terminator is left.
func Flat(f *ir.Func) error {
	var bad ir.OpID = ir.NoOp

	f.Walk(f.Body, func(op ir.OpID) bool {
		switch f.Op(op).Kind {
		case ir.For, ir.If, ir.Parallel, ir.Yield, ir.Reduce:
			if bad == ir.NoOp {
				bad = op
			}
		}

		return true
	})

	if bad != ir.NoOp {
		return errors.Wrap(ErrNotFlat, "func %v: op %d (%v)", f.Name, bad, f.Op(bad).Kind)
	}

	return nil
}

func (v *verifier) region(r ir.RegionID) error {
	f := v.f

	for _, b := range f.Region(r).Blocks {
		if err := v.block(r, b); err != nil {
			return err
		}
	}

	for _, b := range f.Region(r).Blocks {
		for _, op := range f.Block(b).Ops {
			for _, nr := range f.Op(op).Regions {
				if err := v.region(nr); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (v *verifier) block(r ir.RegionID, b ir.BlockID) error {
	f := v.f
	blk := f.Block(b)

	if blk.Region != r {
		return v.errorf(b, ir.NoOp, "block region mismatch: %d, expected %d", blk.Region, r)
	}

	if len(blk.Ops) == 0 {
		return v.errorf(b, ir.NoOp, "empty block")
	}

	for i, x := range blk.Args {
		if d := f.Def(x); d.Op != ir.NoOp || d.Block != b || d.Index != i {
			return v.errorf(b, ir.NoOp, "arg %d: value %d is not defined here", i, x)
		}
	}

	for i, op := range blk.Ops {
		o := f.Op(op)

		if o.Block != b {
			return v.errorf(b, op, "op block mismatch: %d", o.Block)
		}

		last := i == len(blk.Ops)-1

		if o.Kind.IsTerminator() != last {
			if last {
				return v.errorf(b, op, "block does not end with a terminator: %v", o.Kind)
			}

			return v.errorf(b, op, "terminator %v is not the last op", o.Kind)
		}

		if err := v.op(r, b, i, op); err != nil {
			return err
		}
	}

	return nil
}

func (v *verifier) op(r ir.RegionID, b ir.BlockID, pos int, op ir.OpID) error {
	f := v.f
	o := f.Op(op)

	for i, x := range o.Results {
		if x < 0 || int(x) >= len(f.Values) {
			return v.errorf(b, op, "result %d is missing", i)
		}

		if d := f.Def(x); d.Op != op || d.Index != i {
			return v.errorf(b, op, "result %d: value %d is not defined by this op", i, x)
		}
	}

	for i, x := range o.Operands {
		if x == ir.NoValue && bound(o, i) {
			continue
		}

		if err := v.use(b, pos, op, x); err != nil {
			return err
		}
	}

	for _, s := range o.Succs {
		if s.Block < 0 || int(s.Block) >= len(f.Blocks) || f.Block(s.Block).Region != r {
			return v.errorf(b, op, "successor %d is not in the same region", s.Block)
		}

		if s.Block == f.Entry(r) {
			return v.errorf(b, op, "branch to region entry block %d", s.Block)
		}

		args := f.Block(s.Block).Args

		if len(s.Args) != len(args) {
			return v.errorf(b, op, "successor %d: %d args passed, %d declared", s.Block, len(s.Args), len(args))
		}

		for i, x := range s.Args {
			if err := v.use(b, pos, op, x); err != nil {
				return err
			}

			if f.Type(x) != f.Type(args[i]) {
				return v.errorf(b, op, "successor %d arg %d: type %v, expected %v", s.Block, i, f.Type(x), f.Type(args[i]))
			}
		}
	}

	return v.types(r, b, op)
}

func (v *verifier) types(r ir.RegionID, b ir.BlockID, op ir.OpID) error {
	f := v.f
	o := f.Op(op)

	switch o.Kind {
	case ir.Const:
		if len(o.Results) != 1 || len(o.Operands) != 0 {
			return v.errorf(b, op, "const arity")
		}
	case ir.Add, ir.Sub, ir.Mul:
		if len(o.Results) != 1 || len(o.Operands) != 2 {
			return v.errorf(b, op, "%v arity", o.Kind)
		}

		t := f.Type(o.Results[0])

		if f.Type(o.Operands[0]) != t || f.Type(o.Operands[1]) != t {
			return v.errorf(b, op, "%v operand types mismatch result type %v", o.Kind, t)
		}
	case ir.Cmp:
		if len(o.Results) != 1 || len(o.Operands) != 2 {
			return v.errorf(b, op, "cmp arity")
		}

		if f.Type(o.Operands[0]) != f.Type(o.Operands[1]) || f.Type(o.Results[0]) != ir.I1 {
			return v.errorf(b, op, "cmp types")
		}
	case ir.Opaque:
	case ir.Br:
		if len(o.Succs) != 1 {
			return v.errorf(b, op, "br needs 1 successor")
		}
	case ir.CondBr:
		if len(o.Succs) != 2 || len(o.Operands) != 1 || f.Type(o.Operands[0]) != ir.I1 {
			return v.errorf(b, op, "cond_br needs an i1 condition and 2 successors")
		}
	case ir.Return:
		if f.Region(r).Op != ir.NoOp {
			return v.errorf(b, op, "return inside %v region", f.Op(f.Region(r).Op).Kind)
		}

		if err := v.typesMatch(b, op, o.Operands, f.Results); err != nil {
			return err
		}
	case ir.Yield:
		parent := f.Region(r).Op
		if parent == ir.NoOp {
			return v.errorf(b, op, "yield in function body")
		}

		var want []ir.Type

		switch p := f.Op(parent); p.Kind {
		case ir.For, ir.If:
			want = resultTypes(f, parent)
		case ir.Parallel:
		case ir.Reduce:
			want = []ir.Type{f.Type(p.Operands[0])}
		}

		if err := v.typesMatch(b, op, o.Operands, want); err != nil {
			return err
		}
	case ir.For:
		return v.forOp(b, op)
	case ir.If:
		return v.ifOp(b, op)
	case ir.Parallel:
		return v.parallelOp(b, op)
	case ir.Reduce:
		if len(o.Operands) != 1 || len(o.Regions) != 1 {
			return v.errorf(b, op, "reduce arity")
		}

		entry := f.Entry(o.Regions[0])
		if entry == ir.NoBlock || len(f.Block(entry).Args) != 2 {
			return v.errorf(b, op, "reduce combiner needs 2 arguments")
		}

		t := f.Type(o.Operands[0])

		if err := v.typesMatch(b, op, f.Block(entry).Args, []ir.Type{t, t}); err != nil {
			return err
		}
	default:
		panic(o.Kind)
	}

	return nil
}

func (v *verifier) forOp(b ir.BlockID, op ir.OpID) error {
	f := v.f
	o := f.Op(op)

	if len(o.Operands) < 3 || len(o.Regions) != 1 {
		return v.errorf(b, op, "for arity")
	}

	lb, ub, step, inits := f.ForBounds(op)

	entry := f.Entry(o.Regions[0])
	if entry == ir.NoBlock {
		return v.errorf(b, op, "for without body")
	}

	args := f.Block(entry).Args
	if len(args) != 1+len(inits) || len(o.Results) != len(inits) {
		return v.errorf(b, op, "for: %d body args, %d inits, %d results", len(args), len(inits), len(o.Results))
	}

	iv := f.Type(args[0])

	for _, x := range []ir.Value{lb, ub, step} {
		if x == ir.NoValue {
			continue
		}

		if f.Type(x) != iv {
			return v.errorf(b, op, "for bound type %v, induction variable %v", f.Type(x), iv)
		}
	}

	if err := v.typesMatch(b, op, inits, resultTypes(f, op)); err != nil {
		return err
	}

	return v.typesMatch(b, op, args[1:], resultTypes(f, op))
}

func (v *verifier) ifOp(b ir.BlockID, op ir.OpID) error {
	f := v.f
	o := f.Op(op)

	if len(o.Operands) != 1 || len(o.Regions) != 2 || f.Type(o.Operands[0]) != ir.I1 {
		return v.errorf(b, op, "if needs an i1 condition and 2 regions")
	}

	if len(f.Region(o.Regions[0]).Blocks) == 0 {
		return v.errorf(b, op, "if without then region")
	}

	if len(f.Region(o.Regions[1]).Blocks) == 0 && len(o.Results) != 0 {
		return v.errorf(b, op, "if with results needs an else region")
	}

	return nil
}

func (v *verifier) parallelOp(b ir.BlockID, op ir.OpID) error {
	f := v.f
	o := f.Op(op)
	n := int(o.Imm)

	if n < 1 || len(o.Operands) < 3*n || len(o.Regions) != 1 {
		return v.errorf(b, op, "parallel arity")
	}

	_, _, _, inits := f.ParallelBounds(op)

	if err := v.typesMatch(b, op, inits, resultTypes(f, op)); err != nil {
		return err
	}

	blocks := f.Region(o.Regions[0]).Blocks
	if len(blocks) != 1 || len(f.Block(blocks[0]).Args) != n {
		return v.errorf(b, op, "parallel body must be a single block with %d arguments", n)
	}

	reduces := 0

	for _, x := range f.Block(blocks[0]).Ops {
		if f.Op(x).Kind == ir.Reduce {
			reduces++
		}
	}

	if reduces != len(inits) {
		return v.errorf(b, op, "parallel: %d reduce sites, %d inits", reduces, len(inits))
	}

	return nil
}

func (v *verifier) typesMatch(b ir.BlockID, op ir.OpID, vals []ir.Value, want []ir.Type) error {
	f := v.f

	if len(vals) != len(want) {
		return v.errorf(b, op, "%v: %d values, expected %d", f.Op(op).Kind, len(vals), len(want))
	}

	for i, x := range vals {
		if t := f.Type(x); t != want[i] {
			return v.errorf(b, op, "%v: value %d type %v, expected %v", f.Op(op).Kind, i, t, want[i])
		}
	}

	return nil
}

// use checks that x is live and its definition dominates op at (b, pos).
func (v *verifier) use(b ir.BlockID, pos int, op ir.OpID, x ir.Value) error {
	f := v.f

	if x < 0 || int(x) >= len(f.Values) {
		return v.errorf(b, op, "operand is missing")
	}

	def := f.Def(x)

	db, dpos := def.Block, -1
	if def.Op != ir.NoOp {
		db = f.Op(def.Op).Block

		if db == ir.NoBlock {
			return v.errorf(b, op, "operand %d is defined by erased op %d", x, def.Op)
		}

		dpos = f.Index(def.Op)
	}

	dr := f.Block(db).Region
	if dr == ir.NoRegion {
		return v.errorf(b, op, "operand %d is an argument of erased block %d", x, db)
	}

	ub, upos := b, pos

	for f.Block(ub).Region != dr {
		parent := f.ParentOp(ub)
		if parent == ir.NoOp {
			return v.errorf(b, op, "operand %d is used outside of its region", x)
		}

		ub = f.Op(parent).Block
		upos = f.Index(parent)
	}

	if ub == db {
		if dpos < upos {
			return nil
		}

		return v.errorf(b, op, "operand %d is used before its definition", x)
	}

	if !v.tree(dr).Dominates(db, ub) {
		return v.errorf(b, op, "operand %d: block %d does not dominate block %d", x, db, ub)
	}

	return nil
}

func (v *verifier) tree(r ir.RegionID) *dom.Tree {
	t, ok := v.trees[r]
	if !ok {
		t = dom.Compute(v.f, r)
		v.trees[r] = t
	}

	return t
}

// bound reports whether operand i of o is a loop bound which may be absent.
// Such loops are valid but can't be lowered.
func bound(o *ir.Op, i int) bool {
	switch o.Kind {
	case ir.For:
		return i < 3
	case ir.Parallel:
		return i < 3*int(o.Imm)
	}

	return false
}

func resultTypes(f *ir.Func, op ir.OpID) []ir.Type {
	res := f.Op(op).Results

	ts := make([]ir.Type, len(res))
	for i, x := range res {
		ts[i] = f.Type(x)
	}

	return ts
}

func (v *verifier) errorf(b ir.BlockID, op ir.OpID, format string, args ...any) error {
	return &Error{
		Func:  v.f.Name,
		Block: b,
		Op:    op,
		Msg:   fmt.Sprintf(format, args...),
		From:  v.from,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("func %v: block %d: op %d: %s", e.Func, e.Block, e.Op, e.Msg)
}
