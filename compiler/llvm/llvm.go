package llvm

import (
	"context"
	"strconv"

	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/dom"
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/verify"
)

type (
	exporter struct {
		m *lir.Module
		f *ir.Func

		fn     *lir.Func
		vals   map[ir.Value]value.Value
		blocks map[ir.BlockID]*lir.Block
		phis   map[ir.BlockID][]*lir.InstPhi

		externs map[string]*lir.Func
	}
)

var preds = map[ir.Pred]enum.IPred{
	ir.SLT: enum.IPredSLT,
	ir.SLE: enum.IPredSLE,
	ir.SGT: enum.IPredSGT,
	ir.SGE: enum.IPredSGE,
	ir.ULT: enum.IPredULT,
	ir.ULE: enum.IPredULE,
	ir.UGT: enum.IPredUGT,
	ir.UGE: enum.IPredUGE,
	ir.EQ:  enum.IPredEQ,
	ir.NE:  enum.IPredNE,
}

// Export translates flattened functions into an LLVM module.
// Opaque ops become calls to external declarations named after the op.
func Export(ctx context.Context, p *ir.Package) (m *lir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "llvm: export", "funcs", len(p.Funcs))
	defer tr.Finish("err", &err)

	m = lir.NewModule()
	externs := make(map[string]*lir.Func)

	for _, f := range p.Funcs {
		e := &exporter{
			m:       m,
			f:       f,
			externs: externs,
		}

		err = e.export(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return m, nil
}

func (e *exporter) export(ctx context.Context) (err error) {
	f := e.f

	err = verify.Func(f)
	if err != nil {
		return err
	}

	err = verify.Flat(f)
	if err != nil {
		return err
	}

	params := make([]*lir.Param, len(f.Params()))
	for i, v := range f.Params() {
		params[i] = lir.NewParam("a"+strconv.Itoa(i), intType(f.Type(v)))
	}

	e.fn = e.m.NewFunc(f.Name, retType(f.Results), params...)
	e.vals = make(map[ir.Value]value.Value)
	e.blocks = make(map[ir.BlockID]*lir.Block)
	e.phis = make(map[ir.BlockID][]*lir.InstPhi)

	for i, v := range f.Params() {
		e.vals[v] = params[i]
	}

	t := dom.Compute(f, f.Body)

	for i, b := range t.Order {
		blk := e.fn.NewBlock("bb" + strconv.Itoa(i))
		e.blocks[b] = blk

		if i == 0 {
			continue
		}

		// incomings are appended while branches are exported
		for _, v := range f.Block(b).Args {
			phi := &lir.InstPhi{Typ: intType(f.Type(v))}
			blk.Insts = append(blk.Insts, phi)

			e.vals[v] = phi
			e.phis[b] = append(e.phis[b], phi)
		}
	}

	for _, b := range t.Order {
		for _, op := range f.Block(b).Ops {
			err = e.op(e.blocks[b], op)
			if err != nil {
				return errors.Wrap(err, "%v op %d", f.Op(op).Kind, op)
			}
		}
	}

	tr := tlog.SpanFromContext(ctx)
	if tr.If("dump_llvm") {
		tr.Printw("exported", "func", f.Name, "blocks", len(t.Order), "unreachable", len(f.Region(f.Body).Blocks)-len(t.Order))
	}

	return nil
}

func (e *exporter) op(blk *lir.Block, op ir.OpID) error {
	f := e.f
	o := f.Op(op)

	switch o.Kind {
	case ir.Const:
		t := f.Type(o.Results[0])
		e.vals[o.Results[0]] = constant.NewInt(intType(t), o.Imm)
	case ir.Add:
		e.vals[o.Results[0]] = blk.NewAdd(e.val(o.Operands[0]), e.val(o.Operands[1]))
	case ir.Sub:
		e.vals[o.Results[0]] = blk.NewSub(e.val(o.Operands[0]), e.val(o.Operands[1]))
	case ir.Mul:
		e.vals[o.Results[0]] = blk.NewMul(e.val(o.Operands[0]), e.val(o.Operands[1]))
	case ir.Cmp:
		e.vals[o.Results[0]] = blk.NewICmp(preds[o.Pred], e.val(o.Operands[0]), e.val(o.Operands[1]))
	case ir.Opaque:
		return e.call(blk, op)
	case ir.Br:
		s := o.Succs[0]

		e.incoming(blk, s)
		blk.NewBr(e.blocks[s.Block])
	case ir.CondBr:
		t, el := o.Succs[0], o.Succs[1]

		e.incoming(blk, t)
		e.incoming(blk, el)
		blk.NewCondBr(e.val(o.Operands[0]), e.blocks[t.Block], e.blocks[el.Block])
	case ir.Return:
		e.ret(blk, o.Operands)
	default:
		panic(o.Kind)
	}

	return nil
}

func (e *exporter) incoming(blk *lir.Block, s ir.Succ) {
	for i, phi := range e.phis[s.Block] {
		phi.Incs = append(phi.Incs, lir.NewIncoming(e.val(s.Args[i]), blk))
	}
}

func (e *exporter) ret(blk *lir.Block, vals []ir.Value) {
	f := e.f

	switch len(vals) {
	case 0:
		blk.NewRet(nil)
		return
	case 1:
		blk.NewRet(e.val(vals[0]))
		return
	}

	st := retType(f.Results)

	var agg value.Value = constant.NewUndef(st)
	for i, v := range vals {
		agg = blk.NewInsertValue(agg, e.val(v), uint64(i))
	}

	blk.NewRet(agg)
}

func (e *exporter) call(blk *lir.Block, op ir.OpID) error {
	f := e.f
	o := f.Op(op)

	if len(o.Results) > 1 {
		return errors.New("opaque %q: multiple results are not supported", o.Name)
	}

	res := make([]ir.Type, len(o.Results))
	for i, v := range o.Results {
		res[i] = f.Type(v)
	}

	fn, ok := e.externs[o.Name]
	if !ok {
		params := make([]*lir.Param, len(o.Operands))
		for i, v := range o.Operands {
			params[i] = lir.NewParam("", intType(f.Type(v)))
		}

		fn = e.m.NewFunc(o.Name, retType(res), params...)
		e.externs[o.Name] = fn
	}

	if len(fn.Params) != len(o.Operands) {
		return errors.New("opaque %q: called with %d args, declared with %d", o.Name, len(o.Operands), len(fn.Params))
	}

	args := make([]value.Value, len(o.Operands))
	for i, v := range o.Operands {
		args[i] = e.val(v)
	}

	c := blk.NewCall(fn, args...)

	if len(o.Results) != 0 {
		e.vals[o.Results[0]] = c
	}

	return nil
}

func (e *exporter) val(v ir.Value) value.Value {
	x, ok := e.vals[v]
	if !ok {
		panic(v)
	}

	return x
}

func intType(t ir.Type) *types.IntType {
	if t.Width == 1 {
		return types.I1
	}

	return types.NewInt(uint64(t.Width))
}

func retType(res []ir.Type) types.Type {
	switch len(res) {
	case 0:
		return types.Void
	case 1:
		return intType(res[0])
	}

	fields := make([]types.Type, len(res))
	for i, t := range res {
		fields[i] = intType(t)
	}

	return types.NewStruct(fields...)
}
