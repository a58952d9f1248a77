package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/ir"
)

// ForLowering creates a condition/body/back-edge subgraph around the loop body.
// The body entry block becomes the condition block: it already takes the
// induction variable and the carried values as arguments and dominates
// both the body and the exit.
//
//	init:  <code before>
//	       br cond(%lb, %init...)
//	cond(%iv, %carried...):
//	       %c = cmp slt %iv, %ub
//	       cond_br %c, body, end
//	body:  <body contents>
//	       ...
//	last:  %next = add %iv, %step
//	       br cond(%next, %yielded...)
//	end:   <code after>
type ForLowering struct{}

func (ForLowering) Kind() ir.Kind { return ir.For }

func (ForLowering) match(f *ir.Func, op ir.OpID) error {
	o := f.Op(op)

	if len(o.Operands) < 3 || len(o.Regions) != 1 {
		return errors.Wrap(ErrMalformed, "for %d: %d operands, %d regions", op, len(o.Operands), len(o.Regions))
	}

	lb, ub, step, inits := f.ForBounds(op)

	switch {
	case lb == ir.NoValue:
		return errors.Wrap(ErrPrecondition, "for %d: no lower bound", op)
	case ub == ir.NoValue:
		return errors.Wrap(ErrPrecondition, "for %d: no upper bound", op)
	case step == ir.NoValue:
		return errors.Wrap(ErrPrecondition, "for %d: no step", op)
	}

	r := o.Regions[0]

	entry := f.Entry(r)
	if entry == ir.NoBlock {
		return errors.Wrap(ErrMalformed, "for %d: empty body", op)
	}

	if n := len(f.Block(entry).Args); n != 1+len(inits) {
		return errors.Wrap(ErrMalformed, "for %d: body has %d args, expected %d", op, n, 1+len(inits))
	}

	y, ok := yieldOf(f, r)
	if !ok {
		return errors.Wrap(ErrMalformed, "for %d: body does not end with yield", op)
	}

	if n := len(f.Op(y).Operands); n != len(inits) {
		return errors.Wrap(ErrMalformed, "for %d: yields %d values, expected %d", op, n, len(inits))
	}

	return nil
}

func (p ForLowering) MatchAndRewrite(ctx context.Context, rw *Rewriter, op ir.OpID) error {
	f := rw.Func

	if err := p.match(f, op); err != nil {
		return err
	}

	lb, ub, step, inits := f.ForBounds(op)
	inits = dup(inits)
	region := f.Op(op).Regions[0]

	initBlock := f.Op(op).Block
	endBlock := f.SplitBlock(initBlock, f.Index(op))

	condBlock := f.Entry(region)
	bodyEntry := f.SplitBlock(condBlock, 0)
	bodyExit := f.Last(region)

	f.InlineRegionBefore(region, endBlock)

	iv := f.Block(condBlock).Args[0]

	y := f.Terminator(bodyExit)

	rw.SetInsertionPointBefore(y)
	stepped := rw.Add(iv, step)

	carried := append([]ir.Value{stepped}, f.Op(y).Operands...)
	f.ReplaceTerminator(bodyExit, f.NewBr(condBlock, carried...))

	rw.SetInsertionPointToEnd(initBlock)
	rw.Br(condBlock, append([]ir.Value{lb}, inits...)...)

	pred := ir.SLT
	if f.Type(iv).Unsigned {
		pred = ir.ULT
	}

	rw.SetInsertionPointToEnd(condBlock)
	c := rw.Cmp(pred, iv, ub)
	rw.CondBr(c, bodyEntry, nil, endBlock, nil)

	f.ReplaceOp(op, dup(f.Block(condBlock).Args[1:]))

	tlog.SpanFromContext(ctx).V("rewrite").Printw("for lowered", "init", initBlock, "cond", condBlock, "body", bodyEntry, "last", bodyExit, "end", endBlock)

	return nil
}
