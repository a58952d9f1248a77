package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/ir"
)

// IfLowering turns an if into a diamond. Without results the branches jump
// to the code following the op directly. With results they pass them to
// a new block with matching arguments which then jumps to the remainder.
//
//	cond:    <code before>
//	         cond_br %c, then, else
//	then:    <then contents>
//	         br continue(%then_yield...)
//	else:    <else contents>
//	         br continue(%else_yield...)
//	continue(%res...):
//	         br remainder
//	remainder:
//	         <code after>
type IfLowering struct{}

func (IfLowering) Kind() ir.Kind { return ir.If }

func (IfLowering) match(f *ir.Func, op ir.OpID) error {
	o := f.Op(op)

	if len(o.Operands) != 1 || len(o.Regions) != 2 {
		return errors.Wrap(ErrMalformed, "if %d: %d operands, %d regions", op, len(o.Operands), len(o.Regions))
	}

	for i, r := range o.Regions {
		if i == 1 && len(f.Region(r).Blocks) == 0 {
			if len(o.Results) != 0 {
				return errors.Wrap(ErrPrecondition, "if %d: no else region for %d results", op, len(o.Results))
			}

			continue
		}

		y, ok := yieldOf(f, r)
		if !ok {
			return errors.Wrap(ErrMalformed, "if %d: region %d does not end with yield", op, i)
		}

		if n := len(f.Op(y).Operands); n != len(o.Results) {
			return errors.Wrap(ErrMalformed, "if %d: region %d yields %d values, expected %d", op, i, n, len(o.Results))
		}
	}

	return nil
}

func (p IfLowering) MatchAndRewrite(ctx context.Context, rw *Rewriter, op ir.OpID) error {
	f := rw.Func

	if err := p.match(f, op); err != nil {
		return err
	}

	o := f.Op(op)
	cond := o.Operands[0]
	then, els := o.Regions[0], o.Regions[1]

	types := make([]ir.Type, len(o.Results))
	for i, r := range o.Results {
		types[i] = f.Type(r)
	}

	condBlock := o.Block
	remainder := f.SplitBlock(condBlock, f.Index(op))

	continueBlock := remainder

	if len(types) != 0 {
		continueBlock = rw.CreateBlock(remainder, types...)
		rw.Br(remainder)
	}

	thenTarget := branchTo(f, then, continueBlock)

	elseTarget := continueBlock
	if len(f.Region(els).Blocks) != 0 {
		elseTarget = branchTo(f, els, continueBlock)
	}

	rw.SetInsertionPointToEnd(condBlock)
	rw.CondBr(cond, thenTarget, nil, elseTarget, nil)

	f.ReplaceOp(op, dup(f.Block(continueBlock).Args))

	tlog.SpanFromContext(ctx).V("rewrite").Printw("if lowered", "cond", condBlock, "then", thenTarget, "else", elseTarget, "continue", continueBlock)

	return nil
}

// branchTo replaces the region yield with a branch to dst and inlines
// the region before dst. It returns the region entry block.
func branchTo(f *ir.Func, r ir.RegionID, dst ir.BlockID) ir.BlockID {
	last := f.Last(r)
	y := f.Terminator(last)

	f.ReplaceTerminator(last, f.NewBr(dst, dup(f.Op(y).Operands)...))

	entry := f.Entry(r)
	f.InlineRegionBefore(r, dst)

	return entry
}
