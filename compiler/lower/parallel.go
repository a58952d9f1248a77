package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/ir"
)

// ParallelLowering rewrites an n-dimensional parallel loop into a nest of
// n for loops. Reduction accumulators are threaded down the nest as carried
// values and bubbled up through yields. Each reduce site gets its combiner
// body inlined into the innermost loop with (acc, contribution) bound to
// the current carried value and the reduced operand.
// The produced loops are flattened later by ForLowering.
type ParallelLowering struct{}

func (ParallelLowering) Kind() ir.Kind { return ir.Parallel }

func (ParallelLowering) match(f *ir.Func, op ir.OpID) error {
	o := f.Op(op)
	n := int(o.Imm)

	if n < 1 {
		return errors.Wrap(ErrMalformed, "parallel %d: no dimensions", op)
	}

	if len(o.Operands) < 3*n || len(o.Regions) != 1 {
		return errors.Wrap(ErrMalformed, "parallel %d: %d operands for %d dimensions", op, len(o.Operands), n)
	}

	lbs, ubs, steps, inits := f.ParallelBounds(op)

	for i := 0; i < n; i++ {
		if lbs[i] == ir.NoValue || ubs[i] == ir.NoValue || steps[i] == ir.NoValue {
			return errors.Wrap(ErrPrecondition, "parallel %d: dimension %d has no bounds", op, i)
		}
	}

	if len(inits) != len(o.Results) {
		return errors.Wrap(ErrMalformed, "parallel %d: %d inits, %d results", op, len(inits), len(o.Results))
	}

	blocks := f.Region(o.Regions[0]).Blocks
	if len(blocks) != 1 {
		return errors.Wrap(ErrMalformed, "parallel %d: body has %d blocks", op, len(blocks))
	}

	body := blocks[0]

	if len(f.Block(body).Args) != n {
		return errors.Wrap(ErrMalformed, "parallel %d: body has %d args, expected %d", op, len(f.Block(body).Args), n)
	}

	if y := f.Terminator(body); y == ir.NoOp || f.Op(y).Kind != ir.Yield || len(f.Op(y).Operands) != 0 {
		return errors.Wrap(ErrMalformed, "parallel %d: body must end with an empty yield", op)
	}

	reduces := 0

	for _, x := range f.Block(body).Ops {
		if f.Op(x).Kind != ir.Reduce {
			continue
		}

		if err := matchReduce(f, x); err != nil {
			return errors.Wrap(err, "parallel %d", op)
		}

		reduces++
	}

	if reduces != len(inits) {
		return errors.Wrap(ErrMalformed, "parallel %d: %d reduce sites, %d inits", op, reduces, len(inits))
	}

	return nil
}

func matchReduce(f *ir.Func, op ir.OpID) error {
	o := f.Op(op)

	if len(o.Operands) != 1 || len(o.Regions) != 1 {
		return errors.Wrap(ErrMalformed, "reduce %d: %d operands, %d regions", op, len(o.Operands), len(o.Regions))
	}

	blocks := f.Region(o.Regions[0]).Blocks

	if len(blocks) != 1 {
		return errors.Wrap(ErrMalformed, "reduce %d: combiner has %d blocks", op, len(blocks))
	}

	if n := len(f.Block(blocks[0]).Args); n != 2 {
		return errors.Wrap(ErrMalformed, "reduce %d: combiner has %d args", op, n)
	}

	y := f.Terminator(blocks[0])
	if y == ir.NoOp || f.Op(y).Kind != ir.Yield || len(f.Op(y).Operands) != 1 {
		return errors.Wrap(ErrMalformed, "reduce %d: combiner must yield one value", op)
	}

	return nil
}

func (p ParallelLowering) MatchAndRewrite(ctx context.Context, rw *Rewriter, op ir.OpID) error {
	f := rw.Func

	if err := p.match(f, op); err != nil {
		return err
	}

	lbs, ubs, steps, inits := f.ParallelBounds(op)
	lbs, ubs, steps = dup(lbs), dup(ubs), dup(steps)

	body := f.BodyBlock(op)
	ivs := dup(f.Block(body).Args)

	m := ir.NewMapping()

	iterArgs := dup(inits)
	var results []ir.Value
	var loops []ir.OpID

	rw.SetInsertionPointBefore(op)

	for i := range lbs {
		loop := rw.For(lbs[i], ubs[i], steps[i], iterArgs...)
		loops = append(loops, loop)

		lbody := f.BodyBlock(loop)

		m.Map(ivs[i], f.Block(lbody).Args[0])
		iterArgs = dup(f.Block(lbody).Args[1:])

		if i == 0 {
			results = dup(f.Op(loop).Results)
		} else {
			// the enclosing loop body yields what the nested loop produced
			rw.Yield(dup(f.Op(loop).Results)...)
		}

		rw.SetInsertionPointToStart(lbody)
	}

	var acc []ir.Value

	for _, x := range dup(f.Block(body).Ops) {
		switch f.Op(x).Kind {
		case ir.Yield:
			continue
		case ir.Reduce:
		default:
			rw.Clone(x, m)
			continue
		}

		arg := iterArgs[len(acc)]
		contrib := f.Op(x).Operands[0]

		comb := f.BodyBlock(x)
		cargs := f.Block(comb).Args

		m.Map(cargs[0], m.LookupOrDefault(arg))
		m.Map(cargs[1], m.LookupOrDefault(contrib))

		cops := f.Block(comb).Ops

		for _, nested := range dup(cops[:len(cops)-1]) {
			rw.Clone(nested, m)
		}

		y := cops[len(cops)-1]
		acc = append(acc, m.LookupOrDefault(f.Op(y).Operands[0]))
	}

	rw.Yield(acc...)

	f.ReplaceOp(op, results)

	tlog.SpanFromContext(ctx).V("rewrite").Printw("parallel lowered", "loops", loops, "reductions", len(acc))

	return nil
}
