package lower

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/flatten/compiler/ir"
)

type (
	// Pattern flattens one structured op kind.
	// It must check every precondition before it mutates the graph.
	Pattern interface {
		Kind() ir.Kind
		MatchAndRewrite(ctx context.Context, rw *Rewriter, op ir.OpID) error
	}

	Rewriter struct {
		*ir.Builder

		Log ir.Log
	}
)

var (
	ErrPrecondition = errors.New("precondition failed")
	ErrMalformed    = errors.New("malformed op")
)

// NewRewriter attaches its mutation log to f until Detach.
func NewRewriter(f *ir.Func) *Rewriter {
	rw := &Rewriter{
		Builder: ir.NewBuilder(f),
	}

	f.Log = &rw.Log

	return rw
}

func (rw *Rewriter) Detach() {
	if rw.Func.Log == &rw.Log {
		rw.Func.Log = nil
	}
}

// yieldOf returns the yield terminating the last block of r.
func yieldOf(f *ir.Func, r ir.RegionID) (ir.OpID, bool) {
	last := f.Last(r)
	if last == ir.NoBlock {
		return ir.NoOp, false
	}

	t := f.Terminator(last)
	if t == ir.NoOp || f.Op(t).Kind != ir.Yield {
		return ir.NoOp, false
	}

	return t, true
}

func dup[T any](s []T) []T {
	return append([]T{}, s...)
}
