package lower

import (
	"context"
	"sync"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/set"
	"github.com/slowlang/flatten/compiler/verify"
)

type (
	// Driver applies patterns until no rewritable structured op is left.
	Driver struct {
		patterns map[ir.Kind]Pattern

		Partial     bool
		Atomic      bool
		VerifyEach  bool
		MaxRewrites int
		Jobs        int
	}

	Result struct {
		Rewrites int
		Failures []Failure
	}

	Failure struct {
		Func string
		Op   ir.OpID
		Kind ir.Kind
		Err  error
	}

	worklist struct {
		heap.Heap[item]
	}

	item struct {
		op    ir.OpID
		phase int
		depth int
	}
)

var ErrLimit = errors.New("rewrite limit reached")

func Patterns() []Pattern {
	return []Pattern{IfLowering{}, ForLowering{}, ParallelLowering{}}
}

func New(cfg config.Lower) (*Driver, error) {
	d := &Driver{
		patterns: make(map[ir.Kind]Pattern),

		Partial:     cfg.Partial,
		Atomic:      cfg.Atomic,
		VerifyEach:  cfg.VerifyEach,
		MaxRewrites: cfg.MaxRewrites,
		Jobs:        cfg.Jobs,
	}

	all := Patterns()

	for _, name := range cfg.Patterns {
		kind, ok := ir.KindByName(name)
		if !ok {
			return nil, errors.New("unknown pattern: %v", name)
		}

		var p Pattern

		for _, x := range all {
			if x.Kind() == kind {
				p = x
			}
		}

		if p == nil {
			return nil, errors.New("no pattern for %v", name)
		}

		d.Add(p)
	}

	return d, nil
}

func (d *Driver) Add(p Pattern) {
	if d.patterns == nil {
		d.patterns = make(map[ir.Kind]Pattern)
	}

	d.patterns[p.Kind()] = p
}

func (d *Driver) LowerPackage(ctx context.Context, p *ir.Package) (res Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower: package", "funcs", len(p.Funcs), "jobs", d.Jobs)
	defer tr.Finish("rewrites", &res.Rewrites, "err", &err)

	results := make([]Result, len(p.Funcs))
	errs := make([]error, len(p.Funcs))

	if d.Jobs <= 1 {
		for i, f := range p.Funcs {
			results[i], errs[i] = d.LowerFunc(ctx, f)
			if errs[i] != nil {
				break
			}
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, d.Jobs)

		for i, f := range p.Funcs {
			wg.Add(1)
			sem <- struct{}{}

			go func(i int, f *ir.Func) {
				defer wg.Done()
				defer func() { <-sem }()

				results[i], errs[i] = d.LowerFunc(ctx, f)
			}(i, f)
		}

		wg.Wait()
	}

	for i, r := range results {
		res.Rewrites += r.Rewrites
		res.Failures = append(res.Failures, r.Failures...)

		if errs[i] != nil && err == nil {
			err = errors.Wrap(errs[i], "func %v", p.Funcs[i].Name)
		}
	}

	return res, err
}

// LowerFunc lowers parallel loops first and then for and if ops innermost-first.
func (d *Driver) LowerFunc(ctx context.Context, f *ir.Func) (res Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower: func", "name", f.Name)
	defer tr.Finish("rewrites", &res.Rewrites, "err", &err)

	w := worklist{Heap: heap.Heap[item]{Less: itemLess}}

	for _, op := range f.Structured() {
		w.push(f, op)
	}

	failed := set.MakeBits[ir.OpID](len(f.Ops))

	for w.Len() != 0 {
		it := w.Pop()

		if !f.Live(it.op) || failed.IsSet(it.op) {
			continue
		}

		if depth := f.Depth(it.op); depth != it.depth {
			it.depth = depth
			w.Push(it)

			continue
		}

		kind := f.Op(it.op).Kind

		p, ok := d.patterns[kind]
		if !ok {
			tr.V("skip").Printw("no pattern", "op", it.op, "kind", kind)
			continue
		}

		if d.MaxRewrites > 0 && res.Rewrites >= d.MaxRewrites {
			return res, errors.Wrap(ErrLimit, "after %d rewrites", res.Rewrites)
		}

		created, err := d.attempt(ctx, f, p, it.op)
		if err != nil {
			failed.Set(it.op)

			res.Failures = append(res.Failures, Failure{
				Func: f.Name,
				Op:   it.op,
				Kind: kind,
				Err:  err,
			})

			if !d.Partial {
				return res, errors.Wrap(err, "%v op %d", kind, it.op)
			}

			continue
		}

		res.Rewrites++

		for _, op := range created {
			if f.Op(op).Kind.IsStructured() {
				w.push(f, op)
			}
		}
	}

	return res, nil
}

func (d *Driver) attempt(ctx context.Context, f *ir.Func, p Pattern, op ir.OpID) (created []ir.OpID, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower: rewrite", "op", op, "kind", p.Kind())
	defer tr.Finish("created", &created, "err", &err)

	var snap *ir.Func
	if d.Atomic {
		snap = f.Snapshot()
	}

	rw := NewRewriter(f)
	defer rw.Detach()

	err = p.MatchAndRewrite(ctx, rw, op)
	if err == nil && d.VerifyEach {
		err = verify.Func(f)
		if err != nil {
			err = errors.Wrap(err, "verify after rewrite")
		}
	}

	if err != nil {
		if snap != nil {
			f.Restore(snap)
		}

		return nil, err
	}

	if tr.If("dump_log") {
		for i, m := range rw.Log {
			tr.Printw("mutation", "i", i, "event", m.Event, "op", m.Op, "block", m.Block)
		}
	}

	return rw.Log.Created(f), nil
}

func (w *worklist) push(f *ir.Func, op ir.OpID) {
	it := item{
		op:    op,
		phase: 1,
		depth: f.Depth(op),
	}

	if f.Op(op).Kind == ir.Parallel {
		it.phase = 0
	}

	w.Push(it)
}

// itemLess puts parallel loops first, then deeper ops, then older ones.
func itemLess(d []item, i, j int) bool {
	if d[i].phase != d[j].phase {
		return d[i].phase < d[j].phase
	}

	if d[i].depth != d[j].depth {
		return d[i].depth > d[j].depth
	}

	return d[i].op < d[j].op
}
