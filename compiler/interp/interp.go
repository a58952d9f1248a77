package interp

import (
	"context"

	"github.com/holiman/uint256"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/ir"
)

type (
	// Machine executes a function directly on its region graph.
	// Structured ops run with their reference semantics and branches
	// are followed inside regions, so any mix of lowered and not yet
	// lowered ops can be executed.
	Machine struct {
		f *ir.Func

		MaxSteps int

		Stats Stats

		env    map[ir.Value]uint256.Int
		frames []*reduceFrame
	}

	Stats struct {
		Steps int
		Execs map[ir.OpID]int
	}

	reduceFrame struct {
		slots map[ir.OpID]int
		acc   []uint256.Int
	}
)

var ErrSteps = errors.New("step limit exceeded")

func New(f *ir.Func, cfg config.Interp) *Machine {
	return &Machine{
		f:        f,
		MaxSteps: cfg.MaxSteps,
	}
}

// Run is a shortcut to execute f with default limits.
func Run(ctx context.Context, f *ir.Func, args ...int64) ([]int64, error) {
	return New(f, config.Default().Interp).Call(ctx, args...)
}

func (m *Machine) Call(ctx context.Context, args ...int64) (res []int64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: call", "func", m.f.Name, "args", args)
	defer tr.Finish("res", &res, "steps", &m.Stats.Steps, "err", &err)

	f := m.f

	params := f.Params()
	if len(params) != len(args) {
		return nil, errors.New("%v: %d args passed, %d expected", f.Name, len(args), len(params))
	}

	m.env = make(map[ir.Value]uint256.Int)
	m.frames = nil
	m.Stats = Stats{Execs: make(map[ir.OpID]int)}

	in := make([]uint256.Int, len(args))
	for i, a := range args {
		in[i] = FromInt64(a, f.Type(params[i]))
	}

	out, ret, err := m.region(f.Body, in)
	if err != nil {
		return nil, err
	}

	if !ret {
		return nil, errors.New("%v: function body ended without return", f.Name)
	}

	res = make([]int64, len(out))
	for i, x := range out {
		res[i] = ToInt64(x, f.Results[i])
	}

	return res, nil
}

// region runs r from its entry block until a yield or a return.
func (m *Machine) region(r ir.RegionID, args []uint256.Int) (out []uint256.Int, ret bool, err error) {
	f := m.f

	b := f.Entry(r)
	if b == ir.NoBlock {
		return nil, false, errors.New("region %d is empty", r)
	}

	m.bind(b, args)

blocks:
	for {
		for _, op := range f.Block(b).Ops {
			m.Stats.Steps++
			m.Stats.Execs[op]++

			if m.MaxSteps > 0 && m.Stats.Steps > m.MaxSteps {
				return nil, false, errors.Wrap(ErrSteps, "after %d steps", m.MaxSteps)
			}

			o := f.Op(op)

			switch o.Kind {
			case ir.Br:
				s := o.Succs[0]

				m.bind(s.Block, m.values(s.Args))
				b = s.Block

				continue blocks
			case ir.CondBr:
				s := o.Succs[1]

				if c := m.env[o.Operands[0]]; !c.IsZero() {
					s = o.Succs[0]
				}

				m.bind(s.Block, m.values(s.Args))
				b = s.Block

				continue blocks
			case ir.Return:
				return m.values(o.Operands), true, nil
			case ir.Yield:
				return m.values(o.Operands), false, nil
			}

			out, ret, err = m.op(op)
			if err != nil {
				return nil, false, errors.Wrap(err, "%v op %d", o.Kind, op)
			}

			if ret {
				return out, true, nil
			}
		}

		return nil, false, errors.New("block %d has no terminator", b)
	}
}

// op executes a non-terminator. If a nested region returns, out holds the returned values.
func (m *Machine) op(op ir.OpID) (out []uint256.Int, ret bool, err error) {
	f := m.f
	o := f.Op(op)

	switch o.Kind {
	case ir.Const:
		m.env[o.Results[0]] = FromInt64(o.Imm, f.Type(o.Results[0]))
	case ir.Add, ir.Sub, ir.Mul:
		t := f.Type(o.Results[0])
		m.env[o.Results[0]] = binary(o.Kind, m.env[o.Operands[0]], m.env[o.Operands[1]], t)
	case ir.Cmp:
		t := f.Type(o.Operands[0])
		m.env[o.Results[0]] = boolean(compare(o.Pred, m.env[o.Operands[0]], m.env[o.Operands[1]], t))
	case ir.For:
		return m.forOp(op)
	case ir.If:
		return m.ifOp(op)
	case ir.Parallel:
		return m.parallelOp(op)
	case ir.Reduce:
		return m.reduceOp(op)
	case ir.Opaque:
		return nil, false, errors.New("opaque op %q can't be executed", o.Name)
	default:
		panic(o.Kind)
	}

	return nil, false, nil
}

func (m *Machine) forOp(op ir.OpID) ([]uint256.Int, bool, error) {
	f := m.f

	lb, ub, step, inits := f.ForBounds(op)
	if lb == ir.NoValue || ub == ir.NoValue || step == ir.NoValue {
		return nil, false, errors.New("loop without bounds")
	}

	t := f.Type(step)
	body := f.Op(op).Regions[0]

	pred := ir.SLT
	if t.Unsigned {
		pred = ir.ULT
	}

	iv := m.env[lb]
	carried := m.values(inits)

	for compare(pred, iv, m.env[ub], t) {
		out, ret, err := m.region(body, append([]uint256.Int{iv}, carried...))
		if err != nil || ret {
			return out, ret, err
		}

		carried = out
		iv = binary(ir.Add, iv, m.env[step], t)
	}

	m.set(f.Op(op).Results, carried)

	return nil, false, nil
}

func (m *Machine) ifOp(op ir.OpID) ([]uint256.Int, bool, error) {
	f := m.f
	o := f.Op(op)

	r := o.Regions[1]
	if c := m.env[o.Operands[0]]; !c.IsZero() {
		r = o.Regions[0]
	}

	if len(f.Region(r).Blocks) == 0 {
		return nil, false, nil
	}

	out, ret, err := m.region(r, nil)
	if err != nil || ret {
		return out, ret, err
	}

	m.set(f.Op(op).Results, out)

	return nil, false, nil
}

func (m *Machine) parallelOp(op ir.OpID) ([]uint256.Int, bool, error) {
	f := m.f
	o := f.Op(op)

	lbs, ubs, steps, inits := f.ParallelBounds(op)

	for d := range lbs {
		if lbs[d] == ir.NoValue || ubs[d] == ir.NoValue || steps[d] == ir.NoValue {
			return nil, false, errors.New("parallel loop dimension %d without bounds", d)
		}
	}

	fr := &reduceFrame{
		slots: make(map[ir.OpID]int),
		acc:   m.values(inits),
	}

	body := f.BodyBlock(op)

	for _, x := range f.Block(body).Ops {
		if f.Op(x).Kind == ir.Reduce {
			fr.slots[x] = len(fr.slots)
		}
	}

	m.frames = append(m.frames, fr)
	defer func() { m.frames = m.frames[:len(m.frames)-1] }()

	ivs := make([]uint256.Int, len(lbs))

	var dim func(d int) ([]uint256.Int, bool, error)
	dim = func(d int) ([]uint256.Int, bool, error) {
		if d == len(lbs) {
			out, ret, err := m.region(o.Regions[0], append([]uint256.Int{}, ivs...))
			if !ret {
				out = nil
			}

			return out, ret, err
		}

		t := f.Type(steps[d])

		pred := ir.SLT
		if t.Unsigned {
			pred = ir.ULT
		}

		for ivs[d] = m.env[lbs[d]]; compare(pred, ivs[d], m.env[ubs[d]], t); ivs[d] = binary(ir.Add, ivs[d], m.env[steps[d]], t) {
			if out, ret, err := dim(d + 1); err != nil || ret {
				return out, ret, err
			}
		}

		return nil, false, nil
	}

	if out, ret, err := dim(0); err != nil || ret {
		return out, ret, err
	}

	m.set(f.Op(op).Results, fr.acc)

	return nil, false, nil
}

func (m *Machine) reduceOp(op ir.OpID) ([]uint256.Int, bool, error) {
	f := m.f

	if len(m.frames) == 0 {
		return nil, false, errors.New("reduce outside of parallel loop")
	}

	fr := m.frames[len(m.frames)-1]

	slot, ok := fr.slots[op]
	if !ok {
		return nil, false, errors.New("reduce is not a site of the enclosing parallel loop")
	}

	o := f.Op(op)

	out, ret, err := m.region(o.Regions[0], []uint256.Int{fr.acc[slot], m.env[o.Operands[0]]})
	if err != nil || ret {
		return out, ret, err
	}

	fr.acc[slot] = out[0]

	return nil, false, nil
}

func (m *Machine) bind(b ir.BlockID, vals []uint256.Int) {
	m.set(m.f.Block(b).Args, vals)
}

func (m *Machine) set(dst []ir.Value, vals []uint256.Int) {
	for i, v := range dst {
		m.env[v] = vals[i]
	}
}

func (m *Machine) values(vs []ir.Value) []uint256.Int {
	r := make([]uint256.Int, len(vs))

	for i, v := range vs {
		r[i] = m.env[v]
	}

	return r
}
