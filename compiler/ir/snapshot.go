package ir

// Snapshot returns a deep copy of the function arena.
// The mutation log is not copied.
func (f *Func) Snapshot() *Func {
	s := &Func{
		Name:    f.Name,
		Results: dup(f.Results),
		Body:    f.Body,
		Values:  dup(f.Values),
		Ops:     make([]Op, len(f.Ops)),
		Blocks:  make([]Block, len(f.Blocks)),
		Regions: make([]Region, len(f.Regions)),
	}

	for i, o := range f.Ops {
		o.Operands = dup(o.Operands)
		o.Results = dup(o.Results)
		o.Regions = dup(o.Regions)

		succs := make([]Succ, len(o.Succs))
		for j, x := range o.Succs {
			succs[j] = Succ{Block: x.Block, Args: dup(x.Args)}
		}

		if o.Succs == nil {
			succs = nil
		}

		o.Succs = succs
		s.Ops[i] = o
	}

	for i, b := range f.Blocks {
		b.Args = dup(b.Args)
		b.Ops = dup(b.Ops)
		s.Blocks[i] = b
	}

	for i, r := range f.Regions {
		r.Blocks = dup(r.Blocks)
		s.Regions[i] = r
	}

	return s
}

// Restore replaces f contents with the snapshot s.
// The attached mutation log is kept.
func (f *Func) Restore(s *Func) {
	log := f.Log
	*f = *s.Snapshot()
	f.Log = log
}

func dup[T any](s []T) []T {
	if s == nil {
		return nil
	}

	return append([]T{}, s...)
}
