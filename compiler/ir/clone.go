package ir

type Mapping struct {
	vals   map[Value]Value
	blocks map[BlockID]BlockID
}

func NewMapping() *Mapping {
	return &Mapping{
		vals:   make(map[Value]Value),
		blocks: make(map[BlockID]BlockID),
	}
}

func (m *Mapping) Map(from, to Value) {
	m.vals[from] = to
}

func (m *Mapping) MapBlock(from, to BlockID) {
	m.blocks[from] = to
}

func (m *Mapping) Contains(v Value) bool {
	_, ok := m.vals[v]
	return ok
}

// Lookup panics if v is not mapped.
func (m *Mapping) Lookup(v Value) Value {
	x, ok := m.vals[v]
	if !ok {
		panic(v)
	}

	return x
}

func (m *Mapping) LookupOrDefault(v Value) Value {
	if x, ok := m.vals[v]; ok {
		return x
	}

	return v
}

func (m *Mapping) LookupBlockOrDefault(b BlockID) BlockID {
	if x, ok := m.blocks[b]; ok {
		return x
	}

	return b
}

// Clone creates a detached deep copy of op. Operands and successors are remapped
// through m, and m is extended with results and nested block arguments.
func (f *Func) Clone(op OpID, m *Mapping) OpID {
	src := *f.Op(op)

	operands := make([]Value, len(src.Operands))
	for i, v := range src.Operands {
		operands[i] = m.LookupOrDefault(v)
	}

	types := make([]Type, len(src.Results))
	for i, v := range src.Results {
		types[i] = f.Type(v)
	}

	c := f.NewOp(src.Kind, operands, types...)

	o := f.Op(c)
	o.Imm = src.Imm
	o.Pred = src.Pred
	o.Name = src.Name

	for i, v := range src.Results {
		m.Map(v, f.Op(c).Results[i])
	}

	for _, r := range src.Regions {
		nr := f.cloneRegion(r, c, m)
		f.Op(c).Regions = append(f.Op(c).Regions, nr)
	}

	// successors last: nested regions may have mapped blocks of a cyclic graph
	for _, s := range src.Succs {
		args := make([]Value, len(s.Args))
		for i, v := range s.Args {
			args[i] = m.LookupOrDefault(v)
		}

		f.Op(c).Succs = append(f.Op(c).Succs, Succ{
			Block: m.LookupBlockOrDefault(s.Block),
			Args:  args,
		})
	}

	return c
}

func (f *Func) cloneRegion(r RegionID, owner OpID, m *Mapping) RegionID {
	nr := f.NewRegion(owner)

	blocks := append([]BlockID{}, f.Region(r).Blocks...)

	for _, b := range blocks {
		args := f.Block(b).Args

		types := make([]Type, len(args))
		for i, v := range args {
			types[i] = f.Type(v)
		}

		nb := f.AppendBlock(nr, types...)
		m.MapBlock(b, nb)

		for i, v := range args {
			m.Map(v, f.Block(nb).Args[i])
		}
	}

	for _, b := range blocks {
		nb := m.LookupBlockOrDefault(b)

		for _, op := range append([]OpID{}, f.Block(b).Ops...) {
			f.AppendOp(nb, f.Clone(op, m))
		}
	}

	// uses dominated by a later laid out block were cloned before their definition
	f.Walk(nr, func(op OpID) bool {
		o := f.Op(op)

		for i, v := range o.Operands {
			o.Operands[i] = m.LookupOrDefault(v)
		}

		for _, s := range o.Succs {
			for i, v := range s.Args {
				s.Args[i] = m.LookupOrDefault(v)
			}
		}

		return true
	})

	return nr
}
