package format

import (
	"context"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/flatten/compiler/ir"
)

type printer struct {
	f *ir.Func

	vals   map[ir.Value]int
	blocks map[ir.BlockID]int
}

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	switch x := x.(type) {
	case *ir.Package:
		return formatPackage(ctx, b, x), nil
	case *ir.Func:
		return formatFunc(ctx, b, x), nil
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

// Func renders a single function.
func Func(f *ir.Func) string {
	return string(formatFunc(context.Background(), nil, f))
}

func formatPackage(ctx context.Context, b []byte, x *ir.Package) []byte {
	for i, f := range x.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b = formatFunc(ctx, b, f)
	}

	return b
}

func formatFunc(ctx context.Context, b []byte, f *ir.Func) []byte {
	p := &printer{
		f:      f,
		vals:   make(map[ir.Value]int),
		blocks: make(map[ir.BlockID]int),
	}

	p.number(f.Body)

	b = app(b, 0, "func @%s(", f.Name)

	for i, v := range f.Params() {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = p.value(b, v)
		b = append(b, ": "...)
		b = append(b, f.Type(v).String()...)
	}

	b = append(b, ')')

	if len(f.Results) != 0 {
		b = append(b, " -> ("...)
		b = types(b, f.Results)
		b = append(b, ')')
	}

	b = append(b, ' ')
	b = p.region(b, f.Body, 1)
	b = append(b, '\n')

	return b
}

// number assigns names in print order so forward references resolve to the same names.
func (p *printer) number(r ir.RegionID) {
	f := p.f

	for _, b := range f.Region(r).Blocks {
		p.blocks[b] = len(p.blocks)

		for _, v := range f.Block(b).Args {
			p.num(v)
		}

		for _, op := range f.Block(b).Ops {
			for _, v := range f.Op(op).Results {
				p.num(v)
			}

			for _, nr := range f.Op(op).Regions {
				p.number(nr)
			}
		}
	}
}

func (p *printer) num(v ir.Value) int {
	if n, ok := p.vals[v]; ok {
		return n
	}

	n := len(p.vals)
	p.vals[v] = n

	return n
}

func (p *printer) region(b []byte, r ir.RegionID, d int) []byte {
	f := p.f
	reg := f.Region(r)

	if len(reg.Blocks) == 0 {
		return append(b, "{}"...)
	}

	b = append(b, "{\n"...)

	for i, blk := range reg.Blocks {
		if i != 0 || r != f.Body && len(f.Block(blk).Args) != 0 {
			b = p.header(b, blk, d-1)
		}

		for _, op := range f.Block(blk).Ops {
			b = p.op(b, op, d)
		}
	}

	b = app(b, d-1, "}")

	return b
}

func (p *printer) header(b []byte, blk ir.BlockID, d int) []byte {
	f := p.f

	b = app(b, d, "")
	b = p.block(b, blk)

	if args := f.Block(blk).Args; len(args) != 0 {
		b = append(b, '(')

		for i, v := range args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = p.value(b, v)
			b = append(b, ": "...)
			b = append(b, f.Type(v).String()...)
		}

		b = append(b, ')')
	}

	b = append(b, ":\n"...)

	return b
}

func (p *printer) op(b []byte, op ir.OpID, d int) []byte {
	f := p.f
	o := f.Op(op)

	b = app(b, d, "")

	if len(o.Results) != 0 {
		b = p.values(b, o.Results)
		b = append(b, " = "...)
	}

	b = append(b, o.Kind.String()...)

	switch o.Kind {
	case ir.Const, ir.Parallel:
		b = app(b, 0, " %d", o.Imm)
	case ir.Cmp:
		b = append(b, ' ')
		b = append(b, o.Pred.String()...)
	case ir.Opaque:
		b = append(b, ' ')
		b = strconv.AppendQuote(b, o.Name)
	}

	if len(o.Operands) != 0 {
		b = append(b, ' ')
		b = p.values(b, o.Operands)
	}

	for i, s := range o.Succs {
		if i != 0 || len(o.Operands) != 0 {
			b = append(b, ',')
		}

		b = append(b, ' ')
		b = p.block(b, s.Block)

		if len(s.Args) != 0 {
			b = append(b, '(')
			b = p.values(b, s.Args)
			b = append(b, ')')
		}
	}

	for _, r := range o.Regions {
		b = append(b, ' ')
		b = p.region(b, r, d+1)
	}

	if len(o.Results) != 0 {
		b = append(b, " : "...)

		for i, v := range o.Results {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = append(b, f.Type(v).String()...)
		}
	}

	b = append(b, '\n')

	return b
}

func (p *printer) values(b []byte, vs []ir.Value) []byte {
	for i, v := range vs {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = p.value(b, v)
	}

	return b
}

func (p *printer) value(b []byte, v ir.Value) []byte {
	if v == ir.NoValue {
		return append(b, '_')
	}

	b = append(b, '%')

	return strconv.AppendInt(b, int64(p.num(v)), 10)
}

func (p *printer) block(b []byte, blk ir.BlockID) []byte {
	n, ok := p.blocks[blk]
	if !ok {
		n = len(p.blocks)
		p.blocks[blk] = n
	}

	return app(b, 0, "^bb%d", n)
}

func types(b []byte, ts []ir.Type) []byte {
	for i, t := range ts {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = append(b, t.String()...)
	}

	return b
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
