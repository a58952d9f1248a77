package parse

import (
	"bytes"
	"context"
	"os"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/ir"
)

type (
	// Error is a syntax error at a byte offset of the input.
	Error struct {
		File string
		Pos  int
		Line int
		Col  int
		Err  error
	}

	parser struct {
		name string
		b    []byte

		f      *ir.Func
		vals   map[string]ir.Value
		blocks map[string]ir.BlockID
		seen   map[ir.BlockID]int // block -> first reference offset, until defined
		fwd    map[string][]fixup
	}

	fixup struct {
		use ir.Use
		pos int
	}

	ref struct {
		name string
		pos  int
	}

	succ struct {
		block ir.BlockID
		args  []ref
	}
)

func ParseFile(ctx context.Context, name string) (*ir.Package, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	return Parse(ctx, name, data)
}

func Parse(ctx context.Context, name string, text []byte) (pkg *ir.Package, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "parse", "file", name, "size", len(text))
	defer tr.Finish("err", &err)

	p := &parser{
		name: name,
		b:    text,
	}

	pkg = &ir.Package{}

	for i := skipAll(text, 0); i < len(text); i = skipAll(text, i) {
		var f *ir.Func

		f, i, err = p.parseFunc(ctx, i)
		if err != nil {
			return nil, err
		}

		if pkg.Func(f.Name) != nil {
			return nil, p.errorf(i, "function @%s redefined", f.Name)
		}

		pkg.Funcs = append(pkg.Funcs, f)

		tr.V("parse").Printw("func parsed", "func", f.Name, "ops", len(f.Ops), "blocks", len(f.Blocks))
	}

	return pkg, nil
}

func (p *parser) parseFunc(ctx context.Context, st int) (f *ir.Func, i int, err error) {
	b := p.b

	i, err = p.keyword(st, "func")
	if err != nil {
		return nil, st, err
	}

	i = SpaceTab.Skip(b, i)

	if i == len(b) || b[i] != '@' {
		return nil, i, p.errorf(i, "function name expected")
	}

	nameEnd := skipIdent(b, i+1)
	if nameEnd == i+1 {
		return nil, i, p.errorf(i, "function name expected")
	}

	name := string(b[i+1 : nameEnd])

	i, err = p.expect(nameEnd, '(')
	if err != nil {
		return nil, i, err
	}

	var (
		pnames []ref
		params []ir.Type
	)

	for {
		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ')' && len(params) == 0 {
			i++
			break
		}

		var (
			r ref
			t ir.Type
		)

		r, i, err = p.valueName(i)
		if err != nil {
			return nil, i, err
		}

		i, err = p.expect(i, ':')
		if err != nil {
			return nil, i, err
		}

		t, i, err = p.typ(i)
		if err != nil {
			return nil, i, err
		}

		pnames = append(pnames, r)
		params = append(params, t)

		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ',' {
			i++
			continue
		}

		i, err = p.expect(i, ')')
		if err != nil {
			return nil, i, err
		}

		break
	}

	var results []ir.Type

	i = SpaceTab.Skip(b, i)

	if bytes.HasPrefix(b[i:], []byte("->")) {
		i, err = p.expect(i+2, '(')
		if err != nil {
			return nil, i, err
		}

		results, i, err = p.types(i)
		if err != nil {
			return nil, i, err
		}

		i, err = p.expect(i, ')')
		if err != nil {
			return nil, i, err
		}
	}

	f = ir.NewFunc(name, params, results)

	p.f = f
	p.vals = make(map[string]ir.Value)
	p.blocks = make(map[string]ir.BlockID)
	p.seen = make(map[ir.BlockID]int)
	p.fwd = make(map[string][]fixup)

	for j, r := range pnames {
		err = p.define(r, f.Params()[j])
		if err != nil {
			return nil, i, err
		}
	}

	i, err = p.region(ctx, i, f.Body, f.Entry(f.Body))
	if err != nil {
		return nil, i, errors.Wrap(err, "func @%s", name)
	}

	if name, pos := p.firstUndefined(); name != "" {
		return nil, i, p.errorf(pos, "undefined %s", name)
	}

	return f, i, nil
}

// region parses a braced list of blocks into r.
// entry is an already existing entry block or NoBlock.
func (p *parser) region(ctx context.Context, st int, r ir.RegionID, entry ir.BlockID) (i int, err error) {
	b := p.b
	f := p.f

	i, err = p.expect(st, '{')
	if err != nil {
		return st, err
	}

	cur := entry
	started := false

	for {
		i = skipAll(b, i)

		if i == len(b) {
			return i, p.errorf(i, "unexpected end of input: '}' expected")
		}

		switch b[i] {
		case '}':
			return i + 1, nil
		case '^':
			cur, i, err = p.header(i, r, entry, !started)
			if err != nil {
				return i, err
			}

			started = true

			continue
		}

		started = true

		if cur == ir.NoBlock {
			cur = f.AppendBlock(r)
		}

		i, err = p.op(ctx, i, cur)
		if err != nil {
			return i, err
		}
	}
}

func (p *parser) header(st int, r ir.RegionID, entry ir.BlockID, first bool) (blk ir.BlockID, i int, err error) {
	b := p.b
	f := p.f

	name, i := p.blockRef(st)
	if name == "" {
		return ir.NoBlock, st, p.errorf(st, "block name expected")
	}

	var args []ref
	var types []ir.Type

	if i < len(b) && b[i] == '(' {
		i++

		for {
			var (
				a ref
				t ir.Type
			)

			a, i, err = p.valueName(i)
			if err != nil {
				return ir.NoBlock, i, err
			}

			i, err = p.expect(i, ':')
			if err != nil {
				return ir.NoBlock, i, err
			}

			t, i, err = p.typ(i)
			if err != nil {
				return ir.NoBlock, i, err
			}

			args = append(args, a)
			types = append(types, t)

			i = SpaceTab.Skip(b, i)

			if i < len(b) && b[i] == ',' {
				i++
				continue
			}

			i, err = p.expect(i, ')')
			if err != nil {
				return ir.NoBlock, i, err
			}

			break
		}
	}

	i, err = p.expect(i, ':')
	if err != nil {
		return ir.NoBlock, i, err
	}

	if first && entry != ir.NoBlock {
		if len(args) != 0 {
			return ir.NoBlock, st, p.errorf(st, "entry block arguments are declared by the function signature")
		}

		if _, ok := p.blocks[name]; ok {
			return ir.NoBlock, st, p.errorf(st, "block ^%s redefined", name)
		}

		p.blocks[name] = entry

		return entry, i, nil
	}

	blk, ok := p.blocks[name]
	switch {
	case !ok:
		blk = f.NewBlock()
		p.blocks[name] = blk
	case f.Block(blk).Region != ir.NoRegion:
		return ir.NoBlock, st, p.errorf(st, "block ^%s redefined", name)
	}

	delete(p.seen, blk)

	f.AttachBlock(r, blk)

	for j, t := range types {
		err = p.define(args[j], f.AddArg(blk, t))
		if err != nil {
			return ir.NoBlock, i, err
		}
	}

	return blk, i, nil
}

func (p *parser) op(ctx context.Context, st int, blk ir.BlockID) (i int, err error) {
	b := p.b
	f := p.f

	var results []ref

	i = st

	if b[i] == '%' {
		for {
			var r ref

			r, i, err = p.valueName(i)
			if err != nil {
				return i, err
			}

			results = append(results, r)

			i = SpaceTab.Skip(b, i)

			if i < len(b) && b[i] == ',' {
				i++
				continue
			}

			break
		}

		i, err = p.expect(i, '=')
		if err != nil {
			return i, err
		}

		i = SpaceTab.Skip(b, i)
	}

	kst := i
	i = skipIdent(b, i)
	kname := string(b[kst:i])

	kind, ok := ir.KindByName(kname)
	if kname == "opaque" {
		kind, ok = ir.Opaque, true
	}

	if !ok {
		return kst, p.errorf(kst, "unknown op %q", kname)
	}

	var (
		imm   int64
		pred  ir.Pred
		oname string
	)

	switch kind {
	case ir.Const, ir.Parallel:
		imm, i, err = p.number(i)
	case ir.Cmp:
		pred, i, err = p.pred(i)
	case ir.Opaque:
		oname, i, err = p.quoted(i)
	}

	if err != nil {
		return i, err
	}

	var operands []ref
	var succs []succ

	i = SpaceTab.Skip(b, i)

	for i < len(b) && (b[i] == '%' || b[i] == '_') {
		var r ref

		r, i, err = p.operand(i)
		if err != nil {
			return i, err
		}

		operands = append(operands, r)

		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ',' {
			i = SpaceTab.Skip(b, i+1)
			continue
		}

		break
	}

	for i < len(b) && b[i] == '^' {
		var s succ

		s, i, err = p.succ(i)
		if err != nil {
			return i, err
		}

		succs = append(succs, s)

		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ',' {
			i = SpaceTab.Skip(b, i+1)
			continue
		}

		break
	}

	var regions []ir.RegionID

	for i < len(b) && b[i] == '{' {
		r := f.NewRegion(ir.NoOp)

		i, err = p.region(ctx, i, r, ir.NoBlock)
		if err != nil {
			return i, errors.Wrap(err, "%v region %d", kind, len(regions))
		}

		regions = append(regions, r)

		i = SpaceTab.Skip(b, i)
	}

	var types []ir.Type

	if i < len(b) && b[i] == ':' {
		types, i, err = p.types(i + 1)
		if err != nil {
			return i, err
		}
	}

	if len(types) != len(results) {
		return st, p.errorf(st, "%v: %d results named, %d types given", kind, len(results), len(types))
	}

	i = SpaceTab.Skip(b, i)

	switch {
	case i == len(b), b[i] == '\n', b[i] == '\r', b[i] == '}':
	case bytes.HasPrefix(b[i:], []byte("//")):
		i = skipLine(b, i)
	default:
		return i, p.errorf(i, "unexpected %q after %v", b[i], kind)
	}

	op := f.NewOp(kind, make([]ir.Value, len(operands)), types...)
	o := f.Op(op)

	o.Imm = imm
	o.Pred = pred
	o.Name = oname
	o.Regions = regions

	for _, r := range regions {
		f.Region(r).Op = op
	}

	for j, r := range operands {
		o.Operands[j] = p.use(r, ir.Use{Op: op, Succ: -1, Index: j})
	}

	for j, s := range succs {
		args := make([]ir.Value, len(s.args))

		for k, r := range s.args {
			args[k] = p.use(r, ir.Use{Op: op, Succ: j, Index: k})
		}

		o.Succs = append(o.Succs, ir.Succ{Block: s.block, Args: args})
	}

	f.AppendOp(blk, op)

	for j, r := range results {
		err = p.define(r, f.Result(op, j))
		if err != nil {
			return i, err
		}
	}

	return i, nil
}

func (p *parser) succ(st int) (s succ, i int, err error) {
	b := p.b

	name, i := p.blockRef(st)
	if name == "" {
		return s, st, p.errorf(st, "block name expected")
	}

	blk, ok := p.blocks[name]
	if !ok {
		blk = p.f.NewBlock()
		p.blocks[name] = blk
		p.seen[blk] = st
	}

	s.block = blk

	if i == len(b) || b[i] != '(' {
		return s, i, nil
	}

	i++

	for {
		var r ref

		r, i, err = p.operand(SpaceTab.Skip(b, i))
		if err != nil {
			return s, i, err
		}

		s.args = append(s.args, r)

		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ',' {
			i++
			continue
		}

		i, err = p.expect(i, ')')

		return s, i, err
	}
}

func (p *parser) use(r ref, u ir.Use) ir.Value {
	if r.name == "" {
		return ir.NoValue
	}

	if v, ok := p.vals[r.name]; ok {
		return v
	}

	p.fwd[r.name] = append(p.fwd[r.name], fixup{use: u, pos: r.pos})

	return ir.NoValue
}

func (p *parser) define(r ref, v ir.Value) error {
	if _, ok := p.vals[r.name]; ok {
		return p.errorf(r.pos, "value %%%s redefined", r.name)
	}

	p.vals[r.name] = v

	for _, fx := range p.fwd[r.name] {
		o := p.f.Op(fx.use.Op)

		if fx.use.Succ < 0 {
			o.Operands[fx.use.Index] = v
		} else {
			o.Succs[fx.use.Succ].Args[fx.use.Index] = v
		}
	}

	delete(p.fwd, r.name)

	return nil
}

// operand parses a value reference or _ for an absent value.
func (p *parser) operand(st int) (r ref, i int, err error) {
	b := p.b

	if st < len(b) && b[st] == '_' && (st+1 == len(b) || !isIdent(b[st+1])) {
		return ref{pos: st}, st + 1, nil
	}

	return p.valueName(st)
}

func (p *parser) valueName(st int) (r ref, i int, err error) {
	b := p.b

	i = SpaceTab.Skip(b, st)

	if i == len(b) || b[i] != '%' {
		return r, i, p.errorf(i, "value expected")
	}

	end := skipIdent(b, i+1)
	if end == i+1 {
		return r, i, p.errorf(i, "value name expected")
	}

	return ref{name: string(b[i+1 : end]), pos: i}, end, nil
}

func (p *parser) blockRef(st int) (string, int) {
	b := p.b

	if st == len(b) || b[st] != '^' {
		return "", st
	}

	end := skipIdent(b, st+1)

	return string(b[st+1 : end]), end
}

// firstUndefined returns the earliest unresolved reference.
func (p *parser) firstUndefined() (name string, pos int) {
	pos = len(p.b) + 1

	for n, fx := range p.fwd {
		for _, x := range fx {
			if x.pos < pos {
				name, pos = "value %"+n, x.pos
			}
		}
	}

	for blk, x := range p.seen {
		if x < pos {
			name, pos = "block "+p.blockName(blk), x
		}
	}

	return name, pos
}

func (p *parser) blockName(blk ir.BlockID) string {
	for name, x := range p.blocks {
		if x == blk {
			return "^" + name
		}
	}

	return "^?"
}

func (p *parser) types(st int) (ts []ir.Type, i int, err error) {
	b := p.b

	i = st

	for {
		var t ir.Type

		t, i, err = p.typ(i)
		if err != nil {
			return nil, i, err
		}

		ts = append(ts, t)

		i = SpaceTab.Skip(b, i)

		if i < len(b) && b[i] == ',' {
			i++
			continue
		}

		return ts, i, nil
	}
}

func (p *parser) typ(st int) (t ir.Type, i int, err error) {
	b := p.b

	st = SpaceTab.Skip(b, st)
	i = skipIdent(b, st)

	t, ok := ir.ParseType(string(b[st:i]))
	if !ok {
		return t, st, p.errorf(st, "type expected")
	}

	return t, i, nil
}

func (p *parser) number(st int) (x int64, i int, err error) {
	b := p.b

	st = SpaceTab.Skip(b, st)
	i = st

	if i < len(b) && b[i] == '-' {
		i++
	}

	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}

	x, err = strconv.ParseInt(string(b[st:i]), 10, 64)
	if err != nil {
		return 0, st, p.errorf(st, "integer expected")
	}

	return x, i, nil
}

func (p *parser) pred(st int) (x ir.Pred, i int, err error) {
	b := p.b

	st = SpaceTab.Skip(b, st)
	i = skipIdent(b, st)

	x, ok := ir.PredByName(string(b[st:i]))
	if !ok {
		return x, st, p.errorf(st, "predicate expected")
	}

	return x, i, nil
}

func (p *parser) quoted(st int) (s string, i int, err error) {
	b := p.b

	st = SpaceTab.Skip(b, st)

	q, err := strconv.QuotedPrefix(string(b[st:]))
	if err != nil {
		return "", st, p.errorf(st, "quoted name expected")
	}

	s, err = strconv.Unquote(q)
	if err != nil {
		return "", st, p.errorf(st, "quoted name: %v", err)
	}

	return s, st + len(q), nil
}

func (p *parser) keyword(st int, kw string) (int, error) {
	i := skipIdent(p.b, st)

	if string(p.b[st:i]) != kw {
		return st, p.errorf(st, "%s expected", kw)
	}

	return i, nil
}

func (p *parser) expect(st int, c byte) (int, error) {
	i := SpaceTab.Skip(p.b, st)

	if i == len(p.b) || p.b[i] != c {
		return i, p.errorf(i, "%q expected", c)
	}

	return i + 1, nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	line := 1 + bytes.Count(p.b[:pos], []byte{'\n'})
	col := pos - bytes.LastIndexByte(p.b[:pos], '\n')

	return &Error{
		File: p.name,
		Pos:  pos,
		Line: line,
		Col:  col,
		Err:  errors.New(format, args...),
	}
}

func (e *Error) Error() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Col) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
