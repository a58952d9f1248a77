package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/format"
	"github.com/slowlang/flatten/compiler/interp"
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/lower"
	"github.com/slowlang/flatten/compiler/parse"
	"github.com/slowlang/flatten/compiler/verify"
)

func LowerFile(ctx context.Context, name string, cfg config.Config) (p *ir.Package, res lower.Result, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, res, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Lower(ctx, name, text, cfg)
}

// Lower parses text, flattens every function and verifies the result.
// In partial mode functions with failed ops are verified but not required to be flat.
func Lower(ctx context.Context, name string, text []byte, cfg config.Config) (p *ir.Package, res lower.Result, err error) {
	p, err = Parse(ctx, name, text)
	if err != nil {
		return nil, res, err
	}

	d, err := lower.New(cfg.Lower)
	if err != nil {
		return nil, res, errors.Wrap(err, "driver")
	}

	res, err = d.LowerPackage(ctx, p)
	if err != nil {
		return nil, res, errors.Wrap(err, "lower")
	}

	err = verify.Package(p)
	if err != nil {
		return nil, res, errors.Wrap(err, "verify output")
	}

	if cfg.Lower.Partial && len(res.Failures) != 0 {
		return p, res, nil
	}

	for _, f := range p.Funcs {
		err = verify.Flat(f)
		if err != nil {
			return nil, res, errors.Wrap(err, "legality")
		}
	}

	return p, res, nil
}

// Parse reads and verifies the input package.
func Parse(ctx context.Context, name string, text []byte) (p *ir.Package, err error) {
	p, err = parse.Parse(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	err = verify.Package(p)
	if err != nil {
		return nil, errors.Wrap(err, "verify input")
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_input") {
		b, _ := format.Format(ctx, nil, p)
		tr.Printw("input", "text", b)
	}

	return p, nil
}

// Run executes the function fn of package p.
func Run(ctx context.Context, p *ir.Package, fn string, cfg config.Interp, args ...int64) (res []int64, stats interp.Stats, err error) {
	f := p.Func(fn)
	if f == nil {
		return nil, stats, errors.New("no such function: %v", fn)
	}

	m := interp.New(f, cfg)

	res, err = m.Call(ctx, args...)

	return res, m.Stats, err
}
