package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/flatten/compiler"
	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/format"
	"github.com/slowlang/flatten/compiler/llvm"
	"github.com/slowlang/flatten/compiler/lower"
)

func main() {
	lowerCmd := &cli.Command{
		Name:        "lower",
		Description: "flatten structured ops and print the result",
		Action:      lowerAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("partial", false, "keep going on failed ops"),
		},
	}

	verifyCmd := &cli.Command{
		Name:        "verify",
		Description: "check input files",
		Action:      verifyAct,
		Args:        cli.Args{},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "execute a function before and after flattening",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("func", "main", "function to run"),
			cli.NewFlag("args", "", "comma separated integer arguments"),
		},
	}

	llvmCmd := &cli.Command{
		Name:        "llvm",
		Description: "flatten and print LLVM IR",
		Action:      llvmAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "flatten",
		Description: "flatten is a tool for lowering structured control flow into branches",
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "toml config file"),
			cli.NewFlag("verbosity,v", "", "tlog verbosity topics"),
		},
		Commands: []*cli.Command{
			lowerCmd,
			verifyCmd,
			runCmd,
			llvmCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func setup(c *cli.Command) (ctx context.Context, cfg config.Config, err error) {
	tlog.SetVerbosity(c.String("verbosity"))

	ctx = context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg = config.Default()

	if name := c.String("config"); name != "" {
		cfg, err = config.Load(name)
		if err != nil {
			return ctx, cfg, errors.Wrap(err, "config")
		}
	}

	return ctx, cfg, nil
}

func lowerAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	if c.Bool("partial") {
		cfg.Lower.Partial = true
	}

	for _, a := range c.Args {
		p, res, err := compiler.LowerFile(ctx, a, cfg)
		if err != nil {
			return errors.Wrap(err, "lower %v", a)
		}

		b, err := format.Format(ctx, nil, p)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", b)

		report(a, res)
	}

	return nil
}

func verifyAct(c *cli.Command) (err error) {
	ctx, _, err := setup(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		p, err := compiler.Parse(ctx, a, text)
		if err != nil {
			pterm.Error.Printfln("%v: %v", a, err)
			return errors.New("verification failed")
		}

		pterm.Success.Printfln("%v: %d funcs ok", a, len(p.Funcs))
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	args, err := parseArgs(c.String("args"))
	if err != nil {
		return errors.Wrap(err, "args")
	}

	fn := c.String("func")

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		src, err := compiler.Parse(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		want, before, err := compiler.Run(ctx, src, fn, cfg.Interp, args...)
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}

		flat, _, err := compiler.Lower(ctx, a, text, cfg)
		if err != nil {
			return errors.Wrap(err, "lower %v", a)
		}

		got, after, err := compiler.Run(ctx, flat, fn, cfg.Interp, args...)
		if err != nil {
			return errors.Wrap(err, "run lowered %v", a)
		}

		err = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"", "results", "steps"},
			{"structured", fmt.Sprint(want), strconv.Itoa(before.Steps)},
			{"flat", fmt.Sprint(got), strconv.Itoa(after.Steps)},
		}).Render()
		if err != nil {
			return errors.Wrap(err, "render")
		}

		if fmt.Sprint(want) != fmt.Sprint(got) {
			pterm.Error.Printfln("%v: @%s: results differ after flattening", a, fn)
			return errors.New("results differ")
		}

		pterm.Success.Printfln("%v: @%s: results match", a, fn)
	}

	return nil
}

func llvmAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		p, _, err := compiler.LowerFile(ctx, a, cfg)
		if err != nil {
			return errors.Wrap(err, "lower %v", a)
		}

		m, err := llvm.Export(ctx, p)
		if err != nil {
			return errors.Wrap(err, "export %v", a)
		}

		fmt.Printf("%s", m.String())
	}

	return nil
}

func report(name string, res lower.Result) {
	if len(res.Failures) == 0 {
		pterm.Success.Printfln("%v: %d rewrites", name, res.Rewrites)
		return
	}

	data := pterm.TableData{{"func", "op", "kind", "error"}}

	for _, f := range res.Failures {
		data = append(data, []string{f.Func, strconv.Itoa(int(f.Op)), f.Kind.String(), f.Err.Error()})
	}

	pterm.Warning.Printfln("%v: %d rewrites, %d failures", name, res.Rewrites, len(res.Failures))

	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func parseArgs(s string) (args []int64, err error) {
	if s == "" {
		return nil, nil
	}

	for _, x := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "arg %q", x)
		}

		args = append(args, v)
	}

	return args, nil
}
