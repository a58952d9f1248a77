package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/ir"
)

const program = `
func @sum(%n: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r = for %zero, %n, %one, %zero {
	^bb0(%i: i64, %acc: i64):
		%c = cmp slt %i, %zero : i1
		%x = if %c {
			yield %acc
		} {
			%y = add %acc, %i : i64
			yield %y
		} : i64
		yield %x
	} : i64
	return %r
}

func @grid(%n: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r = parallel 2 %zero, %zero, %n, %n, %one, %one, %zero {
	^bb0(%i: i64, %j: i64):
		reduce %one {
		^bb1(%a: i64, %b: i64):
			%s = add %a, %b : i64
			yield %s
		}
		yield
	} : i64
	return %r
}
`

func TestLowerAndRun(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	structured, err := Parse(ctx, "prog.ir", []byte(program))
	require.NoError(t, err)

	p, res, err := Lower(ctx, "prog.ir", []byte(program), cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 2+3, res.Rewrites)

	for _, f := range p.Funcs {
		assert.Empty(t, f.Structured(), "func %v", f.Name)
	}

	for _, tc := range []struct {
		fn   string
		arg  int64
		want int64
	}{
		{"sum", 5, 10},
		{"sum", 0, 0},
		{"grid", 3, 9},
	} {
		want, _, err := Run(ctx, structured, tc.fn, cfg.Interp, tc.arg)
		require.NoError(t, err)

		got, stats, err := Run(ctx, p, tc.fn, cfg.Interp, tc.arg)
		require.NoError(t, err)

		assert.Equal(t, []int64{tc.want}, want, "%v(%v) structured", tc.fn, tc.arg)
		assert.Equal(t, want, got, "%v(%v) lowered", tc.fn, tc.arg)
		assert.NotZero(t, stats.Steps)
	}

	_, _, err = Run(ctx, p, "missing", cfg.Interp)
	assert.ErrorContains(t, err, "no such function")
}

func TestLowerPartial(t *testing.T) {
	ctx := context.Background()

	text := []byte(`
func @f(%ub: i64) {
	%one = const 1 : i64
	for _, %ub, %one {
	^bb0(%i: i64):
		yield
	}
	return
}
`)

	cfg := config.Default()

	_, _, err := Lower(ctx, "f.ir", text, cfg)
	assert.Error(t, err)

	cfg.Lower.Partial = true

	p, res, err := Lower(ctx, "f.ir", text, cfg)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ir.For, res.Failures[0].Kind)
	assert.Len(t, p.Funcs[0].Structured(), 1)
}

func TestLowerInvalidInput(t *testing.T) {
	_, _, err := Lower(context.Background(), "bad.ir", []byte("func @f() {\n\tbr ^nowhere\n}\n"), config.Default())
	assert.ErrorContains(t, err, "undefined block ^nowhere")
}
