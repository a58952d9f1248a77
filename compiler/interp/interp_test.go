package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/parse"
)

func parseFunc(t *testing.T, text string) *ir.Func {
	t.Helper()

	p, err := parse.Parse(context.Background(), t.Name(), []byte(text))
	require.NoError(t, err)
	require.Len(t, p.Funcs, 1)

	return p.Funcs[0]
}

func TestLoop(t *testing.T) {
	f := parseFunc(t, `
func @count(%lb: i64, %ub: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r = for %lb, %ub, %one, %zero {
	^bb0(%i: i64, %acc: i64):
		%n = add %acc, %one : i64
		yield %n
	} : i64
	return %r
}
`)

	var add ir.OpID = ir.NoOp

	f.Walk(f.Body, func(op ir.OpID) bool {
		if f.Op(op).Kind == ir.Add {
			add = op
		}

		return true
	})

	m := New(f, config.Default().Interp)

	res, err := m.Call(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, res)
	assert.Equal(t, 5, m.Stats.Execs[add])

	res, err = m.Call(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, res)
	assert.Equal(t, 0, m.Stats.Execs[add])

	res, err = Run(context.Background(), f, -2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, res)

	_, err = m.Call(context.Background(), 1)
	assert.Error(t, err)
}

func TestIf(t *testing.T) {
	f := parseFunc(t, `
func @choose(%c: i1) -> (i64) {
	%r = if %c {
		%a = const 1 : i64
		yield %a
	} {
		%b = const 2 : i64
		yield %b
	} : i64
	return %r
}
`)

	res, err := Run(context.Background(), f, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res)

	res, err = Run(context.Background(), f, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res)
}

func TestFlat(t *testing.T) {
	f := parseFunc(t, `
func @fact(%n: i64) -> (i64) {
	%one = const 1 : i64
	br ^head(%one, %one)
^head(%i: i64, %acc: i64):
	%c = cmp sle %i, %n : i1
	cond_br %c, ^body, ^exit
^body:
	%next = mul %acc, %i : i64
	%j = add %i, %one : i64
	br ^head(%j, %next)
^exit:
	return %acc
}
`)

	res, err := Run(context.Background(), f, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{120}, res)
}

func TestParallel(t *testing.T) {
	f := parseFunc(t, `
func @grid(%n: i64, %m: i64) -> (i64, i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r, %q = parallel 2 %zero, %zero, %n, %m, %one, %one, %zero, %zero {
	^bb0(%i: i64, %j: i64):
		reduce %one {
		^bb1(%a: i64, %b: i64):
			%s = add %a, %b : i64
			yield %s
		}
		%p = mul %i, %j : i64
		reduce %p {
		^bb2(%x: i64, %y: i64):
			%z = add %x, %y : i64
			yield %z
		}
		yield
	} : i64, i64
	return %r, %q
}
`)

	res, err := Run(context.Background(), f, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 3}, res)
}

func TestLimits(t *testing.T) {
	f := parseFunc(t, `
func @spin(%n: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r = for %zero, %n, %one, %zero {
	^bb0(%i: i64, %acc: i64):
		yield %i
	} : i64
	return %r
}
`)

	m := New(f, config.Interp{MaxSteps: 100})

	_, err := m.Call(context.Background(), 1000)
	assert.True(t, errors.Is(err, ErrSteps), "err: %v", err)

	res, err := m.Call(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, res)
}

func TestOpaque(t *testing.T) {
	f := parseFunc(t, `
func @f(%a: i64) -> (i64) {
	%r = opaque "ext.call" %a : i64
	return %r
}
`)

	_, err := Run(context.Background(), f, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ext.call")
}

func TestArith(t *testing.T) {
	i8 := ir.I8
	u8 := ir.Type{Width: 8, Unsigned: true}

	sum := binary(ir.Add, FromInt64(100, i8), FromInt64(100, i8), i8)
	assert.Equal(t, int64(-56), ToInt64(sum, i8))
	assert.Equal(t, int64(200), ToInt64(binary(ir.Add, FromInt64(100, u8), FromInt64(100, u8), u8), u8))

	assert.Equal(t, int64(-1), ToInt64(binary(ir.Sub, FromInt64(0, i8), FromInt64(1, i8), i8), i8))
	assert.Equal(t, int64(255), ToInt64(binary(ir.Sub, FromInt64(0, u8), FromInt64(1, u8), u8), u8))
	assert.Equal(t, int64(-128), ToInt64(binary(ir.Mul, FromInt64(64, i8), FromInt64(2, i8), i8), i8))

	m1, p1 := FromInt64(-1, i8), FromInt64(1, i8)

	assert.True(t, compare(ir.SLT, m1, p1, i8))
	assert.False(t, compare(ir.ULT, m1, p1, i8))
	assert.True(t, compare(ir.UGE, m1, p1, i8))
	assert.True(t, compare(ir.SLE, m1, m1, i8))
	assert.False(t, compare(ir.SGT, m1, p1, i8))
	assert.True(t, compare(ir.NE, m1, p1, i8))
	assert.True(t, compare(ir.EQ, p1, FromInt64(257, i8), i8))

	assert.Equal(t, int64(-1<<63), ToInt64(FromInt64(-1<<63, ir.I64), ir.I64))
	assert.Equal(t, int64(1), ToInt64(boolean(true), ir.I1))
}

func TestReturnFromLoop(t *testing.T) {
	f := parseFunc(t, `
func @early(%n: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%seven = const 7 : i64
	%r = for %zero, %n, %one, %zero {
	^bb0(%i: i64, %acc: i64):
		return %seven
	} : i64
	return %r
}
`)

	res, err := Run(context.Background(), f, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, res)

	res, err = Run(context.Background(), f, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, res)
}
