package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

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

func TestValid(t *testing.T) {
	f := parseFunc(t, `
func @sum(%n: i64) -> (i64) {
	%zero = const 0 : i64
	%one = const 1 : i64
	%r = for %zero, %n, %one, %zero {
	^bb0(%i: i64, %acc: i64):
		%c = cmp slt %i, %n : i1
		%x = if %c {
			%y = add %acc, %i : i64
			yield %y
		} {
			yield %acc
		} : i64
		yield %x
	} : i64
	return %r
}
`)

	require.NoError(t, Func(f))

	err := Flat(f)
	assert.True(t, errors.Is(err, ErrNotFlat), "err: %v", err)
}

func TestFlat(t *testing.T) {
	f := parseFunc(t, `
func @max(%a: i64, %b: i64) -> (i64) {
	%c = cmp sgt %a, %b : i1
	cond_br %c, ^bb1(%a), ^bb1(%b)
^bb1(%m: i64):
	return %m
}
`)

	require.NoError(t, Func(f))
	require.NoError(t, Flat(f))
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		msg  string
	}{{
		name: "use_before_def",
		text: `
func @f() -> (i64) {
	%b = add %a, %a : i64
	%a = const 1 : i64
	return %b
}`,
		msg: "used before its definition",
	}, {
		name: "no_terminator",
		text: `
func @f() {
	%a = const 1 : i64
}`,
		msg: "does not end with a terminator",
	}, {
		name: "branch_to_entry",
		text: `
func @f() {
^entry:
	br ^bb1
^bb1:
	br ^entry
}`,
		msg: "branch to region entry",
	}, {
		name: "succ_arity",
		text: `
func @f() {
	%a = const 1 : i64
	br ^bb1(%a)
^bb1:
	return
}`,
		msg: "1 args passed, 0 declared",
	}, {
		name: "not_dominated",
		text: `
func @f(%c: i1) -> (i64) {
	cond_br %c, ^bb1, ^bb2
^bb1:
	%a = const 1 : i64
	br ^bb3
^bb2:
	br ^bb3
^bb3:
	return %a
}`,
		msg: "does not dominate",
	}, {
		name: "return_in_loop",
		text: `
func @f(%n: i64) {
	for %n, %n, %n {
	^bb0(%i: i64):
		return
	}
	return
}`,
		msg: "return inside for region",
	}, {
		name: "yield_types",
		text: `
func @f(%c: i1) -> (i64) {
	%x = if %c {
		%y = const 1 : i8
		yield %y
	} {
		%z = const 2 : i64
		yield %z
	} : i64
	return %x
}`,
		msg: "type i8, expected i64",
	}, {
		name: "cmp_type",
		text: `
func @f(%a: i64, %b: i32) {
	%c = cmp eq %a, %b : i1
	return
}`,
		msg: "cmp types",
	}, {
		name: "reduce_count",
		text: `
func @f(%n: i64) -> (i64) {
	%r = parallel 1 %n, %n, %n, %n {
	^bb0(%i: i64):
		yield
	} : i64
	return %r
}`,
		msg: "0 reduce sites, 1 inits",
	}} {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			f := parseFunc(t, tc.text)

			err := Func(f)
			require.Error(t, err)

			var verr *Error
			require.True(t, errors.As(err, &verr), "err: %v", err)
			assert.Contains(t, verr.Msg, tc.msg)
			assert.Equal(t, "f", verr.Func)
		})
	}
}

func TestErasedOperand(t *testing.T) {
	f := ir.NewFunc("f", nil, []ir.Type{ir.I64})
	b := ir.NewBuilder(f)
	b.SetInsertionPointToEnd(f.Entry(f.Body))

	c := b.Const(ir.I64, 1)
	ret := b.Return(c)

	f.Op(ret).Operands[0] = ir.Value(len(f.Values) + 5)

	err := Func(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand is missing")
}

func TestResultDefinitions(t *testing.T) {
	build := func() (*ir.Func, ir.OpID) {
		f := ir.NewFunc("f", []ir.Type{ir.I64}, []ir.Type{ir.I64})
		b := ir.NewBuilder(f)
		b.SetInsertionPointToEnd(f.Entry(f.Body))

		s := b.Add(f.Params()[0], f.Params()[0])
		b.Return(s)

		return f, f.Def(s).Op
	}

	f, add := build()
	require.NoError(t, Func(f))

	// a result slot overwritten through a shared slice
	f.Op(add).Results[0] = f.Params()[0]

	err := Func(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not defined by this op")

	f, _ = build()
	entry := f.Entry(f.Body)
	f.Block(entry).Args = append(f.Block(entry).Args, f.Block(entry).Args[0])

	err = Func(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arg 1")
}
