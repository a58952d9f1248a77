package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/parse"
)

const count = `
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
`

const mixed = `
// every kind of op at least once
func @mixed(%c: i1, %n: i64) -> (i64, i64) {
	%zero = const -3 : i64
	%one = const 1 : i64
	if %c { // then only
		opaque "side.effect" %n
		yield
	} {}
	%r, %q = parallel 1 %zero, %n, %one, %zero, %one {
	^p(%i: i64):
		reduce %i {
		^c(%a: i64, %b: i64):
			%s = sub %a, %b : i64
			yield %s
		}
		reduce %i {
		^d(%a2: i64, %b2: i64):
			%m = mul %a2, %b2 : i64
			yield %m
		}
		yield
	} : i64, i64
	%k = cmp uge %r, %q : i1
	cond_br %k, ^yes(%r), ^no
^no:
	br ^yes(%q)
^yes(%v: i64):
	return %v, %r
}
`

func TestFormatFunc(t *testing.T) {
	p, err := parse.Parse(context.Background(), "count", []byte(count))
	require.NoError(t, err)

	exp := "func @count(%0: i64, %1: i64) -> (i64) {\n" +
		"\t%2 = const 0 : i64\n" +
		"\t%3 = const 1 : i64\n" +
		"\t%4 = for %0, %1, %3, %2 {\n" +
		"\t^bb1(%5: i64, %6: i64):\n" +
		"\t\t%7 = add %6, %3 : i64\n" +
		"\t\tyield %7\n" +
		"\t} : i64\n" +
		"\treturn %4\n" +
		"}\n"

	assert.Equal(t, exp, Func(p.Funcs[0]))
}

func TestRoundTrip(t *testing.T) {
	for _, text := range []string{count, mixed} {
		p, err := parse.Parse(context.Background(), "first", []byte(text))
		require.NoError(t, err)

		b, err := Format(context.Background(), nil, p)
		require.NoError(t, err)

		q, err := parse.Parse(context.Background(), "second", b)
		require.NoError(t, err, "text:\n%s", b)

		c, err := Format(context.Background(), nil, q)
		require.NoError(t, err)

		assert.Equal(t, string(b), string(c))
	}
}

func TestFormatAbsentBound(t *testing.T) {
	f := ir.NewFunc("f", []ir.Type{ir.I64}, nil)
	b := ir.NewBuilder(f)
	b.SetInsertionPointToEnd(f.Entry(f.Body))

	one := b.Const(ir.I64, 1)
	loop := b.For(ir.NoValue, f.Params()[0], one)

	b.SetInsertionPointToEnd(f.BodyBlock(loop))
	b.Yield()

	b.SetInsertionPointToEnd(f.Entry(f.Body))
	b.Return()

	assert.Contains(t, Func(f), "for _, %0, %1 {")

	_, err := Format(context.Background(), nil, 5)
	assert.Error(t, err)
}
