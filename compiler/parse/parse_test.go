package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/flatten/compiler/ir"
)

func TestParse(t *testing.T) {
	p, err := Parse(context.Background(), "t", []byte(`
func @first(%a: i64) -> (i64) {
	br ^exit(%a)
^exit(%x: i64):
	return %x
}

// second one
func @second() {
	%u = const 255 : u8
	%c = cmp ugt %u, %u : i1
	%r = opaque "x" %u, %c : i32
	return
}
`))
	require.NoError(t, err)
	require.Len(t, p.Funcs, 2)

	f := p.Func("first")
	require.NotNil(t, f)
	assert.Equal(t, []ir.Type{ir.I64}, f.Results)

	blocks := f.Region(f.Body).Blocks
	require.Len(t, blocks, 2)

	br := f.Terminator(blocks[0])
	assert.Equal(t, ir.Br, f.Op(br).Kind)
	assert.Equal(t, blocks[1], f.Op(br).Succs[0].Block)
	assert.Equal(t, f.Params(), f.Op(br).Succs[0].Args)

	g := p.Func("second")
	require.NotNil(t, g)
	assert.Empty(t, g.Results)

	ops := g.Block(g.Entry(g.Body)).Ops
	require.Len(t, ops, 4)

	assert.Equal(t, int64(255), g.Op(ops[0]).Imm)
	assert.Equal(t, ir.Type{Width: 8, Unsigned: true}, g.Type(g.Op(ops[0]).Results[0]))
	assert.Equal(t, ir.UGT, g.Op(ops[1]).Pred)
	assert.Equal(t, "x", g.Op(ops[2]).Name)
	assert.Equal(t, ir.I32, g.Type(g.Op(ops[2]).Results[0]))
}

func TestForwardValue(t *testing.T) {
	p, err := Parse(context.Background(), "t", []byte(`
func @f(%c: i1) -> (i64) {
	cond_br %c, ^a, ^b
^b:
	br ^join(%late)
^a:
	%late = const 4 : i64
	br ^b
^join(%v: i64):
	return %v
}
`))
	require.NoError(t, err)

	f := p.Funcs[0]
	blocks := f.Region(f.Body).Blocks
	require.Len(t, blocks, 4)

	br := f.Terminator(blocks[1])
	late := f.Op(f.Block(blocks[2]).Ops[0]).Results[0]

	assert.Equal(t, []ir.Value{late}, f.Op(br).Succs[0].Args)
}

func TestErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		line int
		col  int
		msg  string
	}{
		{"unknown_op", "func @f() {\n\t%a = bogus 1\n}", 2, 7, `unknown op "bogus"`},
		{"undefined_value", "func @f() -> (i64) {\n\treturn %x\n}", 2, 9, "undefined value %x"},
		{"undefined_block", "func @f() {\n\tbr ^nowhere\n}", 2, 5, "undefined block ^nowhere"},
		{"redefined_value", "func @f(%a: i64) {\n\t%a = const 1 : i64\n\treturn\n}", 2, 2, "value %a redefined"},
		{"redefined_block", "func @f() {\n\tbr ^b\n^b:\n\tbr ^b\n^b:\n\treturn\n}", 5, 1, "block ^b redefined"},
		{"types", "func @f() {\n\t%a = const 1\n\treturn\n}", 2, 2, "1 results named, 0 types given"},
		{"bad_type", "func @f(%a: i0) {\n\treturn\n}", 1, 13, "type expected"},
		{"not_func", "fun @f() {}", 1, 1, "func expected"},
		{"unclosed", "func @f() {\n\treturn\n", 3, 1, "'}' expected"},
		{"trailing", "func @f() {\n\treturn )\n}", 2, 9, "unexpected"},
		{"entry_args", "func @f() {\n^e(%a: i64):\n\treturn\n}", 2, 1, "declared by the function signature"},
		{"duplicate_func", "func @f() {\n\treturn\n}\nfunc @f() {\n\treturn\n}", 6, 2, "@f redefined"},
	} {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), "in.ir", []byte(tc.text))
			require.Error(t, err)

			var perr *Error
			require.True(t, errors.As(err, &perr), "err: %v", err)

			assert.Equal(t, tc.line, perr.Line, "err: %v", err)
			assert.Equal(t, tc.col, perr.Col, "err: %v", err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.Contains(t, perr.Error(), "in.ir:")
		})
	}
}
