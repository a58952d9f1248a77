package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/flatten/compiler/ir"
)

func TestDiamond(t *testing.T) {
	f := ir.NewFunc("diamond", []ir.Type{ir.I1}, nil)
	b := ir.NewBuilder(f)

	entry := f.Entry(f.Body)
	x := f.AppendBlock(f.Body)
	y := f.AppendBlock(f.Body)
	m := f.AppendBlock(f.Body)
	dead := f.AppendBlock(f.Body)

	b.SetInsertionPointToEnd(entry)
	b.CondBr(f.Params()[0], x, nil, y, nil)

	for _, blk := range []ir.BlockID{x, y, dead} {
		b.SetInsertionPointToEnd(blk)
		b.Br(m)
	}

	b.SetInsertionPointToEnd(m)
	b.Return()

	tr := Compute(f, f.Body)

	require.Len(t, tr.Order, 4)
	assert.Equal(t, entry, tr.Order[0])
	assert.Equal(t, m, tr.Order[3])

	assert.Equal(t, ir.NoBlock, tr.Idom(entry))
	assert.Equal(t, entry, tr.Idom(x))
	assert.Equal(t, entry, tr.Idom(y))
	assert.Equal(t, entry, tr.Idom(m))

	assert.True(t, tr.Dominates(entry, m))
	assert.True(t, tr.Dominates(m, m))
	assert.False(t, tr.Dominates(x, m))
	assert.False(t, tr.Dominates(m, entry))

	assert.False(t, tr.Reachable(dead))
	assert.True(t, tr.Dominates(x, dead))
	assert.Equal(t, ir.NoBlock, tr.Idom(dead))

	assert.ElementsMatch(t, []ir.BlockID{x, y, dead}, Preds(f, f.Body)[m])
}

func TestLoop(t *testing.T) {
	f := ir.NewFunc("loop", []ir.Type{ir.I64}, []ir.Type{ir.I64})
	b := ir.NewBuilder(f)

	entry := f.Entry(f.Body)
	head := f.AppendBlock(f.Body, ir.I64)
	body := f.AppendBlock(f.Body)
	exit := f.AppendBlock(f.Body)

	n := f.Params()[0]
	i := f.Block(head).Args[0]

	b.SetInsertionPointToEnd(entry)
	zero := b.Const(ir.I64, 0)
	b.Br(head, zero)

	b.SetInsertionPointToEnd(head)
	c := b.Cmp(ir.SLT, i, n)
	b.CondBr(c, body, nil, exit, nil)

	b.SetInsertionPointToEnd(body)
	one := b.Const(ir.I64, 1)
	b.Br(head, b.Add(i, one))

	b.SetInsertionPointToEnd(exit)
	b.Return(i)

	tr := Compute(f, f.Body)

	assert.Equal(t, []ir.BlockID{body, exit, head, entry}, Postorder(f, f.Body))
	assert.Len(t, tr.Order, 4)
	assert.Equal(t, entry, tr.Idom(head))
	assert.Equal(t, head, tr.Idom(body))
	assert.Equal(t, head, tr.Idom(exit))
	assert.True(t, tr.Dominates(head, body))
	assert.False(t, tr.Dominates(body, head))
	assert.False(t, tr.Dominates(body, exit))

	assert.Equal(t, []ir.BlockID{body, exit}, Succs(f, head))
}

func TestEntryIdom(t *testing.T) {
	f := ir.NewFunc("chain", []ir.Type{ir.I1}, nil)
	b := ir.NewBuilder(f)

	entry := f.Entry(f.Body)
	require.Equal(t, ir.BlockID(0), entry)

	x := f.AppendBlock(f.Body)
	y := f.AppendBlock(f.Body)
	m := f.AppendBlock(f.Body)

	b.SetInsertionPointToEnd(entry)
	b.CondBr(f.Params()[0], x, nil, m, nil)

	b.SetInsertionPointToEnd(x)
	b.Br(y)

	b.SetInsertionPointToEnd(y)
	b.Br(m)

	b.SetInsertionPointToEnd(m)
	b.Return()

	tr := Compute(f, f.Body)

	assert.Equal(t, entry, tr.Idom(x))
	assert.Equal(t, x, tr.Idom(y))
	assert.Equal(t, entry, tr.Idom(m))

	assert.True(t, tr.Dominates(x, y))
	assert.True(t, tr.Dominates(entry, y))
	assert.False(t, tr.Dominates(y, m))
}
