package llvm

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/flatten/compiler/config"
	"github.com/slowlang/flatten/compiler/ir"
	"github.com/slowlang/flatten/compiler/lower"
	"github.com/slowlang/flatten/compiler/parse"
	"github.com/slowlang/flatten/compiler/verify"
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

func parsePackage(t *testing.T, text string) *ir.Package {
	t.Helper()

	p, err := parse.Parse(context.Background(), t.Name(), []byte(text))
	require.NoError(t, err)
	require.NoError(t, verify.Package(p))

	return p
}

func TestExportLoop(t *testing.T) {
	ctx := context.Background()
	p := parsePackage(t, count)

	d, err := lower.New(config.Default().Lower)
	require.NoError(t, err)

	_, err = d.LowerPackage(ctx, p)
	require.NoError(t, err)

	m, err := Export(ctx, p)
	require.NoError(t, err)

	s := m.String()

	assert.Contains(t, s, "define i64 @count(i64 %a0, i64 %a1)")
	assert.Contains(t, s, "phi i64")
	assert.Contains(t, s, "icmp slt i64")
	assert.Contains(t, s, "br label %bb1")
	assert.Contains(t, s, "br i1")
	assert.Contains(t, s, "ret i64")

	// induction variable: lower bound from the entry, stepped value from the back edge
	iv := regexp.MustCompile(`(%\d+) = phi i64 \[ %a0, %bb0 \], \[ %\d+, %bb\d+ \]`).FindStringSubmatch(s)
	require.NotNil(t, iv, "%s", s)

	assert.Contains(t, s, "icmp slt i64 "+iv[1]+", %a1")
	assert.Regexp(t, `%\d+ = phi i64 \[ 0, %bb0 \], \[ %\d+, %bb\d+ \]`, s)
}

func TestExportStructured(t *testing.T) {
	p := parsePackage(t, count)

	_, err := Export(context.Background(), p)
	assert.True(t, errors.Is(err, verify.ErrNotFlat), "err: %v", err)
}

func TestExportCallAndPair(t *testing.T) {
	p := parsePackage(t, `
func @pair(%a: i64) -> (i64, i64) {
	%r = opaque "ext" %a : i64
	%s = opaque "ext" %r : i64
	return %s, %a
}
`)

	m, err := Export(context.Background(), p)
	require.NoError(t, err)

	s := m.String()

	assert.Contains(t, s, "declare i64 @ext(")
	assert.Contains(t, s, "call i64 @ext(")
	assert.Contains(t, s, "insertvalue { i64, i64 }")
	assert.Contains(t, s, "ret { i64, i64 }")
}

func TestExportCallArity(t *testing.T) {
	p := parsePackage(t, `
func @f(%a: i64) {
	opaque "ext" %a
	opaque "ext" %a, %a
	return
}
`)

	_, err := Export(context.Background(), p)
	assert.ErrorContains(t, err, "declared with 1")
}
