package interp

import (
	"github.com/holiman/uint256"

	"github.com/slowlang/flatten/compiler/ir"
)

// Values are kept as non-negative integers below 2^width.

var one = uint256.NewInt(1)

func mask(t ir.Type) *uint256.Int {
	m := new(uint256.Int).Lsh(one, uint(t.Width))
	return m.SubUint64(m, 1)
}

func signBit(t ir.Type) *uint256.Int {
	return new(uint256.Int).Lsh(one, uint(t.Width-1))
}

func wrap(x *uint256.Int, t ir.Type) uint256.Int {
	var r uint256.Int
	r.And(x, mask(t))

	return r
}

func FromInt64(v int64, t ir.Type) uint256.Int {
	x := uint256.NewInt(uint64(v))

	if v < 0 {
		x = new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(uint64(-v)))
	}

	return wrap(x, t)
}

// ToInt64 interprets x as signed unless t is unsigned. Wider values are truncated.
func ToInt64(x uint256.Int, t ir.Type) int64 {
	if t.Unsigned || t.Width == 1 || x.Lt(signBit(t)) {
		return int64(x.Uint64())
	}

	neg := new(uint256.Int).Sub(new(uint256.Int), &x)
	neg.And(neg, mask(t))

	return -int64(neg.Uint64())
}

func binary(k ir.Kind, x, y uint256.Int, t ir.Type) uint256.Int {
	var r uint256.Int

	switch k {
	case ir.Add:
		r.Add(&x, &y)
	case ir.Sub:
		r.Sub(&x, &y)
	case ir.Mul:
		r.Mul(&x, &y)
	default:
		panic(k)
	}

	return wrap(&r, t)
}

func compare(p ir.Pred, x, y uint256.Int, t ir.Type) bool {
	if p.Signed() {
		s := signBit(t)
		x.Xor(&x, s)
		y.Xor(&y, s)
	}

	switch p {
	case ir.SLT, ir.ULT:
		return x.Lt(&y)
	case ir.SLE, ir.ULE:
		return !y.Lt(&x)
	case ir.SGT, ir.UGT:
		return y.Lt(&x)
	case ir.SGE, ir.UGE:
		return !x.Lt(&y)
	case ir.EQ:
		return x.Eq(&y)
	case ir.NE:
		return !x.Eq(&y)
	}

	panic(p)
}

func boolean(v bool) uint256.Int {
	if v {
		return *uint256.NewInt(1)
	}

	return uint256.Int{}
}
