package ir

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"
)

type (
	Value    int
	OpID     int
	BlockID  int
	RegionID int

	Kind int
	Pred int

	Type struct {
		Width    int
		Unsigned bool
	}

	// ValueInfo is the definition point of a Value.
	// Exactly one of Op and Block is set.
	ValueInfo struct {
		Type Type

		Op    OpID
		Block BlockID
		Index int
	}

	// Succ is a terminator successor with its block-argument actuals.
	Succ struct {
		Block BlockID
		Args  []Value
	}

	Op struct {
		Kind  Kind
		Block BlockID

		Operands []Value
		Results  []Value
		Regions  []RegionID
		Succs    []Succ

		Imm  int64
		Pred Pred
		Name string
	}

	Block struct {
		Region RegionID

		Args []Value
		Ops  []OpID
	}

	Region struct {
		Op     OpID
		Blocks []BlockID
	}

	Func struct {
		Name    string
		Results []Type
		Body    RegionID

		Values  []ValueInfo
		Ops     []Op
		Blocks  []Block
		Regions []Region

		Log *Log
	}

	Package struct {
		Funcs []*Func
	}

	// Use is an operand position referencing a value.
	// Succ is -1 for plain operands.
	Use struct {
		Op    OpID
		Succ  int
		Index int
	}
)

const (
	NoValue  Value    = -1
	NoOp     OpID     = -1
	NoBlock  BlockID  = -1
	NoRegion RegionID = -1
)

const (
	KindInvalid Kind = iota

	Const
	Add
	Sub
	Mul
	Cmp
	Opaque

	Br
	CondBr
	Return
	Yield

	For
	If
	Parallel
	Reduce

	kindCount
)

const (
	SLT Pred = iota
	SLE
	SGT
	SGE
	ULT
	ULE
	UGT
	UGE
	EQ
	NE

	predCount
)

var (
	I1  = Type{Width: 1}
	I8  = Type{Width: 8}
	I32 = Type{Width: 32}
	I64 = Type{Width: 64}
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	Const:       "const",
	Add:         "add",
	Sub:         "sub",
	Mul:         "mul",
	Cmp:         "cmp",
	Opaque:      "opaque",
	Br:          "br",
	CondBr:      "cond_br",
	Return:      "return",
	Yield:       "yield",
	For:         "for",
	If:          "if",
	Parallel:    "parallel",
	Reduce:      "reduce",
}

var predNames = [...]string{
	SLT: "slt",
	SLE: "sle",
	SGT: "sgt",
	SGE: "sge",
	ULT: "ult",
	ULE: "ule",
	UGT: "ugt",
	UGE: "uge",
	EQ:  "eq",
	NE:  "ne",
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func KindByName(s string) (Kind, bool) {
	for k := Const; k < kindCount; k++ {
		if k != Opaque && kindNames[k] == s {
			return k, true
		}
	}

	return KindInvalid, false
}

func (k Kind) IsTerminator() bool {
	switch k {
	case Br, CondBr, Return, Yield:
		return true
	}

	return false
}

// IsStructured reports whether k is lowered by one of the flattening patterns.
func (k Kind) IsStructured() bool {
	switch k {
	case For, If, Parallel:
		return true
	}

	return false
}

func (p Pred) String() string {
	if p >= 0 && p < predCount {
		return predNames[p]
	}

	return "pred(" + strconv.Itoa(int(p)) + ")"
}

func PredByName(s string) (Pred, bool) {
	for p := SLT; p < predCount; p++ {
		if predNames[p] == s {
			return p, true
		}
	}

	return 0, false
}

// Signed reports whether a predicate interprets operands as two's complement.
func (p Pred) Signed() bool {
	return p <= SGE
}

func (t Type) String() string {
	c := "i"
	if t.Unsigned {
		c = "u"
	}

	return c + strconv.Itoa(t.Width)
}

func ParseType(s string) (Type, bool) {
	if len(s) < 2 || s[0] != 'i' && s[0] != 'u' {
		return Type{}, false
	}

	w, err := strconv.Atoi(s[1:])
	if err != nil || w < 1 || w > 256 {
		return Type{}, false
	}

	return Type{Width: w, Unsigned: s[0] == 'u'}, true
}

func (u Use) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "op", int(u.Op))
	b = e.AppendKeyInt(b, "succ", u.Succ)
	b = e.AppendKeyInt(b, "i", u.Index)

	return b
}

func (s Succ) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "block", int(s.Block))
	b = e.AppendKeyInt(b, "args", len(s.Args))

	return b
}
