package ir

import "tlog.app/go/tlog/tlwire"

type (
	Event int

	Mutation struct {
		Event Event
		Op    OpID
		Block BlockID
	}

	// Log records graph mutations while it is attached to a Func.
	Log []Mutation
)

const (
	OpCreated Event = iota
	OpInserted
	OpErased
	BlockCreated
	BlockSplit
	RegionInlined
	UsesReplaced
)

var eventNames = [...]string{
	OpCreated:     "op_created",
	OpInserted:    "op_inserted",
	OpErased:      "op_erased",
	BlockCreated:  "block_created",
	BlockSplit:    "block_split",
	RegionInlined: "region_inlined",
	UsesReplaced:  "uses_replaced",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}

	return "event"
}

func (f *Func) record(e Event, op OpID, b BlockID) {
	if f.Log == nil {
		return
	}

	*f.Log = append(*f.Log, Mutation{Event: e, Op: op, Block: b})
}

// Created returns ops created while the log was attached which are still alive.
func (l Log) Created(f *Func) (ops []OpID) {
	for _, m := range l {
		if m.Event == OpCreated && f.Live(m.Op) {
			ops = append(ops, m.Op)
		}
	}

	return ops
}

func (m Mutation) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "event", int(m.Event))
	b = e.AppendKeyInt(b, "op", int(m.Op))
	b = e.AppendKeyInt(b, "block", int(m.Block))

	return b
}
