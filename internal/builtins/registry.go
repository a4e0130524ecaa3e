// Package builtins implements the pure, stateful, and engine built-in
// functions callable from compiled bytecode via CALL_BUILTIN. Pure
// built-ins are ordinary total functions; stateful built-ins read and
// mutate one instance slot from an internal/stateful.Storage pool;
// engine built-ins reach through a CallContext to the register file's
// collaborators (Modbus, persistence) with per-cycle rate limiting.
package builtins

import "stcore/internal/stateful"

// ID identifies a built-in function for CALL_BUILTIN's BuiltinID field.
type ID uint8

const (
	ABS ID = iota
	MIN
	MAX
	SUM
	SQRT
	ROUND
	TRUNC
	FLOOR
	CEIL
	INT_TO_REAL
	REAL_TO_INT
	BOOL_TO_INT
	INT_TO_BOOL
	DWORD_TO_INT
	INT_TO_DWORD
	SCALE

	R_TRIG
	F_TRIG
	TON
	TOF
	TP
	CTU
	CTD
	CTUD
	SR
	RS
	HYSTERESIS
	BLINK
	FILTER

	SAVE
	LOAD
	MB_READ_COIL
	MB_READ_INPUT
	MB_READ_HOLDING
	MB_READ_INPUT_REG
	MB_WRITE_COIL
	MB_WRITE_HOLDING
)

// Kind partitions built-ins into the three classes the compiler and VM
// treat differently: a pure built-in needs no instance slot, a stateful
// one needs a pool-allocated instance_id, an engine one reaches external
// collaborators and is rate-limited per cycle.
type Kind int

const (
	KindPure Kind = iota
	KindStateful
	KindEngine
)

// Descriptor is the compiler's and VM's static knowledge about one
// built-in: its name, arity, and class.
type Descriptor struct {
	Name  string
	Arity int
	Kind  Kind
	// BlockKind ties a stateful built-in to the stateful pool it
	// allocates from; meaningless for non-stateful built-ins.
	BlockKind string
}

var descriptors = map[ID]Descriptor{
	ABS:                {"ABS", 1, KindPure, ""},
	MIN:                {"MIN", 2, KindPure, ""},
	MAX:                {"MAX", 2, KindPure, ""},
	SUM:                {"SUM", 2, KindPure, ""},
	SQRT:               {"SQRT", 1, KindPure, ""},
	ROUND:              {"ROUND", 1, KindPure, ""},
	TRUNC:              {"TRUNC", 1, KindPure, ""},
	FLOOR:              {"FLOOR", 1, KindPure, ""},
	CEIL:               {"CEIL", 1, KindPure, ""},
	INT_TO_REAL:        {"INT_TO_REAL", 1, KindPure, ""},
	REAL_TO_INT:        {"REAL_TO_INT", 1, KindPure, ""},
	BOOL_TO_INT:        {"BOOL_TO_INT", 1, KindPure, ""},
	INT_TO_BOOL:        {"INT_TO_BOOL", 1, KindPure, ""},
	DWORD_TO_INT:       {"DWORD_TO_INT", 1, KindPure, ""},
	INT_TO_DWORD:       {"INT_TO_DWORD", 1, KindPure, ""},
	SCALE:              {"SCALE", 5, KindPure, ""},
	R_TRIG:             {"R_TRIG", 1, KindStateful, "edge"},
	F_TRIG:             {"F_TRIG", 1, KindStateful, "edge"},
	TON:                {"TON", 2, KindStateful, "timer"},
	TOF:                {"TOF", 2, KindStateful, "timer"},
	TP:                 {"TP", 2, KindStateful, "timer"},
	CTU:                {"CTU", 3, KindStateful, "counter"},
	CTD:                {"CTD", 3, KindStateful, "counter"},
	CTUD:               {"CTUD", 5, KindStateful, "counter"},
	SR:                 {"SR", 2, KindStateful, "latch"},
	RS:                 {"RS", 2, KindStateful, "latch"},
	HYSTERESIS:         {"HYSTERESIS", 3, KindStateful, "hysteresis"},
	BLINK:              {"BLINK", 3, KindStateful, "blink"},
	FILTER:             {"FILTER", 2, KindStateful, "filter"},
	SAVE:               {"SAVE", 1, KindEngine, ""},
	LOAD:               {"LOAD", 1, KindEngine, ""},
	MB_READ_COIL:       {"MB_READ_COIL", 2, KindEngine, ""},
	MB_READ_INPUT:      {"MB_READ_INPUT", 2, KindEngine, ""},
	MB_READ_HOLDING:    {"MB_READ_HOLDING", 2, KindEngine, ""},
	MB_READ_INPUT_REG:  {"MB_READ_INPUT_REG", 2, KindEngine, ""},
	MB_WRITE_COIL:      {"MB_WRITE_COIL", 3, KindEngine, ""},
	MB_WRITE_HOLDING:   {"MB_WRITE_HOLDING", 3, KindEngine, ""},
}

var nameToID map[string]ID

func init() {
	nameToID = make(map[string]ID, len(descriptors))
	for id, d := range descriptors {
		nameToID[d.Name] = id
	}
}

// Lookup resolves a callee name to its ID and Descriptor.
func Lookup(name string) (ID, Descriptor, bool) {
	id, ok := nameToID[name]
	if !ok {
		return 0, Descriptor{}, false
	}
	return id, descriptors[id], true
}

// DescriptorFor returns the static metadata for id.
func DescriptorFor(id ID) Descriptor { return descriptors[id] }

// AllocInstance allocates a pool slot for a stateful built-in's block
// kind, returning the instance id or -1 if the pool is exhausted.
func AllocInstance(st *stateful.Storage, id ID) int {
	switch id {
	case R_TRIG:
		return st.AllocEdge(stateful.EdgeRising)
	case F_TRIG:
		return st.AllocEdge(stateful.EdgeFalling)
	case TON:
		return st.AllocTimer(stateful.TimerTON)
	case TOF:
		return st.AllocTimer(stateful.TimerTOF)
	case TP:
		return st.AllocTimer(stateful.TimerTP)
	case CTU:
		return st.AllocCounter(stateful.CounterUp)
	case CTD:
		return st.AllocCounter(stateful.CounterDown)
	case CTUD:
		return st.AllocCounter(stateful.CounterUpDown)
	case SR:
		return st.AllocLatch(stateful.LatchSR)
	case RS:
		return st.AllocLatch(stateful.LatchRS)
	case HYSTERESIS:
		return st.AllocHysteresis()
	case BLINK:
		return st.AllocBlink()
	case FILTER:
		return st.AllocFilter()
	default:
		return -1
	}
}
