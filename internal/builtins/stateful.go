package builtins

import (
	"github.com/pkg/errors"

	"stcore/internal/stateful"
	"stcore/internal/value"
)

// ErrInstanceID is returned when a stateful call references an instance
// slot outside the range allocated for its block kind — a malformed
// bytecode image, since the compiler itself never emits such a call.
var ErrInstanceID = errors.New("builtin: instance id out of range")

// presetMs clamps a preset-time argument (PT, on_ms, off_ms, tau_ms) to a
// non-negative millisecond count: "a negative value is coerced to 0, no
// implicit negative-to-large-unsigned wrap".
func presetMs(v value.Value) uint32 {
	f := v.AsFloat64()
	if f <= 0 {
		return 0
	}
	return uint32(f)
}

// CallStateful evaluates a KindStateful built-in against the instance at
// instanceID in st, using nowMs as the current monotonic millisecond
// clock sample. Elapsed-time arithmetic always subtracts as unsigned
// uint32, which is correct across a clock wrap without special-casing.
func CallStateful(id ID, instanceID int, st *stateful.Storage, nowMs uint32, args []value.Value) (value.Value, error) {
	switch id {
	case R_TRIG, F_TRIG:
		return callEdge(id, instanceID, st, args)
	case TON, TOF, TP:
		return callTimer(id, instanceID, st, nowMs, args)
	case CTU:
		return callCTU(instanceID, st, args)
	case CTD:
		return callCTD(instanceID, st, args)
	case CTUD:
		return callCTUD(instanceID, st, args)
	case SR:
		return callSR(instanceID, st, args)
	case RS:
		return callRS(instanceID, st, args)
	case HYSTERESIS:
		return callHysteresis(instanceID, st, args)
	case BLINK:
		return callBlink(instanceID, st, nowMs, args)
	case FILTER:
		return callFilter(instanceID, st, args)
	default:
		return value.Value{}, errors.Errorf("builtin: %s is not stateful", DescriptorFor(id).Name)
	}
}

func callEdge(id ID, instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.EdgeCount {
		return value.Value{}, ErrInstanceID
	}
	e := st.Edge(instanceID)
	clk := args[0].Bool()
	var out bool
	if id == R_TRIG {
		out = clk && !e.LastState
	} else {
		out = !clk && e.LastState
	}
	e.LastState = clk
	return value.FromBool(out), nil
}

func callTimer(id ID, instanceID int, st *stateful.Storage, nowMs uint32, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.TimerCount {
		return value.Value{}, ErrInstanceID
	}
	tm := st.Timer(instanceID)
	in := args[0].Bool()
	pt := presetMs(args[1])

	switch id {
	case TON:
		if in {
			if !tm.Running {
				tm.Running = true
				tm.StartTime = nowMs
			}
			tm.ET = nowMs - tm.StartTime
			tm.Q = tm.ET >= pt
		} else {
			tm.Running = false
			tm.ET = 0
			tm.Q = false
		}
	case TOF:
		if in {
			tm.Running = false
			tm.Q = true
			tm.ET = 0
		} else {
			if tm.LastIn {
				tm.Running = true
				tm.StartTime = nowMs
			}
			if tm.Running {
				tm.ET = nowMs - tm.StartTime
				if tm.ET >= pt {
					tm.Q = false
					tm.Running = false
				} else {
					tm.Q = true
				}
			}
		}
	case TP:
		if in && !tm.LastIn && !tm.Running {
			tm.Running = true
			tm.StartTime = nowMs
		}
		if tm.Running {
			tm.ET = nowMs - tm.StartTime
			if tm.ET >= pt {
				tm.Q = false
				tm.Running = false
			} else {
				tm.Q = true
			}
		}
	}
	tm.LastIn = in
	return value.FromBool(tm.Q), nil
}

const maxInt32 = int32(1<<31 - 1)

func callCTU(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.CounterCnt {
		return value.Value{}, ErrInstanceID
	}
	c := st.Counter(instanceID)
	cu, reset, pv := args[0].Bool(), args[1].Bool(), args[2].DInt()
	rising := cu && !c.LastCU
	if reset {
		c.CV = 0
	} else if rising && c.CV < maxInt32 {
		c.CV++
	}
	c.LastCU = cu
	return value.FromBool(c.CV >= pv), nil
}

func callCTD(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.CounterCnt {
		return value.Value{}, ErrInstanceID
	}
	c := st.Counter(instanceID)
	cd, load, pv := args[0].Bool(), args[1].Bool(), args[2].DInt()
	risingLoad := load && !c.LastLoad
	risingCD := cd && !c.LastCD
	if risingLoad {
		c.CV = pv
	} else if risingCD && !load && c.CV > 0 {
		// Gated on the LOAD level, not just its rising edge: a CD edge
		// arriving while LOAD is still held true must not decrement.
		c.CV--
	}
	c.LastCD = cd
	c.LastLoad = load
	return value.FromBool(c.CV <= 0), nil
}

func callCTUD(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.CounterCnt {
		return value.Value{}, ErrInstanceID
	}
	c := st.Counter(instanceID)
	cu, cd, reset, load, pv := args[0].Bool(), args[1].Bool(), args[2].Bool(), args[3].Bool(), args[4].DInt()
	risingCU := cu && !c.LastCU
	risingCD := cd && !c.LastCD
	risingLoad := load && !c.LastLoad

	switch {
	case reset:
		c.CV = 0
	case risingLoad:
		c.CV = pv
	case risingCU && c.CV < maxInt32:
		c.CV++
	case risingCD && c.CV > 0:
		c.CV--
	}
	c.LastCU, c.LastCD, c.LastLoad = cu, cd, load

	qu := c.CV >= pv
	return value.FromBool(qu), nil
}

func callSR(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.LatchCount {
		return value.Value{}, ErrInstanceID
	}
	l := st.Latch(instanceID)
	s1, r := args[0].Bool(), args[1].Bool()
	if r {
		l.Q = false
	} else if s1 {
		l.Q = true
	}
	return value.FromBool(l.Q), nil
}

func callRS(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.LatchCount {
		return value.Value{}, ErrInstanceID
	}
	l := st.Latch(instanceID)
	s, r1 := args[0].Bool(), args[1].Bool()
	if s {
		l.Q = true
	} else if r1 {
		l.Q = false
	}
	return value.FromBool(l.Q), nil
}

func callHysteresis(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.HystCount {
		return value.Value{}, ErrInstanceID
	}
	h := st.HysteresisAt(instanceID)
	in, high, low := args[0].AsFloat64(), args[1].AsFloat64(), args[2].AsFloat64()
	switch {
	case in > high:
		h.Q = true
	case in < low:
		h.Q = false
	}
	return value.FromBool(h.Q), nil
}

func callBlink(instanceID int, st *stateful.Storage, nowMs uint32, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.BlinkCount {
		return value.Value{}, ErrInstanceID
	}
	b := st.BlinkAt(instanceID)
	enable := args[0].Bool()
	onMs, offMs := presetMs(args[1]), presetMs(args[2])

	if !enable {
		b.Phase = stateful.BlinkIdle
		b.Q = false
		return value.FromBool(false), nil
	}

	switch b.Phase {
	case stateful.BlinkIdle:
		b.Phase = stateful.BlinkOn
		b.PhaseSinc = nowMs
		b.Q = true
	case stateful.BlinkOn:
		if nowMs-b.PhaseSinc >= onMs {
			b.Phase = stateful.BlinkOff
			b.PhaseSinc = nowMs
			b.Q = false
		} else {
			b.Q = true
		}
	case stateful.BlinkOff:
		if nowMs-b.PhaseSinc >= offMs {
			b.Phase = stateful.BlinkOn
			b.PhaseSinc = nowMs
			b.Q = true
		} else {
			b.Q = false
		}
	}
	return value.FromBool(b.Q), nil
}

func callFilter(instanceID int, st *stateful.Storage, args []value.Value) (value.Value, error) {
	if instanceID < 0 || instanceID >= st.FilterCount {
		return value.Value{}, ErrInstanceID
	}
	f := st.FilterAt(instanceID)
	in := float32(args[0].AsFloat64())
	tauMs := args[1].AsFloat64()

	if tauMs <= 0 {
		f.Prev = in
		return value.FromReal(in), nil
	}

	dt := float64(st.CycleTimeMs)
	alpha := dt / (tauMs + dt)
	out := f.Prev + float32(alpha)*(in-f.Prev)
	f.Prev = out
	return value.FromReal(out), nil
}
