package builtins

import (
	"math"

	"github.com/pkg/errors"

	"stcore/internal/value"
)

// ErrArity is wrapped with the built-in name when CallPure receives the
// wrong number of arguments; the compiler is expected to prevent this, so
// it only ever fires on a malformed bytecode image.
var ErrArity = errors.New("builtin: wrong argument count")

// CallPure evaluates a KindPure built-in. args must already match the
// descriptor's arity; the compiler is responsible for that invariant.
func CallPure(id ID, args []value.Value) (value.Value, error) {
	d := DescriptorFor(id)
	if len(args) != d.Arity {
		return value.Value{}, errors.Wrapf(ErrArity, "%s", d.Name)
	}

	switch id {
	case ABS:
		return absOf(args[0]), nil
	case MIN:
		if args[0].AsFloat64() < args[1].AsFloat64() {
			return args[0], nil
		}
		return args[1], nil
	case MAX:
		if args[0].AsFloat64() > args[1].AsFloat64() {
			return args[0], nil
		}
		return args[1], nil
	case SUM:
		return sumOf(args[0], args[1]), nil
	case SQRT:
		return value.FromReal(float32(math.Sqrt(args[0].AsFloat64()))), nil
	case ROUND:
		return value.FromDInt(value.ClampInt32(int64(math.Round(args[0].AsFloat64())))), nil
	case TRUNC:
		return value.FromDInt(value.ClampInt32(int64(math.Trunc(args[0].AsFloat64())))), nil
	case FLOOR:
		return value.FromDInt(value.ClampInt32(int64(math.Floor(args[0].AsFloat64())))), nil
	case CEIL:
		return value.FromDInt(value.ClampInt32(int64(math.Ceil(args[0].AsFloat64())))), nil
	case INT_TO_REAL:
		return value.FromReal(float32(args[0].AsFloat64())), nil
	case REAL_TO_INT:
		return value.FromInt(value.ClampInt16(int64(math.Round(args[0].AsFloat64())))), nil
	case BOOL_TO_INT:
		if args[0].Bool() {
			return value.FromInt(1), nil
		}
		return value.FromInt(0), nil
	case INT_TO_BOOL:
		return value.FromBool(args[0].AsFloat64() != 0), nil
	case DWORD_TO_INT:
		return value.FromInt(value.ClampInt16(int64(args[0].DWord()))), nil
	case INT_TO_DWORD:
		return value.FromDWord(value.ClampUint32(int64(args[0].Int()))), nil
	case SCALE:
		return scale(args[0], args[1], args[2], args[3], args[4]), nil
	default:
		return value.Value{}, errors.Errorf("builtin: %s is not pure", d.Name)
	}
}

func absOf(v value.Value) value.Value {
	switch v.Type() {
	case value.Real:
		f := v.Real()
		if f < 0 {
			f = -f
		}
		return value.FromReal(f)
	case value.DInt:
		n := v.DInt()
		if n < 0 {
			n = -n
		}
		return value.FromDInt(n)
	default:
		n := v.Int()
		if n < 0 {
			n = -n
		}
		return value.FromInt(n)
	}
}

func sumOf(a, b value.Value) value.Value {
	if a.Type() == value.Real || b.Type() == value.Real {
		return value.FromReal(float32(a.AsFloat64() + b.AsFloat64()))
	}
	return value.FromDInt(value.ClampInt32(int64(a.AsFloat64()) + int64(b.AsFloat64())))
}

// scale linearly maps in from [in_min, in_max] to [out_min, out_max],
// clamping the input first. If in_max == in_min it returns out_min,
// avoiding the division-by-zero the formula would otherwise hit.
func scale(in, inMin, inMax, outMin, outMax value.Value) value.Value {
	lo, hi := inMin.AsFloat64(), inMax.AsFloat64()
	if hi == lo {
		return value.FromReal(float32(outMin.AsFloat64()))
	}
	x := in.AsFloat64()
	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}
	t := (x - lo) / (hi - lo)
	result := outMin.AsFloat64() + t*(outMax.AsFloat64()-outMin.AsFloat64())
	return value.FromReal(float32(result))
}
