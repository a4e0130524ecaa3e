package engine

import (
	"github.com/pkg/errors"

	"stcore/internal/register"
	"stcore/internal/value"
)

func readBinding(reg register.File, b Binding, typ value.Type) (value.Value, error) {
	switch b.Kind {
	case register.Coil:
		v, err := reg.ReadCoil(b.Address)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromBool(v), nil
	case register.DiscreteInput:
		v, err := reg.ReadDiscrete(b.Address)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromBool(v), nil
	case register.HoldingRegister:
		return readWordSource(reg.ReadHolding, reg.ReadHoldingWide, b, typ)
	case register.InputRegister:
		return readWordSource(reg.ReadInput, reg.ReadInputWide, b, typ)
	default:
		return value.Value{}, errors.Errorf("engine: unknown binding source-kind %d", b.Kind)
	}
}

func readWordSource(read16 func(uint16) (uint16, error), read32 func(uint16) (uint32, error), b Binding, typ value.Type) (value.Value, error) {
	if b.WordCount == 2 {
		raw, err := read32(b.Address)
		if err != nil {
			return value.Value{}, err
		}
		return wideToValue(raw, typ), nil
	}
	raw, err := read16(b.Address)
	if err != nil {
		return value.Value{}, err
	}
	return narrowToValue(raw, typ), nil
}

func narrowToValue(raw uint16, typ value.Type) value.Value {
	switch typ {
	case value.Bool:
		return value.FromBool(raw != 0)
	case value.Int:
		return value.FromInt(int16(raw))
	case value.DWord:
		return value.FromDWord(uint32(raw))
	default:
		return value.FromDInt(int32(int16(raw)))
	}
}

func wideToValue(raw uint32, typ value.Type) value.Value {
	switch typ {
	case value.DWord:
		return value.FromDWord(raw)
	case value.Real:
		return value.Of(value.Real, raw)
	default:
		return value.FromDInt(int32(raw))
	}
}

func writeBinding(reg register.File, b Binding, v value.Value) error {
	switch b.Kind {
	case register.Coil:
		return reg.WriteCoil(b.Address, v.Bool())
	case register.DiscreteInput:
		return errors.New("engine: discrete_input is read-only, cannot be an output binding")
	case register.HoldingRegister:
		if b.WordCount == 2 {
			return reg.WriteHoldingWide(b.Address, valueToWide(v))
		}
		return reg.WriteHolding(b.Address, valueToNarrow(v))
	case register.InputRegister:
		return errors.New("engine: input_register is read-only, cannot be an output binding")
	default:
		return errors.Errorf("engine: unknown binding source-kind %d", b.Kind)
	}
}

func valueToNarrow(v value.Value) uint16 {
	if v.Type() == value.Bool {
		if v.Bool() {
			return 1
		}
		return 0
	}
	return uint16(int16(v.AsFloat64()))
}

func valueToWide(v value.Value) uint32 {
	switch v.Type() {
	case value.DWord:
		return v.DWord()
	case value.Real:
		return v.Bits()
	default:
		return uint32(int32(v.AsFloat64()))
	}
}
