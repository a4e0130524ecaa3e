// Package register implements the register file: the one piece of state
// shared between the ST core and the rest of the system (holding registers,
// input registers, coils, discrete inputs). No dependency in the reference
// corpus models a bare address-space array any better than the standard
// library's sync.RWMutex does, so this stays stdlib-only — see DESIGN.md.
package register

import (
	"fmt"
	"sync"
)

// Kind names one of the four Modbus-shaped address spaces a binding can
// target.
type Kind uint8

const (
	HoldingRegister Kind = iota
	InputRegister
	Coil
	DiscreteInput
)

func (k Kind) String() string {
	switch k {
	case HoldingRegister:
		return "holding_register"
	case InputRegister:
		return "input_register"
	case Coil:
		return "coil"
	case DiscreteInput:
		return "discrete_input"
	default:
		return "?unknown-kind?"
	}
}

// File is the register file interface bindings read and write through. It
// is written from outside the engine's tick (HTTP, a Modbus slave, the
// CLI) at any time, so every implementation must be safe for concurrent
// access; the engine's own contract is to treat each cycle's input-binding
// phase as the authoritative read regardless of what races around it.
type File interface {
	ReadHolding(addr uint16) (uint16, error)
	WriteHolding(addr uint16, v uint16) error
	ReadInput(addr uint16) (uint16, error)
	ReadCoil(addr uint16) (bool, error)
	WriteCoil(addr uint16, v bool) error
	ReadDiscrete(addr uint16) (bool, error)

	// ReadHoldingWide and ReadInputWide combine two consecutive 16-bit
	// registers high-then-low into a 32-bit value, for bindings whose
	// word_count is 2.
	ReadHoldingWide(addr uint16) (uint32, error)
	WriteHoldingWide(addr uint16, v uint32) error
	ReadInputWide(addr uint16) (uint32, error)
}

// ErrAddressOutOfRange is returned when an address falls outside the space
// sized at construction.
type ErrAddressOutOfRange struct {
	Kind Kind
	Addr uint16
	Size int
}

func (e *ErrAddressOutOfRange) Error() string {
	return fmt.Sprintf("register: %s address %d out of range [0,%d)", e.Kind, e.Addr, e.Size)
}

// Memory is the in-memory File implementation. Address space sizes are
// fixed at construction time, per the external-interfaces contract.
type Memory struct {
	mu sync.RWMutex

	holding  []uint16
	input    []uint16
	coils    []bool
	discrete []bool
}

// Sizes configures the four address-space sizes of a Memory register file.
type Sizes struct {
	Holding  int
	Input    int
	Coils    int
	Discrete int
}

// NewMemory allocates a zeroed register file of the given sizes.
func NewMemory(sizes Sizes) *Memory {
	return &Memory{
		holding:  make([]uint16, sizes.Holding),
		input:    make([]uint16, sizes.Input),
		coils:    make([]bool, sizes.Coils),
		discrete: make([]bool, sizes.Discrete),
	}
}

func (m *Memory) ReadHolding(addr uint16) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(addr) >= len(m.holding) {
		return 0, &ErrAddressOutOfRange{Kind: HoldingRegister, Addr: addr, Size: len(m.holding)}
	}
	return m.holding[addr], nil
}

func (m *Memory) WriteHolding(addr uint16, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.holding) {
		return &ErrAddressOutOfRange{Kind: HoldingRegister, Addr: addr, Size: len(m.holding)}
	}
	m.holding[addr] = v
	return nil
}

func (m *Memory) ReadInput(addr uint16) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(addr) >= len(m.input) {
		return 0, &ErrAddressOutOfRange{Kind: InputRegister, Addr: addr, Size: len(m.input)}
	}
	return m.input[addr], nil
}

// WriteInput lets the rest of the system (a Modbus slave poll, a test
// fixture) drive input-register values; the ST core itself never writes
// inputs through a binding.
func (m *Memory) WriteInput(addr uint16, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.input) {
		return &ErrAddressOutOfRange{Kind: InputRegister, Addr: addr, Size: len(m.input)}
	}
	m.input[addr] = v
	return nil
}

func (m *Memory) ReadCoil(addr uint16) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(addr) >= len(m.coils) {
		return false, &ErrAddressOutOfRange{Kind: Coil, Addr: addr, Size: len(m.coils)}
	}
	return m.coils[addr], nil
}

func (m *Memory) WriteCoil(addr uint16, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.coils) {
		return &ErrAddressOutOfRange{Kind: Coil, Addr: addr, Size: len(m.coils)}
	}
	m.coils[addr] = v
	return nil
}

func (m *Memory) ReadDiscrete(addr uint16) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(addr) >= len(m.discrete) {
		return false, &ErrAddressOutOfRange{Kind: DiscreteInput, Addr: addr, Size: len(m.discrete)}
	}
	return m.discrete[addr], nil
}

// WriteDiscrete lets the rest of the system drive discrete-input values,
// mirroring WriteInput.
func (m *Memory) WriteDiscrete(addr uint16, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.discrete) {
		return &ErrAddressOutOfRange{Kind: DiscreteInput, Addr: addr, Size: len(m.discrete)}
	}
	m.discrete[addr] = v
	return nil
}

func (m *Memory) ReadHoldingWide(addr uint16) (uint32, error) {
	hi, err := m.ReadHolding(addr)
	if err != nil {
		return 0, err
	}
	lo, err := m.ReadHolding(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (m *Memory) WriteHoldingWide(addr uint16, v uint32) error {
	if err := m.WriteHolding(addr, uint16(v>>16)); err != nil {
		return err
	}
	return m.WriteHolding(addr+1, uint16(v))
}

func (m *Memory) ReadInputWide(addr uint16) (uint32, error) {
	hi, err := m.ReadInput(addr)
	if err != nil {
		return 0, err
	}
	lo, err := m.ReadInput(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}
