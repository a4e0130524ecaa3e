package builtins

import (
	"time"

	"stcore/internal/modbus"
	"stcore/internal/persistence"
	"stcore/internal/value"
)

// MaxRequestsDefault is the default per-cycle remote-call budget; the
// engine config may override it.
const MaxRequestsDefault = 5

// saveRateLimit is the minimum interval between successive SAVE calls.
const saveRateLimit = 5 * time.Second

// CallContext carries the cycle-scoped state built-ins need that isn't
// part of any single stateful instance: the remote-call counter, the
// last Modbus error code, and handles to the persistence/Modbus
// collaborators. One CallContext belongs to one program slot and is
// reset at the start of every cycle, per §4.5's "a single call_context
// handle" design note — deliberately not a package-level global so
// programs on different engine instances never share state.
type CallContext struct {
	Master modbus.Master
	Store  persistence.Store

	MaxRequestsPerCycle int
	requestsThisCycle   int

	LastModbusError modbus.Error

	lastSaveAt time.Time
}

// NewCallContext builds a CallContext bound to the given collaborators.
func NewCallContext(master modbus.Master, store persistence.Store, maxRequests int) *CallContext {
	if maxRequests <= 0 {
		maxRequests = MaxRequestsDefault
	}
	return &CallContext{Master: master, Store: store, MaxRequestsPerCycle: maxRequests}
}

// BeginCycle resets the per-cycle remote-call counter; the engine calls
// this once per program per tick before running the VM.
func (c *CallContext) BeginCycle() {
	c.requestsThisCycle = 0
}

func (c *CallContext) takeRequestSlot() bool {
	if c.requestsThisCycle >= c.MaxRequestsPerCycle {
		c.LastModbusError = modbus.MaxRequestsExceeded
		return false
	}
	c.requestsThisCycle++
	return true
}

// CallEngine evaluates a KindEngine built-in (SAVE/LOAD/MB_*).
func CallEngine(id ID, ctx *CallContext, args []value.Value) (value.Value, error) {
	switch id {
	case SAVE:
		return value.FromDInt(int32(ctx.save(int(args[0].AsFloat64())))), nil
	case LOAD:
		return value.FromDInt(int32(ctx.load(int(args[0].AsFloat64())))), nil
	case MB_READ_COIL:
		return ctx.mbReadBool(func(s uint8, a uint16) (bool, modbus.Error) { return ctx.Master.ReadCoil(s, a) }, args)
	case MB_READ_INPUT:
		return ctx.mbReadBool(func(s uint8, a uint16) (bool, modbus.Error) { return ctx.Master.ReadInput(s, a) }, args)
	case MB_READ_HOLDING:
		return ctx.mbReadWord(func(s uint8, a uint16) (uint16, modbus.Error) { return ctx.Master.ReadHolding(s, a) }, args)
	case MB_READ_INPUT_REG:
		return ctx.mbReadWord(func(s uint8, a uint16) (uint16, modbus.Error) { return ctx.Master.ReadInputRegister(s, a) }, args)
	case MB_WRITE_COIL:
		return ctx.mbWrite(func(s uint8, a uint16) modbus.Error {
			return ctx.Master.WriteCoil(s, a, args[2].Bool())
		}, args)
	case MB_WRITE_HOLDING:
		return ctx.mbWrite(func(s uint8, a uint16) modbus.Error {
			return ctx.Master.WriteHolding(s, a, uint16(args[2].AsFloat64()))
		}, args)
	default:
		return value.Value{}, nil
	}
}

// save returns 0 on success, -1 on failure, -2 if rate-limited.
func (c *CallContext) save(groupID int) int {
	now := time.Now()
	if !c.lastSaveAt.IsZero() && now.Sub(c.lastSaveAt) < saveRateLimit {
		return -2
	}
	if err := c.Store.SnapshotGroups(groupID); err != nil {
		return -1
	}
	if err := c.Store.SaveConfig(); err != nil {
		return -1
	}
	c.lastSaveAt = now
	return 0
}

func (c *CallContext) load(groupID int) int {
	if err := c.Store.LoadConfig(); err != nil {
		return -1
	}
	if err := c.Store.RestoreGroup(groupID); err != nil {
		return -1
	}
	return 0
}

func (c *CallContext) mbReadBool(read func(uint8, uint16) (bool, modbus.Error), args []value.Value) (value.Value, error) {
	if !c.takeRequestSlot() {
		return value.FromBool(false), nil
	}
	slave, addr := uint8(args[0].AsFloat64()), uint16(args[1].AsFloat64())
	result, err := read(slave, addr)
	c.LastModbusError = err
	if err != modbus.OK {
		return value.FromBool(false), nil
	}
	return value.FromBool(result), nil
}

func (c *CallContext) mbReadWord(read func(uint8, uint16) (uint16, modbus.Error), args []value.Value) (value.Value, error) {
	if !c.takeRequestSlot() {
		return value.FromInt(0), nil
	}
	slave, addr := uint8(args[0].AsFloat64()), uint16(args[1].AsFloat64())
	result, err := read(slave, addr)
	c.LastModbusError = err
	if err != modbus.OK {
		return value.FromInt(0), nil
	}
	return value.FromInt(int16(result)), nil
}

func (c *CallContext) mbWrite(write func(uint8, uint16) modbus.Error, args []value.Value) (value.Value, error) {
	if !c.takeRequestSlot() {
		return value.FromBool(false), nil
	}
	slave, addr := uint8(args[0].AsFloat64()), uint16(args[1].AsFloat64())
	err := write(slave, addr)
	c.LastModbusError = err
	return value.FromBool(err == modbus.OK), nil
}
