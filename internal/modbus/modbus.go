// Package modbus declares the remote I/O collaborator interface consumed
// by the engine builtins (MB_READ_*/MB_WRITE_*). Modbus wire handling
// itself is out of scope for this core (see SPEC_FULL.md §1); the
// function shapes here are grounded in the original
// modbus_master.h collaborator API.
package modbus

import "github.com/pkg/errors"

// Error enumerates the Modbus result codes. The most recent one is kept in
// builtins.CallContext.LastModbusError; no built-in exposes it to ST
// programs.
type Error int

const (
	OK Error = iota
	Timeout
	CRC
	Exception
	NotEnabled
	MaxRequestsExceeded
)

func (e Error) String() string {
	switch e {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	case CRC:
		return "CRC"
	case Exception:
		return "EXCEPTION"
	case NotEnabled:
		return "NOT_ENABLED"
	case MaxRequestsExceeded:
		return "MAX_REQUESTS_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

func (e Error) Error() string { return e.String() }

// Master is the remote Modbus RTU master collaborator. slaveID is 1-247;
// address is a 16-bit register/coil address. Implementations block the
// caller for up to their own configured timeout per call.
type Master interface {
	ReadCoil(slaveID uint8, address uint16) (bool, Error)
	ReadInput(slaveID uint8, address uint16) (bool, Error)
	ReadHolding(slaveID uint8, address uint16) (uint16, Error)
	ReadInputRegister(slaveID uint8, address uint16) (uint16, Error)
	WriteCoil(slaveID uint8, address uint16, value bool) Error
	WriteHolding(slaveID uint8, address uint16, value uint16) Error
}

// disabledMaster is the out-of-scope stub: every call reports NotEnabled,
// the neutral-value contract §7 requires so a program that never tests
// the error code still behaves deterministically.
type disabledMaster struct{}

// NewDisabled returns a Master that rejects every call with NotEnabled.
// Used when the engine is constructed without a real Modbus transport.
func NewDisabled() Master { return disabledMaster{} }

func (disabledMaster) ReadCoil(uint8, uint16) (bool, Error)          { return false, NotEnabled }
func (disabledMaster) ReadInput(uint8, uint16) (bool, Error)         { return false, NotEnabled }
func (disabledMaster) ReadHolding(uint8, uint16) (uint16, Error)     { return 0, NotEnabled }
func (disabledMaster) ReadInputRegister(uint8, uint16) (uint16, Error) { return 0, NotEnabled }
func (disabledMaster) WriteCoil(uint8, uint16, bool) Error           { return NotEnabled }
func (disabledMaster) WriteHolding(uint8, uint16, uint16) Error      { return NotEnabled }

// WrapSlaveError wraps err with the slave/address that produced it, for
// logging at the engine boundary.
func WrapSlaveError(err error, slaveID uint8, address uint16) error {
	return errors.Wrapf(err, "modbus: slave=%d addr=%d", slaveID, address)
}
