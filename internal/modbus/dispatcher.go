// Package modbus implements the PDU dispatcher (C4): parsing a Modbus
// request PDU, validating it against Modbus quantity/address rules, and
// executing it against a register store, producing either a response PDU
// or an exception PDU. The dispatcher is transport-agnostic and stateless
// per request — the store is the only state.
package modbus

import (
	"encoding/binary"

	"modbussim/internal/store"
)

// Function codes supported by the dispatcher.
const (
	FuncReadCoils            byte = 0x01
	FuncReadDiscreteInputs   byte = 0x02
	FuncReadHoldingRegisters byte = 0x03
	FuncReadInputRegisters   byte = 0x04
	FuncWriteSingleCoil      byte = 0x05
	FuncWriteSingleRegister  byte = 0x06
	FuncWriteMultipleCoils   byte = 0x0F
	FuncWriteMultipleRegs    byte = 0x10
)

// Exception codes returned in exception PDUs.
const (
	ExIllegalFunction    byte = 0x01
	ExIllegalDataAddress byte = 0x02
	ExIllegalDataValue   byte = 0x03
	ExServerDeviceFailure byte = 0x04
	ExGatewayTargetFailed byte = 0x0B
)

const (
	maxBitReadQuantity    = 2000
	maxWordReadQuantity   = 125
	maxBitWriteQuantity   = 1968
	maxWordWriteQuantity  = 123
)

// Dispatcher maps Modbus PDUs to operations against a single device's
// register store.
type Dispatcher struct {
	Store  *store.Store
	UnitID byte
}

// NewDispatcher constructs a Dispatcher bound to a store and a unit
// identifier. Unit-id routing (silence on RTU mismatch, exception 0x0B on
// TCP mismatch, broadcast handling) is the transport's responsibility —
// Dispatch always processes the PDU it is given.
func NewDispatcher(s *store.Store, unitID byte) *Dispatcher {
	return &Dispatcher{Store: s, UnitID: unitID}
}

// Dispatch processes one request PDU (function code + payload, no unit id
// or framing) and returns a response PDU — a normal response, or an
// exception response (function code with the high bit set, plus one
// exception byte).
func (d *Dispatcher) Dispatch(pdu []byte) (resp []byte) {
	if len(pdu) == 0 {
		return exception(0, ExIllegalFunction)
	}
	fn := pdu[0]
	payload := pdu[1:]

	defer func() {
		if r := recover(); r != nil {
			resp = exception(fn, ExServerDeviceFailure)
		}
	}()

	switch fn {
	case FuncReadCoils:
		return d.dispatchReadBits(fn, store.Coils, payload)
	case FuncReadDiscreteInputs:
		return d.dispatchReadBits(fn, store.DiscreteInputs, payload)
	case FuncReadHoldingRegisters:
		return d.dispatchReadWords(fn, store.HoldingRegisters, payload)
	case FuncReadInputRegisters:
		return d.dispatchReadWords(fn, store.InputRegisters, payload)
	case FuncWriteSingleCoil:
		return d.dispatchWriteSingleCoil(payload)
	case FuncWriteSingleRegister:
		return d.dispatchWriteSingleRegister(payload)
	case FuncWriteMultipleCoils:
		return d.dispatchWriteMultipleCoils(payload)
	case FuncWriteMultipleRegs:
		return d.dispatchWriteMultipleRegisters(payload)
	default:
		return exception(fn, ExIllegalFunction)
	}
}

func (d *Dispatcher) dispatchReadBits(fn byte, table store.Table, payload []byte) []byte {
	if len(payload) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	if quantity == 0 || quantity > maxBitReadQuantity {
		return exception(fn, ExIllegalDataValue)
	}
	bits, err := d.Store.ReadBits(table, start, quantity)
	if err != nil {
		return exception(fn, ExIllegalDataAddress)
	}
	packed := packBits(bits)
	out := append([]byte{fn, byte(len(packed))}, packed...)
	return out
}

func (d *Dispatcher) dispatchReadWords(fn byte, table store.Table, payload []byte) []byte {
	if len(payload) != 4 {
		return exception(fn, ExIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	if quantity == 0 || quantity > maxWordReadQuantity {
		return exception(fn, ExIllegalDataValue)
	}
	words, err := d.Store.ReadWords(table, start, quantity)
	if err != nil {
		return exception(fn, ExIllegalDataAddress)
	}
	body := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(body[i*2:], w)
	}
	out := append([]byte{fn, byte(len(body))}, body...)
	return out
}

func (d *Dispatcher) dispatchWriteSingleCoil(payload []byte) []byte {
	if len(payload) != 4 {
		return exception(FuncWriteSingleCoil, ExIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(payload[0:2])
	value := binary.BigEndian.Uint16(payload[2:4])
	if value != 0x0000 && value != 0xFF00 {
		return exception(FuncWriteSingleCoil, ExIllegalDataValue)
	}
	if err := d.Store.WriteBit(store.Coils, addr, value == 0xFF00); err != nil {
		return exception(FuncWriteSingleCoil, errToException(err))
	}
	out := []byte{FuncWriteSingleCoil}
	out = append(out, payload[0:4]...)
	return out
}

func (d *Dispatcher) dispatchWriteSingleRegister(payload []byte) []byte {
	if len(payload) != 4 {
		return exception(FuncWriteSingleRegister, ExIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(payload[0:2])
	value := binary.BigEndian.Uint16(payload[2:4])
	if err := d.Store.WriteWord(store.HoldingRegisters, addr, value); err != nil {
		return exception(FuncWriteSingleRegister, errToException(err))
	}
	out := []byte{FuncWriteSingleRegister}
	out = append(out, payload[0:4]...)
	return out
}

func (d *Dispatcher) dispatchWriteMultipleCoils(payload []byte) []byte {
	if len(payload) < 5 {
		return exception(FuncWriteMultipleCoils, ExIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	byteCount := int(payload[4])
	if quantity == 0 || quantity > maxBitWriteQuantity {
		return exception(FuncWriteMultipleCoils, ExIllegalDataValue)
	}
	expected := (int(quantity) + 7) / 8
	if byteCount != expected || len(payload) != 5+byteCount {
		return exception(FuncWriteMultipleCoils, ExIllegalDataValue)
	}
	values := unpackBits(payload[5:], quantity)
	if err := d.Store.WriteBits(store.Coils, start, values); err != nil {
		return exception(FuncWriteMultipleCoils, errToException(err))
	}
	out := []byte{FuncWriteMultipleCoils}
	out = append(out, payload[0:4]...)
	return out
}

func (d *Dispatcher) dispatchWriteMultipleRegisters(payload []byte) []byte {
	if len(payload) < 5 {
		return exception(FuncWriteMultipleRegs, ExIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(payload[0:2])
	quantity := binary.BigEndian.Uint16(payload[2:4])
	byteCount := int(payload[4])
	if quantity == 0 || quantity > maxWordWriteQuantity {
		return exception(FuncWriteMultipleRegs, ExIllegalDataValue)
	}
	expected := int(quantity) * 2
	if byteCount != expected || len(payload) != 5+byteCount {
		return exception(FuncWriteMultipleRegs, ExIllegalDataValue)
	}
	values := make([]uint16, quantity)
	body := payload[5:]
	for i := range values {
		values[i] = binary.BigEndian.Uint16(body[i*2:])
	}
	if err := d.Store.WriteWords(store.HoldingRegisters, start, values); err != nil {
		return exception(FuncWriteMultipleRegs, errToException(err))
	}
	out := []byte{FuncWriteMultipleRegs}
	out = append(out, payload[0:4]...)
	return out
}

func errToException(err error) byte {
	switch err {
	case store.ErrNoSuchAddress:
		return ExIllegalDataAddress
	case store.ErrReadOnly:
		return ExIllegalDataAddress
	default:
		return ExServerDeviceFailure
	}
}

func exception(fn byte, code byte) []byte {
	return []byte{fn | 0x80, code}
}

// packBits packs a slice of bools into Modbus bit-table wire format:
// the first addressed bit is the LSB of the first byte.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackBits is the inverse of packBits, reading exactly count bits.
func unpackBits(data []byte, count uint16) []bool {
	out := make([]bool, count)
	for i := uint16(0); i < count; i++ {
		out[i] = (data[i/8]>>(i%8))&0x01 == 0x01
	}
	return out
}
