package transport

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"

	"modbussim/internal/modbus"
	"modbussim/internal/utils"
)

// RTUConfig describes the serial line an RTU transport listens on.
type RTUConfig struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

func (c RTUConfig) toSerialParams() utils.SerialParams {
	return utils.SerialParams{
		Address:  c.Device,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
	}
}

// RTU serves the PDU dispatcher over a Modbus RTU serial line: unit id +
// PDU + CRC16-Modbus, little-endian, with a fully deterministic frame
// length per function code — every function code handled here has a
// payload length implied by its own fields, so frame boundaries are found
// with io.ReadFull against that byte count rather than inter-frame
// silence timing.
type RTU struct {
	cfg    RTUConfig
	disp   *modbus.Dispatcher
	logger *logrus.Logger
}

// NewRTU constructs an RTU transport bound to a dispatcher.
func NewRTU(cfg RTUConfig, disp *modbus.Dispatcher, logger *logrus.Logger) *RTU {
	return &RTU{cfg: cfg, disp: disp, logger: logger}
}

// Run opens the serial device and serves frames until ctx is canceled.
func (r *RTU) Run(ctx context.Context) error {
	port, err := utils.OpenSerial(r.cfg.toSerialParams())
	if err != nil {
		return err
	}
	r.logger.WithField("device", r.cfg.Device).Info("rtu transport listening")

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.serve(port)
	}()

	<-ctx.Done()
	port.Close()
	<-done
	return nil
}

// serve reads and answers RTU frames from rw until a read fails (which, on
// shutdown, is Run closing the port out from under it).
func (r *RTU) serve(rw io.ReadWriteCloser) {
	for {
		head := make([]byte, 2)
		if _, err := io.ReadFull(rw, head); err != nil {
			return
		}
		unitID, fn := head[0], head[1]

		var reqBody []byte
		switch fn {
		case modbus.FuncReadCoils, modbus.FuncReadDiscreteInputs,
			modbus.FuncReadHoldingRegisters, modbus.FuncReadInputRegisters,
			modbus.FuncWriteSingleCoil, modbus.FuncWriteSingleRegister:
			rest := make([]byte, 6) // 4 bytes of payload + 2 bytes CRC
			if _, err := io.ReadFull(rw, rest); err != nil {
				return
			}
			reqBody = rest
		case modbus.FuncWriteMultipleCoils, modbus.FuncWriteMultipleRegs:
			hdr := make([]byte, 5) // start(2) + quantity(2) + byte count(1)
			if _, err := io.ReadFull(rw, hdr); err != nil {
				return
			}
			byteCount := int(hdr[4])
			rest := make([]byte, byteCount+2) // payload + CRC
			if _, err := io.ReadFull(rw, rest); err != nil {
				return
			}
			reqBody = append(hdr, rest...)
		default:
			// Unknown function code: we cannot know its frame length, so the
			// line is lost until the next resync. A physical bus would
			// recover via the silent interval; a point-to-point loopback
			// cannot, so this connection ends.
			return
		}

		crcGiven := binary.LittleEndian.Uint16(reqBody[len(reqBody)-2:])
		pdu := append([]byte{fn}, reqBody[:len(reqBody)-2]...)
		frame := append([]byte{unitID}, pdu...)
		if crc16Modbus(frame) != crcGiven {
			continue
		}

		if unitID != r.disp.UnitID && unitID != 0 {
			continue
		}

		respPDU := r.disp.Dispatch(pdu)
		if unitID == 0 {
			// Broadcast: the write is applied, but RTU slaves never reply.
			continue
		}

		out := append([]byte{unitID}, respPDU...)
		tail := make([]byte, 2)
		binary.LittleEndian.PutUint16(tail, crc16Modbus(out))
		out = append(out, tail...)
		if _, err := rw.Write(out); err != nil {
			return
		}
	}
}

func crc16Modbus(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
