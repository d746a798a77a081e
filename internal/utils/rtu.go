// Package utils holds small helpers shared by the transport layer.
package utils

import (
	"io"
	"time"

	"github.com/goburrow/serial"
)

// SerialParams configures a serial line for the RTU transport.
type SerialParams struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

func EnsureSerialDefaults(sp *SerialParams) {
	if sp.BaudRate == 0 {
		sp.BaudRate = 9600
	}
	if sp.DataBits == 0 {
		sp.DataBits = 8
	}
	if sp.StopBits == 0 {
		sp.StopBits = 1
	}
	if sp.Parity == "" {
		sp.Parity = "N"
	}
	if sp.Timeout <= 0 {
		sp.Timeout = 10 * time.Second
	}
}

// OpenSerial opens a serial device, filling in conventional Modbus RTU
// defaults (9600 8N1) for any zero-valued field.
func OpenSerial(sp SerialParams) (io.ReadWriteCloser, error) {
	EnsureSerialDefaults(&sp)
	sc := &serial.Config{
		Address:  sp.Address,
		BaudRate: sp.BaudRate,
		DataBits: sp.DataBits,
		StopBits: sp.StopBits,
		Parity:   sp.Parity,
		Timeout:  sp.Timeout,
	}
	return serial.Open(sc)
}
