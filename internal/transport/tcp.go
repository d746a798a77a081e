// Package transport adapts the PDU dispatcher (internal/modbus) to the
// wire: MBAP-framed TCP and CRC16-framed RTU serial.
package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"modbussim/internal/modbus"
)

// TCP serves the PDU dispatcher over Modbus TCP (MBAP framing). One
// goroutine per accepted connection; each connection pipelines requests,
// reading and answering one MBAP frame at a time without waiting for the
// previous response to be acknowledged.
type TCP struct {
	bind   string
	disp   *modbus.Dispatcher
	logger *logrus.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewTCP constructs a TCP transport bound to a dispatcher.
func NewTCP(bind string, disp *modbus.Dispatcher, logger *logrus.Logger) *TCP {
	return &TCP{bind: bind, disp: disp, logger: logger}
}

// Run listens on Bind and serves connections until ctx is canceled.
func (t *TCP) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", t.bind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
	t.logger.WithField("bind", t.bind).Info("tcp transport listening")

	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		l.Close()
		close(done)
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-done:
				wg.Wait()
				return nil
			default:
				t.logger.WithField("error", err).Warn("tcp accept failed, continuing")
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handleConn(conn)
		}()
	}
}

// handleConn answers MBAP frames on conn until the client disconnects or a
// frame is malformed beyond recovery.
func (t *TCP) handleConn(conn net.Conn) {
	defer conn.Close()

	header := make([]byte, 7)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		transactionID := header[0:2]
		length := binary.BigEndian.Uint16(header[4:6])
		if length == 0 {
			continue
		}
		pduLen := int(length) - 1
		if pduLen <= 0 || pduLen > 253 {
			return
		}

		unitID := header[6]
		pdu := make([]byte, pduLen)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		response := t.respond(unitID, pdu)
		if response == nil {
			// Broadcast: the write was applied, but TCP clients never get a
			// reply for unit id 0, same as RTU.
			continue
		}

		out := make([]byte, 7, 7+len(response))
		copy(out[0:2], transactionID)
		binary.BigEndian.PutUint16(out[2:4], 0) // protocol id, always 0
		binary.BigEndian.PutUint16(out[4:6], uint16(len(response)+1))
		out[6] = unitID
		out = append(out, response...)

		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// respond applies the unit-id routing rule: a mismatched unit id on TCP
// is answered with exception 0x0B (gateway target device failed to
// respond); a broadcast (unit id 0) is dispatched so its write lands in
// the store, but respond returns nil since broadcasts are never
// answered.
func (t *TCP) respond(unitID byte, pdu []byte) []byte {
	if unitID != t.disp.UnitID && unitID != 0 {
		fn := byte(0)
		if len(pdu) > 0 {
			fn = pdu[0]
		}
		return []byte{fn | 0x80, modbus.ExGatewayTargetFailed}
	}
	resp := t.disp.Dispatch(pdu)
	if unitID == 0 {
		return nil
	}
	return resp
}
