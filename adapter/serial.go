package adapter

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/mklimuk/i2cscan"
)

const DefaultBaudRate = 115200

// Probe firmware line protocol: the host sends `PROBE XX` (XX = two hex
// digits of the 7-bit address), the device answers with a single line:
// `ACK`, `NAK` or `ERR <reason>`.
const (
	probeCommand  = "PROBE"
	probeReplyAck = "ACK"
	probeReplyNak = "NAK"
)

var _ i2cscan.Bus = &SerialBridge{}

// SerialBridge delegates presence probes to a microcontroller attached over
// a serial port and running the probe firmware.
type SerialBridge struct {
	mx     sync.Mutex
	port   serial.Port
	reader *bufio.Reader
}

func NewSerialBridge(portName string, baudRate int) (*SerialBridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("%w: could not open serial port %s: %s", i2cscan.ErrHardwareInit, portName, err)
	}
	err = port.SetReadTimeout(time.Second)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: could not set read timeout on %s: %s", i2cscan.ErrHardwareInit, portName, err)
	}
	return newSerialBridge(port), nil
}

func newSerialBridge(port serial.Port) *SerialBridge {
	return &SerialBridge{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

func (b *SerialBridge) Probe(ctx context.Context, addr i2cscan.Addr) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := fmt.Fprintf(b.port, "%s %02X\r\n", probeCommand, byte(addr))
	if err != nil {
		return false, fmt.Errorf("%w: could not send probe of %s: %s", i2cscan.ErrBusFault, addr, err)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("%w: no reply to probe of %s: %s", i2cscan.ErrBusFault, addr, err)
	}
	switch reply := strings.TrimSpace(line); {
	case reply == probeReplyAck:
		return true, nil
	case reply == probeReplyNak:
		return false, nil
	default:
		return false, fmt.Errorf("%w: probe of %s answered %q", i2cscan.ErrBusFault, addr, reply)
	}
}

func (b *SerialBridge) Close() error {
	return b.port.Close()
}
