package i2cscan

import (
	"context"
	"fmt"
)

var ErrHardwareInit = fmt.Errorf("bus hardware initialization failed")
var ErrBusFault = fmt.Errorf("bus transport fault")
var ErrBusBusy = fmt.Errorf("%w: I2C engine is busy (command not completed)", ErrBusFault)

// Addr is a 7-bit I2C device address. It does not encompass the R/W bit.
type Addr byte

const (
	AddrMin Addr = 0x00
	AddrMax Addr = 0x7F
)

func (a Addr) String() string {
	return fmt.Sprintf("0x%02X", byte(a))
}

// Prober issues a minimal presence probe (start condition, address byte,
// ack bit, stop condition) against a single address.
//
// A non-acknowledged probe is the expected negative outcome and returns
// (false, nil). An error is returned only on a transport-level fault
// (bus stuck, arbitration lost, adapter failure) and wraps ErrBusFault.
type Prober interface {
	Probe(ctx context.Context, addr Addr) (bool, error)
}

type Bus interface {
	Prober
	Close() error
}
