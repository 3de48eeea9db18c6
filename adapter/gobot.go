package adapter

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/i2cscan"
)

var _ i2cscan.Prober = &GobotBus{}

// EREMOTEIO, reported by some kernels on an address non-ack. The constant
// is linux-only in the syscall package, so it is spelled out.
const errnoRemoteIO = syscall.Errno(0x79)

// GobotBus probes the bus through any gobot i2c.Connector (nanopi, raspi,
// beaglebone adaptors). Each probe spins up a throwaway generic driver on
// the target address and attempts a one-byte read.
type GobotBus struct {
	connector gi2c.Connector
	bus       int
}

func NewGobotBus(connector gi2c.Connector, bus int) *GobotBus {
	if bus < 0 {
		bus = connector.DefaultI2cBus()
	}
	return &GobotBus{connector: connector, bus: bus}
}

func (b *GobotBus) Probe(ctx context.Context, addr i2cscan.Addr) (bool, error) {
	driver := gi2c.NewGenericDriver(b.connector, "probe", int(addr), func(c gi2c.Config) {
		c.SetBus(b.bus)
	})
	err := driver.Start()
	if err != nil {
		return false, fmt.Errorf("%w: could not connect to %s: %s", i2cscan.ErrBusFault, addr, err)
	}
	defer func() { _ = driver.Halt() }()
	scratch := make([]byte, 1)
	err = driver.Read(scratch)
	if err == nil {
		return true, nil
	}
	if isAddressNack(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: read from %s failed: %s", i2cscan.ErrBusFault, addr, err)
}

// isAddressNack reports whether the kernel rejected the address byte, as
// opposed to a transport-level failure. Same errno family the kernel
// i2c-dev driver uses.
func isAddressNack(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.ENXIO || errno == syscall.ENODEV || errno == errnoRemoteIO
}
