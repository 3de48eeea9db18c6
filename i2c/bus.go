package i2c

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"syscall"

	"github.com/mklimuk/i2cscan"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ i2cscan.Bus = &GenericBus{}

// Pins are addressed by their GPIO number; supported hosts stay below 256.
const maxGPIOPin = 255

// I2C fast mode plus and high speed mode top out at 3.4MHz.
const (
	minBusFrequency = physic.KiloHertz
	maxBusFrequency = 3400 * physic.KiloHertz
)

// EREMOTEIO is what i2c-dev reports on an address non-ack on some kernels.
// The constant is linux-only in the syscall package, so it is spelled out.
const errnoRemoteIO = syscall.Errno(0x79)

type Config struct {
	Device    string
	SCL       int
	SDA       int
	Frequency physic.Frequency
}

func (c Config) validate() error {
	if c.SCL < 0 || c.SCL > maxGPIOPin {
		return fmt.Errorf("%w: clock pin %d out of range", i2cscan.ErrHardwareInit, c.SCL)
	}
	if c.SDA < 0 || c.SDA > maxGPIOPin {
		return fmt.Errorf("%w: data pin %d out of range", i2cscan.ErrHardwareInit, c.SDA)
	}
	if c.SCL == c.SDA {
		return fmt.Errorf("%w: clock and data on the same pin %d", i2cscan.ErrHardwareInit, c.SCL)
	}
	if c.Frequency < minBusFrequency || c.Frequency > maxBusFrequency {
		return fmt.Errorf("%w: bus frequency %s out of range", i2cscan.ErrHardwareInit, c.Frequency)
	}
	return nil
}

// GenericBus drives a kernel-exposed I2C bus (/dev/i2c-N) through periph.io.
type GenericBus struct {
	bus i2c.Bus
}

func NewGenericBus(config Config) (*GenericBus, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("%w: could not init host: %s", i2cscan.ErrHardwareInit, err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	for _, pin := range []int{config.SCL, config.SDA} {
		if gpioreg.ByName(strconv.Itoa(pin)) == nil {
			return nil, fmt.Errorf("%w: pin %d is not present on this host", i2cscan.ErrHardwareInit, pin)
		}
	}
	bus, err := i2creg.Open(config.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open i2c bus: %s", i2cscan.ErrHardwareInit, err)
	}
	err = bus.SetSpeed(config.Frequency)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("%w: could not set bus frequency %s: %s", i2cscan.ErrHardwareInit, config.Frequency, err)
	}
	return &GenericBus{bus: bus}, nil
}

// Probe issues a single one-byte read transaction. The kernel driver
// reports an address non-ack through a dedicated errno family; anything
// else is treated as a transport fault.
func (b *GenericBus) Probe(ctx context.Context, addr i2cscan.Addr) (bool, error) {
	var scratch [1]byte
	err := b.bus.Tx(uint16(addr), nil, scratch[:])
	if err == nil {
		return true, nil
	}
	if isNack(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: transaction with %s failed: %s", i2cscan.ErrBusFault, addr, err)
}

func (b *GenericBus) Close() error {
	if closer, ok := b.bus.(i2c.BusCloser); ok {
		return closer.Close()
	}
	return nil
}

func isNack(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.ENXIO || errno == syscall.ENODEV || errno == errnoRemoteIO
}
