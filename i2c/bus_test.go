package i2c

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/i2cscan"
)

// fakeBus implements periph's i2c.Bus, answering every Tx with a canned
// error and recording the probed address.
type fakeBus struct {
	err   error
	addrs []uint16
}

func (b *fakeBus) String() string { return "fake" }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.addrs = append(b.addrs, addr)
	return b.err
}

func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }

func TestConfigValidate(t *testing.T) {
	valid := Config{Device: "/dev/i2c-1", SCL: 22, SDA: 21, Frequency: 100 * physic.KiloHertz}
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "negative clock pin",
			mutate: func(c *Config) { c.SCL = -1 },
			errMsg: "clock pin",
		},
		{
			name:   "clock pin too high",
			mutate: func(c *Config) { c.SCL = 300 },
			errMsg: "clock pin",
		},
		{
			name:   "negative data pin",
			mutate: func(c *Config) { c.SDA = -4 },
			errMsg: "data pin",
		},
		{
			name:   "clock and data collide",
			mutate: func(c *Config) { c.SDA = c.SCL },
			errMsg: "same pin",
		},
		{
			name:   "frequency zero",
			mutate: func(c *Config) { c.Frequency = 0 },
			errMsg: "frequency",
		},
		{
			name:   "frequency above high speed mode",
			mutate: func(c *Config) { c.Frequency = 5 * physic.MegaHertz },
			errMsg: "frequency",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.validate()
			assert.ErrorIs(t, err, i2cscan.ErrHardwareInit)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
	assert.NoError(t, valid.validate())
}

func TestNewGenericBus_InvalidConfigHasNoSideEffects(t *testing.T) {
	bus, err := NewGenericBus(Config{Device: "/dev/i2c-1", SCL: -1, SDA: 21, Frequency: 100 * physic.KiloHertz})
	assert.Nil(t, bus)
	assert.ErrorIs(t, err, i2cscan.ErrHardwareInit)
}

func TestProbe_Classification(t *testing.T) {
	tests := []struct {
		name  string
		txErr error
		ack   bool
		fault bool
	}{
		{
			name: "device acknowledges",
			ack:  true,
		},
		{
			name:  "address nack via ENXIO",
			txErr: syscall.ENXIO,
		},
		{
			name:  "address nack via ENODEV",
			txErr: syscall.ENODEV,
		},
		{
			name:  "address nack via EREMOTEIO",
			txErr: errnoRemoteIO,
		},
		{
			name:  "wrapped errno is still a nack",
			txErr: fmt.Errorf("i2c transaction: %w", syscall.ENXIO),
		},
		{
			name:  "anything else is a transport fault",
			txErr: errors.New("arbitration lost"),
			fault: true,
		},
		{
			name:  "timeout is a transport fault",
			txErr: syscall.ETIMEDOUT,
			fault: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &GenericBus{bus: &fakeBus{err: tt.txErr}}
			ack, err := bus.Probe(context.Background(), 0x3C)
			assert.Equal(t, tt.ack, ack)
			if tt.fault {
				assert.ErrorIs(t, err, i2cscan.ErrBusFault)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProbe_TargetsRequestedAddress(t *testing.T) {
	fake := &fakeBus{}
	bus := &GenericBus{bus: fake}

	_, err := bus.Probe(context.Background(), 0x68)

	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x68}, fake.addrs)
}
