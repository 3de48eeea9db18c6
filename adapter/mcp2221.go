package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/i2cscan"
	"github.com/mklimuk/i2cscan/cmd/i2cscan/console"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID command codes (MCP2221 datasheet, section 3.1)
const (
	cmdStatusSetParams byte = 0x10
	cmdI2CWriteData    byte = 0x90
)

// Sub-command of 0x10 cancelling the current I2C transfer.
const subCmdCancelTransfer byte = 0x10

// Internal I2C engine state machine values reported in status byte 8.
const (
	engineIdle        byte = 0x00
	engineAddressNack byte = 0x25
)

var _ i2cscan.Bus = &MCP2221{}

type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 probes the bus through a Microchip MCP2221 USB-to-I2C bridge.
// All exchanges are 64-byte HID reports against a single opened device.
type MCP2221 struct {
	mx           sync.Mutex
	dev          hidDevice
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CEngineState         int
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	LastWriteRequestedSize uint16
	LastWriteSentSize      uint16
	ReadPending            int
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}
}

// Init locates the bridge on the USB bus and opens it. The device stays
// open until Close.
func (d *MCP2221) Init() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return fmt.Errorf("%w: MCP2221 device not found", i2cscan.ErrHardwareInit)
	}
	if len(devs) > 1 {
		return fmt.Errorf("%w: ambiguous device identification (%d candidates)", i2cscan.ErrHardwareInit, len(devs))
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("%w: error opening device: %s", i2cscan.ErrHardwareInit, err)
	}
	d.dev = dev
	return nil
}

// Probe issues a zero-length write transfer to the address and inspects the
// I2C engine state afterwards. An address NACK leaves the engine in a
// dedicated state which is cleared by cancelling the transfer.
func (d *MCP2221) Probe(ctx context.Context, addr i2cscan.Addr) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return false, fmt.Errorf("%w: adapter not initialized", i2cscan.ErrHardwareInit)
	}
	d.resetBuffers()
	d.request[0] = cmdI2CWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], 0)
	d.request[3] = byte(addr) << 1
	err := d.send(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: probe of %s failed: %s", i2cscan.ErrBusFault, addr, err)
	}
	if d.response[1] == 0x01 {
		// engine did not accept the transfer, clear it before giving up
		_ = d.cancelTransfer(ctx)
		return false, i2cscan.ErrBusBusy
	}
	state, err := d.engineState(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: status poll after probe of %s failed: %s", i2cscan.ErrBusFault, addr, err)
	}
	switch state {
	case engineIdle:
		return true, nil
	case engineAddressNack:
		_ = d.cancelTransfer(ctx)
		return false, nil
	default:
		_ = d.cancelTransfer(ctx)
		return false, fmt.Errorf("%w: engine state %#x after probe of %s", i2cscan.ErrBusFault, state, addr)
	}
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Release cancels any pending transfer, forcing the engine back to idle.
func (d *MCP2221) Release(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.cancelTransfer(ctx)
	if err != nil {
		return nil, err
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *MCP2221) engineState(ctx context.Context) (byte, error) {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	err := d.send(ctx)
	if err != nil {
		return 0, err
	}
	return d.response[8], nil
}

func (d *MCP2221) cancelTransfer(ctx context.Context) error {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[2] = subCmdCancelTransfer
	return d.send(ctx)
}

func (d *MCP2221) send(ctx context.Context) error {
	verbose := console.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "request", hex.Dump(d.request))
	}
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	timer := time.NewTimer(d.responseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "response", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8:  Internal I2C state machine value
		9:  Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11: Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12: Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13: Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16: Lower byte (16-bit value) of the I2C address being used
		17: Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CEngineState:       int(buffer[8]),
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}
