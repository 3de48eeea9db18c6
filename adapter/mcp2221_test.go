package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cscan"
	"github.com/mklimuk/i2cscan/cmd/i2cscan/console"
)

// fakeHID plays back a scripted sequence of 64-byte responses, one per
// request, and records everything the adapter writes.
type fakeHID struct {
	writes    [][]byte
	responses [][]byte
	reads     int
}

func (f *fakeHID) Write(b []byte) (int, error) {
	req := make([]byte, len(b))
	copy(req, b)
	f.writes = append(f.writes, req)
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	if f.reads >= len(f.responses) {
		return 0, fmt.Errorf("unexpected read %d, only %d responses scripted", f.reads, len(f.responses))
	}
	copy(b, f.responses[f.reads])
	f.reads++
	return len(b), nil
}

func (f *fakeHID) Close() error { return nil }

func newTestMCP2221(responses ...[]byte) (*MCP2221, *fakeHID) {
	dev := &fakeHID{responses: responses}
	d := NewMCP2221()
	d.dev = dev
	d.responseWait = time.Millisecond
	return d, dev
}

func response(mutate func([]byte)) []byte {
	buf := make([]byte, 64)
	if mutate != nil {
		mutate(buf)
	}
	return buf
}

func TestProbe_Acknowledged(t *testing.T) {
	d, dev := newTestMCP2221(
		response(nil),                                  // write transfer accepted
		response(func(b []byte) { b[8] = engineIdle }), // engine back to idle
	)

	ack, err := d.Probe(context.Background(), 0x3C)

	assert.NoError(t, err)
	assert.True(t, ack)
	require.Len(t, dev.writes, 2)
	assert.Equal(t, cmdI2CWriteData, dev.writes[0][0])
	assert.Equal(t, byte(0x3C<<1), dev.writes[0][3])
	assert.Equal(t, cmdStatusSetParams, dev.writes[1][0])
}

func TestProbe_AddressNack(t *testing.T) {
	d, dev := newTestMCP2221(
		response(nil),
		response(func(b []byte) { b[8] = engineAddressNack }),
		response(nil), // cancel transfer reply
	)

	ack, err := d.Probe(context.Background(), 0x21)

	assert.NoError(t, err)
	assert.False(t, ack)
	require.Len(t, dev.writes, 3)
	assert.Equal(t, cmdStatusSetParams, dev.writes[2][0])
	assert.Equal(t, subCmdCancelTransfer, dev.writes[2][2])
}

func TestProbe_EngineBusy(t *testing.T) {
	d, _ := newTestMCP2221(
		response(func(b []byte) { b[1] = 0x01 }),
		response(nil), // cancel transfer reply
	)

	ack, err := d.Probe(context.Background(), 0x21)

	assert.False(t, ack)
	assert.ErrorIs(t, err, i2cscan.ErrBusBusy)
	assert.ErrorIs(t, err, i2cscan.ErrBusFault, "busy is a transport fault like any other")
}

func TestProbe_UnexpectedEngineState(t *testing.T) {
	d, _ := newTestMCP2221(
		response(nil),
		response(func(b []byte) { b[8] = 0x62 }),
		response(nil), // cancel transfer reply
	)

	ack, err := d.Probe(context.Background(), 0x21)

	assert.False(t, ack)
	assert.ErrorIs(t, err, i2cscan.ErrBusFault)
	assert.ErrorContains(t, err, "engine state")
}

func TestProbe_NotInitialized(t *testing.T) {
	d := NewMCP2221()

	_, err := d.Probe(context.Background(), 0x21)

	assert.ErrorIs(t, err, i2cscan.ErrHardwareInit)
}

func TestStatusParsing(t *testing.T) {
	d, _ := newTestMCP2221(response(func(b []byte) {
		b[8] = engineAddressNack
		b[9], b[10] = 0x10, 0x00  // requested size 16
		b[11], b[12] = 0x08, 0x00 // transferred size 8
		b[13] = 3
		b[14] = 0x78
		b[15] = 0x0A
		b[16], b[17] = 0x42, 0x00
		b[25] = 1
	}))

	status, err := d.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int(engineAddressNack), status.I2CEngineState)
	assert.Equal(t, uint16(16), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(8), status.LastWriteSentSize)
	assert.Equal(t, 3, status.I2CDataBufferCounter)
	assert.Equal(t, 0x78, status.I2CSpeedDivider)
	assert.Equal(t, 0x0A, status.I2CTimeout)
	assert.Equal(t, "4200", status.CurrentAddress)
	assert.Equal(t, 1, status.ReadPending)
}

func TestProbe_VerboseDumpsTraffic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	d, _ := newTestMCP2221(
		response(nil),
		response(func(b []byte) { b[8] = engineIdle }),
	)
	ctx := console.SetVerbose(context.Background(), true)
	ack, err := d.Probe(ctx, 0x3C)

	assert.NoError(t, err)
	assert.True(t, ack)
	assert.Contains(t, buf.String(), "sending message to adapter")
	assert.Contains(t, buf.String(), "read message from adapter")

	buf.Reset()
	d, _ = newTestMCP2221(
		response(nil),
		response(func(b []byte) { b[8] = engineIdle }),
	)
	_, err = d.Probe(context.Background(), 0x3C)

	assert.NoError(t, err)
	assert.NotContains(t, buf.String(), "sending message to adapter")
}
