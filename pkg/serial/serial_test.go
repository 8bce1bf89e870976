package serial

import (
	"io"
	"testing"

	bugst "go.bug.st/serial"
	"github.com/stretchr/testify/assert"
)

func TestDefaultSettingsFillsSaneDefaults(t *testing.T) {
	s := DefaultSettings("/dev/ttyUSB0", 9600)
	assert.Equal(t, "/dev/ttyUSB0", s.Device)
	assert.Equal(t, 9600, s.BaudRate)
	assert.Equal(t, 8, s.DataBits)
	assert.Equal(t, bugst.OneStopBit, s.StopBits)
	assert.Equal(t, bugst.NoParity, s.Parity)
}

func TestModeMapsSettingsOntoBugstMode(t *testing.T) {
	s := Settings{Device: "/dev/ttyS0", BaudRate: 19200, DataBits: 7, StopBits: bugst.TwoStopBits, Parity: bugst.EvenParity}
	m := mode(s)
	assert.Equal(t, 19200, m.BaudRate)
	assert.Equal(t, 7, m.DataBits)
	assert.Equal(t, bugst.TwoStopBits, m.StopBits)
	assert.Equal(t, bugst.EvenParity, m.Parity)
}

func TestTransmitBeforePrepareReturnsClosedPipe(t *testing.T) {
	h := NewHandler(DefaultSettings("/dev/ttyUSB0", 9600))
	err := h.Transmit([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestShutdownBeforePrepareIsANoOp(t *testing.T) {
	h := NewHandler(DefaultSettings("/dev/ttyUSB0", 9600))
	assert.NoError(t, h.Shutdown())
}
