// Package link implements the DNP3 data link layer: frame encode/decode,
// the header and per-block CRC-16, and the primary/secondary RESET/CONFIRM
// state machine of §4.B.
//
// Grounded on the teacher's pkg/sdo package for its state-field-plus-rxXxx
// handler idiom (see endpoint.go), generalized here to link-layer framing
// instead of CANopen SDO segmented transfer.
package link

import (
	"encoding/binary"
	"fmt"

	dnp3 "github.com/kjheidel/godnp3"
)

const (
	startByte0 = 0x05
	startByte1 = 0x64

	headerLen   = 10 // start(2) + len(1) + ctrl(1) + dest(2) + src(2) + crc(2)
	maxBodyLen  = 16
	maxUserData = 250 // LEN max (255) minus the 5 non-user-data bytes
)

// FunctionCode is the link-layer control function field (4 bits), per §3/§6.1.
type FunctionCode byte

const (
	FuncResetLinkStates    FunctionCode = 0x00
	FuncTestLinkStates     FunctionCode = 0x02
	FuncConfirmedUserData  FunctionCode = 0x03
	FuncUnconfirmedUserData FunctionCode = 0x04
	FuncRequestLinkStatus  FunctionCode = 0x09
	FuncAck                FunctionCode = 0x00
	FuncNack               FunctionCode = 0x01
	FuncLinkStatus         FunctionCode = 0x0B
	FuncNotSupported       FunctionCode = 0x0F
)

// Control is the one-byte link control field.
type Control struct {
	Dir      bool // true = frame sent from the originating (master) station
	Prm      bool // true = primary-station message
	FCB      bool
	FCV      bool
	Function FunctionCode
}

func (c Control) encode() byte {
	var b byte
	if c.Dir {
		b |= 0x80
	}
	if c.Prm {
		b |= 0x40
	}
	if c.FCB {
		b |= 0x20
	}
	if c.FCV {
		b |= 0x10
	}
	b |= byte(c.Function) & 0x0F
	return b
}

func decodeControl(b byte) Control {
	return Control{
		Dir:      b&0x80 != 0,
		Prm:      b&0x40 != 0,
		FCB:      b&0x20 != 0,
		FCV:      b&0x10 != 0,
		Function: FunctionCode(b & 0x0F),
	}
}

// Frame is a fully parsed link-layer frame, per §3's data model.
type Frame struct {
	Control     Control
	Destination uint16
	Source      uint16
	UserData    []byte // unblocked; Encode/Decode handle 16-byte blocking
}

// Encode serializes f into wire bytes, blocking UserData into ≤16-byte
// chunks each followed by its own CRC-16, per §6.1.
func Encode(f Frame) ([]byte, error) {
	if len(f.UserData) > maxUserData {
		return nil, fmt.Errorf("link: user data length %d exceeds max %d", len(f.UserData), maxUserData)
	}
	length := 5 + len(f.UserData)

	header := make([]byte, 8, headerLen)
	header[0] = startByte0
	header[1] = startByte1
	header[2] = byte(length)
	header[3] = f.Control.encode()
	binary.LittleEndian.PutUint16(header[4:6], f.Destination)
	binary.LittleEndian.PutUint16(header[6:8], f.Source)

	out := dnp3.AppendCRC16(nil, header)

	remaining := f.UserData
	for len(remaining) > 0 {
		n := maxBodyLen
		if n > len(remaining) {
			n = len(remaining)
		}
		out = dnp3.AppendCRC16(out, remaining[:n])
		remaining = remaining[n:]
	}
	return out, nil
}

// Decode parses exactly one frame from buf, returning the frame and the
// number of bytes consumed. A corrupted header or body CRC returns
// dnp3.ErrChecksum; a malformed start/length returns dnp3.ErrFrameFormat.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < headerLen {
		return Frame{}, 0, dnp3.ErrBadLength
	}
	if buf[0] != startByte0 || buf[1] != startByte1 {
		return Frame{}, 0, dnp3.ErrFrameFormat
	}
	length := int(buf[2])
	if length < 5 {
		return Frame{}, 0, dnp3.ErrFrameFormat
	}
	if !dnp3.VerifyCRC16(buf[0:10]) {
		return Frame{}, 0, dnp3.ErrChecksum
	}

	f := Frame{
		Control:     decodeControl(buf[3]),
		Destination: binary.LittleEndian.Uint16(buf[4:6]),
		Source:      binary.LittleEndian.Uint16(buf[6:8]),
	}

	userDataLen := length - 5
	pos := headerLen
	remaining := userDataLen
	for remaining > 0 {
		n := maxBodyLen
		if n > remaining {
			n = remaining
		}
		block := pos + n + 2
		if len(buf) < block {
			return Frame{}, 0, dnp3.ErrBadLength
		}
		if !dnp3.VerifyCRC16(buf[pos:block]) {
			return Frame{}, 0, dnp3.ErrChecksum
		}
		f.UserData = append(f.UserData, buf[pos:pos+n]...)
		pos = block
		remaining -= n
	}
	return f, pos, nil
}
