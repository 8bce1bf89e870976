package object

import "time"

func init() {
	Register(1, 2, func() Object { return &BinaryInput{} })
	Register(2, 1, func() Object { return &BinaryInputEvent{} })
	Register(2, 2, func() Object { return &BinaryInputEvent{WithTime: true} })
	Register(10, 2, func() Object { return &BinaryOutputStatus{} })
	Register(11, 2, func() Object { return &BinaryOutputEvent{} })
	Register(12, 1, func() Object { return &CROB{} })
}

// BinaryInput is Group 1 Variation 2: binary input with flags.
type BinaryInput struct {
	Flags Flags
}

func (o *BinaryInput) Group() byte     { return 1 }
func (o *BinaryInput) Variation() byte { return 2 }
func (o *BinaryInput) Encode(buf []byte) []byte {
	return append(buf, byte(o.Flags))
}
func (o *BinaryInput) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	return buf[1:], nil
}

// Value reports the current binary state carried in the flags byte.
func (o *BinaryInput) Value() bool { return o.Flags&FlagState != 0 }

// BinaryInputEvent is Group 2 Variation 1 (no time) or 2 (absolute time).
type BinaryInputEvent struct {
	Flags    Flags
	Time     time.Time
	WithTime bool
}

func (o *BinaryInputEvent) Group() byte { return 2 }
func (o *BinaryInputEvent) Variation() byte {
	if o.WithTime {
		return 2
	}
	return 1
}
func (o *BinaryInputEvent) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	if o.WithTime {
		buf = EncodeTime48(buf, o.Time)
	}
	return buf
}
func (o *BinaryInputEvent) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	buf = buf[1:]
	if o.WithTime {
		var err error
		o.Time, buf, err = DecodeTime48(buf)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

// BinaryOutputStatus is Group 10 Variation 2.
type BinaryOutputStatus struct {
	Flags Flags
}

func (o *BinaryOutputStatus) Group() byte     { return 10 }
func (o *BinaryOutputStatus) Variation() byte { return 2 }
func (o *BinaryOutputStatus) Encode(buf []byte) []byte {
	return append(buf, byte(o.Flags))
}
func (o *BinaryOutputStatus) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	return buf[1:], nil
}

// BinaryOutputEvent is Group 11 Variation 2.
type BinaryOutputEvent struct {
	Flags Flags
}

func (o *BinaryOutputEvent) Group() byte     { return 11 }
func (o *BinaryOutputEvent) Variation() byte { return 2 }
func (o *BinaryOutputEvent) Encode(buf []byte) []byte {
	return append(buf, byte(o.Flags))
}
func (o *BinaryOutputEvent) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	return buf[1:], nil
}

// ControlCode enumerates the Group 12 control-code operation field.
type ControlCode byte

const (
	ControlNul       ControlCode = 0x00
	ControlPulseOn   ControlCode = 0x01
	ControlPulseOff  ControlCode = 0x02
	ControlLatchOn   ControlCode = 0x03
	ControlLatchOff  ControlCode = 0x04
)

// CommandStatus is the per-object command echo status (Group 12 Var 1's
// Status field, and the status byte of a command response echo).
type CommandStatus byte

const (
	CommandSuccess         CommandStatus = 0
	CommandTimeout         CommandStatus = 1
	CommandNoSelect        CommandStatus = 2
	CommandFormatError     CommandStatus = 3
	CommandNotSupported    CommandStatus = 4
	CommandAlreadyActive   CommandStatus = 5
	CommandHardwareError   CommandStatus = 6
	CommandLocal           CommandStatus = 7
	CommandTooManyOps      CommandStatus = 8
	CommandNotAuthorized   CommandStatus = 9
)

// CROB is Group 12 Variation 1: Control Relay Output Block.
type CROB struct {
	Code    ControlCode
	Count   byte
	OnTime  uint32
	OffTime uint32
	Status  CommandStatus
}

func (o *CROB) Group() byte     { return 12 }
func (o *CROB) Variation() byte { return 1 }
func (o *CROB) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Code), o.Count)
	buf = putU32(buf, o.OnTime)
	buf = putU32(buf, o.OffTime)
	buf = append(buf, byte(o.Status))
	return buf
}
func (o *CROB) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 11 {
		return buf, ErrShortBuffer
	}
	o.Code = ControlCode(buf[0])
	o.Count = buf[1]
	var err error
	o.OnTime, buf, err = getU32(buf[2:])
	if err != nil {
		return buf, err
	}
	o.OffTime, buf, err = getU32(buf)
	if err != nil {
		return buf, err
	}
	o.Status = CommandStatus(buf[0])
	return buf[1:], nil
}
