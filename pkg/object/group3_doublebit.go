package object

import "time"

func init() {
	Register(3, 2, func() Object { return &DoubleBitBinaryInput{} })
	Register(4, 1, func() Object { return &DoubleBitBinaryInputEvent{} })
	Register(4, 2, func() Object { return &DoubleBitBinaryInputEvent{WithTime: true} })
}

// DoubleBitState is the two-bit state field carried in bits 6-7 of a
// double-bit binary flags byte.
type DoubleBitState byte

const (
	DoubleBitIntermediate DoubleBitState = 0
	DoubleBitOff          DoubleBitState = 1
	DoubleBitOn           DoubleBitState = 2
	DoubleBitIndeterminate DoubleBitState = 3
)

// doubleBitState reads the double-bit value out of a flags byte.
func doubleBitState(f Flags) DoubleBitState { return DoubleBitState((f >> 6) & 0x03) }

func withDoubleBitState(f Flags, s DoubleBitState) Flags {
	return (f &^ 0xC0) | Flags(s<<6)
}

// DoubleBitBinaryInput is Group 3 Variation 2: double-bit binary input with
// flags, the four-state counterpart of Group 1's single-bit input.
type DoubleBitBinaryInput struct {
	Flags Flags
}

func (o *DoubleBitBinaryInput) Group() byte     { return 3 }
func (o *DoubleBitBinaryInput) Variation() byte { return 2 }
func (o *DoubleBitBinaryInput) Encode(buf []byte) []byte {
	return append(buf, byte(o.Flags))
}
func (o *DoubleBitBinaryInput) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	return buf[1:], nil
}

// State reports the double-bit value carried in the flags byte.
func (o *DoubleBitBinaryInput) State() DoubleBitState { return doubleBitState(o.Flags) }

// SetState stamps the double-bit value into the flags byte, leaving the
// remaining quality bits untouched.
func (o *DoubleBitBinaryInput) SetState(s DoubleBitState) { o.Flags = withDoubleBitState(o.Flags, s) }

// DoubleBitBinaryInputEvent is Group 4 Variation 1 (no time) or 2 (absolute
// time).
type DoubleBitBinaryInputEvent struct {
	Flags    Flags
	Time     time.Time
	WithTime bool
}

func (o *DoubleBitBinaryInputEvent) Group() byte { return 4 }
func (o *DoubleBitBinaryInputEvent) Variation() byte {
	if o.WithTime {
		return 2
	}
	return 1
}
func (o *DoubleBitBinaryInputEvent) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	if o.WithTime {
		buf = EncodeTime48(buf, o.Time)
	}
	return buf
}
func (o *DoubleBitBinaryInputEvent) Decode(buf []byte) ([]byte, error) {
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

// State reports the double-bit value carried in the flags byte.
func (o *DoubleBitBinaryInputEvent) State() DoubleBitState { return doubleBitState(o.Flags) }
