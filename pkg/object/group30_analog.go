package object

import (
	"encoding/binary"
	"math"
)

func init() {
	Register(30, 1, func() Object { return &AnalogInput32{} })
	Register(32, 1, func() Object { return &AnalogInputEvent32{} })
	Register(32, 3, func() Object { return &AnalogInputEvent32{WithTime: true} })
	Register(40, 1, func() Object { return &AnalogOutputStatus32{} })
	Register(41, 1, func() Object { return &AnalogOutputCommand32{} })
}

// AnalogInput32 is Group 30 Variation 1: 32-bit analog input with flag.
type AnalogInput32 struct {
	Flags Flags
	Value int32
}

func (o *AnalogInput32) Group() byte     { return 30 }
func (o *AnalogInput32) Variation() byte { return 1 }
func (o *AnalogInput32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, uint32(o.Value))
}
func (o *AnalogInput32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = int32(binary.LittleEndian.Uint32(buf[1:5]))
	return buf[5:], nil
}

// AnalogInputEvent32 is Group 32 Variation 1 (no time) or 3 (absolute time).
type AnalogInputEvent32 struct {
	Flags    Flags
	Value    int32
	Time     int64 // ms since epoch; only meaningful when WithTime
	WithTime bool
}

func (o *AnalogInputEvent32) Group() byte { return 32 }
func (o *AnalogInputEvent32) Variation() byte {
	if o.WithTime {
		return 3
	}
	return 1
}
func (o *AnalogInputEvent32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	buf = putU32(buf, uint32(o.Value))
	if o.WithTime {
		var tmp [6]byte
		ms := uint64(o.Time)
		for i := 0; i < 6; i++ {
			tmp[i] = byte(ms >> (8 * i))
		}
		buf = append(buf, tmp[:]...)
	}
	return buf
}
func (o *AnalogInputEvent32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = int32(binary.LittleEndian.Uint32(buf[1:5]))
	buf = buf[5:]
	if o.WithTime {
		if len(buf) < 6 {
			return buf, ErrShortBuffer
		}
		var ms uint64
		for i := 0; i < 6; i++ {
			ms |= uint64(buf[i]) << (8 * i)
		}
		o.Time = int64(ms)
		buf = buf[6:]
	}
	return buf, nil
}

// AnalogOutputStatus32 is Group 40 Variation 1.
type AnalogOutputStatus32 struct {
	Flags Flags
	Value int32
}

func (o *AnalogOutputStatus32) Group() byte     { return 40 }
func (o *AnalogOutputStatus32) Variation() byte { return 1 }
func (o *AnalogOutputStatus32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, uint32(o.Value))
}
func (o *AnalogOutputStatus32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = int32(binary.LittleEndian.Uint32(buf[1:5]))
	return buf[5:], nil
}

// AnalogOutputCommand32 is Group 41 Variation 1: the analog-output command
// object carried by SELECT/OPERATE/DIRECT_OPERATE for AO points.
type AnalogOutputCommand32 struct {
	Value  int32
	Status CommandStatus
}

func (o *AnalogOutputCommand32) Group() byte     { return 41 }
func (o *AnalogOutputCommand32) Variation() byte { return 1 }
func (o *AnalogOutputCommand32) Encode(buf []byte) []byte {
	buf = putU32(buf, uint32(o.Value))
	return append(buf, byte(o.Status))
}
func (o *AnalogOutputCommand32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Value = int32(binary.LittleEndian.Uint32(buf[0:4]))
	o.Status = CommandStatus(buf[4])
	return buf[5:], nil
}

// float32FromBits/ToBits are kept for Group 30/32 variations 5/7 (IEEE-754
// single precision analogs); no codec in this package calls them and no
// float variation is registered in the default catalogue, since the
// integrity-poll scenarios in §8 only exercise
// the 32-bit integer variations.
func float32FromBits(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
func float32ToBits(buf []byte, v float32) []byte {
	return putU32(buf, math.Float32bits(v))
}
