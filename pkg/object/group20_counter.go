package object

import "encoding/binary"

func init() {
	Register(20, 1, func() Object { return &Counter32{} })
	Register(21, 1, func() Object { return &FrozenCounter32{} })
	Register(22, 1, func() Object { return &CounterEvent32{} })
	Register(23, 1, func() Object { return &FrozenCounterEvent32{} })
}

// Counter32 is Group 20 Variation 1: 32-bit binary counter with flag.
type Counter32 struct {
	Flags Flags
	Value uint32
}

func (o *Counter32) Group() byte     { return 20 }
func (o *Counter32) Variation() byte { return 1 }
func (o *Counter32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, o.Value)
}
func (o *Counter32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = binary.LittleEndian.Uint32(buf[1:5])
	return buf[5:], nil
}

// FrozenCounter32 is Group 21 Variation 1.
type FrozenCounter32 struct {
	Flags Flags
	Value uint32
}

func (o *FrozenCounter32) Group() byte     { return 21 }
func (o *FrozenCounter32) Variation() byte { return 1 }
func (o *FrozenCounter32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, o.Value)
}
func (o *FrozenCounter32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = binary.LittleEndian.Uint32(buf[1:5])
	return buf[5:], nil
}

// CounterEvent32 is Group 22 Variation 1.
type CounterEvent32 struct {
	Flags Flags
	Value uint32
}

func (o *CounterEvent32) Group() byte     { return 22 }
func (o *CounterEvent32) Variation() byte { return 1 }
func (o *CounterEvent32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, o.Value)
}
func (o *CounterEvent32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = binary.LittleEndian.Uint32(buf[1:5])
	return buf[5:], nil
}

// FrozenCounterEvent32 is Group 23 Variation 1.
type FrozenCounterEvent32 struct {
	Flags Flags
	Value uint32
}

func (o *FrozenCounterEvent32) Group() byte     { return 23 }
func (o *FrozenCounterEvent32) Variation() byte { return 1 }
func (o *FrozenCounterEvent32) Encode(buf []byte) []byte {
	buf = append(buf, byte(o.Flags))
	return putU32(buf, o.Value)
}
func (o *FrozenCounterEvent32) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return buf, ErrShortBuffer
	}
	o.Flags = Flags(buf[0])
	o.Value = binary.LittleEndian.Uint32(buf[1:5])
	return buf[5:], nil
}
