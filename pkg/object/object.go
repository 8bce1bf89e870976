// Package object implements the DNP3 Group/Variation object catalogue: the
// fixed set of static and event data types defined by IEEE 1815, their
// little-endian wire encodings, and the object-header qualifiers used to
// address them within an application fragment.
//
// Grounded on the teacher's pkg/od package: the same split between a generic
// "variable" wire representation (od.Variable/encoding.go) and named
// constructors per semantic type is reused here, one file per DNP3 group.
package object

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrShortBuffer  = errors.New("object: buffer too short")
	ErrUnknownGroup = errors.New("object: unknown group/variation")
)

// Object is implemented by every concrete Group/Variation payload type in
// the catalogue.
type Object interface {
	Group() byte
	Variation() byte
	// Encode appends the wire representation of the object (without any
	// object header) to buf and returns the extended slice.
	Encode(buf []byte) []byte
	// Decode reads exactly one object's worth of bytes from buf, returning
	// the remainder.
	Decode(buf []byte) ([]byte, error)
}

// Factory creates a zero-valued instance for a given group/variation, used
// by the header parser to decode a stream of objects.
type Factory func() Object

var catalogue = map[[2]byte]Factory{}

// Register adds a constructor to the catalogue. Called from each group's
// init().
func Register(group, variation byte, f Factory) {
	catalogue[[2]byte{group, variation}] = f
}

// New looks up and instantiates the object type for group/variation.
func New(group, variation byte) (Object, error) {
	f, ok := catalogue[[2]byte{group, variation}]
	if !ok {
		return nil, fmt.Errorf("%w: g%dv%d", ErrUnknownGroup, group, variation)
	}
	return f(), nil
}

// --- little-endian primitive helpers -------------------------------------

func putU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func getU16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, buf, ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(buf), buf[2:], nil
}

func getU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, buf, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(buf), buf[4:], nil
}

// --- 48-bit DNP timestamp --------------------------------------------------

// EncodeTime48 appends t as a little-endian 48-bit count of milliseconds
// since the Unix epoch.
func EncodeTime48(buf []byte, t time.Time) []byte {
	ms := uint64(t.UnixMilli())
	var tmp [6]byte
	for i := 0; i < 6; i++ {
		tmp[i] = byte(ms >> (8 * i))
	}
	return append(buf, tmp[:]...)
}

// DecodeTime48 reads a 48-bit little-endian millisecond timestamp.
func DecodeTime48(buf []byte) (time.Time, []byte, error) {
	if len(buf) < 6 {
		return time.Time{}, buf, ErrShortBuffer
	}
	var ms uint64
	for i := 0; i < 6; i++ {
		ms |= uint64(buf[i]) << (8 * i)
	}
	return time.UnixMilli(int64(ms)).UTC(), buf[6:], nil
}

// Flags is the one-byte quality/online flag field carried by most
// "with flags" variations.
type Flags byte

const (
	FlagOnline         Flags = 0x01
	FlagRestart        Flags = 0x02
	FlagCommLost       Flags = 0x04
	FlagRemoteForced   Flags = 0x08
	FlagLocalForced    Flags = 0x10
	FlagChatterFilter  Flags = 0x20 // binary inputs
	FlagRollover       Flags = 0x20 // counters
	FlagOverRange      Flags = 0x20 // analog inputs
	FlagReferenceErr   Flags = 0x40 // analog inputs
	FlagState          Flags = 0x80 // binary: current value
	FlagDiscontinuity  Flags = 0x40 // analog/counter
)
