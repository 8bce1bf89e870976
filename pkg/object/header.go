package object

import "fmt"

// Qualifier identifies how a Header's range/prefix bytes are encoded, per
// the DNP3 qualifier code table (IEEE 1815 Table 4-19, the low nibble only
// covers the prefix code / range code actually used by this catalogue).
type Qualifier byte

const (
	Qualifier8BitStartStop  Qualifier = 0x00
	Qualifier16BitStartStop Qualifier = 0x01
	Qualifier32BitStartStop Qualifier = 0x02
	QualifierAllObjects     Qualifier = 0x06
	Qualifier8BitIndexPrefixed  Qualifier = 0x17
	Qualifier16BitIndexPrefixed Qualifier = 0x28
	Qualifier8BitCount          Qualifier = 0x07
	Qualifier16BitCount         Qualifier = 0x08
	QualifierFreeFormat         Qualifier = 0x5B
)

// Header is a parsed object header: the group/variation pair plus the
// qualifier-specific addressing that follows it.
type Header struct {
	Group     byte
	Variation byte
	Qualifier Qualifier
	// Start/Stop are valid for range qualifiers; Count is valid for
	// count/index-prefixed/free-format qualifiers.
	Start, Stop uint32
	Count       uint32
	// Indices is not filled by ParseHeader: for index-prefixed qualifiers
	// the per-object index prefixes stay in the returned remainder for the
	// caller to read.
	Indices []uint32
}

// EncodeHeader appends group/variation plus an 8-bit start-stop range
// qualifier header — the common case used by master READ requests and
// outstation static-data responses.
func EncodeHeader(buf []byte, group, variation byte, start, stop uint32) []byte {
	buf = append(buf, group, variation, byte(Qualifier8BitStartStop))
	buf = append(buf, byte(start), byte(stop))
	return buf
}

// EncodeHeader16 is the 16-bit range-qualifier variant, used when indices
// exceed 255.
func EncodeHeader16(buf []byte, group, variation byte, start, stop uint32) []byte {
	buf = append(buf, group, variation, byte(Qualifier16BitStartStop))
	buf = putU16(buf, uint16(start))
	buf = putU16(buf, uint16(stop))
	return buf
}

// EncodeAllObjects appends a header requesting all instances of group/variation
// (used by class scans and integrity polls: "class 0 all objects").
func EncodeAllObjects(buf []byte, group, variation byte) []byte {
	return append(buf, group, variation, byte(QualifierAllObjects))
}

// EncodeIndexPrefixed appends an 8-bit index-prefixed header (group,
// variation, qualifier 0x17, one-byte count); the caller then appends each
// object preceded by its one-byte index (used by SELECT/OPERATE/
// DIRECT_OPERATE command headers).
func EncodeIndexPrefixed(buf []byte, group, variation byte, count int) []byte {
	return append(buf, group, variation, byte(Qualifier8BitIndexPrefixed), byte(count))
}

// ParseHeader decodes one object header from buf, returning the remainder.
func ParseHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < 3 {
		return Header{}, buf, ErrShortBuffer
	}
	h := Header{Group: buf[0], Variation: buf[1], Qualifier: Qualifier(buf[2])}
	rest := buf[3:]

	switch h.Qualifier {
	case Qualifier8BitStartStop:
		if len(rest) < 2 {
			return h, rest, ErrShortBuffer
		}
		h.Start, h.Stop = uint32(rest[0]), uint32(rest[1])
		rest = rest[2:]
		h.Count = h.Stop - h.Start + 1

	case Qualifier16BitStartStop:
		var start, stop uint16
		var err error
		start, rest, err = getU16(rest)
		if err != nil {
			return h, rest, err
		}
		stop, rest, err = getU16(rest)
		if err != nil {
			return h, rest, err
		}
		h.Start, h.Stop = uint32(start), uint32(stop)
		h.Count = h.Stop - h.Start + 1

	case Qualifier32BitStartStop:
		var start, stop uint32
		var err error
		start, rest, err = getU32(rest)
		if err != nil {
			return h, rest, err
		}
		stop, rest, err = getU32(rest)
		if err != nil {
			return h, rest, err
		}
		h.Start, h.Stop = start, stop
		h.Count = h.Stop - h.Start + 1

	case QualifierAllObjects:
		// no range bytes

	case Qualifier8BitCount:
		if len(rest) < 1 {
			return h, rest, ErrShortBuffer
		}
		h.Count = uint32(rest[0])
		rest = rest[1:]

	case Qualifier16BitCount:
		var count uint16
		var err error
		count, rest, err = getU16(rest)
		if err != nil {
			return h, rest, err
		}
		h.Count = uint32(count)

	case Qualifier8BitIndexPrefixed:
		if len(rest) < 1 {
			return h, rest, ErrShortBuffer
		}
		h.Count = uint32(rest[0])
		rest = rest[1:]

	case Qualifier16BitIndexPrefixed:
		var count uint16
		var err error
		count, rest, err = getU16(rest)
		if err != nil {
			return h, rest, err
		}
		h.Count = uint32(count)

	case QualifierFreeFormat:
		if len(rest) < 1 {
			return h, rest, ErrShortBuffer
		}
		h.Count = uint32(rest[0])
		rest = rest[1:]

	default:
		return h, rest, fmt.Errorf("object: unsupported qualifier 0x%02x", byte(h.Qualifier))
	}
	return h, rest, nil
}

// IsIndexPrefixed reports whether this header's qualifier carries an
// explicit per-object index rather than an implicit range.
func (h Header) IsIndexPrefixed() bool {
	return h.Qualifier == Qualifier8BitIndexPrefixed || h.Qualifier == Qualifier16BitIndexPrefixed
}

// IndexPrefixWidth returns the byte width of the index prefix preceding
// each object for index-prefixed qualifiers (0 otherwise).
func (h Header) IndexPrefixWidth() int {
	switch h.Qualifier {
	case Qualifier8BitIndexPrefixed:
		return 1
	case Qualifier16BitIndexPrefixed:
		return 2
	default:
		return 0
	}
}
