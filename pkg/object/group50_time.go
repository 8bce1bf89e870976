package object

import (
	"encoding/binary"
	"time"
)

func init() {
	Register(50, 1, func() Object { return &TimeAndDate{} })
	Register(51, 1, func() Object { return &TimeAndDateCTO{} })
	Register(52, 2, func() Object { return &TimeDelayFine{} })
}

// TimeAndDate is Group 50 Variation 1, the object carried by the master's
// WRITE used to set the outstation clock during time synchronization.
type TimeAndDate struct {
	Time time.Time
}

func (o *TimeAndDate) Group() byte     { return 50 }
func (o *TimeAndDate) Variation() byte { return 1 }
func (o *TimeAndDate) Encode(buf []byte) []byte {
	return EncodeTime48(buf, o.Time)
}
func (o *TimeAndDate) Decode(buf []byte) ([]byte, error) {
	var err error
	o.Time, buf, err = DecodeTime48(buf)
	return buf, err
}

// TimeAndDateCTO is Group 51 Variation 1: common time of occurrence,
// prefixed to a block of relative-time events.
type TimeAndDateCTO struct {
	Time time.Time
}

func (o *TimeAndDateCTO) Group() byte     { return 51 }
func (o *TimeAndDateCTO) Variation() byte { return 1 }
func (o *TimeAndDateCTO) Encode(buf []byte) []byte {
	return EncodeTime48(buf, o.Time)
}
func (o *TimeAndDateCTO) Decode(buf []byte) ([]byte, error) {
	var err error
	o.Time, buf, err = DecodeTime48(buf)
	return buf, err
}

// TimeDelayFine is Group 52 Variation 2: a millisecond delay reported by
// the outstation, its internal processing time in a DELAY_MEAS response or
// its restart delay in a COLD/WARM_RESTART response.
type TimeDelayFine struct {
	DelayMs uint16
}

func (o *TimeDelayFine) Group() byte     { return 52 }
func (o *TimeDelayFine) Variation() byte { return 2 }
func (o *TimeDelayFine) Encode(buf []byte) []byte {
	return putU16(buf, o.DelayMs)
}
func (o *TimeDelayFine) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 2 {
		return buf, ErrShortBuffer
	}
	o.DelayMs = binary.LittleEndian.Uint16(buf[:2])
	return buf[2:], nil
}

// EncodeClassHeader appends a "class N, all objects" header (Group 60,
// Variation classNum+1) as used by integrity polls and event/class scans.
// classNum 0 requests static data; 1..3 request the corresponding event
// class.
func EncodeClassHeader(buf []byte, classNum int) []byte {
	return EncodeAllObjects(buf, 60, byte(classNum+1))
}
