// Package transport implements the DNP3 transport function: splitting an
// application fragment into ≤249-byte segments for transmission and
// reassembling a received segment stream back into one fragment, per §4.C.
//
// Grounded on the teacher's internal/fifo-backed accumulator pattern used
// throughout pkg/sdo's segmented/block transfer reassembly.
package transport

import (
	"errors"

	"github.com/kjheidel/godnp3/internal/fifo"
)

const MaxSegmentPayload = 249

var (
	ErrNotExpectingFIR  = errors.New("transport: received non-FIR segment while expecting FIR")
	ErrSequenceMismatch = errors.New("transport: segment sequence number mismatch")
)

// header is the one-byte FIR/FIN/SEQ transport prefix.
type header struct {
	FIR bool
	FIN bool
	SEQ byte // 6 bits
}

func decodeHeader(b byte) header {
	return header{FIR: b&0x80 != 0, FIN: b&0x40 != 0, SEQ: b & 0x3F}
}

func (h header) encode() byte {
	var b byte
	if h.FIR {
		b |= 0x80
	}
	if h.FIN {
		b |= 0x40
	}
	b |= h.SEQ & 0x3F
	return b
}

// Segment splits apdu into transport segments of at most
// MaxSegmentPayload bytes each, the first carrying FIR and the last FIN,
// with SEQ incrementing (mod 64) across the run. A single short APDU
// produces one segment with both FIR and FIN set.
func Segment(apdu []byte, startSeq byte) [][]byte {
	if len(apdu) == 0 {
		h := header{FIR: true, FIN: true, SEQ: startSeq & 0x3F}
		return [][]byte{{h.encode()}}
	}
	var segments [][]byte
	seq := startSeq & 0x3F
	for offset := 0; offset < len(apdu); offset += MaxSegmentPayload {
		end := offset + MaxSegmentPayload
		if end > len(apdu) {
			end = len(apdu)
		}
		h := header{FIR: offset == 0, FIN: end == len(apdu), SEQ: seq}
		seg := make([]byte, 0, 1+(end-offset))
		seg = append(seg, h.encode())
		seg = append(seg, apdu[offset:end]...)
		segments = append(segments, seg)
		seq = (seq + 1) & 0x3F
	}
	return segments
}

// Reassembler accumulates received segments into complete APDUs, per the
// reassembly rules of §4.C: a non-FIR segment received while expecting a
// FIR is discarded (the caller should bump a DiscardedSegments-style
// counter); a sequence-number gap aborts the in-progress APDU and resets to
// expecting FIR.
type Reassembler struct {
	expectingFIR bool
	nextSeq      byte
	buf          *fifo.Fifo
}

// NewReassembler creates a Reassembler with the given internal byte
// capacity, which should be at least the largest application fragment the
// caller expects to reassemble.
func NewReassembler(capacity int) *Reassembler {
	return &Reassembler{expectingFIR: true, buf: fifo.New(capacity)}
}

// Accept feeds one received segment into the reassembler. It returns the
// completed APDU (and done=true) when a FIN segment is accepted; otherwise
// it returns done=false and, if the segment was rejected, a non-nil error
// describing why (the reassembler itself already recovered: a rejected
// segment always leaves the state machine ready for the next FIR).
func (r *Reassembler) Accept(segment []byte) (apdu []byte, done bool, err error) {
	if len(segment) == 0 {
		return nil, false, ErrNotExpectingFIR
	}
	h := decodeHeader(segment[0])
	payload := segment[1:]

	if h.FIR {
		r.buf.Reset()
		r.expectingFIR = false
		r.nextSeq = (h.SEQ + 1) & 0x3F
		r.buf.Write(payload)
		if h.FIN {
			out := r.drain()
			r.expectingFIR = true
			return out, true, nil
		}
		return nil, false, nil
	}

	if r.expectingFIR {
		return nil, false, ErrNotExpectingFIR
	}

	if h.SEQ != r.nextSeq {
		r.buf.Reset()
		r.expectingFIR = true
		return nil, false, ErrSequenceMismatch
	}
	r.nextSeq = (h.SEQ + 1) & 0x3F
	r.buf.Write(payload)

	if h.FIN {
		out := r.drain()
		r.expectingFIR = true
		return out, true, nil
	}
	return nil, false, nil
}

func (r *Reassembler) drain() []byte {
	out := make([]byte, r.buf.Occupied())
	r.buf.Read(out)
	return out
}

// Reset forces the reassembler back to expecting a FIR segment, discarding
// any partial accumulation (used on link-layer reset or channel teardown).
func (r *Reassembler) Reset() {
	r.buf.Reset()
	r.expectingFIR = true
}
