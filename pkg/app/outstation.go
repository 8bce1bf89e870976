package app

import (
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	log "github.com/sirupsen/logrus"
)

// OutstationConfig holds the subset of §6.3's OutstationConfig that the
// application layer consults directly.
type OutstationConfig struct {
	MaxTxFragmentSize int
	SelectTimeout     time.Duration
}

func DefaultOutstationConfig() OutstationConfig {
	return OutstationConfig{MaxTxFragmentSize: 2048, SelectTimeout: 10 * time.Second}
}

// SelectRecord is the state captured by a SELECT, checked against the
// following OPERATE per §4.D.
type SelectRecord struct {
	valid      bool
	seqExpected byte
	selectTime time.Time
	crc        uint16
	length     int
}

// OutstationSession tracks the outstation-role application-layer state for
// one master session: the unsolicited SEQ counter (solicited responses
// echo the request's SEQ), the last built response (for retry-safe
// retransmission), and the select/operate buffer.
type OutstationSession struct {
	Config OutstationConfig

	unsolicitedSeq byte

	lastSolicitedSeq  byte
	lastSolicitedFunc FunctionCode
	lastSolicitedResp []byte
	haveLastSolicited bool

	selectBuf SelectRecord
}

func NewOutstationSession(cfg OutstationConfig) *OutstationSession {
	return &OutstationSession{Config: cfg}
}

// CheckDuplicate implements the retry-safety contract: if req repeats the
// previous solicited request's SEQ and function code, the previously built
// response should be retransmitted verbatim rather than re-executed.
func (o *OutstationSession) CheckDuplicate(req Request) (resp []byte, isDuplicate bool) {
	if !o.haveLastSolicited || req.Control.UNS {
		return nil, false
	}
	if req.Control.SEQ == o.lastSolicitedSeq && req.Func == o.lastSolicitedFunc {
		log.WithField("seq", req.Control.SEQ).Debug("app(outstation): retransmitting cached response for duplicate request")
		return o.lastSolicitedResp, true
	}
	return nil, false
}

// RecordSolicitedResponse remembers the built response for potential
// duplicate-request retransmission, and advances the solicited SEQ to the
// value carried by the request that produced it.
func (o *OutstationSession) RecordSolicitedResponse(req Request, encoded []byte) {
	o.lastSolicitedSeq = req.Control.SEQ
	o.lastSolicitedFunc = req.Func
	o.lastSolicitedResp = encoded
	o.haveLastSolicited = true
}

// BuildResponse stamps a solicited response fragment with the SEQ of the
// request it answers. Per §4.D the master validates a solicited response by
// comparing its SEQ against the request that is currently outstanding, so
// the response must echo that SEQ rather than advance an independent
// outstation-side counter.
func (o *OutstationSession) BuildResponse(fc FunctionCode, reqSeq byte, iin IIN, objects []byte, fir, fin, con bool) Response {
	return Response{
		Control: Control{FIR: fir, FIN: fin, CON: con, SEQ: reqSeq},
		Func:    fc,
		IIN:     iin,
		Objects: objects,
	}
}

// BuildUnsolicitedResponse stamps a response fragment with the next
// unsolicited SEQ, independent of the solicited counter.
func (o *OutstationSession) BuildUnsolicitedResponse(iin IIN, objects []byte, fin bool) Response {
	r := Response{
		Control: Control{FIR: true, FIN: fin, CON: true, UNS: true, SEQ: o.unsolicitedSeq},
		Func:    FuncUnsolicitedResponse,
		IIN:     iin,
		Objects: objects,
	}
	if fin {
		o.unsolicitedSeq = (o.unsolicitedSeq + 1) & 0x0F
	}
	return r
}

// Select records a SELECT operation's parameters for later validation by
// Operate.
func (o *OutstationSession) Select(seq byte, now time.Time, objects []byte) {
	o.selectBuf = SelectRecord{
		valid:       true,
		seqExpected: (seq + 1) & 0x0F,
		selectTime:  now,
		crc:         dnp3.CalcCRC16(objects),
		length:      len(objects),
	}
}

// Operate validates an OPERATE request's SEQ/timing/content against the
// prior SELECT, per §4.D. On any mismatch it returns the outstation
// CommandStatus-equivalent reason via err, and the select buffer is cleared
// either way (a SELECT is consumed by exactly one OPERATE attempt).
func (o *OutstationSession) Operate(seq byte, now time.Time, objects []byte) error {
	sel := o.selectBuf
	o.selectBuf = SelectRecord{}

	if !sel.valid {
		return ErrNoSelect
	}
	if seq != sel.seqExpected {
		return ErrNoSelect
	}
	if now.Sub(sel.selectTime) > o.Config.SelectTimeout {
		return ErrSelectTimeout
	}
	if len(objects) != sel.length || dnp3.CalcCRC16(objects) != sel.crc {
		return ErrSelectMismatch
	}
	return nil
}
