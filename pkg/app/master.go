package app

import log "github.com/sirupsen/logrus"

// SchedulerHooks lets the application layer demand scheduler action in
// response to IIN bits, without the master session holding a reference
// back into the scheduler (avoiding the back-pointer cycle per §9).
type SchedulerHooks interface {
	DemandClearRestartAndIntegrity()
	DemandIntegrity()
	DemandTimeSync()
	DemandEventScan()
}

// NopSchedulerHooks implements SchedulerHooks as a no-op, useful in tests.
type NopSchedulerHooks struct{}

func (NopSchedulerHooks) DemandClearRestartAndIntegrity() {}
func (NopSchedulerHooks) DemandIntegrity()                {}
func (NopSchedulerHooks) DemandTimeSync()                 {}
func (NopSchedulerHooks) DemandEventScan()                {}

// MasterConfig holds the subset of §6.3's MasterConfig that the application
// layer itself consults.
type MasterConfig struct {
	MaxTxFragmentSize           int
	IgnoreRestartIIN            bool
	IntegrityOnEventOverflowIIN bool
	EventScanOnEventsAvailable  byte // class 1/2/3 bitmask, 0 disables
}

func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		MaxTxFragmentSize:           2048,
		IntegrityOnEventOverflowIIN: true,
		EventScanOnEventsAvailable:  0x07,
	}
}

// MasterSession tracks the master-role application-layer state for one
// outstation session: outgoing SEQ and the currently outstanding solicited
// request.
type MasterSession struct {
	Config MasterConfig
	Hooks  SchedulerHooks

	seq            byte
	hasOutstanding bool
	outstandingSeq byte
}

// NewMasterSession creates a session with the given config; hooks may be
// nil, in which case IIN bits are observed but no scheduler action taken.
func NewMasterSession(cfg MasterConfig, hooks SchedulerHooks) *MasterSession {
	if hooks == nil {
		hooks = NopSchedulerHooks{}
	}
	return &MasterSession{Config: cfg, Hooks: hooks}
}

// BuildRequest constructs the next outgoing request, consuming one SEQ
// value and remembering it as the outstanding solicited sequence. objects
// must already be encoded and must fit within Config.MaxTxFragmentSize (the
// scheduler's task is responsible for fragmenting function codes that
// support multi-fragment requests; §4.D only requires the codec to respect
// the configured bound for a single fragment).
func (m *MasterSession) BuildRequest(fc FunctionCode, objects []byte, confirm bool) (Request, error) {
	if len(objects)+2 > m.Config.MaxTxFragmentSize {
		return Request{}, ErrFragmentTooLarge
	}
	seq := m.seq
	m.seq = (m.seq + 1) & 0x0F
	m.hasOutstanding = true
	m.outstandingSeq = seq
	return Request{
		Control: Control{FIR: true, FIN: true, CON: confirm, SEQ: seq},
		Func:    fc,
		Objects: objects,
	}, nil
}

// ProcessOutcome reports what the master should do with a received
// response fragment.
type ProcessOutcome struct {
	Accept      bool
	Unsolicited bool
	NeedConfirm bool
}

// ProcessResponse validates and classifies a received response per §4.D.
// A solicited response whose SEQ doesn't match the outstanding request is
// logged and dropped (Accept=false); the task eventually times out.
func (m *MasterSession) ProcessResponse(resp Response) ProcessOutcome {
	if !resp.Func.IsResponseLike() {
		return ProcessOutcome{}
	}
	if resp.Func == FuncUnsolicitedResponse {
		m.handleIIN(resp.IIN)
		return ProcessOutcome{Accept: true, Unsolicited: true, NeedConfirm: resp.Control.CON}
	}

	if !m.hasOutstanding || resp.Control.SEQ != m.outstandingSeq {
		log.WithFields(log.Fields{
			"gotSeq":  resp.Control.SEQ,
			"wantSeq": m.outstandingSeq,
		}).Debug("app(master): dropping response with unexpected sequence number")
		return ProcessOutcome{}
	}
	m.handleIIN(resp.IIN)
	return ProcessOutcome{Accept: true, NeedConfirm: resp.Control.CON}
}

// CompleteOutstanding marks the currently outstanding request as resolved
// (success, timeout, or error), freeing the session to build a new request.
func (m *MasterSession) CompleteOutstanding() {
	m.hasOutstanding = false
}

func (m *MasterSession) handleIIN(iin IIN) {
	if iin.Has(IINDeviceRestart) && !m.Config.IgnoreRestartIIN {
		m.Hooks.DemandClearRestartAndIntegrity()
	}
	if iin.Has(IINEventBufferOverflow) && m.Config.IntegrityOnEventOverflowIIN {
		m.Hooks.DemandIntegrity()
	}
	if iin.Has(IINNeedTime) {
		m.Hooks.DemandTimeSync()
	}
	if m.Config.EventScanOnEventsAvailable != 0 {
		if iin&ClassEventMask(m.Config.EventScanOnEventsAvailable) != 0 {
			m.Hooks.DemandEventScan()
		}
	}
}

// BuildConfirm constructs the CONFIRM fragment for a response that set
// CON, matching the solicited/unsolicited category and SEQ of the response
// being confirmed.
func BuildConfirm(unsolicited bool, seq byte) Request {
	return Request{
		Control: Control{FIR: true, FIN: true, UNS: unsolicited, SEQ: seq},
		Func:    FuncConfirm,
	}
}
