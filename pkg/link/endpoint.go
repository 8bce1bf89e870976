package link

import (
	dnp3 "github.com/kjheidel/godnp3"
	log "github.com/sirupsen/logrus"
)

// ResetState is the secondary station's link-confirm state, per §4.B.
type ResetState int

const (
	Unreset ResetState = iota
	Reset
)

// Listener receives link-layer events that are not simply "pass the user
// data up", per §4.B/§7. Grounded on the teacher's ILinkListener-equivalent
// callback-interface convention (pkg/sdo's streamer callbacks, generalized
// to link events here).
type Listener interface {
	OnUnknownDestination(dest uint16)
	OnKeepAliveInitiated()
	OnKeepAliveSuccess()
	OnKeepAliveFailure()
}

// NopListener is a Listener that does nothing, usable as a default.
type NopListener struct{}

func (NopListener) OnUnknownDestination(uint16) {}
func (NopListener) OnKeepAliveInitiated()        {}
func (NopListener) OnKeepAliveSuccess()          {}
func (NopListener) OnKeepAliveFailure()          {}

// Endpoint implements the link-layer FSM for one local address on a
// channel: it answers RESET_LINK_STATES/CONFIRMED_USER_DATA/
// UNCONFIRMED_USER_DATA/REQUEST_LINK_STATUS as a secondary station (the
// role an outstation always plays, and a master plays when deciding whether
// to accept unsolicited link frames), and also builds outgoing primary-
// station frames for local addresses that originate traffic (the role a
// master always plays, and an outstation plays for unsolicited responses).
type Endpoint struct {
	LocalAddr  uint16
	RemoteAddr uint16

	resetState ResetState
	nextFCB    bool // expected FCB on the next CONFIRMED_USER_DATA

	outFCB bool // FCB to set on our own next CONFIRMED_USER_DATA send

	Listener Listener
	Stats    *dnp3.Registry
}

// NewEndpoint creates an Endpoint addressed as local talking to remote.
func NewEndpoint(local, remote uint16, stats *dnp3.Registry) *Endpoint {
	if stats == nil {
		stats = dnp3.NewRegistry(false)
	}
	return &Endpoint{
		LocalAddr:  local,
		RemoteAddr: remote,
		resetState: Unreset,
		Listener:   NopListener{},
		Stats:      stats,
	}
}

// Result is what the caller should do after feeding a frame to OnFrame.
type Result struct {
	Reply    *Frame // non-nil if a reply frame must be sent back
	UserData []byte // non-nil if user data should be passed up to transport
}

// OnFrame processes one received frame addressed to this endpoint and
// returns the secondary-station response, per §4.B. Frames addressed to a
// different destination are the caller's responsibility to route
// elsewhere; OnFrame assumes f.Destination == e.LocalAddr has already been
// checked by the channel router (§4.I).
func (e *Endpoint) OnFrame(f Frame) Result {
	e.Stats.Get(dnp3.FramesReceived).Add(1)

	switch f.Control.Function {
	case FuncResetLinkStates:
		e.resetState = Reset
		e.nextFCB = true
		log.WithFields(log.Fields{"local": e.LocalAddr, "remote": e.RemoteAddr}).Debug("link: RESET_LINK_STATES, replying ACK")
		return Result{Reply: e.ack()}

	case FuncConfirmedUserData:
		if e.resetState == Reset && f.Control.FCB == e.nextFCB {
			e.nextFCB = !e.nextFCB
			e.Stats.Get(dnp3.ConfirmationsSent).Add(1)
			return Result{Reply: e.ack(), UserData: f.UserData}
		}
		log.WithField("remote", e.RemoteAddr).Debug("link: CONFIRMED_USER_DATA FCB mismatch, replying NACK")
		return Result{Reply: e.nack()}

	case FuncUnconfirmedUserData:
		return Result{UserData: f.UserData}

	case FuncRequestLinkStatus:
		return Result{Reply: e.linkStatus()}

	default:
		log.WithField("function", f.Control.Function).Debug("link: unsupported function code, replying NOT_SUPPORTED")
		return Result{Reply: e.notSupported()}
	}
}

func (e *Endpoint) ack() *Frame {
	return &Frame{
		Control:     Control{Dir: true, Prm: false, Function: FuncAck},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

func (e *Endpoint) nack() *Frame {
	return &Frame{
		Control:     Control{Dir: true, Prm: false, Function: FuncNack},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

func (e *Endpoint) linkStatus() *Frame {
	return &Frame{
		Control:     Control{Dir: true, Prm: false, Function: FuncLinkStatus},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

func (e *Endpoint) notSupported() *Frame {
	return &Frame{
		Control:     Control{Dir: true, Prm: false, Function: FuncNotSupported},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

// BuildReset creates the outgoing RESET_LINK_STATES frame a primary station
// sends to establish/re-establish link confirm state with its peer. The
// peer expects FCB=1 on the first confirmed frame after a reset, so the
// endpoint's own outgoing FCB is set accordingly.
func (e *Endpoint) BuildReset() Frame {
	e.outFCB = true
	return Frame{
		Control:     Control{Dir: true, Prm: true, Function: FuncResetLinkStates},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

// BuildConfirmedUserData creates an outgoing CONFIRMED_USER_DATA frame,
// toggling this endpoint's own FCB for the next call.
func (e *Endpoint) BuildConfirmedUserData(payload []byte) Frame {
	f := Frame{
		Control:     Control{Dir: true, Prm: true, FCB: e.outFCB, FCV: true, Function: FuncConfirmedUserData},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
		UserData:    payload,
	}
	e.outFCB = !e.outFCB
	return f
}

// BuildUnconfirmedUserData creates an outgoing UNCONFIRMED_USER_DATA frame.
func (e *Endpoint) BuildUnconfirmedUserData(payload []byte) Frame {
	return Frame{
		Control:     Control{Dir: true, Prm: true, Function: FuncUnconfirmedUserData},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
		UserData:    payload,
	}
}

// BuildRequestLinkStatus creates the outgoing REQUEST_LINK_STATUS frame
// used both for explicit status queries and for the keep-alive probe.
func (e *Endpoint) BuildRequestLinkStatus() Frame {
	return Frame{
		Control:     Control{Dir: true, Prm: true, Function: FuncRequestLinkStatus},
		Destination: e.RemoteAddr,
		Source:      e.LocalAddr,
	}
}

// KeepAliveFire drives the idle-timer keep-alive protocol of §4.B. Callers
// invoke it when the configured idle interval elapses; it returns the
// probe frame to transmit and notifies the Listener that a probe started.
// Callers must subsequently call either KeepAliveSucceeded or
// KeepAliveFailed depending on
// whether a LINK_STATUS reply arrived within the response timeout.
func (e *Endpoint) KeepAliveFire() Frame {
	e.Listener.OnKeepAliveInitiated()
	return e.BuildRequestLinkStatus()
}

func (e *Endpoint) KeepAliveSucceeded() { e.Listener.OnKeepAliveSuccess() }
func (e *Endpoint) KeepAliveFailed()    { e.Listener.OnKeepAliveFailure() }
