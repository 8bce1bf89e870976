// Package outstation implements the outstation-role request dispatcher of
// §4.G: the per-function-code switch, the SELECT/OPERATE command
// dispatch, write-side effects (clock set, class assignment, restart IIN
// clear), delegation of Group 70 file traffic to an injected file-transfer
// handler, and the unsolicited-response scheduler (NULL on startup, then
// class-threshold triggered).
//
// Concrete point storage is out of scope per spec.md §1/§5: this package
// calls out to small caller-supplied interfaces (PointDatabase,
// CommandHandler, ClockSetter, ...) rather than owning any point data
// itself, the way the teacher's pkg/od package calls out to
// Extension/Streamer rather than owning object values.
package outstation

import (
	"errors"
	"time"

	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	log "github.com/sirupsen/logrus"
)

// PointDatabase supplies the encoded object payload (headers + data) for a
// requested class, per the class-based READ dispatch used by integrity
// polls and event scans. classNum 0 is static/class-0 data; 1..3 are the
// event classes.
type PointDatabase interface {
	ReadClass(classNum int) []byte
}

// CommandHandler validates (Select) and executes (Operate) a single
// control object addressed by group/variation/index, per §4.G.
type CommandHandler interface {
	Select(group, variation byte, index uint16, obj object.Object) object.CommandStatus
	Operate(group, variation byte, index uint16, obj object.Object) object.CommandStatus
}

// ClockSetter receives the outstation clock value written by a master's
// time-sync WRITE.
type ClockSetter interface {
	SetTime(t time.Time)
}

// ClassAssigner maps a point range to an event class. HandleRequest calls
// it with classNum 0 for each header of a WRITE other than Group 50
// Variation 1 (time) and Group 80 Variation 1 (IIN), unless the WRITE
// carries a file block; the ASSIGN_CLASS function code itself is not dispatched
// and is answered with FUNC_NOT_SUPPORTED.
type ClassAssigner interface {
	AssignClass(h object.Header, classNum int)
}

// RestartHandler performs a cold/warm restart and reports the delay
// before the outstation will be ready again.
type RestartHandler interface {
	Restart(warm bool) time.Duration
}

// FileTransferHandler is the seam to the File Transfer Worker (pkg/file):
// every OPEN/READ/WRITE/CLOSE/DELETE/GET_FILE_INFO/AUTH/ABORT file
// function code, and any Group 70 Variation 5 object carried by a raw
// WRITE, is delegated here verbatim.
type FileTransferHandler interface {
	HandleFileRequest(fc byte, objects []byte) (respObjects []byte, iin app.IIN)
}

// Config extends app.OutstationConfig with the outstation-engine settings
// of §4.G/§6.3.
type Config struct {
	app.OutstationConfig
	Class1Threshold         int
	Class2Threshold         int
	Class3Threshold         int
	InternalProcessingDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		OutstationConfig:        app.DefaultOutstationConfig(),
		Class1Threshold:         1,
		Class2Threshold:         1,
		Class3Threshold:         1,
		InternalProcessingDelay: 0,
	}
}

// Application is the outstation engine for one session: request dispatch,
// command execution, and unsolicited scheduling, built atop
// app.OutstationSession for sequencing/duplicate-detection/select-buffer
// concerns.
type Application struct {
	Config Config
	Points PointDatabase
	Cmd    CommandHandler
	Clock  ClockSetter
	Class  ClassAssigner
	Files  FileTransferHandler
	Restart RestartHandler

	session *app.OutstationSession

	restartIIN  bool
	unsolEnabled byte // bit0=class1, bit1=class2, bit2=class3
	trigger      unsolicitedTrigger
}

// NewApplication builds an outstation Application. restartIIN starts true:
// per IEEE 1815, an outstation reports DEVICE_RESTART until the master
// clears it with a WRITE of Group 80 Variation 1.
func NewApplication(cfg Config) *Application {
	return &Application{
		Config:     cfg,
		session:    app.NewOutstationSession(cfg.OutstationConfig),
		restartIIN: true,
		trigger: unsolicitedTrigger{
			thresholds: [3]int{cfg.Class1Threshold, cfg.Class2Threshold, cfg.Class3Threshold},
		},
	}
}

// RecordEvent notes that one event of the given class (1..3) was buffered,
// feeding the unsolicited-response threshold trigger.
func (a *Application) RecordEvent(class int) { a.trigger.record(class) }

func (a *Application) iin() app.IIN {
	var i app.IIN
	if a.restartIIN {
		i |= app.IINDeviceRestart
	}
	return i
}

// Startup returns the NULL unsolicited response sent once when the
// outstation application comes online, per §4.D/§4.G.
func (a *Application) Startup() app.Response {
	return a.session.BuildUnsolicitedResponse(a.iin(), nil, true)
}

// PollUnsolicited reports whether any class's event-count threshold has
// been crossed since the last unsolicited response, and if so builds the
// class-1/2/3 unsolicited response fragment.
func (a *Application) PollUnsolicited() (app.Response, bool) {
	mask := a.trigger.due(a.unsolEnabled)
	if mask == 0 {
		return app.Response{}, false
	}
	var objects []byte
	for class := 1; class <= 3; class++ {
		if mask&(1<<uint(class-1)) != 0 && a.Points != nil {
			objects = append(objects, a.Points.ReadClass(class)...)
		}
	}
	return a.session.BuildUnsolicitedResponse(a.iin(), objects, true), true
}

// HandleRequest dispatches one incoming request fragment and returns the
// response to send, and its wire encoding (for duplicate-request
// retransmission bookkeeping). Broadcast requests (Control.UNS on a
// request is never set; broadcast is detected by the caller via the link
// destination address, so is out of scope here).
func (a *Application) HandleRequest(req app.Request) (app.Response, []byte) {
	if cached, dup := a.session.CheckDuplicate(req); dup {
		resp, _ := app.DecodeResponse(cached)
		return resp, cached
	}

	resp := a.dispatch(req)
	encoded := app.EncodeResponse(resp)
	a.session.RecordSolicitedResponse(req, encoded)
	return resp, encoded
}

func (a *Application) dispatch(req app.Request) app.Response {
	iin := a.iin()
	var objects []byte

	now := time.Now()

	switch req.Func {
	case app.FuncRead:
		objects, iin = a.handleRead(req.Objects, iin)

	case app.FuncWrite:
		objects, iin = a.handleWrite(req.Objects, iin)

	case app.FuncSelect:
		objects, iin = a.handleSelect(req.Control.SEQ, now, req.Objects, iin)

	case app.FuncOperate:
		// OPERATE requires a prior matching SELECT; handleOperate validates
		// the select buffer before ever calling Cmd.Operate.
		objects, iin = a.handleOperate(req.Control.SEQ, now, req.Objects, iin)

	case app.FuncDirectOperate, app.FuncDirectOperateNoResp:
		// DIRECT_OPERATE executes without a SELECT. DIRECT_OPERATE_NR still
		// executes and builds a response here; the channel-layer caller is
		// responsible for not transmitting it.
		objects, iin = a.handleDirectOperate(req.Objects, iin)

	case app.FuncOpenFile, app.FuncCloseFile, app.FuncDeleteFile,
		app.FuncGetFileInfo, app.FuncAuthenticateFile, app.FuncAbortFile:
		if a.Files != nil {
			var fileIIN app.IIN
			objects, fileIIN = a.Files.HandleFileRequest(byte(req.Func), req.Objects)
			iin |= fileIIN
		} else {
			iin |= app.IINFuncNotSupported
		}

	case app.FuncColdRestart, app.FuncWarmRestart:
		objects, iin = a.handleRestart(req.Func == app.FuncWarmRestart, iin)

	case app.FuncEnableUnsolicited:
		a.setUnsolicited(req.Objects, true)

	case app.FuncDisableUnsolicited:
		a.setUnsolicited(req.Objects, false)

	case app.FuncDelayMeasure:
		delay := &object.TimeDelayFine{DelayMs: uint16(a.Config.InternalProcessingDelay / time.Millisecond)}
		objects = append([]byte{52, 2, byte(object.QualifierFreeFormat), 1}, delay.Encode(nil)...)

	case app.FuncRecordCurrentTime:
		// LAN time-sync acknowledgement; no payload beyond IIN.

	default:
		log.WithField("func", req.Func).Debug("outstation: unsupported function code")
		iin |= app.IINFuncNotSupported
	}

	return a.session.BuildResponse(app.FuncResponse, req.Control.SEQ, iin, objects, true, true, false)
}

func (a *Application) handleRead(reqObjects []byte, iin app.IIN) ([]byte, app.IIN) {
	// A READ carrying a Group 70 Variation 5 object is a file-transfer
	// block request, not a point scan; it is always the sole object in
	// the fragment, per §4.G/§4.H, so the whole payload goes to the file
	// worker rather than being walked header-by-header.
	if h, _, err := object.ParseHeader(reqObjects); err == nil && h.Group == 70 && h.Variation == 5 {
		if a.Files == nil {
			return nil, iin | app.IINFuncNotSupported
		}
		objects, fileIIN := a.Files.HandleFileRequest(byte(app.FuncRead), reqObjects)
		return objects, iin | fileIIN
	}

	var out []byte
	buf := reqObjects
	for len(buf) > 0 {
		h, rest, err := object.ParseHeader(buf)
		if err != nil {
			iin |= app.IINParameterError
			return out, iin
		}
		buf = rest

		if h.Group == 60 && h.Variation >= 1 && h.Variation <= 4 {
			classNum := int(h.Variation) - 1
			if a.Points != nil {
				out = append(out, a.Points.ReadClass(classNum)...)
			}
		} else {
			iin |= app.IINObjectUnknown
		}
	}
	return out, iin
}

func (a *Application) handleWrite(reqObjects []byte, iin app.IIN) ([]byte, app.IIN) {
	// A WRITE carrying a Group 70 Variation 5 object is a file-transfer
	// data block, delegated whole to the file worker, which returns the
	// FileTransportStatus acknowledgement object.
	if h, _, err := object.ParseHeader(reqObjects); err == nil && h.Group == 70 && h.Variation == 5 {
		if a.Files == nil {
			return nil, iin | app.IINFuncNotSupported
		}
		objects, fileIIN := a.Files.HandleFileRequest(byte(app.FuncWrite), reqObjects)
		return objects, iin | fileIIN
	}

	buf := reqObjects
	for len(buf) > 0 {
		h, rest, err := object.ParseHeader(buf)
		if err != nil {
			return nil, iin | app.IINParameterError
		}

		switch {
		case h.Group == 50 && h.Variation == 1:
			td := &object.TimeAndDate{}
			next, err := td.Decode(rest)
			if err != nil {
				return nil, iin | app.IINParameterError
			}
			if a.Clock != nil {
				a.Clock.SetTime(td.Time)
			}
			buf = next

		case h.Group == 80 && h.Variation == 1:
			// IIN-clear bitmap write: any write of this object clears
			// DEVICE_RESTART, per the standard clear-restart convention.
			a.restartIIN = false
			if len(rest) >= 1 {
				buf = rest[1:]
			} else {
				buf = rest
			}

		default:
			if a.Class != nil {
				a.Class.AssignClass(h, 0)
			}
			buf = rest
		}
	}
	return nil, iin
}

// parsedCommand is the decoded single control object shared by
// SELECT/OPERATE/DIRECT_OPERATE handling.
type parsedCommand struct {
	group, variation byte
	index            uint32
	width            int
	obj              object.Object
}

func (a *Application) parseCommand(reqObjects []byte) (parsedCommand, app.IIN, bool) {
	h, rest, err := object.ParseHeader(reqObjects)
	if err != nil {
		return parsedCommand{}, app.IINParameterError, false
	}
	w := h.IndexPrefixWidth()
	if w == 0 || len(rest) < w {
		return parsedCommand{}, app.IINParameterError, false
	}
	var index uint32
	for i := 0; i < w; i++ {
		index |= uint32(rest[i]) << (8 * i)
	}
	rest = rest[w:]

	obj, err := object.New(h.Group, h.Variation)
	if err != nil {
		return parsedCommand{}, app.IINObjectUnknown, false
	}
	if _, err := obj.Decode(rest); err != nil {
		return parsedCommand{}, app.IINParameterError, false
	}
	return parsedCommand{group: h.Group, variation: h.Variation, index: index, width: w, obj: obj}, 0, true
}

func (pc parsedCommand) encodeEcho(status object.CommandStatus) []byte {
	switch v := pc.obj.(type) {
	case *object.CROB:
		v.Status = status
	case *object.AnalogOutputCommand32:
		v.Status = status
	}
	respBuf := object.EncodeIndexPrefixed(nil, pc.group, pc.variation, 1)
	for i := 0; i < pc.width; i++ {
		respBuf = append(respBuf, byte(pc.index>>(8*i)))
	}
	return pc.obj.Encode(respBuf)
}

// handleSelect implements the §4.D SELECT half: it validates the object via
// CommandHandler.Select and, on success, records the select buffer
// (seq/time/CRC/length) that the matching OPERATE must later satisfy.
func (a *Application) handleSelect(seq byte, now time.Time, reqObjects []byte, iin app.IIN) ([]byte, app.IIN) {
	pc, errIIN, ok := a.parseCommand(reqObjects)
	if !ok {
		return nil, iin | errIIN
	}

	var status object.CommandStatus
	if a.Cmd == nil {
		status = object.CommandNotSupported
	} else {
		status = a.Cmd.Select(pc.group, pc.variation, uint16(pc.index), pc.obj)
	}
	if status == object.CommandSuccess {
		a.session.Select(seq, now, reqObjects)
	}
	return pc.encodeEcho(status), iin
}

// handleOperate implements the §4.D OPERATE half: it first validates the
// request against the select buffer a prior SELECT recorded (sequence,
// select-timeout, object length/CRC) before ever calling
// CommandHandler.Operate, per §8 scenario 4.
func (a *Application) handleOperate(seq byte, now time.Time, reqObjects []byte, iin app.IIN) ([]byte, app.IIN) {
	pc, errIIN, ok := a.parseCommand(reqObjects)
	if !ok {
		return nil, iin | errIIN
	}

	if err := a.session.Operate(seq, now, reqObjects); err != nil {
		status := object.CommandNoSelect
		if errors.Is(err, app.ErrSelectTimeout) {
			status = object.CommandTimeout
		}
		return pc.encodeEcho(status), iin
	}

	var status object.CommandStatus
	if a.Cmd == nil {
		status = object.CommandNotSupported
	} else {
		status = a.Cmd.Operate(pc.group, pc.variation, uint16(pc.index), pc.obj)
	}
	return pc.encodeEcho(status), iin
}

// handleDirectOperate implements DIRECT_OPERATE/DIRECT_OPERATE_NR: the
// object executes immediately with no SELECT precondition.
func (a *Application) handleDirectOperate(reqObjects []byte, iin app.IIN) ([]byte, app.IIN) {
	pc, errIIN, ok := a.parseCommand(reqObjects)
	if !ok {
		return nil, iin | errIIN
	}

	var status object.CommandStatus
	if a.Cmd == nil {
		status = object.CommandNotSupported
	} else {
		status = a.Cmd.Operate(pc.group, pc.variation, uint16(pc.index), pc.obj)
	}
	return pc.encodeEcho(status), iin
}

func (a *Application) handleRestart(warm bool, iin app.IIN) ([]byte, app.IIN) {
	var delayMs uint16
	if a.Restart != nil {
		delayMs = uint16(a.Restart.Restart(warm) / time.Millisecond)
	}
	delay := &object.TimeDelayFine{DelayMs: delayMs}
	objects := append([]byte{52, 2, byte(object.QualifierFreeFormat), 1}, delay.Encode(nil)...)
	return objects, iin
}

func (a *Application) setUnsolicited(reqObjects []byte, enable bool) {
	buf := reqObjects
	for len(buf) > 0 {
		h, rest, err := object.ParseHeader(buf)
		if err != nil {
			return
		}
		buf = rest
		if h.Group == 60 && h.Variation >= 2 && h.Variation <= 4 {
			bit := byte(1) << uint(h.Variation-2)
			if enable {
				a.unsolEnabled |= bit
			} else {
				a.unsolEnabled &^= bit
			}
		}
	}
}

// unsolicitedTrigger tracks per-class event counts against configured
// thresholds; a class becomes due once its count reaches its threshold.
type unsolicitedTrigger struct {
	thresholds [3]int
	counts     [3]int
}

func (u *unsolicitedTrigger) record(class int) {
	if class < 1 || class > 3 {
		return
	}
	u.counts[class-1]++
}

// due returns the bitmask of classes (restricted to enabledMask) whose
// count has reached its threshold, resetting those counts to zero.
func (u *unsolicitedTrigger) due(enabledMask byte) byte {
	var mask byte
	for i := 0; i < 3; i++ {
		bit := byte(1) << uint(i)
		if enabledMask&bit == 0 {
			continue
		}
		if u.thresholds[i] > 0 && u.counts[i] >= u.thresholds[i] {
			mask |= bit
			u.counts[i] = 0
		}
	}
	return mask
}
