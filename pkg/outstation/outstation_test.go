package outstation

import (
	"testing"
	"time"

	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPoints struct{ calls []int }

func (s *stubPoints) ReadClass(classNum int) []byte {
	s.calls = append(s.calls, classNum)
	bi := &object.BinaryInput{Flags: object.FlagOnline | object.FlagState}
	return append([]byte{1, 2, byte(object.Qualifier8BitStartStop), 0, 0}, bi.Encode(nil)...)
}

type stubCommands struct {
	selected, operated bool
	status             object.CommandStatus
}

func (s *stubCommands) Select(group, variation byte, index uint16, obj object.Object) object.CommandStatus {
	s.selected = true
	return s.status
}
func (s *stubCommands) Operate(group, variation byte, index uint16, obj object.Object) object.CommandStatus {
	s.operated = true
	return s.status
}

type stubClock struct{ set time.Time }

func (s *stubClock) SetTime(t time.Time) { s.set = t }

func TestStartupSendsNullUnsolicitedWithRestartIIN(t *testing.T) {
	a := NewApplication(DefaultConfig())
	resp := a.Startup()
	assert.True(t, resp.Control.UNS)
	assert.True(t, resp.Control.FIN)
	assert.True(t, app.IIN(resp.IIN).Has(app.IINDeviceRestart))
	assert.Empty(t, resp.Objects)
}

func TestReadClass0DelegatesToPointDatabase(t *testing.T) {
	points := &stubPoints{}
	a := NewApplication(DefaultConfig())
	a.Points = points

	req := app.Request{Control: app.Control{FIR: true, FIN: true}, Func: app.FuncRead, Objects: []byte{60, 1, byte(object.QualifierAllObjects)}}
	resp, _ := a.HandleRequest(req)

	require.Equal(t, 1, len(points.calls))
	assert.Equal(t, 0, points.calls[0])
	assert.NotEmpty(t, resp.Objects)
}

func TestWriteTimeAndDateSetsClock(t *testing.T) {
	clock := &stubClock{}
	a := NewApplication(DefaultConfig())
	a.Clock = clock

	now := time.UnixMilli(1700000000000).UTC()
	td := &object.TimeAndDate{Time: now}
	objects := append([]byte{50, 1, byte(object.QualifierAllObjects)}, td.Encode(nil)...)

	req := app.Request{Control: app.Control{FIR: true, FIN: true}, Func: app.FuncWrite, Objects: objects}
	a.HandleRequest(req)

	assert.Equal(t, now.UnixMilli(), clock.set.UnixMilli())
}

func TestWriteGroup80ClearsRestartIIN(t *testing.T) {
	a := NewApplication(DefaultConfig())
	require.True(t, a.restartIIN)

	req := app.Request{Control: app.Control{FIR: true, FIN: true}, Func: app.FuncWrite, Objects: []byte{80, 1, byte(object.Qualifier8BitStartStop), 0, 0, 0}}
	a.HandleRequest(req)

	assert.False(t, a.restartIIN)
}

func TestSelectOperateDispatchesToCommandHandler(t *testing.T) {
	cmds := &stubCommands{status: object.CommandSuccess}
	a := NewApplication(DefaultConfig())
	a.Cmd = cmds

	crob := &object.CROB{Code: object.ControlLatchOn, Count: 1}
	buf := object.EncodeIndexPrefixed(nil, 12, 1, 1)
	buf = append(buf, 5)
	buf = crob.Encode(buf)

	req := app.Request{Control: app.Control{FIR: true, FIN: true, SEQ: 3}, Func: app.FuncSelect, Objects: buf}
	resp, _ := a.HandleRequest(req)

	assert.True(t, cmds.selected)
	assert.NotEmpty(t, resp.Objects)
	assert.Equal(t, byte(3), resp.Control.SEQ)
}

func TestOperateWithoutPriorSelectIsRejected(t *testing.T) {
	cmds := &stubCommands{status: object.CommandSuccess}
	a := NewApplication(DefaultConfig())
	a.Cmd = cmds

	crob := &object.CROB{Code: object.ControlLatchOn, Count: 1}
	buf := object.EncodeIndexPrefixed(nil, 12, 1, 1)
	buf = append(buf, 5)
	buf = crob.Encode(buf)

	req := app.Request{Control: app.Control{FIR: true, FIN: true, SEQ: 4}, Func: app.FuncOperate, Objects: buf}
	resp, _ := a.HandleRequest(req)

	assert.False(t, cmds.operated)
	obj := &object.CROB{}
	_, rest, err := object.ParseHeader(resp.Objects)
	require.NoError(t, err)
	require.NoError(t, skipIndexPrefix(&rest))
	_, err = obj.Decode(rest)
	require.NoError(t, err)
	assert.Equal(t, object.CommandNoSelect, obj.Status)
}

func TestSelectThenOperateSucceeds(t *testing.T) {
	cmds := &stubCommands{status: object.CommandSuccess}
	a := NewApplication(DefaultConfig())
	a.Cmd = cmds

	crob := &object.CROB{Code: object.ControlLatchOn, Count: 1}
	buf := object.EncodeIndexPrefixed(nil, 12, 1, 1)
	buf = append(buf, 5)
	buf = crob.Encode(buf)

	selReq := app.Request{Control: app.Control{FIR: true, FIN: true, SEQ: 7}, Func: app.FuncSelect, Objects: buf}
	a.HandleRequest(selReq)
	assert.True(t, cmds.selected)

	opReq := app.Request{Control: app.Control{FIR: true, FIN: true, SEQ: 8}, Func: app.FuncOperate, Objects: buf}
	resp, _ := a.HandleRequest(opReq)

	assert.True(t, cmds.operated)
	obj := &object.CROB{}
	_, rest, err := object.ParseHeader(resp.Objects)
	require.NoError(t, err)
	require.NoError(t, skipIndexPrefix(&rest))
	_, err = obj.Decode(rest)
	require.NoError(t, err)
	assert.Equal(t, object.CommandSuccess, obj.Status)
}

// skipIndexPrefix drops the 1-byte index that EncodeIndexPrefixed(... ,1)
// writes ahead of the object payload in a test response fragment.
func skipIndexPrefix(rest *[]byte) error {
	if len(*rest) < 1 {
		return assert.AnError
	}
	*rest = (*rest)[1:]
	return nil
}

func TestUnsolicitedFiresAfterThresholdCrossed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Class1Threshold = 2
	a := NewApplication(cfg)
	a.Points = &stubPoints{}
	a.unsolEnabled = 0x01

	_, due := a.PollUnsolicited()
	assert.False(t, due)

	a.RecordEvent(1)
	_, due = a.PollUnsolicited()
	assert.False(t, due)

	a.RecordEvent(1)
	resp, due := a.PollUnsolicited()
	assert.True(t, due)
	assert.True(t, resp.Control.UNS)
}

func TestRestartFunctionCodesReturnDelay(t *testing.T) {
	a := NewApplication(DefaultConfig())
	a.Restart = restartFunc(func(warm bool) time.Duration { return 5 * time.Second })

	req := app.Request{Control: app.Control{FIR: true, FIN: true}, Func: app.FuncWarmRestart}
	resp, _ := a.HandleRequest(req)

	delay := &object.TimeDelayFine{}
	_, rest, err := object.ParseHeader(resp.Objects)
	require.NoError(t, err)
	_, err = delay.Decode(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), delay.DelayMs)
}

type restartFunc func(bool) time.Duration

func (f restartFunc) Restart(warm bool) time.Duration { return f(warm) }
