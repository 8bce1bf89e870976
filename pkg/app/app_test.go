package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterBuildRequestAssignsMonotoneSeq(t *testing.T) {
	m := NewMasterSession(DefaultMasterConfig(), nil)
	r1, err := m.BuildRequest(FuncRead, nil, false)
	require.NoError(t, err)
	r2, err := m.BuildRequest(FuncRead, nil, false)
	require.NoError(t, err)
	assert.EqualValues(t, r1.Control.SEQ+1, r2.Control.SEQ)
}

func TestMasterDropsMismatchedSequence(t *testing.T) {
	m := NewMasterSession(DefaultMasterConfig(), nil)
	req, err := m.BuildRequest(FuncRead, nil, false)
	require.NoError(t, err)

	resp := Response{Control: Control{FIR: true, FIN: true, SEQ: (req.Control.SEQ + 1) & 0x0F}, Func: FuncResponse}
	outcome := m.ProcessResponse(resp)
	assert.False(t, outcome.Accept)
}

func TestMasterAcceptsMatchingSequence(t *testing.T) {
	m := NewMasterSession(DefaultMasterConfig(), nil)
	req, err := m.BuildRequest(FuncRead, nil, true)
	require.NoError(t, err)

	resp := Response{Control: Control{FIR: true, FIN: true, CON: true, SEQ: req.Control.SEQ}, Func: FuncResponse}
	outcome := m.ProcessResponse(resp)
	assert.True(t, outcome.Accept)
	assert.True(t, outcome.NeedConfirm)
}

type hookSpy struct {
	integrityDemanded bool
	timeSyncDemanded  bool
}

func (h *hookSpy) DemandClearRestartAndIntegrity() { h.integrityDemanded = true }
func (h *hookSpy) DemandIntegrity()                { h.integrityDemanded = true }
func (h *hookSpy) DemandTimeSync()                 { h.timeSyncDemanded = true }
func (h *hookSpy) DemandEventScan()                {}

func TestMasterIINTriggersHooks(t *testing.T) {
	spy := &hookSpy{}
	m := NewMasterSession(DefaultMasterConfig(), spy)
	req, _ := m.BuildRequest(FuncRead, nil, false)

	resp := Response{Control: Control{FIR: true, FIN: true, SEQ: req.Control.SEQ}, Func: FuncResponse, IIN: IINNeedTime}
	m.ProcessResponse(resp)
	assert.True(t, spy.timeSyncDemanded)
}

func TestOutstationDuplicateRequestRetransmitsVerbatim(t *testing.T) {
	o := NewOutstationSession(DefaultOutstationConfig())
	req := Request{Control: Control{FIR: true, FIN: true, SEQ: 3}, Func: FuncRead}
	resp := o.BuildResponse(FuncResponse, req.Control.SEQ, IIN(0), []byte{1, 2, 3}, true, true, false)
	encoded := EncodeResponse(resp)
	o.RecordSolicitedResponse(req, encoded)

	cached, dup := o.CheckDuplicate(req)
	require.True(t, dup)
	assert.Equal(t, encoded, cached)

	other := Request{Control: Control{FIR: true, FIN: true, SEQ: 4}, Func: FuncRead}
	_, dup = o.CheckDuplicate(other)
	assert.False(t, dup)
}

func TestSelectOperateTimeout(t *testing.T) {
	cfg := DefaultOutstationConfig()
	cfg.SelectTimeout = 10 * time.Millisecond
	o := NewOutstationSession(cfg)

	now := time.Now()
	objects := []byte{1, 2, 3}
	o.Select(0, now, objects)

	err := o.Operate(1, now.Add(20*time.Millisecond), objects)
	assert.ErrorIs(t, err, ErrSelectTimeout)
}

func TestSelectOperateSuccess(t *testing.T) {
	o := NewOutstationSession(DefaultOutstationConfig())
	now := time.Now()
	objects := []byte{1, 2, 3}
	o.Select(0, now, objects)

	err := o.Operate(1, now.Add(time.Millisecond), objects)
	assert.NoError(t, err)

	// a second OPERATE for the already-consumed SELECT must fail
	err = o.Operate(1, now.Add(2*time.Millisecond), objects)
	assert.ErrorIs(t, err, ErrNoSelect)
}

func TestSelectOperateMismatchedObjects(t *testing.T) {
	o := NewOutstationSession(DefaultOutstationConfig())
	now := time.Now()
	o.Select(0, now, []byte{1, 2, 3})

	err := o.Operate(1, now, []byte{9, 9, 9})
	assert.ErrorIs(t, err, ErrSelectMismatch)
}
