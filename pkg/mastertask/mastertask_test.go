package mastertask

import (
	"testing"
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityPollBuildsAllFourClasses(t *testing.T) {
	task := NewIntegrityPoll()
	fc, objects, confirm, err := task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncRead), fc)
	assert.False(t, confirm)
	assert.Equal(t, 12, len(objects)) // 4 classes * 3-byte header each
}

func TestSelectOperateSucceedsOnlyAfterBothSteps(t *testing.T) {
	crob := &object.CROB{Code: object.ControlLatchOn, Count: 1}
	task := NewSelectOperate(5, crob)

	fc, _, _, err := task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncSelect), fc)

	echo := encodeCommandEcho(t, 12, 1, 5, &object.CROB{Code: object.ControlLatchOn, Count: 1, Status: object.CommandSuccess})
	result, done := task.ProcessResponse(echo, 0)
	assert.Equal(t, dnp3.TaskSuccess, result)
	assert.False(t, done)

	fc, _, _, err = task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncOperate), fc)

	result, done = task.ProcessResponse(echo, 0)
	assert.Equal(t, dnp3.TaskSuccess, result)
	assert.True(t, done)
}

func TestSelectOperateFailsOnNonSuccessStatus(t *testing.T) {
	crob := &object.CROB{Code: object.ControlLatchOn, Count: 1}
	task := NewSelectOperate(5, crob)
	task.BuildRequest()

	echo := encodeCommandEcho(t, 12, 1, 5, &object.CROB{Code: object.ControlLatchOn, Count: 1, Status: object.CommandTimeout})
	result, done := task.ProcessResponse(echo, 0)
	assert.Equal(t, dnp3.TaskFailureBadResponse, result)
	assert.True(t, done)
}

func TestFileReadRunsOpenReadCloseSequence(t *testing.T) {
	task := NewFileRead("/logs/events.csv", 128)

	fc, _, _, err := task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncOpenFile), fc)

	openResp := header(70, 4)
	status := &object.FileCommandStatus{Handle: 7, Status: object.FileStatusSuccess}
	openResp = append(openResp, status.Encode(nil)...)
	result, done := task.ProcessResponse(openResp, 0)
	require.Equal(t, dnp3.TaskSuccess, result)
	assert.False(t, done)

	fc, _, _, err = task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncRead), fc)

	block := header(70, 5)
	xfer := &object.FileTransport{Handle: 7, BlockNumber: 0, IsLast: true, Data: []byte("a,b,c\n")}
	block = append(block, xfer.Encode(nil)...)
	result, done = task.ProcessResponse(block, 0)
	require.Equal(t, dnp3.TaskSuccess, result)
	assert.False(t, done)
	assert.Equal(t, []byte("a,b,c\n"), task.Data)

	fc, _, _, err = task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncCloseFile), fc)

	closeResp := append(header(70, 4), status.Encode(nil)...)
	result, done = task.ProcessResponse(closeResp, 0)
	assert.Equal(t, dnp3.TaskSuccess, result)
	assert.True(t, done)
}

func TestTimeSyncComputesWriteTimeFromRoundTrip(t *testing.T) {
	task := NewTimeSync()
	_, _, _, err := task.BuildRequest()
	require.NoError(t, err)

	resp := header(52, 2)
	delay := &object.TimeDelayFine{DelayMs: 10}
	resp = append(resp, delay.Encode(nil)...)

	result, done := task.ProcessResponse(resp, 0)
	assert.Equal(t, dnp3.TaskSuccess, result)
	assert.False(t, done)
	assert.False(t, task.writeTime.IsZero())

	fc, objects, _, err := task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncWrite), fc)
	assert.NotEmpty(t, objects)
}

func TestRestartReportsDelay(t *testing.T) {
	var got time.Duration
	task := NewRestart(WarmRestart, func(d time.Duration) { got = d })

	fc, _, _, err := task.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, byte(app.FuncWarmRestart), fc)

	resp := header(52, 2)
	delay := &object.TimeDelayFine{DelayMs: 2500}
	resp = append(resp, delay.Encode(nil)...)

	result, done := task.ProcessResponse(resp, 0)
	assert.Equal(t, dnp3.TaskSuccess, result)
	assert.True(t, done)
	assert.Equal(t, 2500*time.Millisecond, got)
}

func header(group, variation byte) []byte {
	return []byte{group, variation, byte(object.QualifierFreeFormat), 1}
}

func encodeCommandEcho(t *testing.T, group, variation, index byte, obj object.Object) []byte {
	t.Helper()
	buf := object.EncodeIndexPrefixed(nil, group, variation, 1)
	buf = append(buf, index)
	buf = obj.Encode(buf)
	return buf
}
