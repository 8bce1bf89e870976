package channel

import (
	"errors"
	"testing"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIO struct {
	sink       FrameSink
	transmitted [][]byte
	failOpen   bool
	failWrite  bool
}

func (f *fakeIO) Prepare(sink FrameSink) error {
	if f.failOpen {
		return errors.New("open failed")
	}
	f.sink = sink
	return nil
}
func (f *fakeIO) Shutdown() error { return nil }
func (f *fakeIO) Transmit(data []byte) error {
	if f.failWrite {
		return errors.New("write failed")
	}
	f.transmitted = append(f.transmitted, data)
	return nil
}

type fakeSession struct {
	src, dst      uint16
	frames        []link.Frame
	txReady       int
	lowerUp       int
	lowerDown     int
}

func (s *fakeSession) Route() (uint16, uint16) { return s.src, s.dst }
func (s *fakeSession) OnFrame(f link.Frame)    { s.frames = append(s.frames, f) }
func (s *fakeSession) OnTxReady()              { s.txReady++ }
func (s *fakeSession) LowerLayerUp()           { s.lowerUp++ }
func (s *fakeSession) LowerLayerDown()         { s.lowerDown++ }

func factoryFor(io *fakeIO) IOHandlerFactory {
	return func(ConnectionOptions) (IOHandler, error) { return io, nil }
}

func TestOpenSucceedsAndMarksWorking(t *testing.T) {
	io := &fakeIO{}
	m := New(ConnectionOptions{Kind: KindTCP, Address: "1.1.1.1:20000"}, factoryFor(io))
	require.NoError(t, m.Open())
	assert.Equal(t, StateWorking, m.primaryState)
}

func TestUnknownRouteFrameIsDroppedAndCounted(t *testing.T) {
	io := &fakeIO{}
	m := New(ConnectionOptions{Kind: KindTCP}, factoryFor(io))
	require.NoError(t, m.Open())

	frame := link.Frame{Destination: 1, Source: 2, Control: link.Control{Function: link.FuncUnconfirmedUserData}, UserData: []byte{0xAA}}
	raw, err := link.Encode(frame)
	require.NoError(t, err)

	m.OnFrame(raw)
	assert.Equal(t, uint64(1), m.Stats.Get(dnp3.UnexpectedBytesReceived).Value())
}

func TestFrameRoutesToRegisteredSession(t *testing.T) {
	io := &fakeIO{}
	m := New(ConnectionOptions{Kind: KindTCP}, factoryFor(io))
	require.NoError(t, m.Open())

	sess := &fakeSession{src: 2, dst: 1}
	require.NoError(t, m.RegisterSession(sess))

	frame := link.Frame{Destination: 1, Source: 2, Control: link.Control{Function: link.FuncUnconfirmedUserData}}
	raw, err := link.Encode(frame)
	require.NoError(t, err)

	m.OnFrame(raw)
	require.Len(t, sess.frames, 1)
	assert.Equal(t, uint16(2), sess.frames[0].Source)
}

func TestRegisterDuplicateRouteFails(t *testing.T) {
	io := &fakeIO{}
	m := New(ConnectionOptions{Kind: KindTCP}, factoryFor(io))
	a := &fakeSession{src: 2, dst: 1}
	b := &fakeSession{src: 2, dst: 1}
	require.NoError(t, m.RegisterSession(a))
	assert.Error(t, m.RegisterSession(b))
}

func TestTaskFailureSwitchesToBackupAndNotifiesOnBothDown(t *testing.T) {
	primaryIO := &fakeIO{}
	backupIO := &fakeIO{failOpen: true}

	calls := 0
	factory := func(opts ConnectionOptions) (IOHandler, error) {
		calls++
		if opts.Address == "backup" {
			return backupIO, nil
		}
		return primaryIO, nil
	}

	listener := &capturingListener{}
	m := New(ConnectionOptions{Kind: KindTCP, Address: "primary"}, factory)
	m.Listener = listener
	m.SetBackup(ConnectionOptions{Kind: KindTCP, Address: "backup"}, BackupConfig{ReadingsBeforeReturnToPrimary: 2})
	require.NoError(t, m.Open())

	m.TaskCompleted(false, false)

	assert.True(t, m.usingBackup)
	assert.Equal(t, StateError, m.backupState)
	assert.Contains(t, listener.states, StateError)
}

func TestSuccessfulBackupReadsReturnToPrimary(t *testing.T) {
	primaryIO := &fakeIO{}
	backupIO := &fakeIO{}
	factory := func(opts ConnectionOptions) (IOHandler, error) {
		if opts.Address == "backup" {
			return backupIO, nil
		}
		return primaryIO, nil
	}

	m := New(ConnectionOptions{Kind: KindTCP, Address: "primary"}, factory)
	m.SetBackup(ConnectionOptions{Kind: KindTCP, Address: "backup"}, BackupConfig{ReadingsBeforeReturnToPrimary: 2})
	require.NoError(t, m.Open())

	m.TaskCompleted(false, false) // fail over to backup
	require.True(t, m.usingBackup)

	m.TaskCompleted(true, true)
	assert.True(t, m.usingBackup)
	m.TaskCompleted(true, true)
	assert.False(t, m.usingBackup)
}

func TestTransmitQueuesOneAtATimeAndNotifiesOnWritten(t *testing.T) {
	io := &fakeIO{}
	m := New(ConnectionOptions{Kind: KindTCP}, factoryFor(io))
	require.NoError(t, m.Open())

	sess := &fakeSession{src: 1, dst: 2}
	m.Transmit(sess, []byte("a"))
	m.Transmit(sess, []byte("b"))

	require.Len(t, io.transmitted, 1)
	m.OnTxWritten()
	assert.Equal(t, 1, sess.txReady)
	require.Len(t, io.transmitted, 2)
}

func TestTransmitFailureResetsChannel(t *testing.T) {
	io := &fakeIO{failWrite: true}
	m := New(ConnectionOptions{Kind: KindTCP}, factoryFor(io))
	require.NoError(t, m.Open())

	sess := &fakeSession{src: 1, dst: 2}
	require.NoError(t, m.RegisterSession(sess))
	m.Transmit(sess, []byte("a"))

	assert.Equal(t, 1, sess.lowerDown)
	assert.Equal(t, StateError, m.primaryState)
}

type capturingListener struct{ states []State }

func (l *capturingListener) OnStateChange(s State) { l.states = append(l.states, s) }
