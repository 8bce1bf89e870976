// Package channel implements the Channel Manager of §4.I: a single
// physical link (serial/TCP/UDP) shared by one or more sessions, with
// primary/backup failover driven by task success history, a one-write-
// at-a-time transmit queue, and session routing by (source, destination)
// address pair.
//
// Grounded on the teacher's pkg/can.Bus/BusManager split: Bus is the thin
// concrete-transport seam (Connect/Disconnect/Send/Subscribe) and
// BusManager wraps it with routing (by CAN id) and reconnect bookkeeping.
// IOHandler here plays Bus's role and Manager plays BusManager's, with
// routing keyed on a (source, destination) pair instead of a CAN id.
package channel

import (
	"fmt"
	"sync"
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/internal/fifo"
	"github.com/kjheidel/godnp3/pkg/link"
	log "github.com/sirupsen/logrus"
)

// State is a physical channel's connectivity state, per §4.I.
type State int

const (
	StateUndecided State = iota
	StateWorking
	StateError
)

func (s State) String() string {
	switch s {
	case StateWorking:
		return "Working"
	case StateError:
		return "Error"
	default:
		return "Undecided"
	}
}

// Kind tags a ConnectionOptions as one of the physical media §9 calls out
// as a tagged union (Serial/TCP/UDP/TLS settings map to variants of a sum
// type); the dial parameters for each kind are the fields of
// ConnectionOptions below, and pkg/serial adds the serial line settings.
type Kind int

const (
	KindSerial Kind = iota
	KindTCP
	KindUDP
	KindTLS
)

// ConnectionOptions names one endpoint of a channel. Only the fields
// relevant to the chosen Kind are meaningful.
type ConnectionOptions struct {
	Kind     Kind
	Device   string // serial device path
	BaudRate int
	Address  string // host:port, TCP/UDP/TLS
}

// ChannelRetry is the reconnection policy of §4.I's failure semantics.
type ChannelRetry struct {
	MinOpenRetry   time.Duration
	MaxOpenRetry   time.Duration
	ReconnectDelay time.Duration
	InfiniteTries  bool
}

func DefaultChannelRetry() ChannelRetry {
	return ChannelRetry{
		MinOpenRetry:   time.Second,
		MaxOpenRetry:   30 * time.Second,
		ReconnectDelay: time.Second,
		InfiniteTries:  true,
	}
}

// BackupConfig configures automatic return-to-primary behavior.
type BackupConfig struct {
	ReadingsBeforeReturnToPrimary uint32
}

// FrameSink is the callback surface an IOHandler drives: raw bytes arrive
// via OnFrame, and OnTxWritten must be called once a Transmit call's bytes
// have actually gone out, so the Manager can pop its tx queue and notify
// the waiting session. Manager implements FrameSink and is passed to
// IOHandler.Prepare.
type FrameSink interface {
	OnFrame(data []byte)
	OnTxWritten()
}

// IOHandler is the concrete-I/O seam of §4.I/§9; sockets/serial ports stay
// out of this package's scope and are supplied by pkg/serial or a test
// fake.
type IOHandler interface {
	Prepare(sink FrameSink) error
	Shutdown() error
	Transmit(data []byte) error
}

// IOHandlerFactory builds a fresh IOHandler for a given endpoint, called
// each time the Manager (re)opens a channel.
type IOHandlerFactory func(ConnectionOptions) (IOHandler, error)

// Listener observes channel-wide state transitions.
type Listener interface {
	OnStateChange(state State)
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) OnStateChange(State) {}

// Session is one (source, destination) routed endpoint sharing this
// channel; pkg/app's MasterSession/OutstationSession pairs implement it
// through a thin adapter.
type Session interface {
	Route() (source, destination uint16)
	OnFrame(f link.Frame)
	OnTxReady()
	LowerLayerUp()
	LowerLayerDown()
}

type route struct{ source, destination uint16 }

type txEntry struct {
	data    []byte
	session Session
}

// Manager is the Channel Manager: primary/backup connection arbitration,
// session routing, and the single-in-flight transmit queue.
type Manager struct {
	mu sync.Mutex

	Primary  ConnectionOptions
	Backup   ConnectionOptions
	HasBackup bool
	Backoff  BackupConfig
	Retry    ChannelRetry
	Factory  IOHandlerFactory
	Listener Listener

	usingBackup             bool
	successfulReadsOnBackup uint32
	primaryState            State
	backupState             State

	io IOHandler
	rx *fifo.Fifo

	sessions map[route]Session

	txQueue []txEntry
	writing bool

	Stats *dnp3.Registry
}

// New creates a Manager for primary, with no backup configured.
func New(primary ConnectionOptions, factory IOHandlerFactory) *Manager {
	return &Manager{
		Primary:      primary,
		Factory:      factory,
		Retry:        DefaultChannelRetry(),
		Listener:     NopListener{},
		primaryState: StateUndecided,
		backupState:  StateUndecided,
		rx:           fifo.New(4096),
		sessions:     make(map[route]Session),
		Stats:        dnp3.NewRegistry(false),
	}
}

// SetBackup configures a backup connection and its return-to-primary
// threshold.
func (m *Manager) SetBackup(opts ConnectionOptions, cfg BackupConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Backup = opts
	m.HasBackup = true
	m.Backoff = cfg
}

// RegisterSession attaches s to this channel for its (source, destination)
// pair. Re-registering a pair already in use is a caller bug.
func (m *Manager) RegisterSession(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst := s.Route()
	r := route{src, dst}
	if _, exists := m.sessions[r]; exists {
		return fmt.Errorf("channel: %w for (%d,%d)", dnp3.ErrDuplicateRoute, src, dst)
	}
	m.sessions[r] = s
	return nil
}

// RemoveSession detaches s; no further OnFrame/OnTxReady calls are
// delivered to it afterward, per §5's ordering guarantee (d).
func (m *Manager) RemoveSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst := s.Route()
	delete(m.sessions, route{src, dst})
}

func (m *Manager) current() ConnectionOptions {
	if m.usingBackup {
		return m.Backup
	}
	return m.Primary
}

// outcome accumulates session/listener callbacks decided while m.mu is
// held, so every exported entry point can release the lock before
// actually invoking them. A Session callback is free to call back into
// the Manager (an outstation answering a request its own OnFrame just
// delivered, say), and since sync.Mutex isn't reentrant, invoking it
// while still holding the lock would deadlock the calling goroutine
// against itself.
type outcome struct {
	up       []Session
	down     []Session
	bothDown bool
}

func (o *outcome) merge(other outcome) {
	o.up = append(o.up, other.up...)
	o.down = append(o.down, other.down...)
	o.bothDown = o.bothDown || other.bothDown
}

func (m *Manager) dispatch(o outcome) {
	for _, s := range o.up {
		s.LowerLayerUp()
	}
	for _, s := range o.down {
		s.LowerLayerDown()
	}
	if o.bothDown {
		m.Listener.OnStateChange(StateError)
	}
}

func (m *Manager) sessionsSnapshotLocked() []Session {
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Open brings up the primary connection, notifying registered sessions of
// lower_layer_up on success.
func (m *Manager) Open() error {
	m.mu.Lock()
	err := m.openLocked()
	var o outcome
	if err == nil {
		o = outcome{up: m.sessionsSnapshotLocked()}
	}
	m.mu.Unlock()
	m.dispatch(o)
	return err
}

func (m *Manager) openLocked() error {
	opts := m.current()
	io, err := m.Factory(opts)
	if err != nil {
		m.setStateLocked(StateError)
		m.Stats.Get(dnp3.FailedConnections).Add(1)
		return err
	}
	if err := io.Prepare(m); err != nil {
		m.setStateLocked(StateError)
		m.Stats.Get(dnp3.FailedConnections).Add(1)
		return err
	}
	m.io = io
	m.setStateLocked(StateWorking)
	m.Stats.Get(dnp3.SucceededConnections).Add(1)
	return nil
}

func (m *Manager) setStateLocked(s State) {
	if m.usingBackup {
		m.backupState = s
	} else {
		m.primaryState = s
	}
}

// TaskCompleted reports a master task's outcome on this channel, driving
// the primary/backup failover rules of §4.I exactly.
func (m *Manager) TaskCompleted(complete bool, isDataReadingTask bool) {
	m.mu.Lock()
	var o outcome

	if !complete {
		m.setStateLocked(StateError)
		o = m.switchChannelLocked()
	} else if m.usingBackup && isDataReadingTask {
		m.successfulReadsOnBackup++
		if m.Backoff.ReadingsBeforeReturnToPrimary > 0 &&
			m.successfulReadsOnBackup >= m.Backoff.ReadingsBeforeReturnToPrimary {
			m.successfulReadsOnBackup = 0
			m.usingBackup = false
			o = m.rebuildLocked()
		}
	}

	m.mu.Unlock()
	m.dispatch(o)
}

// switchChannelLocked flips to the other physical channel and attempts to
// bring it up. If both are in Error, the application is notified
// channel_down via the Listener.
func (m *Manager) switchChannelLocked() outcome {
	if !m.HasBackup {
		return m.bothDownOutcomeLocked()
	}
	m.usingBackup = !m.usingBackup
	o := m.rebuildLocked()
	o.merge(m.bothDownOutcomeLocked())
	return o
}

// rebuildLocked tears down the outgoing channel without notifying
// sessions (per §4.I: "no event notification to sessions for that tear-
// down"), then opens the new one. Sessions only see lower_layer_down if
// the new channel also fails to come up.
func (m *Manager) rebuildLocked() outcome {
	if m.io != nil {
		m.io.Shutdown()
		m.io = nil
	}
	m.rx.Reset()
	m.txQueue = nil
	m.writing = false

	if err := m.openLocked(); err != nil {
		log.WithError(err).Warn("channel: reopen failed")
		return outcome{down: m.sessionsSnapshotLocked()}
	}
	return outcome{up: m.sessionsSnapshotLocked()}
}

func (m *Manager) bothDownOutcomeLocked() outcome {
	if (!m.HasBackup && m.primaryState == StateError) ||
		(m.HasBackup && m.primaryState == StateError && m.backupState == StateError) {
		return outcome{bothDown: true}
	}
	return outcome{}
}

// Reset implements the I/O-error failure path of §4.I: the tx queue is
// cleared, sessions are told lower_layer_down, parser state is cleared,
// and the channel is left in StateError. Reset does not reopen the
// channel; the only part of Retry it consults is InfiniteTries. With
// InfiniteTries false and both channels in Error, failure_no_comms is
// surfaced via bothDownOutcomeLocked (the caller maps StateError to that
// outcome for pending tasks).
func (m *Manager) Reset(onFail bool) {
	m.mu.Lock()
	o := m.resetLocked(onFail)
	m.mu.Unlock()
	m.dispatch(o)
}

func (m *Manager) resetLocked(onFail bool) outcome {
	if onFail {
		m.Stats.Get(dnp3.LostConnections).Add(1)
	}
	if m.io != nil {
		m.io.Shutdown()
		m.io = nil
	}
	m.txQueue = nil
	m.writing = false
	m.rx.Reset()
	m.setStateLocked(StateError)

	o := outcome{down: m.sessionsSnapshotLocked()}
	if !m.Retry.InfiniteTries {
		o.merge(m.bothDownOutcomeLocked())
	}
	return o
}

// Transmit enqueues data on behalf of session; writes proceed one at a
// time and OnTxReady fires when the front entry's write completes.
func (m *Manager) Transmit(session Session, data []byte) {
	m.mu.Lock()
	m.txQueue = append(m.txQueue, txEntry{data: data, session: session})
	o := m.pumpLocked()
	m.mu.Unlock()
	m.dispatch(o)
}

// pumpLocked starts the next queued write if the channel is idle. It
// calls straight into io.Transmit while m.mu is held; IOHandler
// implementations must not call back into FrameSink synchronously from
// within Transmit for exactly the reason documented on outcome — see
// pkg/serial.Handler.Transmit, which defers its OnTxWritten call to its
// own goroutine for this reason.
func (m *Manager) pumpLocked() outcome {
	if m.writing || len(m.txQueue) == 0 || m.io == nil {
		return outcome{}
	}
	m.writing = true
	entry := m.txQueue[0]
	if err := m.io.Transmit(entry.data); err != nil {
		m.writing = false
		log.WithError(err).Warn("channel: transmit failed")
		return m.resetLocked(true)
	}
	m.Stats.Get(dnp3.BytesSent).Add(uint64(len(entry.data)))
	return outcome{}
}

// OnTxWritten must be called by the IOHandler once a Transmit call's
// bytes have actually gone out, popping the queue front and notifying its
// session.
func (m *Manager) OnTxWritten() {
	m.mu.Lock()
	if len(m.txQueue) == 0 {
		m.mu.Unlock()
		return
	}
	entry := m.txQueue[0]
	m.txQueue = m.txQueue[1:]
	m.writing = false
	m.mu.Unlock()

	entry.session.OnTxReady()

	m.mu.Lock()
	o := m.pumpLocked()
	m.mu.Unlock()
	m.dispatch(o)
}

// OnFrame implements FrameSink: raw bytes from the IOHandler are
// accumulated and decoded into link frames, each routed to its
// registered session by (source, destination); frames for unknown
// destinations are counted and dropped, per §4.I.
//
// Decoding happens under m.mu, but delivery to sessions happens after
// unlocking: a session's OnFrame is free to call back into Transmit/
// other Manager methods (an outstation answering a request it just
// received, for instance), and since sync.Mutex is not reentrant that
// call would deadlock this same goroutine if it arrived while still
// holding the lock. OnTxWritten already follows this unlock-before-
// callback shape; this mirrors it.
func (m *Manager) OnFrame(data []byte) {
	m.mu.Lock()

	m.rx.Write(data)
	occupied := m.rx.Occupied()
	if occupied == 0 {
		m.mu.Unlock()
		return
	}
	buf := make([]byte, occupied)
	m.rx.AltBegin(0)
	got := m.rx.AltRead(buf)
	buf = buf[:got]

	var deliveries []link.Frame
	consumed := 0
	for {
		remaining := buf[consumed:]
		f, used, err := link.Decode(remaining)
		if err != nil {
			if err == dnp3.ErrFrameFormat || err == dnp3.ErrChecksum {
				consumed++ // resync: drop one byte and keep scanning for start bytes
				if consumed >= len(buf) {
					break
				}
				continue
			}
			break // ErrBadLength: wait for more bytes
		}
		consumed += used
		m.Stats.Get(dnp3.FramesReceived).Add(1)
		deliveries = append(deliveries, f)
	}

	if consumed > 0 {
		m.rx.AltBegin(consumed)
		m.rx.AltCommit()
	}

	m.mu.Unlock()

	for _, f := range deliveries {
		m.route(f)
	}
}

func (m *Manager) route(f link.Frame) {
	m.mu.Lock()
	r := route{f.Source, f.Destination}
	s, ok := m.sessions[r]
	if !ok {
		m.Stats.Get(dnp3.UnexpectedBytesReceived).Add(uint64(len(f.UserData)))
		log.WithFields(log.Fields{"source": f.Source, "destination": f.Destination}).
			Debug("channel: dropping frame for unknown route")
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	s.OnFrame(f)
}
