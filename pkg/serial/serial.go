// Package serial supplies the one concrete, optional IOHandler backend for
// pkg/channel: a go.bug.st/serial-backed handler for Serial-kind channels.
// Concrete sockets/ports are out of scope for the core stack per spec.md
// §1; this package exists purely as a convenience adapter, the same role
// the teacher's pkg/can/socketcan* backends play behind pkg/can.Bus.
package serial

import (
	"io"
	"sync"

	"github.com/kjheidel/godnp3/pkg/channel"
	log "github.com/sirupsen/logrus"
	bugst "go.bug.st/serial"
)

// Settings configures the serial port, mapping directly onto
// go.bug.st/serial's Mode.
type Settings struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits bugst.StopBits
	Parity   bugst.Parity
}

func DefaultSettings(device string, baudRate int) Settings {
	return Settings{
		Device:   device,
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: bugst.OneStopBit,
		Parity:   bugst.NoParity,
	}
}

// Handler wraps an open serial port as a channel.IOHandler. Reads run on
// a dedicated goroutine (the port library has no async read API),
// forwarding chunks to the sink as they arrive. Writes happen inline on
// the caller's strand, but OnTxWritten is reported back on its own
// goroutine rather than inline: the caller is the Manager's own Transmit/
// pumpLocked path, already holding its lock, and OnTxWritten re-enters
// that same lock — calling it inline would deadlock the caller against
// itself.
type Handler struct {
	settings Settings

	mu     sync.Mutex
	port   bugst.Port
	sink   channel.FrameSink
	closed chan struct{}
}

func NewHandler(settings Settings) *Handler {
	return &Handler{settings: settings}
}

func mode(s Settings) *bugst.Mode {
	return &bugst.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
	}
}

func (h *Handler) Prepare(sink channel.FrameSink) error {
	port, err := bugst.Open(h.settings.Device, mode(h.settings))
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.port = port
	h.sink = sink
	h.closed = make(chan struct{})
	h.mu.Unlock()

	go h.readLoop()
	return nil
}

func (h *Handler) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := h.port.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			h.sink.OnFrame(data)
		}
		if err != nil {
			select {
			case <-h.closed:
				return
			default:
			}
			if err != io.EOF {
				log.WithError(err).Debug("serial: read error")
			}
			return
		}
	}
}

func (h *Handler) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed != nil {
		close(h.closed)
		h.closed = nil
	}
	if h.port == nil {
		return nil
	}
	err := h.port.Close()
	h.port = nil
	return err
}

func (h *Handler) Transmit(data []byte) error {
	h.mu.Lock()
	port := h.port
	sink := h.sink
	h.mu.Unlock()

	if port == nil {
		return io.ErrClosedPipe
	}
	if _, err := port.Write(data); err != nil {
		return err
	}
	go sink.OnTxWritten()
	return nil
}

// Factory adapts Handler construction to channel.IOHandlerFactory,
// deriving each handler's device/baud from the ConnectionOptions the
// Manager passes at (re)open time.
func Factory() channel.IOHandlerFactory {
	return func(opts channel.ConnectionOptions) (channel.IOHandler, error) {
		return NewHandler(DefaultSettings(opts.Device, opts.BaudRate)), nil
	}
}
