// Command godnp3 is a minimal demo binary wiring a Channel Manager, a
// Group 70 file worker, and an outstation Application together over a
// serial link, analogous to the teacher's cmd/canopen/main.go bringing up
// a socketcan bus, a BusManager, and a Node. Not part of the tested core;
// real deployments are expected to assemble these same packages
// themselves with application-specific point databases and command
// handlers.
package main

import (
	"flag"
	"io"
	"os"
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/channel"
	"github.com/kjheidel/godnp3/pkg/config"
	"github.com/kjheidel/godnp3/pkg/file"
	"github.com/kjheidel/godnp3/pkg/link"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/outstation"
	"github.com/kjheidel/godnp3/pkg/serial"
	"github.com/kjheidel/godnp3/pkg/transport"
	log "github.com/sirupsen/logrus"
)

var DefaultOutstationAddr = 10
var DefaultMasterAddr = 1

func main() {
	log.SetLevel(log.InfoLevel)

	device := flag.String("device", "/dev/ttyUSB0", "serial device")
	baud := flag.Int("baud", 9600, "serial baud rate")
	outstationAddr := flag.Int("outstation-addr", DefaultOutstationAddr, "outstation link address")
	masterAddr := flag.Int("master-addr", DefaultMasterAddr, "master link address")
	channelConfigPath := flag.String("channel-config", "", "ini file with [primary]/[backup]/[retry]/[backoff] sections (overrides -device/-baud)")
	fileRoot := flag.String("file-root", ".", "directory root served over Group 70 file transfer")
	pollPeriod := flag.Duration("poll-period", 200*time.Millisecond, "unsolicited-response poll period")
	flag.Parse()

	stackCfg := config.DefaultStackConfig()
	if *channelConfigPath != "" {
		chCfg, err := config.LoadChannelConfig(*channelConfigPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load channel config")
		}
		stackCfg.Channel = chCfg
	} else {
		stackCfg.Channel.Primary = channel.ConnectionOptions{
			Kind:     channel.KindSerial,
			Device:   *device,
			BaudRate: *baud,
		}
	}

	mgr := channel.New(stackCfg.Channel.Primary, serial.Factory())
	mgr.Retry = stackCfg.Channel.Retry
	if stackCfg.Channel.HasBackup {
		mgr.SetBackup(stackCfg.Channel.Backup, stackCfg.Channel.Backoff)
	}

	outstationApp := outstation.NewApplication(outstation.DefaultConfig())
	outstationApp.Files = file.NewWorker(stackCfg.File, newOSFileSystem(*fileRoot))
	outstationApp.Clock = clockLogger{}

	sess := newOutstationSession(uint16(*outstationAddr), uint16(*masterAddr), mgr, outstationApp)
	if err := mgr.RegisterSession(sess); err != nil {
		log.WithError(err).Fatal("failed to register outstation session")
	}

	if err := mgr.Open(); err != nil {
		log.WithError(err).Fatal("failed to open channel")
	}

	ticker := time.NewTicker(*pollPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if resp, due := outstationApp.PollUnsolicited(); due {
			sess.sendResponse(resp)
		}
	}
}

// clockLogger is a ClockSetter that only logs; a real deployment would
// adjust some local clock reference instead.
type clockLogger struct{}

func (clockLogger) SetTime(t time.Time) {
	log.WithField("time", t).Info("outstation: clock set by master")
}

// outstationSession wires one link.Endpoint/transport.Reassembler pair and
// an outstation.Application to a channel.Manager, implementing
// channel.Session. Outgoing link frames are queued and drained one at a
// time, honoring the Manager's single-write-in-flight contract the same
// way its own txQueue does internally.
type outstationSession struct {
	endpoint     *link.Endpoint
	reassembler  *transport.Reassembler
	app          *outstation.Application
	mgr          *channel.Manager
	outgoing     [][]byte
	transmitting bool
}

func newOutstationSession(local, remote uint16, mgr *channel.Manager, a *outstation.Application) *outstationSession {
	return &outstationSession{
		endpoint:    link.NewEndpoint(local, remote, dnp3.NewRegistry(false)),
		reassembler: transport.NewReassembler(4096),
		app:         a,
		mgr:         mgr,
	}
}

func (s *outstationSession) Route() (source, destination uint16) {
	return s.endpoint.LocalAddr, s.endpoint.RemoteAddr
}

func (s *outstationSession) OnFrame(f link.Frame) {
	result := s.endpoint.OnFrame(f)
	if result.Reply != nil {
		s.enqueueFrame(*result.Reply)
	}
	if result.UserData == nil {
		return
	}
	apdu, done, err := s.reassembler.Accept(result.UserData)
	if err != nil {
		log.WithError(err).Debug("outstation: transport segment rejected")
		return
	}
	if !done {
		return
	}
	req, err := app.DecodeRequest(apdu)
	if err != nil {
		log.WithError(err).Debug("outstation: malformed request fragment")
		return
	}
	resp, _ := s.app.HandleRequest(req)
	s.sendResponse(resp)
}

func (s *outstationSession) sendResponse(resp app.Response) {
	apdu := app.EncodeResponse(resp)
	for _, segment := range transport.Segment(apdu, 0) {
		s.enqueueFrame(s.endpoint.BuildConfirmedUserData(segment))
	}
	s.pump()
}

func (s *outstationSession) enqueueFrame(f link.Frame) {
	encoded, err := link.Encode(f)
	if err != nil {
		log.WithError(err).Debug("outstation: failed to encode outgoing frame")
		return
	}
	s.outgoing = append(s.outgoing, encoded)
}

func (s *outstationSession) pump() {
	if s.transmitting || len(s.outgoing) == 0 {
		return
	}
	s.transmitting = true
	s.mgr.Transmit(s, s.outgoing[0])
}

func (s *outstationSession) OnTxReady() {
	if len(s.outgoing) > 0 {
		s.outgoing = s.outgoing[1:]
	}
	s.transmitting = false
	s.pump()
}

func (s *outstationSession) LowerLayerUp() {
	log.Info("outstation: lower layer up, sending startup null response")
	s.sendResponse(s.app.Startup())
}

func (s *outstationSession) LowerLayerDown() {
	log.Warn("outstation: lower layer down")
	s.reassembler.Reset()
	s.outgoing = nil
	s.transmitting = false
}

// osFileSystem is a disk-backed file.FileSystem rooted at a fixed
// directory, the concrete seam the File Transfer Worker is injected with
// outside of tests (which use an in-memory fake instead).
type osFileSystem struct {
	root string
}

func newOSFileSystem(root string) *osFileSystem {
	return &osFileSystem{root: root}
}

func (fs *osFileSystem) resolve(path string) string {
	return fs.root + string(os.PathSeparator) + path
}

func (fs *osFileSystem) Open(path string, mode object.FileMode) (file.Handle, error) {
	flag := os.O_RDONLY
	if mode == object.FileModeWrite {
		flag = os.O_WRONLY | os.O_CREATE
	}
	f, err := os.OpenFile(fs.resolve(path), flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &osHandle{f: f}, nil
}

func (fs *osFileSystem) Stat(path string) (file.Info, error) {
	info, err := os.Stat(fs.resolve(path))
	if err != nil {
		return file.Info{}, err
	}
	return toInfo(info), nil
}

func (fs *osFileSystem) Remove(path string) error {
	return os.Remove(fs.resolve(path))
}

func (fs *osFileSystem) ReadDir(path string) ([]file.Info, error) {
	entries, err := os.ReadDir(fs.resolve(path))
	if err != nil {
		return nil, err
	}
	infos := make([]file.Info, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, toInfo(fi))
	}
	return infos, nil
}

func toInfo(fi os.FileInfo) file.Info {
	mode := fi.Mode()
	perm := file.Perm{
		OwnerRead: mode&0o400 != 0, OwnerWrite: mode&0o200 != 0, OwnerExec: mode&0o100 != 0,
		GroupRead: mode&0o040 != 0, GroupWrite: mode&0o020 != 0, GroupExec: mode&0o010 != 0,
		WorldRead: mode&0o004 != 0, WorldWrite: mode&0o002 != 0, WorldExec: mode&0o001 != 0,
	}
	return file.Info{
		Name:        fi.Name(),
		Size:        uint32(fi.Size()),
		IsDirectory: fi.IsDir(),
		CTime:       fi.ModTime(),
		Perm:        perm,
	}
}

type osHandle struct {
	f *os.File
}

func (h *osHandle) ReadBlock(size int) (data []byte, isLast bool, err error) {
	buf := make([]byte, size)
	n, err := h.f.Read(buf)
	if err != nil && n == 0 {
		return nil, true, err
	}
	_, peekErr := h.f.Read(make([]byte, 1))
	last := peekErr != nil
	if !last {
		if _, err := h.f.Seek(-1, io.SeekCurrent); err != nil {
			return nil, true, err
		}
	}
	return buf[:n], last, nil
}

func (h *osHandle) WriteBlock(data []byte, isLast bool) error {
	_, err := h.f.Write(data)
	return err
}

func (h *osHandle) Close() error {
	return h.f.Close()
}
