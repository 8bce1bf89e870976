// Package file implements the File Transfer Worker of §4.H: the Group 70
// object family's OPEN/READ/WRITE/CLOSE/DELETE/GET_FILE_INFO handling, a
// per-instance handle table, and directory-listing descriptor encoding.
// Concrete filesystem access is injected through the FileSystem interface;
// this package never touches the OS filesystem itself, per spec.md §1.
//
// Grounded on the teacher's pkg/od/streamer.go Stream/Streamer
// abstraction: a Stream there is a cursor over one OD entry's byte
// representation, read block-by-block by SDO; a file.Handle here is the
// same idea generalized to a cursor over file content addressed by DNP3
// block number.
package file

import (
	"strings"
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	log "github.com/sirupsen/logrus"
)

// Perm is the outstation-side decomposition of a file's permission bits,
// mapped onto the 9-bit DNP permission field by Encode, per §4.H/§6.1.
type Perm struct {
	OwnerRead, OwnerWrite, OwnerExec bool
	GroupRead, GroupWrite, GroupExec bool
	WorldRead, WorldWrite, WorldExec bool
}

func (p Perm) Encode() uint16 {
	var v uint16
	if p.OwnerRead {
		v |= object.PermOwnerRead
	}
	if p.OwnerWrite {
		v |= object.PermOwnerWrite
	}
	if p.OwnerExec {
		v |= object.PermOwnerExec
	}
	if p.GroupRead {
		v |= object.PermGroupRead
	}
	if p.GroupWrite {
		v |= object.PermGroupWrite
	}
	if p.GroupExec {
		v |= object.PermGroupExec
	}
	if p.WorldRead {
		v |= object.PermWorldRead
	}
	if p.WorldWrite {
		v |= object.PermWorldWrite
	}
	if p.WorldExec {
		v |= object.PermWorldExec
	}
	return v
}

// Info describes one filesystem entry, returned by FileSystem.Stat and
// FileSystem.ReadDir.
type Info struct {
	Name        string
	Size        uint32
	IsDirectory bool
	CTime       time.Time
	Perm        Perm
}

// Handle is a caller-supplied cursor over one open file's content.
// ReadBlock/WriteBlock are called once per block, in block order starting
// at block 0; the worker does not reorder or retry at this layer.
type Handle interface {
	ReadBlock(size int) (data []byte, isLast bool, err error)
	WriteBlock(data []byte, isLast bool) error
	Close() error
}

// FileSystem is the injected filesystem seam. Concrete implementations
// (local disk, virtual, read-only archive, ...) are out of scope per
// spec.md §1.
type FileSystem interface {
	Open(path string, mode object.FileMode) (Handle, error)
	Stat(path string) (Info, error)
	Remove(path string) error
	ReadDir(path string) ([]Info, error)
}

// Config holds the File Transfer Worker's settings, exactly per §4.H.
type Config struct {
	Enabled          bool
	MaxOpenFiles     int
	OverwriteOnWrite bool
	PermitDelete     bool
	PreferredTxBlock uint16
	PreferredRxBlock uint16
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxOpenFiles:     16,
		OverwriteOnWrite: false,
		PermitDelete:     false,
		PreferredTxBlock: 2048,
		PreferredRxBlock: 2048,
	}
}

type openFile struct {
	path        string
	mode        object.FileMode
	handle      Handle
	blockNumber uint32
	blockSize   uint16
}

// Worker is the File Transfer Worker. Its handle-id counter is
// per-instance (§9: the one piece of process-global mutable state in the
// teacher's file-adjacent SDO block transfer is made per-instance here).
type Worker struct {
	Config Config
	FS     FileSystem

	nextHandle uint32
	open       map[uint32]*openFile
	pathToID   map[string]uint32
}

func NewWorker(cfg Config, fs FileSystem) *Worker {
	return &Worker{
		Config:     cfg,
		FS:         fs,
		nextHandle: 1,
		open:       make(map[uint32]*openFile),
		pathToID:   make(map[string]uint32),
	}
}

// HandleFileRequest implements outstation.FileTransferHandler, dispatching
// on fc to the matching Group 70 operation.
func (w *Worker) HandleFileRequest(fc byte, objects []byte) ([]byte, app.IIN) {
	if !w.Config.Enabled {
		return w.statusResponse(0, object.FileStatusPermissionDenied), app.IINFuncNotSupported
	}

	switch app.FunctionCode(fc) {
	case app.FuncOpenFile:
		return w.open_(objects)
	case app.FuncCloseFile:
		return w.close_(objects)
	case app.FuncDeleteFile:
		return w.delete_(objects)
	case app.FuncGetFileInfo:
		return w.getInfo(objects)
	case app.FuncRead:
		return w.read(objects)
	case app.FuncWrite:
		return w.write(objects)
	default:
		return nil, app.IINFuncNotSupported
	}
}

func (w *Worker) statusResponse(handle uint32, status object.FileStatus) []byte {
	resp := &object.FileCommandStatus{Handle: handle, Status: status}
	return append([]byte{70, 4, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...)
}

func decodeFileCommand(objects []byte) (*object.FileCommand, error) {
	_, rest, err := object.ParseHeader(objects)
	if err != nil {
		return nil, err
	}
	cmd := &object.FileCommand{}
	if _, err := cmd.Decode(rest); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeFileCommandStatus(objects []byte) (*object.FileCommandStatus, error) {
	_, rest, err := object.ParseHeader(objects)
	if err != nil {
		return nil, err
	}
	s := &object.FileCommandStatus{}
	if _, err := s.Decode(rest); err != nil {
		return nil, err
	}
	return s, nil
}

func (w *Worker) open_(objects []byte) ([]byte, app.IIN) {
	cmd, err := decodeFileCommand(objects)
	if err != nil {
		return w.statusResponse(0, object.FileStatusFatalError), app.IINParameterError
	}

	if len(w.open) >= w.Config.MaxOpenFiles {
		return w.statusResponse(0, object.FileStatusOpenCountExceeded), 0
	}
	if _, locked := w.pathToID[cmd.Name]; locked {
		return w.statusResponse(0, object.FileStatusFileLocked), 0
	}
	if cmd.Mode == object.FileModeWrite && !w.Config.OverwriteOnWrite {
		if _, statErr := w.FS.Stat(cmd.Name); statErr == nil {
			return w.statusResponse(0, object.FileStatusFileAlreadyExists), 0
		}
	}

	var h Handle
	if info, statErr := w.FS.Stat(cmd.Name); statErr == nil && info.IsDirectory && cmd.Mode == object.FileModeRead {
		entries, err := w.FS.ReadDir(cmd.Name)
		if err != nil {
			return w.statusResponse(0, object.FileStatusFileNotFound), 0
		}
		h = newListingHandle(cmd.Name, entries)
	} else {
		var err error
		h, err = w.FS.Open(cmd.Name, cmd.Mode)
		if err != nil {
			log.WithError(err).WithField("path", cmd.Name).Debug("file: open failed")
			return w.statusResponse(0, object.FileStatusFileNotFound), 0
		}
	}

	blockSize := cmd.BlockSize
	preferred := w.Config.PreferredTxBlock
	if cmd.Mode == object.FileModeWrite {
		preferred = w.Config.PreferredRxBlock
	}
	if blockSize == 0 || blockSize > preferred {
		blockSize = preferred
	}

	var size uint32
	if info, err := w.FS.Stat(cmd.Name); err == nil {
		size = info.Size
	}

	id := w.nextHandle
	w.nextHandle++
	w.open[id] = &openFile{path: cmd.Name, mode: cmd.Mode, handle: h, blockSize: blockSize}
	w.pathToID[cmd.Name] = id

	resp := &object.FileCommandStatus{Handle: id, Size: size, BlockSize: blockSize, RequestID: cmd.RequestID, Status: object.FileStatusSuccess}
	return append([]byte{70, 4, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
}

func (w *Worker) close_(objects []byte) ([]byte, app.IIN) {
	s, err := decodeFileCommandStatus(objects)
	if err != nil {
		return w.statusResponse(0, object.FileStatusFatalError), app.IINParameterError
	}
	of, ok := w.open[s.Handle]
	if !ok {
		return w.statusResponse(s.Handle, object.FileStatusFatalError), 0
	}
	closeErr := of.handle.Close()
	delete(w.open, s.Handle)
	delete(w.pathToID, of.path)
	if closeErr != nil {
		return w.statusResponse(s.Handle, object.FileStatusFatalError), 0
	}
	return w.statusResponse(s.Handle, object.FileStatusSuccess), 0
}

func (w *Worker) delete_(objects []byte) ([]byte, app.IIN) {
	cmd, err := decodeFileCommand(objects)
	if err != nil {
		return w.statusResponse(0, object.FileStatusFatalError), app.IINParameterError
	}
	if !w.Config.PermitDelete {
		return w.statusResponse(0, object.FileStatusPermissionDenied), 0
	}
	if _, locked := w.pathToID[cmd.Name]; locked {
		return w.statusResponse(0, object.FileStatusFileLocked), 0
	}
	if err := w.FS.Remove(cmd.Name); err != nil {
		return w.statusResponse(0, object.FileStatusFileNotFound), 0
	}
	return w.statusResponse(0, object.FileStatusSuccess), 0
}

func (w *Worker) getInfo(objects []byte) ([]byte, app.IIN) {
	cmd, err := decodeFileCommand(objects)
	if err != nil {
		return w.statusResponse(0, object.FileStatusFatalError), app.IINParameterError
	}
	info, err := w.FS.Stat(cmd.Name)
	if err != nil {
		return w.statusResponse(0, object.FileStatusFileNotFound), 0
	}
	desc := directoryDescriptor(cmd.Name, info)
	buf := append([]byte{70, 7, byte(object.QualifierFreeFormat), 1}, desc.Encode(nil)...)
	return buf, 0
}

func (w *Worker) read(objects []byte) ([]byte, app.IIN) {
	_, rest, err := object.ParseHeader(objects)
	if err != nil {
		return nil, app.IINParameterError
	}
	req := &object.FileTransport{}
	if _, err := req.Decode(rest); err != nil {
		return nil, app.IINParameterError
	}

	of, ok := w.open[req.Handle]
	if !ok {
		resp := &object.FileTransportStatus{Handle: req.Handle, BlockNumber: req.BlockNumber, Status: object.FileStatusFatalError}
		return append([]byte{70, 6, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
	}

	readSize := w.Config.PreferredTxBlock
	if of.blockSize != 0 && of.blockSize < readSize {
		readSize = of.blockSize
	}
	data, isLast, err := of.handle.ReadBlock(int(readSize))
	if err != nil {
		resp := &object.FileTransportStatus{Handle: req.Handle, BlockNumber: req.BlockNumber, Status: object.FileStatusFatalError}
		return append([]byte{70, 6, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
	}

	block := &object.FileTransport{Handle: req.Handle, BlockNumber: of.blockNumber, IsLast: isLast, Data: data}
	of.blockNumber++
	return append([]byte{70, 5, byte(object.QualifierFreeFormat), 1}, block.Encode(nil)...), 0
}

func (w *Worker) write(objects []byte) ([]byte, app.IIN) {
	_, rest, err := object.ParseHeader(objects)
	if err != nil {
		return nil, app.IINParameterError
	}
	block := &object.FileTransport{}
	if _, err := block.Decode(rest); err != nil {
		return nil, app.IINParameterError
	}

	of, ok := w.open[block.Handle]
	if !ok {
		resp := &object.FileTransportStatus{Handle: block.Handle, BlockNumber: block.BlockNumber, Status: object.FileStatusHandleTimeout}
		return append([]byte{70, 6, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
	}

	if block.BlockNumber != of.blockNumber {
		resp := &object.FileTransportStatus{Handle: block.Handle, BlockNumber: block.BlockNumber, Status: object.FileStatusBlockSeqError}
		return append([]byte{70, 6, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
	}

	status := object.FileStatusSuccess
	if err := of.handle.WriteBlock(block.Data, block.IsLast); err != nil {
		status = object.FileStatusFatalError
	} else {
		of.blockNumber++
	}

	resp := &object.FileTransportStatus{Handle: block.Handle, BlockNumber: block.BlockNumber, Status: status}
	return append([]byte{70, 6, byte(object.QualifierFreeFormat), 1}, resp.Encode(nil)...), 0
}

// OpenCount reports how many handles are currently open, for tests and
// diagnostics.
func (w *Worker) OpenCount() int { return len(w.open) }

func directoryDescriptor(name string, info Info) *object.FileDescriptor {
	typ := uint16(1) // regular file, per §6.1's Group 70 Var 7 type field
	if info.IsDirectory {
		typ = 2
	}
	return &object.FileDescriptor{
		Type:        typ,
		Size:        info.Size,
		CTime:       uint64(info.CTime.UnixMilli()),
		Permissions: info.Perm.Encode(),
		Name:        name,
	}
}

// listingHandle serves a directory's entries as a sequence of Group 70
// Variation 7 descriptors, read like any other file's content. This lets
// directory listing reuse the same OPEN/READ/CLOSE state machine as a
// regular file read instead of needing its own function codes.
type listingHandle struct {
	buf []byte
	pos int
}

func newListingHandle(dir string, entries []Info) *listingHandle {
	var buf []byte
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." || strings.HasPrefix(e.Name, ".") {
			continue
		}
		desc := directoryDescriptor(e.Name, e)
		buf = append(buf, desc.Encode(nil)...)
	}
	return &listingHandle{buf: buf}
}

func (h *listingHandle) ReadBlock(size int) ([]byte, bool, error) {
	if size <= 0 {
		size = len(h.buf)
	}
	end := h.pos + size
	if end >= len(h.buf) {
		end = len(h.buf)
	}
	data := h.buf[h.pos:end]
	h.pos = end
	return data, h.pos >= len(h.buf), nil
}

func (h *listingHandle) WriteBlock(data []byte, isLast bool) error {
	return dnp3.ErrIllegalArgument
}

func (h *listingHandle) Close() error { return nil }
