package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

type dirListingState byte

const (
	dirListingOpening dirListingState = iota
	dirListingReading
	dirListingClosing
	dirListingDone
)

// FileInfo is one decoded Group 70 Variation 7 directory entry, mirroring
// the original implementation's DNPFileInfo shape (§4 SUPPLEMENTED
// FEATURES).
type FileInfo struct {
	Name        string
	Size        uint32
	Type        uint16
	CTime       uint64
	Permissions uint16
}

// DirListing implements the directory-listing procedure of §4.F: the
// directory path is opened like a file, its READ stream is a packed run
// of Group 70 Variation 7 descriptors, and CLOSE ends the transfer.
type DirListing struct {
	Path      string
	BlockSize uint16
	Entries   []FileInfo

	state       dirListingState
	handle      uint32
	blockNumber uint32
	buf         []byte
}

func NewDirListing(path string, blockSize uint16) *DirListing {
	return &DirListing{Path: path, BlockSize: blockSize, state: dirListingOpening}
}

func (t *DirListing) Name() string                { return "dir_listing:" + t.Path }
func (t *DirListing) Priority() sched.Priority     { return sched.PriorityFileOp }
func (t *DirListing) TaskType() sched.TaskType     { return sched.TaskTypeFileTransfer }
func (t *DirListing) IsRecurring() bool            { return false }
func (t *DirListing) BlocksLowerPriority() bool    { return false }
func (t *DirListing) OnStart()                     {}
func (t *DirListing) Fail(dnp3.TaskResult)          {}

func (t *DirListing) BuildRequest() (byte, []byte, bool, error) {
	switch t.state {
	case dirListingOpening:
		cmd := &object.FileCommand{Mode: object.FileModeRead, BlockSize: t.BlockSize, Name: t.Path}
		buf := append([]byte{70, 3, byte(object.QualifierFreeFormat), 1}, cmd.Encode(nil)...)
		return byte(app.FuncOpenFile), buf, false, nil
	case dirListingReading:
		obj := &object.FileTransport{Handle: t.handle, BlockNumber: t.blockNumber}
		buf := append([]byte{70, 5, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncRead), buf, false, nil
	case dirListingClosing:
		obj := &object.FileCommandStatus{Handle: t.handle}
		buf := append([]byte{70, 4, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncCloseFile), buf, false, nil
	}
	return 0, nil, false, dnp3.ErrIllegalArgument
}

func (t *DirListing) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	_, rest, err := decodeHeaderObject(objects)
	if err != nil {
		return dnp3.TaskFailureBadResponse, true
	}

	switch t.state {
	case dirListingOpening:
		status := &object.FileCommandStatus{}
		if _, err := status.Decode(rest); err != nil || status.Status != object.FileStatusSuccess {
			return dnp3.TaskFailureBadResponse, true
		}
		t.handle = status.Handle
		t.state = dirListingReading
		return dnp3.TaskSuccess, false

	case dirListingReading:
		block := &object.FileTransport{}
		if _, err := block.Decode(rest); err != nil {
			return dnp3.TaskFailureBadResponse, true
		}
		t.buf = append(t.buf, block.Data...)
		if block.IsLast {
			if err := t.parseDescriptors(); err != nil {
				return dnp3.TaskFailureBadResponse, true
			}
			t.state = dirListingClosing
			return dnp3.TaskSuccess, false
		}
		t.blockNumber++
		return dnp3.TaskSuccess, false

	case dirListingClosing:
		t.state = dirListingDone
		return dnp3.TaskSuccess, true
	}
	return dnp3.TaskFailureBadResponse, true
}

func (t *DirListing) parseDescriptors() error {
	buf := t.buf
	for len(buf) > 0 {
		d := &object.FileDescriptor{}
		rest, err := d.Decode(buf)
		if err != nil {
			return err
		}
		t.Entries = append(t.Entries, FileInfo{
			Name:        d.Name,
			Size:        d.Size,
			Type:        d.Type,
			CTime:       d.CTime,
			Permissions: d.Permissions,
		})
		buf = rest
	}
	return nil
}
