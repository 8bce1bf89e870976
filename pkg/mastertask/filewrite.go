package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

type fileWriteState byte

const (
	fileWriteOpening fileWriteState = iota
	fileWriteWriting
	fileWriteClosing
	fileWriteDone
)

// FileWrite implements the master-side OPEN_FILE / WRITE... / CLOSE_FILE
// sequence of §4.F. A HANDLE_TIMEOUT status on a WRITE reopens the file
// once and resumes from the first block; a second HANDLE_TIMEOUT fails the
// task outright.
type FileWrite struct {
	Path      string
	BlockSize uint16
	Data      []byte

	state        fileWriteState
	handle       uint32
	blockNumber  uint32
	offset       int
	reopenedOnce bool
}

func NewFileWrite(path string, blockSize uint16, data []byte) *FileWrite {
	return &FileWrite{Path: path, BlockSize: blockSize, Data: data, state: fileWriteOpening}
}

func (t *FileWrite) Name() string                { return "file_write:" + t.Path }
func (t *FileWrite) Priority() sched.Priority     { return sched.PriorityFileOp }
func (t *FileWrite) TaskType() sched.TaskType     { return sched.TaskTypeFileTransfer }
func (t *FileWrite) IsRecurring() bool            { return false }
func (t *FileWrite) BlocksLowerPriority() bool    { return false }
func (t *FileWrite) OnStart()                     {}
func (t *FileWrite) Fail(dnp3.TaskResult)         {}

func (t *FileWrite) nextBlock() ([]byte, bool) {
	start := t.offset
	if start > len(t.Data) {
		start = len(t.Data)
	}
	end := start + int(t.BlockSize)
	last := false
	if end >= len(t.Data) {
		end = len(t.Data)
		last = true
	}
	return t.Data[start:end], last
}

func (t *FileWrite) BuildRequest() (byte, []byte, bool, error) {
	switch t.state {
	case fileWriteOpening:
		cmd := &object.FileCommand{Mode: object.FileModeWrite, BlockSize: t.BlockSize, FileSize: uint32(len(t.Data)), Name: t.Path}
		buf := append([]byte{70, 3, byte(object.QualifierFreeFormat), 1}, cmd.Encode(nil)...)
		return byte(app.FuncOpenFile), buf, false, nil
	case fileWriteWriting:
		data, last := t.nextBlock()
		obj := &object.FileTransport{Handle: t.handle, BlockNumber: t.blockNumber, IsLast: last, Data: data}
		buf := append([]byte{70, 5, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncWrite), buf, false, nil
	case fileWriteClosing:
		obj := &object.FileCommandStatus{Handle: t.handle}
		buf := append([]byte{70, 4, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncCloseFile), buf, false, nil
	}
	return 0, nil, false, dnp3.ErrIllegalArgument
}

func (t *FileWrite) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	_, rest, err := decodeHeaderObject(objects)
	if err != nil {
		return dnp3.TaskFailureBadResponse, true
	}

	switch t.state {
	case fileWriteOpening:
		status := &object.FileCommandStatus{}
		if _, err := status.Decode(rest); err != nil || status.Status != object.FileStatusSuccess {
			return dnp3.TaskFailureBadResponse, true
		}
		t.handle = status.Handle
		t.state = fileWriteWriting
		return dnp3.TaskSuccess, false

	case fileWriteWriting:
		ack := &object.FileTransportStatus{}
		if _, err := ack.Decode(rest); err != nil {
			return dnp3.TaskFailureBadResponse, true
		}
		switch ack.Status {
		case object.FileStatusSuccess:
			_, last := t.nextBlock()
			if last {
				t.state = fileWriteClosing
				return dnp3.TaskSuccess, false
			}
			t.offset += int(t.BlockSize)
			t.blockNumber++
			return dnp3.TaskSuccess, false
		case object.FileStatusHandleTimeout:
			if t.reopenedOnce {
				return dnp3.TaskFailureBadResponse, true
			}
			t.reopenedOnce = true
			t.state = fileWriteOpening
			t.blockNumber = 0
			t.offset = 0
			return dnp3.TaskSuccess, false
		default:
			return dnp3.TaskFailureBadResponse, true
		}

	case fileWriteClosing:
		t.state = fileWriteDone
		return dnp3.TaskSuccess, true
	}
	return dnp3.TaskFailureBadResponse, true
}
