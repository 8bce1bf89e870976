package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

type fileReadState byte

const (
	fileReadOpening fileReadState = iota
	fileReadReading
	fileReadClosing
	fileReadDone
)

// FileRead implements the master-side OPEN_FILE / READ... / CLOSE_FILE
// sequence of §4.F, appending each received block to Data (or, if OnChunk
// is set, streaming it there instead) until the outstation marks a block
// as the last one.
type FileRead struct {
	Path      string
	BlockSize uint16
	OnChunk   func(data []byte, isLast bool)
	Data      []byte

	state       fileReadState
	handle      uint32
	blockNumber uint32
}

func NewFileRead(path string, blockSize uint16) *FileRead {
	return &FileRead{Path: path, BlockSize: blockSize, state: fileReadOpening}
}

func (t *FileRead) Name() string                { return "file_read:" + t.Path }
func (t *FileRead) Priority() sched.Priority     { return sched.PriorityFileOp }
func (t *FileRead) TaskType() sched.TaskType     { return sched.TaskTypeFileTransfer }
func (t *FileRead) IsRecurring() bool            { return false }
func (t *FileRead) BlocksLowerPriority() bool    { return false }
func (t *FileRead) OnStart()                     {}
func (t *FileRead) Fail(dnp3.TaskResult)         {}

func (t *FileRead) BuildRequest() (byte, []byte, bool, error) {
	switch t.state {
	case fileReadOpening:
		cmd := &object.FileCommand{Mode: object.FileModeRead, BlockSize: t.BlockSize, Name: t.Path}
		buf := append([]byte{70, 3, byte(object.QualifierFreeFormat), 1}, cmd.Encode(nil)...)
		return byte(app.FuncOpenFile), buf, false, nil
	case fileReadReading:
		obj := &object.FileTransport{Handle: t.handle, BlockNumber: t.blockNumber}
		buf := append([]byte{70, 5, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncRead), buf, false, nil
	case fileReadClosing:
		obj := &object.FileCommandStatus{Handle: t.handle}
		buf := append([]byte{70, 4, byte(object.QualifierFreeFormat), 1}, obj.Encode(nil)...)
		return byte(app.FuncCloseFile), buf, false, nil
	}
	return 0, nil, false, dnp3.ErrIllegalArgument
}

func (t *FileRead) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	_, rest, err := decodeHeaderObject(objects)
	if err != nil {
		return dnp3.TaskFailureBadResponse, true
	}

	switch t.state {
	case fileReadOpening:
		status := &object.FileCommandStatus{}
		if _, err := status.Decode(rest); err != nil || status.Status != object.FileStatusSuccess {
			return dnp3.TaskFailureBadResponse, true
		}
		t.handle = status.Handle
		t.state = fileReadReading
		return dnp3.TaskSuccess, false

	case fileReadReading:
		block := &object.FileTransport{}
		if _, err := block.Decode(rest); err != nil {
			return dnp3.TaskFailureBadResponse, true
		}
		if t.OnChunk != nil {
			t.OnChunk(block.Data, block.IsLast)
		} else {
			t.Data = append(t.Data, block.Data...)
		}
		if block.IsLast {
			t.state = fileReadClosing
			return dnp3.TaskSuccess, false
		}
		t.blockNumber++
		return dnp3.TaskSuccess, false

	case fileReadClosing:
		t.state = fileReadDone
		return dnp3.TaskSuccess, true
	}
	return dnp3.TaskFailureBadResponse, true
}
