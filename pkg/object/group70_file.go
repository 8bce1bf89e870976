package object

import "encoding/binary"

func init() {
	Register(70, 3, func() Object { return &FileCommand{} })
	Register(70, 4, func() Object { return &FileCommandStatus{} })
	Register(70, 5, func() Object { return &FileTransport{} })
	Register(70, 6, func() Object { return &FileTransportStatus{} })
	Register(70, 7, func() Object { return &FileDescriptor{} })
}

// FileMode is the Group 70 Variation 3 mode field.
type FileMode uint16

const (
	FileModeDelete FileMode = 0
	FileModeRead   FileMode = 1
	FileModeWrite  FileMode = 2
)

// FileStatus enumerates the outstation's per-operation result code, carried
// in Group 70 Variation 4's Status field and Variation 6's Status field.
type FileStatus byte

const (
	FileStatusSuccess           FileStatus = 0
	FileStatusPermissionDenied  FileStatus = 1
	FileStatusInvalidMode       FileStatus = 2
	FileStatusFileNotFound      FileStatus = 3
	FileStatusFileLocked        FileStatus = 4
	FileStatusTooManyOpen       FileStatus = 5
	FileStatusFileAlreadyExists FileStatus = 6
	FileStatusOpenCountExceeded FileStatus = 7
	FileStatusHandleTimeout     FileStatus = 8
	FileStatusBufferOverrun     FileStatus = 9
	FileStatusFatalError        FileStatus = 10
	FileStatusBlockSeqError     FileStatus = 11
)

// FileCommand is Group 70 Variation 3: the file command header used by
// OPEN_FILE (and, with zeroed fields, DELETE/GET_FILE_INFO), per
// §6.1's exact 26-byte-fixed-plus-name layout.
type FileCommand struct {
	NameOffset  uint16
	CTime       uint64 // 48-bit value, stored widened
	Permissions uint16
	AuthKey     uint32
	FileSize    uint32
	Mode        FileMode
	BlockSize   uint16
	RequestID   uint16
	Name        string
}

func (o *FileCommand) Group() byte     { return 70 }
func (o *FileCommand) Variation() byte { return 3 }

func (o *FileCommand) Encode(buf []byte) []byte {
	buf = putU16(buf, o.NameOffset)
	buf = putU16(buf, uint16(len(o.Name)))
	buf = put48(buf, o.CTime)
	buf = putU16(buf, o.Permissions)
	buf = putU32(buf, o.AuthKey)
	buf = putU32(buf, o.FileSize)
	buf = putU16(buf, uint16(o.Mode))
	buf = putU16(buf, o.BlockSize)
	buf = putU16(buf, o.RequestID)
	return append(buf, []byte(o.Name)...)
}

func (o *FileCommand) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 26 {
		return buf, ErrShortBuffer
	}
	o.NameOffset = binary.LittleEndian.Uint16(buf[0:2])
	nameSize := binary.LittleEndian.Uint16(buf[2:4])
	o.CTime = get48(buf[4:10])
	o.Permissions = binary.LittleEndian.Uint16(buf[10:12])
	o.AuthKey = binary.LittleEndian.Uint32(buf[12:16])
	o.FileSize = binary.LittleEndian.Uint32(buf[16:20])
	o.Mode = FileMode(binary.LittleEndian.Uint16(buf[20:22]))
	o.BlockSize = binary.LittleEndian.Uint16(buf[22:24])
	o.RequestID = binary.LittleEndian.Uint16(buf[24:26])
	rest := buf[26:]
	if len(rest) < int(nameSize) {
		return rest, ErrShortBuffer
	}
	o.Name = string(rest[:nameSize])
	return rest[nameSize:], nil
}

// FileCommandStatus is Group 70 Variation 4: the outstation's response to
// OPEN_FILE/CLOSE_FILE/DELETE_FILE (and to a failed GET_FILE_INFO),
// carrying the negotiated handle; a CLOSE_FILE request also carries one to
// name the handle being closed.
type FileCommandStatus struct {
	Handle    uint32
	Size      uint32
	BlockSize uint16
	RequestID uint16
	Status    FileStatus
}

func (o *FileCommandStatus) Group() byte     { return 70 }
func (o *FileCommandStatus) Variation() byte { return 4 }
func (o *FileCommandStatus) Encode(buf []byte) []byte {
	buf = putU32(buf, o.Handle)
	buf = putU32(buf, o.Size)
	buf = putU16(buf, o.BlockSize)
	buf = putU16(buf, o.RequestID)
	return append(buf, byte(o.Status))
}
func (o *FileCommandStatus) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 13 {
		return buf, ErrShortBuffer
	}
	o.Handle = binary.LittleEndian.Uint32(buf[0:4])
	o.Size = binary.LittleEndian.Uint32(buf[4:8])
	o.BlockSize = binary.LittleEndian.Uint16(buf[8:10])
	o.RequestID = binary.LittleEndian.Uint16(buf[10:12])
	o.Status = FileStatus(buf[12])
	return buf[13:], nil
}

// FileTransport is Group 70 Variation 5: one block of file data, in either
// direction. BlockNumber's high bit marks the final block of the transfer.
type FileTransport struct {
	Handle      uint32
	BlockNumber uint32 // low 31 bits are the sequence
	IsLast      bool
	Data        []byte
}

func (o *FileTransport) Group() byte     { return 70 }
func (o *FileTransport) Variation() byte { return 5 }
func (o *FileTransport) Encode(buf []byte) []byte {
	block := o.BlockNumber & 0x7FFFFFFF
	if o.IsLast {
		block |= 0x80000000
	}
	buf = putU32(buf, o.Handle)
	buf = putU32(buf, block)
	return append(buf, o.Data...)
}
func (o *FileTransport) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return buf, ErrShortBuffer
	}
	o.Handle = binary.LittleEndian.Uint32(buf[0:4])
	raw := binary.LittleEndian.Uint32(buf[4:8])
	o.IsLast = raw&0x80000000 != 0
	o.BlockNumber = raw & 0x7FFFFFFF
	o.Data = append([]byte(nil), buf[8:]...)
	return nil, nil
}

// FileTransportStatus is Group 70 Variation 6: the outstation's
// acknowledgement of a received WRITE block, or its error reply to a READ
// block request.
type FileTransportStatus struct {
	Handle      uint32
	BlockNumber uint32
	Status      FileStatus
	Info        []byte
}

func (o *FileTransportStatus) Group() byte     { return 70 }
func (o *FileTransportStatus) Variation() byte { return 6 }
func (o *FileTransportStatus) Encode(buf []byte) []byte {
	buf = putU32(buf, o.Handle)
	buf = putU32(buf, o.BlockNumber)
	buf = append(buf, byte(o.Status))
	return append(buf, o.Info...)
}
func (o *FileTransportStatus) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 9 {
		return buf, ErrShortBuffer
	}
	o.Handle = binary.LittleEndian.Uint32(buf[0:4])
	o.BlockNumber = binary.LittleEndian.Uint32(buf[4:8])
	o.Status = FileStatus(buf[8])
	o.Info = append([]byte(nil), buf[9:]...)
	return nil, nil
}

// FileDescriptor is Group 70 Variation 7: one directory-listing entry.
type FileDescriptor struct {
	NameOffset  uint16
	Type        uint16
	Size        uint32
	CTime       uint64
	Permissions uint16
	RequestID   uint16
	Name        string
}

func (o *FileDescriptor) Group() byte     { return 70 }
func (o *FileDescriptor) Variation() byte { return 7 }
func (o *FileDescriptor) Encode(buf []byte) []byte {
	buf = putU16(buf, o.NameOffset)
	buf = putU16(buf, uint16(len(o.Name)))
	buf = putU16(buf, o.Type)
	buf = putU32(buf, o.Size)
	buf = put48(buf, o.CTime)
	buf = putU16(buf, o.Permissions)
	buf = putU16(buf, o.RequestID)
	return append(buf, []byte(o.Name)...)
}
func (o *FileDescriptor) Decode(buf []byte) ([]byte, error) {
	if len(buf) < 20 {
		return buf, ErrShortBuffer
	}
	o.NameOffset = binary.LittleEndian.Uint16(buf[0:2])
	nameSize := binary.LittleEndian.Uint16(buf[2:4])
	o.Type = binary.LittleEndian.Uint16(buf[4:6])
	o.Size = binary.LittleEndian.Uint32(buf[6:10])
	o.CTime = get48(buf[10:16])
	o.Permissions = binary.LittleEndian.Uint16(buf[16:18])
	o.RequestID = binary.LittleEndian.Uint16(buf[18:20])
	rest := buf[20:]
	if len(rest) < int(nameSize) {
		return rest, ErrShortBuffer
	}
	o.Name = string(rest[:nameSize])
	return rest[nameSize:], nil
}

func put48(buf []byte, v uint64) []byte {
	var tmp [6]byte
	for i := 0; i < 6; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(buf, tmp[:]...)
}

func get48(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

// Permission bits, bit-exact per §6.1.
const (
	PermOwnerRead  uint16 = 0x100
	PermOwnerWrite uint16 = 0x080
	PermOwnerExec  uint16 = 0x040
	PermGroupRead  uint16 = 0x020
	PermGroupWrite uint16 = 0x010
	PermGroupExec  uint16 = 0x008
	PermWorldRead  uint16 = 0x004
	PermWorldWrite uint16 = 0x002
	PermWorldExec  uint16 = 0x001
)
