// Package app implements the DNP3 application layer: fragment encoding for
// both master and outstation roles, sequence-number tracking, confirm
// handling, and the select/operate and unsolicited-response contracts of
// §4.D.
//
// Grounded on the teacher's pkg/sdo package for its request/response
// message-wrapper style (sdo.SDOMessage) and its explicit little-endian
// struct layout conventions.
package app

import (
	"fmt"
)

// FunctionCode is the one-byte application function code.
type FunctionCode byte

const (
	FuncConfirm               FunctionCode = 0x00
	FuncRead                  FunctionCode = 0x01
	FuncWrite                 FunctionCode = 0x02
	FuncSelect                FunctionCode = 0x03
	FuncOperate               FunctionCode = 0x04
	FuncDirectOperate         FunctionCode = 0x05
	FuncDirectOperateNoResp   FunctionCode = 0x06
	FuncColdRestart           FunctionCode = 0x0D
	FuncWarmRestart           FunctionCode = 0x0E
	FuncEnableUnsolicited     FunctionCode = 0x14
	FuncDisableUnsolicited    FunctionCode = 0x15
	FuncAssignClass           FunctionCode = 0x16
	FuncDelayMeasure          FunctionCode = 0x17
	FuncRecordCurrentTime     FunctionCode = 0x18
	FuncOpenFile              FunctionCode = 0x19
	FuncCloseFile             FunctionCode = 0x1A
	FuncDeleteFile            FunctionCode = 0x1B
	FuncGetFileInfo           FunctionCode = 0x1C
	FuncAuthenticateFile      FunctionCode = 0x1D
	FuncAbortFile             FunctionCode = 0x1E
	FuncResponse              FunctionCode = 0x81
	FuncUnsolicitedResponse   FunctionCode = 0x82
)

func (f FunctionCode) String() string {
	switch f {
	case FuncConfirm:
		return "CONFIRM"
	case FuncRead:
		return "READ"
	case FuncWrite:
		return "WRITE"
	case FuncSelect:
		return "SELECT"
	case FuncOperate:
		return "OPERATE"
	case FuncDirectOperate:
		return "DIRECT_OPERATE"
	case FuncDirectOperateNoResp:
		return "DIRECT_OPERATE_NR"
	case FuncColdRestart:
		return "COLD_RESTART"
	case FuncWarmRestart:
		return "WARM_RESTART"
	case FuncEnableUnsolicited:
		return "ENABLE_UNSOLICITED"
	case FuncDisableUnsolicited:
		return "DISABLE_UNSOLICITED"
	case FuncAssignClass:
		return "ASSIGN_CLASS"
	case FuncDelayMeasure:
		return "DELAY_MEASURE"
	case FuncRecordCurrentTime:
		return "RECORD_CURRENT_TIME"
	case FuncOpenFile:
		return "OPEN_FILE"
	case FuncCloseFile:
		return "CLOSE_FILE"
	case FuncDeleteFile:
		return "DELETE_FILE"
	case FuncGetFileInfo:
		return "GET_FILE_INFO"
	case FuncAuthenticateFile:
		return "AUTH_FILE"
	case FuncAbortFile:
		return "ABORT_FILE"
	case FuncResponse:
		return "RESPONSE"
	case FuncUnsolicitedResponse:
		return "UNSOLICITED_RESPONSE"
	default:
		return fmt.Sprintf("FC(0x%02x)", byte(f))
	}
}

// Control is the one-byte application control field shared by requests and
// responses.
type Control struct {
	FIR bool
	FIN bool
	CON bool
	UNS bool
	SEQ byte // 4 bits
}

func (c Control) Encode() byte {
	var b byte
	if c.FIR {
		b |= 0x80
	}
	if c.FIN {
		b |= 0x40
	}
	if c.CON {
		b |= 0x20
	}
	if c.UNS {
		b |= 0x10
	}
	return b | (c.SEQ & 0x0F)
}

func DecodeControl(b byte) Control {
	return Control{
		FIR: b&0x80 != 0,
		FIN: b&0x40 != 0,
		CON: b&0x20 != 0,
		UNS: b&0x10 != 0,
		SEQ: b & 0x0F,
	}
}

// Request is a parsed (or to-be-encoded) application-layer request fragment.
type Request struct {
	Control Control
	Func    FunctionCode
	Objects []byte // raw encoded object headers + data
}

// Response additionally carries the IIN bitmap.
type Response struct {
	Control Control
	Func    FunctionCode
	IIN     IIN
	Objects []byte
}

// EncodeRequest writes the 2-byte request header followed by objects.
func EncodeRequest(r Request) []byte {
	buf := make([]byte, 0, 2+len(r.Objects))
	buf = append(buf, r.Control.Encode(), byte(r.Func))
	return append(buf, r.Objects...)
}

// DecodeRequest parses a request fragment.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < 2 {
		return Request{}, fmt.Errorf("app: request fragment too short")
	}
	return Request{
		Control: DecodeControl(buf[0]),
		Func:    FunctionCode(buf[1]),
		Objects: buf[2:],
	}, nil
}

// EncodeResponse writes the 4-byte response header (control, function, IIN)
// followed by objects.
func EncodeResponse(r Response) []byte {
	buf := make([]byte, 0, 4+len(r.Objects))
	buf = append(buf, r.Control.Encode(), byte(r.Func), byte(r.IIN), byte(r.IIN>>8))
	return append(buf, r.Objects...)
}

// DecodeResponse parses a response fragment.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < 4 {
		return Response{}, fmt.Errorf("app: response fragment too short")
	}
	return Response{
		Control: DecodeControl(buf[0]),
		Func:    FunctionCode(buf[1]),
		IIN:     IIN(buf[2]) | IIN(buf[3])<<8,
		Objects: buf[4:],
	}, nil
}

// IsResponseLike reports whether fc is one a master should treat as a
// response fragment (solicited or unsolicited).
func (f FunctionCode) IsResponseLike() bool {
	return f == FuncResponse || f == FuncUnsolicitedResponse
}
