package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

// CommandMode selects between the two control primitives of §4.F.
type CommandMode byte

const (
	DirectOperate CommandMode = iota
	SelectBeforeOperate
)

type commandState byte

const (
	commandSelecting commandState = iota
	commandOperating
	commandDone
)

// Command drives DIRECT_OPERATE or SELECT-then-OPERATE for a single
// control object (a CROB or an analog output command), per §4.F. The
// overall result is SUCCESS only if the echoed per-object CommandStatus is
// itself SUCCESS at every step.
type Command struct {
	Mode            CommandMode
	Group, Variation byte
	Index           byte
	Object          object.Object // *object.CROB or *object.AnalogOutputCommand32

	state commandState
}

func NewDirectOperate(index byte, obj object.Object) *Command {
	return &Command{Mode: DirectOperate, Group: obj.Group(), Variation: obj.Variation(), Index: index, Object: obj, state: commandOperating}
}

func NewSelectOperate(index byte, obj object.Object) *Command {
	return &Command{Mode: SelectBeforeOperate, Group: obj.Group(), Variation: obj.Variation(), Index: index, Object: obj, state: commandSelecting}
}

func (t *Command) Name() string {
	if t.Mode == DirectOperate {
		return "direct_operate"
	}
	return "select_operate"
}

func (t *Command) Priority() sched.Priority     { return sched.PriorityCommand }
func (t *Command) TaskType() sched.TaskType     { return sched.TaskTypeCommand }
func (t *Command) IsRecurring() bool            { return false }
func (t *Command) BlocksLowerPriority() bool    { return false }
func (t *Command) OnStart()                     {}
func (t *Command) Fail(dnp3.TaskResult)          {}

func (t *Command) BuildRequest() (byte, []byte, bool, error) {
	buf := object.EncodeIndexPrefixed(nil, t.Group, t.Variation, 1)
	buf = append(buf, t.Index)
	buf = t.Object.Encode(buf)

	switch t.state {
	case commandSelecting:
		return byte(app.FuncSelect), buf, false, nil
	case commandOperating:
		fc := app.FuncDirectOperate
		if t.Mode == SelectBeforeOperate {
			fc = app.FuncOperate
		}
		return byte(fc), buf, false, nil
	}
	return 0, nil, false, dnp3.ErrIllegalArgument
}

func (t *Command) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	h, rest, err := decodeHeaderObject(objects)
	if err != nil {
		return dnp3.TaskFailureBadResponse, true
	}
	if w := h.IndexPrefixWidth(); w > 0 {
		if len(rest) < w {
			return dnp3.TaskFailureBadResponse, true
		}
		rest = rest[w:]
	}

	status, err := decodeCommandStatus(h.Group, h.Variation, rest)
	if err != nil || status != object.CommandSuccess {
		return dnp3.TaskFailureBadResponse, true
	}

	if t.Mode == SelectBeforeOperate && t.state == commandSelecting {
		t.state = commandOperating
		return dnp3.TaskSuccess, false
	}
	t.state = commandDone
	return dnp3.TaskSuccess, true
}

// decodeCommandStatus decodes the echoed command object for group/variation
// from buf and extracts its per-object CommandStatus. Only the command
// object types that actually carry a CommandStatus field are supported.
func decodeCommandStatus(group, variation byte, buf []byte) (object.CommandStatus, error) {
	obj, err := object.New(group, variation)
	if err != nil {
		return 0, err
	}
	if _, err := obj.Decode(buf); err != nil {
		return 0, err
	}
	switch v := obj.(type) {
	case *object.CROB:
		return v.Status, nil
	case *object.AnalogOutputCommand32:
		return v.Status, nil
	default:
		return 0, dnp3.ErrBadObject
	}
}
