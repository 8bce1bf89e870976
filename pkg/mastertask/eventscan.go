package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

// EventScan requests one or more event classes, per §4.F. When Auto is set
// it runs at PriorityAutoEventScan (threshold-triggered by the master
// session's IIN class-events hook); otherwise it runs at the numerically
// lower (so higher-precedence), user-initiated PriorityEventScan.
type EventScan struct {
	ClassMask byte // bit0=class1, bit1=class2, bit2=class3
	Auto      bool
}

func NewEventScan(classMask byte, auto bool) *EventScan {
	return &EventScan{ClassMask: classMask, Auto: auto}
}

func (t *EventScan) Name() string { return "event_scan" }

func (t *EventScan) Priority() sched.Priority {
	if t.Auto {
		return sched.PriorityAutoEventScan
	}
	return sched.PriorityEventScan
}

func (t *EventScan) TaskType() sched.TaskType  { return sched.TaskTypeEventScan }
func (t *EventScan) IsRecurring() bool         { return false }
func (t *EventScan) BlocksLowerPriority() bool { return false }
func (t *EventScan) OnStart()                  {}
func (t *EventScan) Fail(dnp3.TaskResult)      {}

func (t *EventScan) BuildRequest() (byte, []byte, bool, error) {
	var buf []byte
	for class := 1; class <= 3; class++ {
		if t.ClassMask&(1<<uint(class-1)) != 0 {
			buf = object.EncodeClassHeader(buf, class)
		}
	}
	if len(buf) == 0 {
		return 0, nil, false, dnp3.ErrIllegalArgument
	}
	return byte(app.FuncRead), buf, false, nil
}

func (t *EventScan) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	return dnp3.TaskSuccess, true
}
