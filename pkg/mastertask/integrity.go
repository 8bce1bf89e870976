package mastertask

import (
	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

// IntegrityPoll requests class 0 (static) data plus all three event classes
// in a single fragment, per §4.F. It is recurring: the scheduler re-arms it
// with Period on every success.
type IntegrityPoll struct {
	Period int64 // caller-interpreted; scheduling itself lives in the Record
}

func NewIntegrityPoll() *IntegrityPoll { return &IntegrityPoll{} }

func (t *IntegrityPoll) Name() string             { return "integrity_poll" }
func (t *IntegrityPoll) Priority() sched.Priority  { return sched.PriorityIntegrityPoll }
func (t *IntegrityPoll) TaskType() sched.TaskType  { return sched.TaskTypeIntegrityPoll }
func (t *IntegrityPoll) IsRecurring() bool         { return true }
func (t *IntegrityPoll) BlocksLowerPriority() bool { return false }
func (t *IntegrityPoll) OnStart()                  {}
func (t *IntegrityPoll) Fail(dnp3.TaskResult)      {}

func (t *IntegrityPoll) BuildRequest() (byte, []byte, bool, error) {
	var buf []byte
	for class := 0; class < 4; class++ {
		buf = object.EncodeClassHeader(buf, class)
	}
	return byte(app.FuncRead), buf, false, nil
}

func (t *IntegrityPoll) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	if app.IIN(iin).Has(app.IINFuncNotSupported) {
		return dnp3.TaskFailureBadResponse, true
	}
	return dnp3.TaskSuccess, true
}
