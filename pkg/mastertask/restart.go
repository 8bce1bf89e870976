package mastertask

import (
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

// RestartKind distinguishes COLD_RESTART from WARM_RESTART.
type RestartKind byte

const (
	ColdRestart RestartKind = iota
	WarmRestart
)

// Restart issues COLD_RESTART or WARM_RESTART and reports the delay the
// outstation says it needs before it is ready again, per §4.G's restart
// callback contract.
type Restart struct {
	Kind     RestartKind
	OnDelay  func(time.Duration)
	complete bool
}

func NewRestart(kind RestartKind, onDelay func(time.Duration)) *Restart {
	return &Restart{Kind: kind, OnDelay: onDelay}
}

func (t *Restart) Name() string {
	if t.Kind == WarmRestart {
		return "warm_restart"
	}
	return "cold_restart"
}

func (t *Restart) Priority() sched.Priority     { return sched.PriorityClearRestart }
func (t *Restart) TaskType() sched.TaskType     { return sched.TaskTypeClearRestart }
func (t *Restart) IsRecurring() bool            { return false }
func (t *Restart) BlocksLowerPriority() bool    { return true }
func (t *Restart) OnStart()                     {}
func (t *Restart) Fail(dnp3.TaskResult)         {}

func (t *Restart) BuildRequest() (byte, []byte, bool, error) {
	fc := app.FuncColdRestart
	if t.Kind == WarmRestart {
		fc = app.FuncWarmRestart
	}
	return byte(fc), nil, false, nil
}

func (t *Restart) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	_, rest, err := decodeHeaderObject(objects)
	if err != nil {
		return dnp3.TaskFailureBadResponse, true
	}
	delay := &object.TimeDelayFine{}
	if _, err := delay.Decode(rest); err != nil {
		return dnp3.TaskFailureBadResponse, true
	}
	if t.OnDelay != nil {
		t.OnDelay(time.Duration(delay.DelayMs) * time.Millisecond)
	}
	t.complete = true
	return dnp3.TaskSuccess, true
}
