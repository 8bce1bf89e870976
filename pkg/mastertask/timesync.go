package mastertask

import (
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/object"
	"github.com/kjheidel/godnp3/pkg/sched"
)

type timeSyncState byte

const (
	timeSyncMeasuring timeSyncState = iota
	timeSyncWriting
	timeSyncDone
)

// TimeSync implements the non-LAN procedure of §4.F: DELAY_MEASURE to
// capture round-trip time, then WRITE of Group 50 Variation 1 set to
// now + rtt/2 compensated by the outstation's own reported processing
// delay. Recurring with a caller-configured period.
type TimeSync struct {
	state     timeSyncState
	requestAt time.Time
	writeTime time.Time
}

func NewTimeSync() *TimeSync { return &TimeSync{} }

func (t *TimeSync) Name() string                { return "time_sync" }
func (t *TimeSync) Priority() sched.Priority     { return sched.PriorityTimeSync }
func (t *TimeSync) TaskType() sched.TaskType     { return sched.TaskTypeTimeSync }
func (t *TimeSync) IsRecurring() bool            { return true }
func (t *TimeSync) BlocksLowerPriority() bool    { return false }
func (t *TimeSync) Fail(dnp3.TaskResult)         { t.state = timeSyncMeasuring }
func (t *TimeSync) OnStart()                     { t.state = timeSyncMeasuring }

func (t *TimeSync) BuildRequest() (byte, []byte, bool, error) {
	switch t.state {
	case timeSyncMeasuring:
		t.requestAt = time.Now()
		return byte(app.FuncDelayMeasure), nil, false, nil
	case timeSyncWriting:
		td := &object.TimeAndDate{Time: t.writeTime}
		buf := append([]byte{50, 1, byte(object.QualifierAllObjects)}, td.Encode(nil)...)
		return byte(app.FuncWrite), buf, false, nil
	}
	return 0, nil, false, dnp3.ErrIllegalArgument
}

func (t *TimeSync) ProcessResponse(objects []byte, iin uint16) (dnp3.TaskResult, bool) {
	switch t.state {
	case timeSyncMeasuring:
		rtt := time.Since(t.requestAt)

		_, rest, err := decodeHeaderObject(objects)
		if err != nil {
			return dnp3.TaskFailureBadResponse, true
		}
		delay := &object.TimeDelayFine{}
		if _, err := delay.Decode(rest); err != nil {
			return dnp3.TaskFailureBadResponse, true
		}

		outstationDelay := time.Duration(delay.DelayMs) * time.Millisecond
		masterRoundTrip := rtt - outstationDelay
		if masterRoundTrip < 0 {
			masterRoundTrip = 0
		}
		t.writeTime = time.Now().Add(masterRoundTrip / 2)
		t.state = timeSyncWriting
		return dnp3.TaskSuccess, false

	case timeSyncWriting:
		t.state = timeSyncDone
		return dnp3.TaskSuccess, true
	}
	return dnp3.TaskFailureBadResponse, true
}
