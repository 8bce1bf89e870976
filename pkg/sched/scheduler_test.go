package sched

import (
	"testing"
	"time"

	dnp3 "github.com/kjheidel/godnp3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTask struct {
	name     string
	priority Priority
	blocks   bool
}

func (s *stubTask) Name() string                { return s.name }
func (s *stubTask) Priority() Priority           { return s.priority }
func (s *stubTask) TaskType() TaskType           { return TaskTypeUserPoll }
func (s *stubTask) IsRecurring() bool            { return false }
func (s *stubTask) BlocksLowerPriority() bool    { return s.blocks }
func (s *stubTask) BuildRequest() (byte, []byte, bool, error) { return 0x01, nil, false, nil }
func (s *stubTask) ProcessResponse([]byte, uint16) (dnp3.TaskResult, bool) {
	return dnp3.TaskSuccess, true
}
func (s *stubTask) Fail(dnp3.TaskResult) {}
func (s *stubTask) OnStart()   {}

func TestLessPrefersEnabledOverDisabled(t *testing.T) {
	now := time.Now()
	enabled := NewRecord(&stubTask{name: "a", priority: PriorityUserPoll}, false, 0, RetryPolicy{})
	disabled := NewRecord(&stubTask{name: "b", priority: PriorityIntegrityPoll}, false, 0, RetryPolicy{})
	disabled.Disable()

	assert.True(t, Less(enabled, disabled, now))
	assert.False(t, Less(disabled, enabled, now))
}

func TestLessPrefersUnblocked(t *testing.T) {
	now := time.Now()
	unblocked := NewRecord(&stubTask{name: "a", priority: PriorityUserPoll}, false, 0, RetryPolicy{})
	blocked := NewRecord(&stubTask{name: "b", priority: PriorityIntegrityPoll}, false, 0, RetryPolicy{})
	blocked.Blocked = true

	assert.True(t, Less(unblocked, blocked, now))
}

func TestLessPrefersEarlierExpiration(t *testing.T) {
	now := time.Now()
	earlier := NewRecord(&stubTask{name: "a", priority: PriorityUserPoll}, false, 0, RetryPolicy{})
	earlier.Expiration = now.Add(-time.Second)
	later := NewRecord(&stubTask{name: "b", priority: PriorityIntegrityPoll}, false, 0, RetryPolicy{})
	later.Expiration = now.Add(time.Minute)

	assert.True(t, Less(earlier, later, now))
}

func TestLessFallsBackToPriority(t *testing.T) {
	now := time.Now()
	high := NewRecord(&stubTask{name: "integrity", priority: PriorityIntegrityPoll}, false, 0, RetryPolicy{})
	low := NewRecord(&stubTask{name: "poll", priority: PriorityUserPoll}, false, 0, RetryPolicy{})

	assert.True(t, Less(high, low, now))
}

func TestSchedulerBestSkipsBlockedByActivePriorityHold(t *testing.T) {
	s := New()
	now := time.Now()
	blocker := NewRecord(&stubTask{name: "restart", priority: PriorityClearRestart, blocks: true}, false, 0, RetryPolicy{})
	lower := NewRecord(&stubTask{name: "poll", priority: PriorityUserPoll}, false, 0, RetryPolicy{})
	s.Add(blocker)
	s.Add(lower)

	best := s.Best(now)
	require.Equal(t, blocker, best)

	ran, _ := s.Start(best, now)
	require.True(t, ran)

	assert.Nil(t, s.Best(now))
}

func TestSchedulerRecurringTaskReQueuesOnSuccess(t *testing.T) {
	s := New()
	now := time.Now()
	task := &stubTask{name: "integrity", priority: PriorityIntegrityPoll}
	rec := NewRecord(task, true, time.Minute, RetryPolicy{})
	s.Add(rec)

	s.Start(rec, now)
	s.Complete(rec, dnp3.TaskSuccess, now)

	require.Equal(t, 1, s.Len())
	next := s.records[0]
	assert.True(t, next.Expiration.Equal(now.Add(time.Minute)))
}

func TestSchedulerBackoffDoublesDelayUpToMax(t *testing.T) {
	s := New()
	now := time.Now()
	task := &stubTask{name: "poll", priority: PriorityUserPoll}
	retry := RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, NumRetries: -1}
	rec := NewRecord(task, false, 0, retry)
	s.Add(rec)

	s.Start(rec, now)
	s.Complete(rec, dnp3.TaskFailureResponseTimeout, now)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, time.Second, s.records[0].currentDelay)

	s.Start(s.records[0], now)
	s.Complete(s.records[0], dnp3.TaskFailureResponseTimeout, now)
	assert.Equal(t, 2*time.Second, s.records[0].currentDelay)

	s.Start(s.records[0], now)
	s.Complete(s.records[0], dnp3.TaskFailureResponseTimeout, now)
	assert.Equal(t, 3*time.Second, s.records[0].currentDelay) // capped at MaxDelay
}

func TestSchedulerRetryBudgetExhaustionDropsTask(t *testing.T) {
	s := New()
	now := time.Now()
	task := &stubTask{name: "poll", priority: PriorityUserPoll}
	retry := RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Second, NumRetries: 1}
	rec := NewRecord(task, false, 0, retry)
	s.Add(rec)

	s.Start(rec, now)
	s.Complete(rec, dnp3.TaskFailureResponseTimeout, now)
	require.Equal(t, 1, s.Len())

	s.Start(s.records[0], now)
	s.Complete(s.records[0], dnp3.TaskFailureResponseTimeout, now)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerStartTimeoutFailsNonRecurringTask(t *testing.T) {
	s := New()
	now := time.Now()
	task := &stubTask{name: "poll", priority: PriorityUserPoll}
	rec := NewRecord(task, false, 0, RetryPolicy{})
	rec.StartExpiration = now.Add(-time.Second)
	s.Add(rec)

	ran, result := s.Start(rec, now)
	assert.False(t, ran)
	assert.Equal(t, dnp3.TaskFailureStartTimeout, result)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerNonRetryEligibleResultDropsTaskImmediately(t *testing.T) {
	s := New()
	now := time.Now()
	task := &stubTask{name: "poll", priority: PriorityUserPoll}
	rec := NewRecord(task, false, 0, RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Second, NumRetries: 5})
	s.Add(rec)

	s.Start(rec, now)
	s.Complete(rec, dnp3.TaskFailureBadRequest, now)
	assert.Equal(t, 0, s.Len())
}

type failRecordingTask struct {
	stubTask
	failedWith dnp3.TaskResult
	failed     bool
}

func (s *failRecordingTask) Fail(result dnp3.TaskResult) {
	s.failed = true
	s.failedWith = result
}

func TestFailAllPassesResultToEveryTask(t *testing.T) {
	s := New()
	a := &failRecordingTask{stubTask: stubTask{name: "a", priority: PriorityUserPoll}}
	b := &failRecordingTask{stubTask: stubTask{name: "b", priority: PriorityUserPoll}}
	s.Add(NewRecord(a, false, 0, RetryPolicy{}))
	s.Add(NewRecord(b, false, 0, RetryPolicy{}))

	s.FailAll(dnp3.TaskFailureNoComms)

	assert.True(t, a.failed)
	assert.Equal(t, dnp3.TaskFailureNoComms, a.failedWith)
	assert.True(t, b.failed)
	assert.Equal(t, dnp3.TaskFailureNoComms, b.failedWith)
	assert.Equal(t, 0, s.Len())
}
