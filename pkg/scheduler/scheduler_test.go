package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
)

type fixedDelay time.Duration

func (d fixedDelay) RecommendedDelay() time.Duration { return time.Duration(d) }

type flushRecorder struct {
	mu     sync.Mutex
	groups []types.EventGroup
}

func (r *flushRecorder) flush(group types.EventGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, group)
}

func (r *flushRecorder) snapshot() []types.EventGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.EventGroup(nil), r.groups...)
}

func newTestScheduler(delay time.Duration) (*Scheduler, *flushRecorder) {
	rec := &flushRecorder{}
	s := NewScheduler(fixedDelay(delay), rec.flush)
	s.Start()
	return s, rec
}

func TestRegularLaneCoalesces(t *testing.T) {
	s, rec := newTestScheduler(50 * time.Millisecond)
	defer s.Stop()

	for i := 0; i < 20; i++ {
		s.ScheduleRegular()
		time.Sleep(time.Millisecond)
	}
	assert.True(t, s.Pending(LaneRegular))

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []types.EventGroup{types.GroupRegular, types.GroupPushViewed}, rec.snapshot())
}

func TestRegularLaneWaitsForDelay(t *testing.T) {
	s, rec := newTestScheduler(80 * time.Millisecond)
	defer s.Stop()

	s.ScheduleRegular()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	// rescheduling restarts the window
	s.ScheduleRegular()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleRegularAfterUsesGivenDelay(t *testing.T) {
	s, rec := newTestScheduler(time.Hour)
	defer s.Stop()

	s.ScheduleRegularAfter(10 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPushViewedLaneIsImmediate(t *testing.T) {
	s, rec := newTestScheduler(time.Hour)
	defer s.Stop()

	s.ScheduleRegular()
	s.SchedulePushViewed()

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.EventGroup{types.GroupPushViewed}, rec.snapshot())

	// the regular lane is unaffected
	assert.True(t, s.Pending(LaneRegular))
}

func TestVariablesLane(t *testing.T) {
	s, rec := newTestScheduler(time.Hour)
	defer s.Stop()

	s.ScheduleVariables()
	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.EventGroup{types.GroupVariables}, rec.snapshot())
}

func TestStopDropsPendingFlush(t *testing.T) {
	s, rec := newTestScheduler(20 * time.Millisecond)
	s.ScheduleRegular()
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestScheduleRetryPicksLane(t *testing.T) {
	s, rec := newTestScheduler(time.Hour)
	defer s.Stop()

	s.ScheduleRetry(types.GroupVariables, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.EventGroup{types.GroupVariables}, rec.snapshot())

	s.ScheduleRetry(types.GroupPushViewed, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.EventGroup{types.GroupRegular, types.GroupPushViewed}, rec.snapshot()[1:])
}
