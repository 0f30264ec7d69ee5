package scheduler

import (
	"time"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/rs/zerolog"
)

// Lane tokens. Each lane holds at most one pending flush.
const (
	LaneRegular    = "regular"
	LanePushViewed = "push_viewed"
	LaneVariables  = "variables"
)

// FlushFunc starts an asynchronous flush of one group
type FlushFunc func(group types.EventGroup)

// DelaySource supplies the debounce window of the regular lane
type DelaySource interface {
	RecommendedDelay() time.Duration
}

// Scheduler debounces flush requests.
//
// The regular lane waits for the recommended delay and then flushes both
// the regular and the push-viewed groups. The push-viewed and variables lanes
// flush their group immediately. Scheduling while a flush is pending on the
// same lane replaces it, so a burst of requests yields a single flush.
type Scheduler struct {
	looper *Looper
	delay  DelaySource
	flush  FlushFunc
	logger zerolog.Logger
}

// NewScheduler creates a scheduler that runs flush on its own looper
func NewScheduler(delay DelaySource, flush FlushFunc) *Scheduler {
	return &Scheduler{
		looper: NewLooper(),
		delay:  delay,
		flush:  flush,
		logger: log.WithComponent("scheduler"),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.looper.Start()
}

// Stop drops pending flushes and stops the scheduler
func (s *Scheduler) Stop() {
	s.looper.Stop()
}

// ScheduleRegular installs a regular flush after the recommended delay
func (s *Scheduler) ScheduleRegular() {
	s.ScheduleRegularAfter(s.delay.RecommendedDelay())
}

// ScheduleRegularAfter installs a regular flush after d
func (s *Scheduler) ScheduleRegularAfter(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.logger.Debug().Dur("delay", d).Msg("Scheduling regular flush")
	metrics.FlushScheduled.WithLabelValues(LaneRegular).Inc()

	s.looper.PostDelayed(LaneRegular, d, func() {
		s.flush(types.GroupRegular)
		s.flush(types.GroupPushViewed)
	})
}

// SchedulePushViewed flushes the push-viewed group right away
func (s *Scheduler) SchedulePushViewed() {
	metrics.FlushScheduled.WithLabelValues(LanePushViewed).Inc()
	s.looper.Post(LanePushViewed, func() {
		s.flush(types.GroupPushViewed)
	})
}

// ScheduleVariables flushes the variables group right away
func (s *Scheduler) ScheduleVariables() {
	s.ScheduleVariablesAfter(0)
}

// ScheduleVariablesAfter flushes the variables group after d
func (s *Scheduler) ScheduleVariablesAfter(d time.Duration) {
	metrics.FlushScheduled.WithLabelValues(LaneVariables).Inc()
	s.looper.PostDelayed(LaneVariables, d, func() {
		s.flush(types.GroupVariables)
	})
}

// ScheduleRetry reschedules a failed flush of group after d
func (s *Scheduler) ScheduleRetry(group types.EventGroup, d time.Duration) {
	if group == types.GroupVariables {
		s.ScheduleVariablesAfter(d)
		return
	}
	s.ScheduleRegularAfter(d)
}

// Pending reports whether a flush is waiting on lane
func (s *Scheduler) Pending(lane string) bool {
	return s.looper.Pending(lane)
}
