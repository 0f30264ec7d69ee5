/*
Package scheduler debounces flush requests into timed uploads.

# Lanes

Each lane holds at most one pending flush. Scheduling on a lane that already
has one replaces it, so a burst of requests inside the window produces a
single flush:

	ScheduleRegular ──┐
	ScheduleRegular ──┼──> [regular: wait RecommendedDelay] ──> flush(regular)
	ScheduleRegular ──┘                                         flush(push_viewed)

	SchedulePushViewed ──> [push_viewed: now] ──> flush(push_viewed)
	ScheduleVariables  ──> [variables: now]   ──> flush(variables)

The regular window comes from a DelaySource, normally the network syncer,
whose delay grows while uploads keep failing. ScheduleRetry installs a flush
with an explicit delay on the lane that owns the failed group.

# Looper

Looper is the timer primitive under the lanes. Callbacks are keyed by token,
fire on a single goroutine one at a time, and can only be cancelled by
posting again with the same token or by stopping the looper.
*/
package scheduler
