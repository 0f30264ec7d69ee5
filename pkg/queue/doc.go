/*
Package queue coordinates events from the moment they are recorded until a
flush is scheduled for them.

# Lifecycle

	Record* / QueueEvent
	        │  (worker pool)
	        ▼
	   classify ──drop──> Outcome{dropped}
	        │
	        ├──defer──> resubmitted after DeferDelay ──┐
	        │                                          │
	        ▼  <───────────────────────────────────────┘
	   ensure session, push initial profile once per session
	        │
	        ▼
	   stamp under the event lock (session id, page count, type, epoch,
	   first session, last session length, pending validation error)
	        │
	        ▼
	   append to the group's bucket ──> schedule flush ──> Outcome{persisted}

Raised events wait for the launch event of the session unless the collector
was created after the host application launched. Notification-viewed events
take a lighter path that stamps only the session id, type and epoch, and
flushes immediately.

# Flushing

FlushSync is a no-op while the client is offline, disabled or muted. When a
connectivity check is configured and fails, the flush is reported as failed
without touching the store. Failed flushes published by the syncer are
rescheduled with the delay the syncer recommends.

# Concurrency

QueueEvent never blocks on I/O. The event lock is held only while stamping
and diffing the profile cache, never across the store or the network.
*/
package queue
