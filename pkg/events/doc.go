// Package events is an in-process notification broker.
//
// The coordinator and the syncer publish what happens to events and flushes
// (persisted, dropped, deferred, flush succeeded or failed, muted by the
// collector). Subscribers may ask for a subset of event types. Delivery is
// best effort: a subscriber whose buffer is full misses the event.
package events
