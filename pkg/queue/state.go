package queue

import "sync/atomic"

// State holds the switches consulted on every event and flush. The zero value
// is online, enabled, unmuted and opted in.
type State struct {
	offline             atomic.Bool
	disabled            atomic.Bool
	muted               atomic.Bool
	optedOut            atomic.Bool
	systemEventsEnabled atomic.Bool
	geofencePending     atomic.Bool
}

func (s *State) Offline() bool             { return s.offline.Load() }
func (s *State) Disabled() bool            { return s.disabled.Load() }
func (s *State) Muted() bool               { return s.muted.Load() }
func (s *State) OptedOut() bool            { return s.optedOut.Load() }
func (s *State) SystemEventsEnabled() bool { return s.systemEventsEnabled.Load() }

func (s *State) SetDisabled(v bool)            { s.disabled.Store(v) }
func (s *State) SetOptedOut(v bool)            { s.optedOut.Store(v) }
func (s *State) SetSystemEventsEnabled(v bool) { s.systemEventsEnabled.Store(v) }

// SetMuted is called by the syncer when the collector mutes or unmutes this client
func (s *State) SetMuted(v bool) { s.muted.Store(v) }

// SetOffline reports whether the state changed
func (s *State) SetOffline(v bool) bool {
	return s.offline.Swap(v) != v
}

// MarkGeofence asks for geofence markers on the next ping
func (s *State) MarkGeofence() { s.geofencePending.Store(true) }

// takeGeofence clears the geofence flag and reports whether it was set
func (s *State) takeGeofence() bool {
	return s.geofencePending.CompareAndSwap(true, false)
}
