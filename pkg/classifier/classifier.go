package classifier

import (
	"github.com/cuemby/beacon/pkg/types"
)

// SystemEvents are exempt from opt-out suppression and from launch deferral
var SystemEvents = []string{
	types.EventNotificationClicked,
	types.EventNotificationViewed,
	types.EventGeoclusterEntered,
	types.EventGeoclusterExited,
}

// IsSystemEvent reports whether name is on the system event allow-list
func IsSystemEvent(name string) bool {
	for _, s := range SystemEvents {
		if s == name {
			return true
		}
	}
	return false
}

// LaunchState reports whether the launch event was recorded for the current session
type LaunchState interface {
	AppLaunchRecorded() bool
}

// ShouldDefer reports whether a raised event must wait until the launch event
// of the session has been recorded. Instances created after the host app had
// already launched never defer, and neither do system events or the launch
// event itself.
func ShouldDefer(event *types.Event, session LaunchState, createdPostAppLaunch bool) bool {
	if exempt(event.Kind) {
		return false
	}
	if createdPostAppLaunch {
		return false
	}
	if event.Kind != types.KindRaised {
		return false
	}
	if event.Name == types.EventAppLaunched || IsSystemEvent(event.Name) {
		return false
	}
	return !session.AppLaunchRecorded()
}

// ShouldDrop decides whether an event is discarded before enrichment.
//
// Fetch and define_vars events are never dropped. Otherwise a muted instance
// drops everything. An opted-out user keeps only non-raised, non-profile
// events and system events, and only when system events are enabled.
func ShouldDrop(event *types.Event, mute, optedOut, systemEventsEnabled bool) bool {
	if exempt(event.Kind) {
		return false
	}
	if mute {
		return true
	}
	if !optedOut {
		return false
	}
	if !systemEventsEnabled {
		return true
	}
	if event.Kind != types.KindRaised && event.Kind != types.KindProfile {
		return false
	}
	return !IsSystemEvent(event.Name)
}

func exempt(kind types.EventKind) bool {
	return kind == types.KindFetch || kind == types.KindDefineVars
}
