package classifier

import (
	"testing"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
)

type launchState bool

func (l launchState) AppLaunchRecorded() bool { return bool(l) }

func TestShouldDefer(t *testing.T) {
	tests := []struct {
		name                 string
		event                *types.Event
		launched             bool
		createdPostAppLaunch bool
		expected             bool
	}{
		{
			name:     "custom event before launch",
			event:    types.NewEvent(types.KindRaised, "Custom", nil),
			expected: true,
		},
		{
			name:     "custom event after launch",
			event:    types.NewEvent(types.KindRaised, "Custom", nil),
			launched: true,
			expected: false,
		},
		{
			name:                 "instance created after app launch",
			event:                types.NewEvent(types.KindRaised, "Custom", nil),
			createdPostAppLaunch: true,
			expected:             false,
		},
		{
			name:     "system event",
			event:    types.NewEvent(types.KindRaised, types.EventNotificationViewed, nil),
			expected: false,
		},
		{
			name:     "launch event itself",
			event:    types.NewEvent(types.KindRaised, types.EventAppLaunched, nil),
			expected: false,
		},
		{
			name:     "profile event",
			event:    types.NewEvent(types.KindProfile, "", nil),
			expected: false,
		},
		{
			name:     "fetch event",
			event:    types.NewEvent(types.KindFetch, types.EventFetch, nil),
			expected: false,
		},
		{
			name:     "define vars event",
			event:    types.NewEvent(types.KindDefineVars, "", nil),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldDefer(tt.event, launchState(tt.launched), tt.createdPostAppLaunch)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestShouldDrop(t *testing.T) {
	custom := types.NewEvent(types.KindRaised, "Custom", nil)
	system := types.NewEvent(types.KindRaised, types.EventNotificationClicked, nil)
	profile := types.NewEvent(types.KindProfile, "", nil)
	page := types.NewEvent(types.KindPage, "", nil)
	fetch := types.NewEvent(types.KindFetch, types.EventFetch, nil)
	vars := types.NewEvent(types.KindDefineVars, "", nil)

	tests := []struct {
		name          string
		event         *types.Event
		mute          bool
		optedOut      bool
		systemEnabled bool
		expected      bool
	}{
		{"fetch never dropped when muted", fetch, true, true, false, false},
		{"define vars never dropped", vars, true, true, false, false},
		{"muted drops custom", custom, true, false, false, true},
		{"muted drops page", page, true, false, true, true},
		{"not opted out keeps custom", custom, false, false, false, false},
		{"opted out without system events drops custom", custom, false, true, false, true},
		{"opted out without system events drops system event", system, false, true, false, true},
		{"opted out with system events keeps system event", system, false, true, true, false},
		{"opted out with system events drops custom", custom, false, true, true, true},
		{"opted out with system events drops unnamed profile", profile, false, true, true, true},
		{"opted out with system events keeps page", page, false, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldDrop(tt.event, tt.mute, tt.optedOut, tt.systemEnabled))
		})
	}
}

func TestIsSystemEvent(t *testing.T) {
	assert.True(t, IsSystemEvent(types.EventGeoclusterEntered))
	assert.False(t, IsSystemEvent(types.EventAppLaunched))
	assert.False(t, IsSystemEvent("Custom"))
}
