package types

import (
	"errors"
	"time"
)

// ErrAlreadyEnriched is returned when enrichment is applied to an event twice
var ErrAlreadyEnriched = errors.New("event already enriched")

// EventKind identifies how an event is classified, enriched and stored
type EventKind string

const (
	KindPage       EventKind = "page"
	KindPing       EventKind = "ping"
	KindProfile    EventKind = "profile"
	KindData       EventKind = "data"
	KindRaised     EventKind = "raised"
	KindFetch      EventKind = "fetch"
	KindDefineVars EventKind = "define_vars"
)

// WireType returns the value of the "type" field sent to the collector
func (k EventKind) WireType() string {
	switch k {
	case KindPage:
		return "page"
	case KindPing:
		return "ping"
	case KindProfile:
		return "profile"
	case KindData:
		return "data"
	default:
		return "event"
	}
}

// EventGroup partitions the local queue. Each group has its own bucket and flush policy
type EventGroup string

const (
	GroupRegular    EventGroup = "regular"
	GroupPushViewed EventGroup = "push_viewed"
	GroupVariables  EventGroup = "variables"
)

// AllGroups lists every event group in flush order
var AllGroups = []EventGroup{GroupRegular, GroupPushViewed, GroupVariables}

// Bucket returns the storage bucket name for the group
func (g EventGroup) Bucket() []byte {
	switch g {
	case GroupPushViewed:
		return []byte("push_viewed")
	case GroupVariables:
		return []byte("variables")
	default:
		return []byte("events")
	}
}

// Wire field names. They are part of the collector protocol and must not change.
const (
	KeyScreenName        = "n"
	KeySessionID         = "s"
	KeyPageCount         = "pg"
	KeyType              = "type"
	KeyEpoch             = "ep"
	KeyFirstSession      = "f"
	KeyLastSessionLength = "lsl"
	KeyError             = "wzrk_error"
	KeyPackageName       = "pai"
	KeyEventName         = "evtName"
	KeyEventData         = "evtData"
	KeyProfile           = "profile"
)

// Well-known event names
const (
	EventAppLaunched         = "App Launched"
	EventNotificationClicked = "Notification Clicked"
	EventNotificationViewed  = "Notification Viewed"
	EventGeoclusterEntered   = "Geocluster Entered"
	EventGeoclusterExited    = "Geocluster Exited"
	EventFetch               = "wzrk_fetch"
)

// ValidationError is a validation failure waiting to be attached to the next enriched event
type ValidationError struct {
	Code        int    `json:"c"`
	Description string `json:"d"`
}

func (v ValidationError) Error() string {
	return v.Description
}

// Enrichment holds the session and sequence metadata stamped onto an event before persistence
type Enrichment struct {
	ScreenName               string
	SessionID                int64
	PageCount                int
	Type                     string
	EpochSeconds             int64
	FirstSession             bool
	LastSessionLengthSeconds int64
	Error                    *ValidationError
	PackageName              string

	// Extras carries kind-specific metadata such as memory and network type for pings
	Extras *Payload

	// Lightweight marks push-viewed events, which only carry s, type, ep and wzrk_error
	Lightweight bool
}

// Event is a single telemetry record. The payload is owned by the caller until the
// event is queued; enrichment is set once by the coordinator.
type Event struct {
	Kind    EventKind
	Name    string
	Payload *Payload

	enrichment *Enrichment
}

// NewEvent creates an event with an empty payload when none is given
func NewEvent(kind EventKind, name string, payload *Payload) *Event {
	if payload == nil {
		payload = NewPayload()
	}
	return &Event{
		Kind:    kind,
		Name:    name,
		Payload: payload,
	}
}

// Enrich stamps the event. It fails if the event was already enriched.
func (e *Event) Enrich(en Enrichment) error {
	if e.enrichment != nil {
		return ErrAlreadyEnriched
	}
	e.enrichment = &en
	return nil
}

// Enrichment returns the stamped metadata, or nil before enrichment
func (e *Event) Enrichment() *Enrichment {
	return e.enrichment
}

// Enriched reports whether the event has been stamped
func (e *Event) Enriched() bool {
	return e.enrichment != nil
}

// CommandOp is the tag of a profile command object
type CommandOp string

const (
	CommandSet       CommandOp = "$set"
	CommandIncrement CommandOp = "$incr"
	CommandDecrement CommandOp = "$decr"
	CommandAdd       CommandOp = "$add"
	CommandRemove    CommandOp = "$remove"
	CommandDelete    CommandOp = "$delete"
)

// ProfileCommand is a decoded profile mutation
type ProfileCommand struct {
	Op CommandOp

	// Value is the operand of $set, $incr and $decr
	Value any

	// Values is the operand of $add and $remove
	Values []any
}

// AttributeChange describes how a profile field moved from one value to another
type AttributeChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// OutcomeState is the terminal state of a queued event from the caller's point of view
type OutcomeState string

const (
	OutcomeDropped   OutcomeState = "dropped"
	OutcomeDeferred  OutcomeState = "deferred"
	OutcomePersisted OutcomeState = "persisted"
	OutcomeFailed    OutcomeState = "failed"

	// Flush outcomes
	OutcomeSent    OutcomeState = "sent"
	OutcomeSkipped OutcomeState = "skipped"
)

// Outcome is what a queued event resolved to
type Outcome struct {
	State   OutcomeState
	Group   EventGroup
	Changes map[string]AttributeChange

	// Sent is the number of uploaded events for flush outcomes
	Sent int
}

// StoredEvent is a persisted record read back from the durable store
type StoredEvent struct {
	Key  uint64
	Data []byte
}

// FlushResult is the completion signal of one upload attempt
type FlushResult struct {
	Group      EventGroup
	Sent       int
	Err        error
	RetryDelay time.Duration
}

// Succeeded reports whether the upload completed without error
func (r FlushResult) Succeeded() bool {
	return r.Err == nil
}

// EventHistory is the local bookkeeping kept for each raised event name
type EventHistory struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	FirstTime int64  `json:"firstTime"`
	LastTime  int64  `json:"lastTime"`
}
