/*
Package types defines the data model shared by every beacon package.

It contains the event record and its enrichment, the profile command union
decoded from "$command" objects, attribute change entries, event groups and
the outcome and flush-result values that flow back to callers.

# Core Types

Events:
  - Event: kind, optional name, ordered payload, enrichment set once
  - EventKind: page, ping, profile, data, raised, fetch, define_vars
  - Enrichment: session id, page count, type tag, epoch seconds, first-session
    flag, last session length, optional validation error and package name
  - Payload: insertion-ordered string map used for every wire object

Queue partitions:
  - EventGroup: regular, push_viewed, variables. Each maps to one storage bucket

Profiles:
  - ProfileCommand: $set, $incr, $decr, $add, $remove, $delete
  - AttributeChange: field, old value, new value

Results:
  - Outcome: dropped, deferred, persisted or failed, plus profile changes
  - FlushResult: group, number of events sent, error and retry delay

# Wire Shape

Enriched events encode as

	{ n?, s, pg, type, ep, f, lsl, wzrk_error?, pai?, ...domain fields }

Raised, fetch and define_vars events carry their name and payload as evtName
and evtData. Profile events carry their payload under "profile". Other kinds
merge payload fields into the top-level object. Push-viewed events are
lightweight and only carry s, type, ep and wzrk_error.

# Thread Safety

Types in this package are not synchronized. An Event belongs to its caller
until it is queued and to the coordinator afterwards.
*/
package types
