/*
Package storage persists the local queue and client state in BoltDB.

Everything lives in one beacon.db file under the data directory:

	events        regular queue, keyed by bucket sequence
	push_viewed   push-viewed queue
	variables     variables queue
	profile       cached profile fields (JSON values)
	event_history per-name count, first and last time
	identities    "<field>:<value>" -> device id
	meta          device id and session bookkeeping

Queue keys are big-endian sequence numbers, so a cursor walks events in the
order they were appended. Read returns the oldest events of a group and
Delete removes every event up to and including a key, which lets the syncer
drop a batch once the collector has accepted it.

The store interfaces (EventStore, ProfileStore, HistoryStore, IdentityStore,
MetaStore) are split so that each collaborator depends only on what it uses.
*/
package storage
