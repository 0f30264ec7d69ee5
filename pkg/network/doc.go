/*
Package network uploads queued events to the collector over HTTP.

# Protocol

A syncer first performs a handshake:

	GET <endpoint>/hello
	X-WZRK-AID: <account id>
	X-WZRK-TK:  <token>

The response may redirect uploads with X-WZRK-RD (regular and variables)
and X-WZRK-SPIKY-RD (push-viewed). Without a redirect the configured
endpoint host is used.

Uploads post a JSON array whose first element is a meta header:

	POST https://<domain>/a1?os=Go&z=<account>&ts=<now>
	[{"type":"meta","g":"<device>","id":"<account>","tk":"<token>","l_ts":<now>},
	 {...event...}, {...event...}]

Events are read from the store in batches of Config.BatchSize and deleted
only after the collector answers 2xx. Any response may carry X-WZRK-MUTE,
which mutes or unmutes the client.

# Backoff

RecommendedDelay is BaseDelay doubled for each consecutive failure, capped at
MaxDelay, and resets after a successful flush. Every result is published as
a flush.succeeded or flush.failed event so the coordinator can reschedule.
*/
package network
