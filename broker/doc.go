// Package broker is the composition root of the vCenter access broker.
//
// Broker.Invoke is the one path from a caller to vCenter:
//
//	authorize -> rate limit -> tool lookup -> host allow-list -> tool.Run
//
// tool.Run talks to vCenter through a host-bound caller backed by the session
// pool and the retry executor. Every Invoke ends in exactly one audit record
// and either a result or an *Error whose Kind names what went wrong.
package broker
