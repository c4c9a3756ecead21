// Package pending supervises outstanding board requests.
//
// Every request that expects a reply is registered as an Expectation:
// the shape of the reply it is waiting for (kind, register, count),
// the slot and resource that issued it, and the session awaiting the
// outcome. Each expectation carries its own one-shot watchdog timer,
// 100 ms by default.
//
// An inbound packet resolves the oldest expectation with a matching
// shape on the same core; its timer is cancelled. If the timer fires
// first, the expectation is discarded and the timeout callback runs
// exactly once. There is no retry and no re-arm: the watchdog's only
// job is to make a dropped reply observable instead of leaving the
// requesting session waiting forever.
//
// The wire protocol has no transaction identifiers, so two outstanding
// requests with identical shapes cannot be told apart on arrival.
// Resolve reports this so the caller can log the ambiguity; matching
// still proceeds oldest-first. The per-expectation sequence number is
// local bookkeeping only and never reaches the wire.
package pending
