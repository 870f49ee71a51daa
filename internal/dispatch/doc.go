// Package dispatch maps subscribed topic patterns to message handlers.
//
// The Registry holds subscriptions in registration order. Incoming messages
// carry concrete topics; Resolve finds the handler of the first registered
// pattern that matches and memoises the answer per concrete topic, including
// the "no handler" answer. The memo only affects dispatch; it never changes
// what is subscribed at the broker.
//
// Handlers are a closed set of variants identified by Kind:
//
//   - KindDump: persist the message (implemented by the recorder)
//   - KindControl: out-of-band commands on the control topic (the session)
//   - KindLog: log the message and drop it
//   - KindDiscard: drop the message silently
//
// # Thread Safety
//
// A Registry is not safe for concurrent use. Registration happens before the
// session connects; after that only the session's event loop calls Resolve.
package dispatch
