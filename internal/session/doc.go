// Package session owns the broker connection for one recorder or player run.
//
// A Controller connects the transport, subscribes every pattern in its
// dispatch.Registry once the broker acknowledges the connection, and routes
// each delivery to the handler the registry resolves for its topic.
//
// # Event Loop
//
// Transport callbacks never touch session state. They post events onto a
// channel that a single goroutine drains; that goroutine alone resolves
// handlers, runs them, and updates the registry cache. Other goroutines read
// the connection state atomically and publish through the transport, which is
// itself safe for concurrent use.
//
// # Modes
//
// Run connects and services the loop on the calling goroutine (record-only).
// Start connects and services the loop in the background, so a player can
// drive publishes from its own goroutine while recording continues.
//
// # Control Topic
//
// New registers ControlTopic. A message on it whose payload is exactly
// "exit" disconnects the session; anything else is ignored.
//
// # Lifecycle
//
//	disconnected -> connecting -> connected -> disconnected (terminal)
//
// A dropped connection is terminal; there is no reconnection.
package session
