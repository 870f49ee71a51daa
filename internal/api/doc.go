// Package api implements the optional HTTP status API of the recorder.
//
// This package provides:
//   - Health and status endpoints (session state, recorded and archived counts)
//   - A query endpoint over the SQLite archive, filtered by topic pattern
//   - A WebSocket hub that streams every recorded message to subscribed clients
//   - Bearer token authentication (JWT) when a secret is configured
//   - Middleware stack (request ID, logging, recovery)
//
// # Live feed
//
// The Hub implements the recorder's mirror interface, so it sees each message
// at the moment it is written to the log file. Clients subscribe with MQTT
// topic patterns and receive only matching messages. Slow clients drop
// messages rather than stall recording.
package api
