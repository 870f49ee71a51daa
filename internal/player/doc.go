// Package player replays a recorded log through a session.
//
// Records are published in file order to their original topics. With
// timing preserved, the player sleeps for the gap between consecutive
// record timestamps before each publish; a gap that is zero or negative
// (equal timestamps, clock regressions) publishes immediately.
//
// Short lines are skipped. A line whose timestamp is not a number aborts
// the run, because pacing cannot continue without it.
//
// After the last record the player waits a grace period so the transport
// can flush in-flight publishes, then disconnects the session.
package player
