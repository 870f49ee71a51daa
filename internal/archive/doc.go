// Package archive keeps every recorded message in an SQLite table.
//
// The archive mirrors the log file: the recorder writes each message to both,
// and the export command turns an archive back into a replayable log.
// Timestamps are stored as microseconds since the epoch, the precision of
// the log format, so an exported log replays with the original timing.
package archive
