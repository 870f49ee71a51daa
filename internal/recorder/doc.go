// Package recorder persists delivered MQTT messages to a log file.
//
// A Recorder is the dump handler of the dispatch registry: every message it
// handles becomes one timestamped record in the output file, written through
// recordlog.Writer. Optional mirrors (the SQLite archive, InfluxDB) receive a
// copy of each message; a failing mirror never blocks the file write.
//
// The Recorder is driven from the session loop only and is not safe for
// concurrent use.
package recorder
