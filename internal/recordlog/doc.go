// Package recordlog reads and writes the recorder's line-oriented log format.
//
// Each record is one line of three tab-separated fields:
//
//	<unix seconds with fraction>\t<topic>\t<payload>\n
//
// Files written by this package start with a header line (Header) that has
// no tab in it, so older readers skip it as a short line. When the header is
// present, backslash, tab, newline and carriage return inside the topic and
// payload are backslash-escaped. Files without the header are legacy logs
// and their fields are taken verbatim.
//
// Lines with fewer than three fields are skipped by the Reader. A timestamp
// that does not parse as a number is fatal: ordering and pacing depend on it.
package recordlog
