// Package topic evaluates MQTT subscription patterns against concrete topics.
//
// Patterns are "/"-delimited. A "+" segment matches exactly one topic level
// (which may be empty) and a "#" segment matches zero or more trailing levels.
// Malformed patterns (for example "#" in a non-final position) are not
// rejected; they are matched on a best-effort basis.
//
// # Usage
//
//	topic.Matches("sensors/+/temp", "sensors/kitchen/temp") // true
//	topic.Matches("sensors/#", "sensors")                   // true
//	topic.Matches("sensors/+", "sensors/a/b")               // false
package topic
