package recordlog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Header marks a log whose fields are escaped.
const Header = "#mqtt-recorder v2 escaped"

const (
	fieldSeparator = "\t"
	recordFields   = 3

	// timestampPrecision is the number of fractional digits written.
	timestampPrecision = 6
)

// Record is one received message.
type Record struct {
	Time    time.Time
	Topic   string
	Payload string
}

// Seconds returns the record time as floating-point seconds since the epoch.
func (r Record) Seconds() float64 {
	return float64(r.Time.UnixNano()) / float64(time.Second)
}

// FormatTimestamp renders t as seconds since the epoch with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', timestampPrecision, 64)
}

// ParseTimestamp converts a seconds-since-epoch field to a time.
func ParseTimestamp(field string) (time.Time, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, field)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)), nil
}

// FormatLine renders rec as a log line including the trailing newline.
func FormatLine(rec Record, escaped bool) string {
	topic, payload := rec.Topic, rec.Payload
	if escaped {
		topic, payload = Escape(topic), Escape(payload)
	}

	var b strings.Builder
	b.Grow(len(topic) + len(payload) + 24)
	b.WriteString(FormatTimestamp(rec.Time))
	b.WriteString(fieldSeparator)
	b.WriteString(topic)
	b.WriteString(fieldSeparator)
	b.WriteString(payload)
	b.WriteByte('\n')
	return b.String()
}

// ParseLine parses a single log line without its trailing newline.
//
// It returns ErrShortRecord for lines with fewer than three fields and an
// error wrapping ErrInvalidTimestamp when the first field is not numeric.
// Fields beyond the third are ignored.
func ParseLine(line string, escaped bool) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, fieldSeparator)
	if len(fields) < recordFields {
		return Record{}, ErrShortRecord
	}

	ts, err := ParseTimestamp(fields[0])
	if err != nil {
		return Record{}, err
	}

	topic, payload := fields[1], fields[2]
	if escaped {
		topic, payload = Unescape(topic), Unescape(payload)
	}

	return Record{Time: ts, Topic: topic, Payload: payload}, nil
}

// Escape backslash-escapes characters that would break the line format.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\\t\n\r") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape. Unknown escape sequences are kept as written.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}

		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
