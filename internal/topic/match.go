package topic

import "strings"

// Wildcard segments.
const (
	// SingleLevel matches exactly one topic level.
	SingleLevel = "+"

	// MultiLevel matches all remaining topic levels, including none.
	MultiLevel = "#"

	// Separator delimits topic levels.
	Separator = "/"
)

// Matches reports whether topic matches the subscription pattern.
//
// Matching is case-sensitive and byte-exact for literal segments; whitespace
// is significant. A bare "#" matches every topic, including the empty string.
func Matches(pattern, topic string) bool {
	if pattern == MultiLevel {
		return true
	}

	patternLevels := strings.Split(pattern, Separator)
	topicLevels := strings.Split(topic, Separator)

	i := 0
	for ; i < len(patternLevels); i++ {
		level := patternLevels[i]
		if level == MultiLevel {
			return true
		}

		if i >= len(topicLevels) {
			// Topic exhausted and the remaining pattern is not "#".
			return false
		}

		if level != SingleLevel && level != topicLevels[i] {
			return false
		}
	}

	// Pattern exhausted; the topic must be too.
	return i == len(topicLevels)
}

// HasWildcard reports whether pattern contains a "+" or "#" segment.
func HasWildcard(pattern string) bool {
	for _, level := range strings.Split(pattern, Separator) {
		if level == SingleLevel || level == MultiLevel {
			return true
		}
	}
	return false
}
