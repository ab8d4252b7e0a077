package mqtt

import (
	"fmt"
	"strings"
)

// ValidateTopic checks a topic name used for publishing.
// Publish topics must be non-empty and must not contain wildcards.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription topic filter.
//
// A "+" must occupy a whole level; a "#" must occupy the last level.
// So "a/+/c" and "a/#" are valid, "a/b+/c" and "a/#/c" are not.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// Match reports whether topic matches the subscription filter.
//
// Example:
//
//	mqtt.Match("release2mqtt/nas01/docker/+", "release2mqtt/nas01/docker/web") // true
//	mqtt.Match("release2mqtt/nas01/docker/+", "release2mqtt/nas01/docker")     // false
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
