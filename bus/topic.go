package bus

import (
	"fmt"
	"strings"
)

// Topic builds the tenant-scoped topic name {env}.{tenant}.{service}.{event}.
func Topic(env, tenant, service, event string) string {
	return fmt.Sprintf("%s.%s.%s.%s", env, tenant, service, event)
}

// InboundTopics builds the subscription list for a stage: one topic per
// declared event of the producing service.
func InboundTopics(env, tenant, producer string, events []string) []string {
	topics := make([]string, 0, len(events))
	for _, e := range events {
		topics = append(topics, Topic(env, tenant, producer, e))
	}
	return topics
}

// TenantOf extracts the tenant segment of a topic name, or "" when the
// topic does not follow the four-segment layout.
func TenantOf(topic string) string {
	parts := strings.SplitN(topic, ".", 4)
	if len(parts) < 4 {
		return ""
	}
	return parts[1]
}

// KeySuffix strips any existing "prefix:" segment from a message key.
func KeySuffix(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// PrefixKey returns "{prefix}:{suffix(key)}". With an empty prefix the key
// passes through unchanged.
func PrefixKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + KeySuffix(key)
}
