package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys carried on every message written by the outbox relay.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderAgentID   = "agent_id"
)

// EventMeta is the metadata carried on Kafka messages.
type EventMeta struct {
	EventID   string
	EventType string
	AgentID   string
}

func (m EventMeta) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	if m.AgentID != "" {
		headers = append(headers, kafka.Header{Key: HeaderAgentID, Value: []byte(m.AgentID)})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// TopicFor joins a prefix and an event type into a topic name.
func TopicFor(prefix, eventType string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
