package api

type (
	// TopicEvent is sent to WebSocket clients streaming a topic
	TopicEvent struct {
		Payload   Payload   `json:"payload,omitempty"`
		Type      string    `json:"type"`
		Topic     TopicName `json:"topic"`
		Timestamp int64     `json:"timestamp"`
	}
)

const (
	TopicEventSubscribed = "subscribed"
	TopicEventPayload    = "payload"
)
