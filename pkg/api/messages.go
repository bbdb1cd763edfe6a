package api

import "time"

type (
	// PublishResponse is returned when a publish is accepted
	PublishResponse struct {
		Topic   TopicName `json:"topic"`
		Message string    `json:"message"`
	}

	// TopicsResponse lists the known topic names and where they came from
	TopicsResponse struct {
		Source string      `json:"source"`
		Topics []TopicName `json:"topics"`
		Count  int         `json:"count"`
		Loaded bool        `json:"loaded"`
	}

	// TopicResponse describes a single topic
	TopicResponse struct {
		Definition  *TopicDef `json:"definition"`
		Name        TopicName `json:"name"`
		Subscribers int       `json:"subscribers"`
	}

	// SequencesResponse lists the mounted sequences and discovered targets
	SequencesResponse struct {
		Sequences  []SequenceID `json:"sequences"`
		Discovered []TargetID   `json:"discovered"`
		Count      int          `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string    `json:"service"`
		Status  string    `json:"status"`
		Time    time.Time `json:"time"`
		Ready   bool      `json:"ready"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations,omitempty"`
		Status     int      `json:"status,omitempty"`
	}
)
