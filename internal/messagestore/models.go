package messagestore

import "time"

// Message is a single user message stored in a topic.
//
// Timestamp is persisted at microsecond precision; sub-microsecond detail is
// truncated on write. Vector length always equals the topic's configured
// embedding dimension for persisted messages.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	UserID    string         `json:"userId"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Vector    []float32      `json:"-"`
}
