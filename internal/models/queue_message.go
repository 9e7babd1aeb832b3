package models

// QueueMessage wraps one event between ingestion and scoring. It exists only
// until the worker acknowledges it; redelivery of the same EventID is normal
// and must be handled idempotently downstream.
type QueueMessage struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ChannelType string `json:"channel_type"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// Group returns the conversation-scoped ordering key. Messages that share a
// group are delivered in enqueue order with at most one in flight.
func (m QueueMessage) Group() string {
	return m.ChannelID + ":" + m.UserID
}
