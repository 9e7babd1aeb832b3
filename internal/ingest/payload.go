package ingest

import "emotion-pulse/backend/internal/models"

// Inbound webhook types, matching the chat platform's event API.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"
	TypeMessageEvent    = "message"
)

// WebhookPayload is the envelope of an inbound webhook call. The same
// endpoint receives both the one-time url_verification handshake and
// event_callback deliveries.
type WebhookPayload struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Challenge string `json:"challenge,omitempty"`

	APIAppID  string       `json:"api_app_id,omitempty"`
	EventID   string       `json:"event_id,omitempty"`
	EventTime int64        `json:"event_time,omitempty"`
	Event     MessageEvent `json:"event,omitempty"`
}

// MessageEvent is the platform's message body inside an event_callback.
type MessageEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type"`
	EventTS     string `json:"event_ts"`
	Text        string `json:"text"`
	User        string `json:"user"`
	BotID       string `json:"bot_id,omitempty"`
}

// ToQueueMessage maps a verified payload onto the queue envelope, reusing
// the platform's event id as the idempotency key.
func (p *WebhookPayload) ToQueueMessage() models.QueueMessage {
	return models.QueueMessage{
		EventID:     p.EventID,
		UserID:      p.Event.User,
		ChannelID:   p.Event.Channel,
		ChannelType: p.Event.ChannelType,
		Text:        p.Event.Text,
		Timestamp:   p.EventTime,
	}
}
