package bus

import (
	"context"
	"encoding/json"
	"time"
)

// InboundMessage is one WhatsApp event as parsed from the webhook,
// before media normalization.
type InboundMessage struct {
	ID          string          `json:"id"`         // provider message id, dedupe key
	SenderID    string          `json:"sender_id"`  // phone number (digits only)
	SenderName  string          `json:"sender_name,omitempty"`
	MessageType string          `json:"message_type"` // raw provider type: conversation, audioMessage, imageMessage, ...
	Content     string          `json:"content,omitempty"` // inline text when present
	Raw         json.RawMessage `json:"raw,omitempty"`     // original event payload, kept opaque
	ReceivedAt  time.Time       `json:"received_at"`
}

// MessageRouter carries parsed events from the webhook to the pipeline
// consumer. Replies go straight out through the transport, not back
// through the bus.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
