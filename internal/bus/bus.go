package bus

import (
	"context"
	"log/slog"
)

const defaultBufferSize = 256

// MessageBus is an in-process MessageRouter backed by buffered channels.
// Publishing never blocks: when a buffer is full the message is dropped
// with a warning rather than stalling the webhook handler.
type MessageBus struct {
	inbound chan InboundMessage
}

// NewMessageBus creates a bus with the default buffer size.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, defaultBufferSize),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound bus full, dropping message", "sender", msg.SenderID, "id", msg.ID)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is cancelled.
// The second return is false only on cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}
