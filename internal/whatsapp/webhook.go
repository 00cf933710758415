package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atendezap/atendezap/internal/bus"
)

// ErrIgnored marks events that are valid but irrelevant: our own
// messages, group chats, status broadcasts, non-message events.
var ErrIgnored = errors.New("event ignored")

// ErrInvalidEvent marks payloads that cannot be routed at all.
var ErrInvalidEvent = errors.New("invalid event")

// webhookEvent mirrors the Evolution messages.upsert payload.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			ID        string `json:"id"`
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		PushName string                     `json:"pushName"`
		Message  map[string]json.RawMessage `json:"message"`
	} `json:"data"`
}

// ParseEvent validates and extracts one webhook payload into an
// InboundMessage. The raw payload is retained on the message for
// downstream media handling.
func ParseEvent(body []byte) (*bus.InboundMessage, error) {
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if ev.Event != "" && ev.Event != "messages.upsert" {
		return nil, ErrIgnored
	}
	if ev.Data.Key.FromMe {
		return nil, ErrIgnored
	}

	jid := ev.Data.Key.RemoteJid
	if jid == "" {
		return nil, fmt.Errorf("%w: missing remoteJid", ErrInvalidEvent)
	}
	if strings.HasSuffix(jid, "@g.us") || strings.HasPrefix(jid, "status@") {
		return nil, ErrIgnored
	}

	sender := jid
	if i := strings.IndexByte(jid, '@'); i > 0 {
		sender = jid[:i]
	}
	if sender == "" {
		return nil, fmt.Errorf("%w: empty sender", ErrInvalidEvent)
	}

	msgType, content := classifyMessage(ev.Data.Message)

	return &bus.InboundMessage{
		ID:          ev.Data.Key.ID,
		SenderID:    sender,
		SenderName:  ev.Data.PushName,
		MessageType: msgType,
		Content:     content,
		Raw:         json.RawMessage(body),
		ReceivedAt:  time.Now(),
	}, nil
}

// classifyMessage picks the declared message type and inline text.
// Unrecognized shapes fall back to the text path.
func classifyMessage(msg map[string]json.RawMessage) (msgType, content string) {
	if raw, ok := msg["audioMessage"]; ok && len(raw) > 0 {
		return "audioMessage", ""
	}
	if raw, ok := msg["imageMessage"]; ok && len(raw) > 0 {
		return "imageMessage", ""
	}
	if raw, ok := msg["conversation"]; ok {
		var text string
		_ = json.Unmarshal(raw, &text)
		return "conversation", text
	}
	if raw, ok := msg["extendedTextMessage"]; ok {
		var ext struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(raw, &ext)
		return "extendedTextMessage", ext.Text
	}
	// Unknown kind: routed as text downstream.
	for k := range msg {
		return k, ""
	}
	return "", ""
}
