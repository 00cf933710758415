package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atendezap/atendezap/internal/bus"
)

// Bridge connects to a WhatsApp bridge over WebSocket as an alternative
// to the HTTP webhook + sendText transport. The bridge handles the
// WhatsApp protocol; this side exchanges JSON frames.
type Bridge struct {
	url    string
	router bus.MessageRouter
	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge client. Messages read from the bridge are
// published inbound on the router.
func NewBridge(url string, router bus.MessageRouter) (*Bridge, error) {
	if url == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Bridge{url: url, router: router}, nil
}

// Start connects and begins the listen loop. The initial connection
// failing is not fatal; the loop keeps retrying with backoff.
func (b *Bridge) Start(ctx context.Context) error {
	slog.Info("starting whatsapp bridge", "url", b.url)
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.connect(); err != nil {
		slog.Warn("initial bridge connection failed, will retry", "error", err)
	}
	go b.listenLoop()
	return nil
}

// Stop closes the connection and stops reconnecting.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// SendText delivers one text chunk through the bridge.
func (b *Bridge) SendText(_ context.Context, number, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(map[string]interface{}{
		"type":    "message",
		"to":      number,
		"content": text,
	})
	if err != nil {
		return fmt.Errorf("marshal bridge message: %w", err)
	}
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send bridge message: %w", err)
	}
	return nil
}

func (b *Bridge) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(b.url, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", b.url, err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", b.url)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (b *Bridge) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := b.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}
			backoff = time.Second
			continue
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "error", err)
			b.mu.Lock()
			if b.conn != nil {
				_ = b.conn.Close()
				b.conn = nil
			}
			b.mu.Unlock()
			continue
		}

		b.handleFrame(frame)
	}
}

// handleFrame converts one bridge frame into an inbound bus message.
// Expected: {"type":"message","from":"5561...","content":"...","id":"...","from_name":"...","kind":"text|audio|image"}
func (b *Bridge) handleFrame(frame []byte) {
	var msg struct {
		Type     string `json:"type"`
		From     string `json:"from"`
		Content  string `json:"content"`
		ID       string `json:"id"`
		FromName string `json:"from_name"`
		Kind     string `json:"kind"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		slog.Warn("invalid bridge frame", "error", err)
		return
	}
	if msg.Type != "message" || msg.From == "" {
		return
	}

	msgType := "conversation"
	switch msg.Kind {
	case "audio":
		msgType = "audioMessage"
	case "image":
		msgType = "imageMessage"
	}

	b.router.PublishInbound(bus.InboundMessage{
		ID:          msg.ID,
		SenderID:    msg.From,
		SenderName:  msg.FromName,
		MessageType: msgType,
		Content:     msg.Content,
		Raw:         json.RawMessage(frame),
		ReceivedAt:  time.Now(),
	})
}
