// Package pipeline orchestrates one inbound WhatsApp event through the
// node graph: validate, client lookup, media normalization, per-sender
// buffering with a debounce window, the agent turn, fragmentation and
// delivery. Each event gets its own ConversationState; the per-sender
// queue is the only state shared between events.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/atendezap/atendezap/internal/agent"
	"github.com/atendezap/atendezap/internal/bus"
	"github.com/atendezap/atendezap/internal/media"
	"github.com/atendezap/atendezap/internal/queue"
	"github.com/atendezap/atendezap/internal/store"
)

// MediaNormalizer converts an inbound message of a given kind to text.
type MediaNormalizer interface {
	Normalize(ctx context.Context, kind media.Kind, msg bus.InboundMessage) (string, error)
}

// TurnRunner executes one agent turn over drained fragments.
type TurnRunner interface {
	Run(ctx context.Context, turn agent.Turn) (*agent.TurnResult, error)
}

// Transport delivers one reply chunk to a sender.
type Transport interface {
	SendText(ctx context.Context, senderID, text string) error
}

// Config bounds pipeline behavior.
type Config struct {
	DebounceWindow  time.Duration
	MaxPending      int // fragments buffered per sender before a forced drain
	MaxMessageChars int
	TurnTimeout     time.Duration
}

// Pipeline is the orchestration graph. Safe for concurrent HandleInbound
// calls.
type Pipeline struct {
	clients    store.ClientStore
	normalizer MediaNormalizer
	queue      *queue.SenderQueue
	debouncer  *queue.Debouncer
	agent      TurnRunner
	transport  Transport
	cfg        Config

	// Last seen push name per sender, for turns triggered by the
	// debounce timer where the original event is gone.
	senderNames sync.Map

	wg sync.WaitGroup
}

func New(clients store.ClientStore, normalizer MediaNormalizer, q *queue.SenderQueue, runner TurnRunner, transport Transport, cfg Config) *Pipeline {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 8 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 20
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = 1000
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	p := &Pipeline{
		clients:    clients,
		normalizer: normalizer,
		queue:      q,
		agent:      runner,
		transport:  transport,
		cfg:        cfg,
	}
	p.debouncer = queue.NewDebouncer(cfg.DebounceWindow, p.flushSender)
	return p
}

// Run consumes inbound events until the context ends, then waits for
// in-flight work. Each event is handled on its own goroutine so one
// sender's slow media normalization never holds up another sender;
// same-sender ordering is preserved at the queue, not here.
func (p *Pipeline) Run(ctx context.Context, router bus.MessageRouter) error {
	for {
		msg, ok := router.ConsumeInbound(ctx)
		if !ok {
			p.debouncer.Stop()
			p.wg.Wait()
			return nil
		}
		p.wg.Add(1)
		go func(m bus.InboundMessage) {
			defer p.wg.Done()
			p.HandleInbound(ctx, m)
		}(msg)
	}
}

// HandleInbound runs one event through the graph up to the debounce
// boundary. The agent stage runs later, when the sender's window
// closes.
func (p *Pipeline) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	state := &ConversationState{Message: msg, Signal: SignalContinue}

	nodes := []func(context.Context, *ConversationState){
		p.validate,
		p.lookupClient,
		p.routeMedia,
		p.enqueue,
	}
	for _, node := range nodes {
		node(ctx, state)
		if state.Signal != SignalContinue {
			break
		}
	}

	switch state.Signal {
	case SignalError:
		p.errorSink(ctx, state)
	case SignalAwaitDebounce, SignalDone, SignalContinue:
		// Turn continues via the debounce flush, or is over.
	}
}

// validate rejects events that must never reach the agent.
func (p *Pipeline) validate(ctx context.Context, s *ConversationState) {
	if strings.TrimSpace(s.Message.SenderID) == "" {
		s.fail(&ValidationError{Reason: "missing sender id"})
		return
	}
	if s.Message.ID == "" {
		s.fail(&ValidationError{Reason: "missing message id"})
		return
	}
	s.Kind = media.KindFromMessageType(s.Message.MessageType)
	if s.Kind == media.KindText && strings.TrimSpace(s.Message.Content) == "" {
		s.fail(&ValidationError{Reason: "empty text message"})
		return
	}
	if s.Message.SenderName != "" {
		p.senderNames.Store(s.Message.SenderID, s.Message.SenderName)
	}
}

// lookupClient loads or registers the contact. Failures are recorded
// but do not block the turn: the agent can answer an unregistered
// client.
func (p *Pipeline) lookupClient(ctx context.Context, s *ConversationState) {
	client, err := p.clients.Lookup(ctx, s.Message.SenderID)
	if err == nil {
		s.Client = client
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("client lookup failed", "sender", s.Message.SenderID, "error", err)
		s.fail(&PersistenceError{Op: "client lookup", Err: err})
		return
	}

	registered, err := p.clients.Register(ctx, store.Client{
		Phone: s.Message.SenderID,
		Name:  s.Message.SenderName,
	})
	if err != nil {
		// Registration is best-effort; the conversation proceeds.
		slog.Warn("client registration failed", "sender", s.Message.SenderID, "error", err)
		return
	}
	slog.Info("client registered", "sender", s.Message.SenderID, "name", registered.Name)
	s.Client = registered
}

// routeMedia normalizes the event to text by kind. Media failures keep
// the turn alive with the fixed fallback text as input.
func (p *Pipeline) routeMedia(ctx context.Context, s *ConversationState) {
	text, err := p.normalizer.Normalize(ctx, s.Kind, s.Message)
	if err != nil {
		s.Err = &MediaRetrievalError{MediaKind: s.Kind.String(), Err: err}
		slog.Error("media normalization degraded", "sender", s.Message.SenderID, "kind", s.Kind.String(), "error", err)
	}
	s.ProcessedText = text
	if strings.TrimSpace(s.ProcessedText) == "" {
		s.fail(&ValidationError{Reason: "no text derived from message"})
	}
}

// enqueue buffers the fragment and arms the debounce timer. A full
// buffer drains immediately instead of waiting out the window.
func (p *Pipeline) enqueue(ctx context.Context, s *ConversationState) {
	if p.queue == nil {
		// Queue backend unavailable: process this fragment alone.
		s.PendingFragments = []queue.Fragment{{Content: s.ProcessedText, Kind: s.Kind}}
		p.runTurn(s.Message.SenderID, s.PendingFragments)
		s.Signal = SignalDone
		return
	}

	p.queue.Enqueue(s.Message.SenderID, queue.Fragment{
		Content: s.ProcessedText,
		Kind:    s.Kind,
	})

	if p.queue.Count(s.Message.SenderID) >= p.cfg.MaxPending {
		slog.Warn("sender buffer full, draining early", "sender", s.Message.SenderID)
		go p.debouncer.FlushNow(s.Message.SenderID)
	} else {
		p.debouncer.Touch(s.Message.SenderID)
	}
	s.Signal = SignalAwaitDebounce
}

// flushSender is the debounce callback: it re-enters the graph at the
// drain node on its own goroutine.
func (p *Pipeline) flushSender(senderID string) {
	fragments := p.queue.Drain(senderID)
	if len(fragments) == 0 {
		// A racing drain already claimed the buffer.
		return
	}
	p.runTurn(senderID, fragments)
}

// runTurn executes the agent stage through delivery for one drained
// buffer.
func (p *Pipeline) runTurn(senderID string, fragments []queue.Fragment) {
	p.wg.Add(1)
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TurnTimeout)
	defer cancel()

	ctx, span := otel.Tracer("atendezap/pipeline").Start(ctx, "pipeline.turn")
	defer span.End()

	name, _ := p.senderNames.Load(senderID)
	senderName, _ := name.(string)

	result, err := p.agent.Run(ctx, agent.Turn{
		SenderID:   senderID,
		SenderName: senderName,
		Fragments:  fragments,
	})
	if err != nil {
		slog.Error("agent turn degraded", "sender", senderID, "error", &AgentTimeoutError{Err: err})
	}
	if result == nil || strings.TrimSpace(result.Reply) == "" {
		slog.Error("agent turn produced nothing to send", "sender", senderID)
		return
	}

	// The turn context may already be spent when the agent timed out;
	// delivery gets its own deadline so the fallback still goes out.
	sendCtx, cancelSend := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSend()
	p.deliver(sendCtx, senderID, result.Reply)
}

// deliver fragments and sends the reply. Chunks go out in order; a
// failed chunk aborts the remainder.
func (p *Pipeline) deliver(ctx context.Context, senderID, reply string) {
	chunks := agent.FragmentReply(reply, p.cfg.MaxMessageChars)
	for i, chunk := range chunks {
		if err := p.transport.SendText(ctx, senderID, chunk); err != nil {
			slog.Error("reply delivery failed",
				"sender", senderID, "chunk", i+1, "of", len(chunks),
				"error", &DeliveryError{SenderID: senderID, Err: err})
			return
		}
	}
	slog.Info("reply delivered", "sender", senderID, "chunks", len(chunks))
}

// errorSink closes a failed run. Validation failures are silent;
// anything after validation still sends a fallback so the customer is
// never left hanging.
func (p *Pipeline) errorSink(ctx context.Context, s *ConversationState) {
	var verr *ValidationError
	if errors.As(s.Err, &verr) {
		slog.Warn("event rejected", "sender", s.Message.SenderID, "reason", verr.Reason)
		return
	}

	slog.Error("pipeline error", "sender", s.Message.SenderID, "error", s.Err)
	name, _ := p.senderNames.Load(s.Message.SenderID)
	senderName, _ := name.(string)
	if senderName == "" {
		senderName = "Cliente"
	}
	fallback := "Oi " + senderName + "! 😊\n\nDesculpe, estou com um problema técnico no momento. " +
		"Pode tentar novamente em alguns segundos?"
	p.deliver(ctx, s.Message.SenderID, fallback)
}

// Shutdown stops the debouncer and waits for in-flight turns.
func (p *Pipeline) Shutdown() {
	p.debouncer.Stop()
	p.wg.Wait()
}
