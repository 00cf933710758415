// Package agent runs the bounded tool-calling loop that turns an
// aggregated customer message into a reply, plus the post-processing
// and fragmentation applied before delivery.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atendezap/atendezap/internal/providers"
	"github.com/atendezap/atendezap/internal/queue"
	"github.com/atendezap/atendezap/internal/store"
	"github.com/atendezap/atendezap/internal/tools"
)

// Config bounds one agent turn.
type Config struct {
	AgentName     string
	CompanyName   string
	SystemPrompt  string // overrides the built-in persona prompt when set
	Model         string
	MaxIterations int
	TurnTimeout   time.Duration
	HistoryLoad   int // entries read from the store
	HistoryRender int // entries rendered into the prompt
	MaxTokens     int
	Temperature   float64
}

// Loop drives the model through at most MaxIterations rounds of tool
// execution and produces a cleaned final reply.
type Loop struct {
	provider providers.ChatProvider
	registry *tools.Registry
	history  store.HistoryStore
	cfg      Config
	now      func() time.Time
}

func NewLoop(provider providers.ChatProvider, registry *tools.Registry, history store.HistoryStore, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 90 * time.Second
	}
	if cfg.HistoryLoad <= 0 {
		cfg.HistoryLoad = 10
	}
	if cfg.HistoryRender <= 0 {
		cfg.HistoryRender = 6
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.9
	}
	return &Loop{
		provider: provider,
		registry: registry,
		history:  history,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Turn is one drained buffer of fragments for a sender.
type Turn struct {
	SenderID   string
	SenderName string
	Fragments  []queue.Fragment
}

// TurnResult is the outcome of one agent run.
type TurnResult struct {
	Reply      string
	Iterations int
	Usage      providers.Usage
}

// fallbackReply is sent whenever the loop itself fails. The customer
// never sees a raw error.
func fallbackReply(name string) string {
	if name == "" {
		name = "Cliente"
	}
	return fmt.Sprintf("Oi %s! 😊\n\nDesculpe, estou com um problema técnico no momento. "+
		"Pode tentar novamente em alguns segundos?\n\n"+
		"Se o problema persistir, entre em contato pelo telefone "+
		"ou aguarde que em breve estarei funcionando normalmente.", name)
}

// Run executes one turn. On loop failure (model error, timeout) the
// returned result still carries a warm fallback reply and err describes
// the cause, so the pipeline can both deliver and record it.
func (l *Loop) Run(ctx context.Context, turn Turn) (*TurnResult, error) {
	userInput := AggregateFragments(turn.Fragments)
	if userInput == "" {
		return nil, errors.New("empty turn: no fragments to process")
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.TurnTimeout)
	defer cancel()

	// No-op unless an exporter is installed (build tag otel).
	ctx, span := otel.Tracer("atendezap/agent").Start(ctx, "agent.turn")
	span.SetAttributes(attribute.Int("fragments", len(turn.Fragments)))
	defer span.End()

	start := l.now()
	slog.Info("agent turn started",
		"sender", turn.SenderID, "fragments", len(turn.Fragments), "input_len", len(userInput))

	entries, err := l.history.Recent(ctx, turn.SenderID, l.cfg.HistoryLoad)
	if err != nil {
		slog.Warn("history load failed, continuing without context", "sender", turn.SenderID, "error", err)
		entries = nil
	}

	system := l.cfg.SystemPrompt
	if system == "" {
		system = systemPrompt(l.cfg.AgentName, l.cfg.CompanyName, l.now())
	}

	messages := []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: renderTurnInput(entries, l.cfg.AgentName, l.cfg.HistoryRender, userInput)},
	}

	var totalUsage providers.Usage
	var final string
	iteration := 0

	for iteration < l.cfg.MaxIterations {
		iteration++

		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       l.registry.Definitions(),
			Model:       l.cfg.Model,
			MaxTokens:   l.cfg.MaxTokens,
			Temperature: l.cfg.Temperature,
		})
		if err != nil {
			slog.Error("model call failed", "sender", turn.SenderID, "iteration", iteration, "error", err)
			return &TurnResult{Reply: fallbackReply(turn.SenderName), Iterations: iteration, Usage: totalUsage},
				fmt.Errorf("model call (iteration %d): %w", iteration, err)
		}
		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		// Keep whatever text came with the tool round: if the ceiling
		// is hit, this is the reply the customer gets.
		final = resp.Content

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			messages = append(messages, l.executeToolCall(ctx, turn.SenderID, tc))
		}
	}

	final = strings.TrimSpace(final)
	if final == "" {
		slog.Warn("agent produced no content", "sender", turn.SenderID, "iterations", iteration)
		final = fallbackReply(turn.SenderName)
	}
	reply := NormalizeReply(final)

	l.persistTurn(turn.SenderID, userInput, reply)

	span.SetAttributes(attribute.Int("iterations", iteration))
	slog.Info("agent turn completed",
		"sender", turn.SenderID, "iterations", iteration,
		"duration_ms", l.now().Sub(start).Milliseconds(), "reply_len", len(reply))

	return &TurnResult{Reply: reply, Iterations: iteration, Usage: totalUsage}, nil
}

// executeToolCall runs one tool sequentially and renders its outcome as
// a labeled tool message. Unknown tools are skipped, not fatal.
func (l *Loop) executeToolCall(ctx context.Context, senderID string, tc providers.ToolCall) providers.Message {
	out, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)

	var content string
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		slog.Warn("tool call skipped", "sender", senderID, "tool", tc.Name)
		content = fmt.Sprintf("[Erro em %s]: ferramenta não disponível", tc.Name)
	case err != nil:
		slog.Error("tool execution failed", "sender", senderID, "tool", tc.Name, "error", err)
		content = fmt.Sprintf("[Erro em %s]: %v", tc.Name, err)
	default:
		slog.Info("tool executed", "sender", senderID, "tool", tc.Name, "result_len", len(out))
		content = fmt.Sprintf("[Resultado de %s]: %s", tc.Name, out)
	}

	return providers.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: tc.ID,
	}
}

// persistTurn appends the user/assistant pair to history. The turn
// context may already be near its deadline, so writes get their own.
// Failures are logged and never fail the turn.
func (l *Loop) persistTurn(senderID, userInput, reply string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.history.Append(ctx, senderID, "user", userInput); err != nil {
		slog.Error("history append failed", "sender", senderID, "role", "user", "error", err)
		return
	}
	if err := l.history.Append(ctx, senderID, "assistant", reply); err != nil {
		slog.Error("history append failed", "sender", senderID, "role", "assistant", "error", err)
	}
}
