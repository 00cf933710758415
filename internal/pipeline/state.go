package pipeline

import (
	"github.com/atendezap/atendezap/internal/bus"
	"github.com/atendezap/atendezap/internal/media"
	"github.com/atendezap/atendezap/internal/queue"
	"github.com/atendezap/atendezap/internal/store"
)

// Signal is the control edge a node selects after running.
type Signal string

const (
	// SignalContinue advances to the next node in the happy path.
	SignalContinue Signal = "continue"
	// SignalAwaitDebounce ends this event's run; a delayed flush will
	// re-enter at the drain node.
	SignalAwaitDebounce Signal = "await_debounce"
	// SignalError routes to the error sink.
	SignalError Signal = "error"
	// SignalDone terminates the run.
	SignalDone Signal = "done"
)

// ConversationState is threaded through the graph for one inbound
// event. Nodes mutate it and pick the next edge via Signal; no state is
// shared across events except the per-sender queue.
type ConversationState struct {
	Message bus.InboundMessage

	Kind          media.Kind
	ProcessedText string

	Client *store.Client

	PendingFragments []queue.Fragment
	Reply            string
	ReplyFragments   []string

	Err    error
	Signal Signal
}

func (s *ConversationState) fail(err error) {
	s.Err = err
	s.Signal = SignalError
}
