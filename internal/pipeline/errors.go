package pipeline

import "fmt"

// ValidationError marks an event that never becomes a turn: malformed
// payloads, ignored event types, empty senders. Terminal, nothing is
// sent back.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// MediaRetrievalError records a failed audio/image normalization. The
// turn continues with the fixed fallback text as input.
type MediaRetrievalError struct {
	MediaKind string
	Err       error
}

func (e *MediaRetrievalError) Error() string {
	return fmt.Sprintf("media retrieval (%s): %v", e.MediaKind, e.Err)
}

func (e *MediaRetrievalError) Unwrap() error { return e.Err }

// AgentTimeoutError records a turn whose loop failed or timed out. The
// customer still receives the apology fallback.
type AgentTimeoutError struct {
	Err error
}

func (e *AgentTimeoutError) Error() string { return fmt.Sprintf("agent turn: %v", e.Err) }

func (e *AgentTimeoutError) Unwrap() error { return e.Err }

// PersistenceError records a failed store operation. Logged, never
// fatal to the turn.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence (%s): %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError records a failed outbound send. Surfaced, not retried.
type DeliveryError struct {
	SenderID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s: %v", e.SenderID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
