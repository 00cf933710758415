// Package tools holds the typed registry of functions the agent loop
// exposes to the model, plus the concrete scheduling and knowledge
// tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atendezap/atendezap/internal/providers"
)

// ErrUnknownTool marks a model request for a tool that is not
// registered. The loop treats it as a skipped call, not a failure.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one function the model can invoke.
type Tool interface {
	Name() string
	Definition() providers.ToolDefinition
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Definitions returns the schemas advertised to the model, in
// registration order.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. An unregistered name returns
// ErrUnknownTool wrapped with the name so the loop can log and skip it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		slog.Warn("model requested unregistered tool", "tool", name)
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Execute(ctx, args)
}

// stringArg reads an optional string argument, tolerating absent keys
// and non-string values the model sometimes produces.
func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}
