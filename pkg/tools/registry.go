package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/protocol"
)

// ErrUnknownTool is returned when the model calls a name that was never
// registered. The message is reported back to the model so it can
// recover instead of stalling the turn.
var ErrUnknownTool = errors.New("tools: unknown tool")

// executeTimeout bounds a single tool call so a hung handler cannot
// block the conversation forever.
const executeTimeout = 30 * time.Second

// Registry holds the registered tools and produces the dialect-shaped
// definitions the session configuration embeds.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	r.tools[t.Name] = t
	r.mu.Unlock()
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders tool definitions in the given dialect's shape:
// typed function entries for the OpenAI schema, bare function
// declarations for the Google schema.
func (r *Registry) Definitions(d protocol.Dialect) []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		def := map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
		}
		if d == protocol.DialectOpenAI {
			def["type"] = "function"
		}
		defs = append(defs, def)
	}
	return defs
}

// Execute runs one tool call, bounded by executeTimeout. Handler errors
// are folded into the returned string so the model can react to the
// failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.Get(name)
	if !ok {
		log.Warn("model called unknown tool", "tool", name)
		return fmt.Sprintf("error: %v: %s", ErrUnknownTool, name)
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	started := time.Now()
	result, err := t.Handler(ctx, args)
	if err != nil {
		log.Warn("tool failed", "tool", name, "error", err, "took", time.Since(started))
		return fmt.Sprintf("error: %v", err)
	}
	log.Debug("tool executed", "tool", name, "took", time.Since(started))
	return result
}
