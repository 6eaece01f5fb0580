package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/okenlabs/foreman/llm"
)

// ToolFunc executes one tool call. It returns the tool's output as a JSON
// string; errors become structured error payloads in the conversation
// rather than aborting the batch.
type ToolFunc func(ctx context.Context, args json.RawMessage, tc *ToolContext) (string, error)

// Tool describes one callable tool: its wire schema and its executor.
// Returns documents the shape of the tool's JSON output; providers only
// receive Parameters, so Returns exists for introspection and docs.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Returns     map[string]any
	Execute     ToolFunc
}

// ToolSet is an ordered collection of tools. Order is registration order,
// which is also the order definitions are presented to the model.
type ToolSet struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	names []string
}

func NewToolSet(tools ...*Tool) *ToolSet {
	s := &ToolSet{tools: make(map[string]*Tool)}
	for _, t := range tools {
		s.Register(t)
	}
	return s
}

// Register adds a tool, replacing any previous tool with the same name.
func (s *ToolSet) Register(t *Tool) {
	if t == nil || t.Name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name]; !exists {
		s.names = append(s.names, t.Name)
	}
	s.tools[t.Name] = t
}

// Lookup finds a tool by name.
func (s *ToolSet) Lookup(name string) (*Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (s *ToolSet) List() []*Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tool, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.tools[name])
	}
	return out
}

// Names returns the tool names in registration order.
func (s *ToolSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Definitions renders the set as LLM tool definitions.
func (s *ToolSet) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(s.names))
	for _, t := range s.List() {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// ParseArgs decodes a tool call's raw arguments into a map. Empty input
// decodes to an empty map.
func ParseArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// StringArg extracts a string argument.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringArgOr extracts a string argument with a default.
func StringArgOr(args map[string]any, key, def string) string {
	if s, ok := StringArg(args, key); ok {
		return s
	}
	return def
}

// IntArg extracts an integer argument. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// FloatArg extracts a float argument.
func FloatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// StringSliceArg extracts a string array argument. Non-string elements are
// skipped.
func StringSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
