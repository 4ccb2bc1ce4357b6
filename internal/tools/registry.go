// Package tools holds the fixed set of functions the reasoning service may
// call. Every tool returns a structured result; failures are results too.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/askhr/internal/llm"
)

// Result is the JSON-serialisable payload returned to the model.
type Result map[string]any

// OK reports whether the result carries "success": true.
func (r Result) OK() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Message returns the "message" or "error" field, whichever is set.
func (r Result) Message() string {
	if m, ok := r["message"].(string); ok && m != "" {
		return m
	}
	e, _ := r["error"].(string)
	return e
}

// Failure builds a failed result with a human-readable error.
func Failure(msg string) Result {
	return Result{"success": false, "error": msg}
}

// Tool is a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  *llm.Schema

	// Destructive tools have irreversible side effects and sit behind the
	// confirmation gate.
	Destructive bool

	// Validation tools arm the confirmation gate when they succeed.
	Validation bool

	// OneShot names the flag that allows this tool once per reset cycle.
	OneShot string

	Handler func(ctx context.Context, args map[string]any) Result
}

// ErrToolUnavailable is returned when a call names a tool that is not
// registered.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// Registry maps tool names onto tools, in registration order.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]*Tool), logger: logger}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &ErrToolUnavailable{ToolName: name}
	}
	return t, nil
}

// Specs returns the schema advertised to the model.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return specs
}

// Execute runs the named tool. Unknown tools and handler panics come back as
// failure results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	t, err := r.Get(name)
	if err != nil {
		return Failure("Unknown tool: " + name)
	}
	if args == nil {
		args = map[string]any{}
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Tool panicked", "tool", name, "panic", p)
			res = Failure(fmt.Sprintf("%s failed unexpectedly", name))
		}
	}()
	res = t.Handler(ctx, args)
	if res == nil {
		res = Failure(name + " returned no result")
	}
	r.logger.Info("Tool executed", "tool", name, "success", res.OK())
	return res
}
