// Package llm is the boundary to the reasoning service: provider-neutral
// conversation types plus the Gemini implementation.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on model turns that request tool execution.
	ToolCalls []ToolCall

	// ToolName, ToolCallID and Result are set on tool turns.
	ToolName   string
	ToolCallID string
	Result     map[string]any
}

// ToolCall is a structured request from the model to run a registered tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Schema is the subset of JSON Schema used to describe tool parameters.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// ToolSpec advertises one tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Request is a single reasoning call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
}

// Response is either final text or a set of tool calls. Both may be empty.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is implemented by reasoning service adapters.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrRateLimited marks quota and capacity failures from the provider.
var ErrRateLimited = errors.New("reasoning service rate limited")

// IsRateLimit reports whether err is a quota or capacity failure.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return looksRateLimited(err.Error())
}

func looksRateLimited(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota")
}
