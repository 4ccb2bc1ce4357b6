// Package agent implements the AskHR conversation orchestrator and its HTTP
// and WebSocket front end.
package agent

// ChatRequest is the body of POST /chat and of each WebSocket text frame.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant reply.
type ChatResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ResetResponse is returned by POST /reset.
type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// User-facing replies produced by the orchestrator itself.
const (
	FallbackMessage  = "I apologize, but I couldn't process that request. Please try again."
	RateLimitMessage = "I'm temporarily out of capacity. Please retry in a minute."
	ErrorMessage     = "Sorry, something went wrong while handling your request. Please try again."
)
