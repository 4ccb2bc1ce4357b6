// Package gateway is the front door of AskHR: it owns gateway sessions,
// answers greetings itself and proxies everything else to the tools server.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/askhr/internal/api"
	"github.com/ashureev/askhr/internal/proxy"
)

// GreetingReply answers a bare greeting.
const GreetingReply = "Hello! How can I help you today?"

var greeting = regexp.MustCompile(`^((hi|hello|hey|hiya|howdy|yo|sup)( there)?|(good morning|good afternoon|good evening|morning|afternoon|evening))([!.,]?)$`)

// IsGreeting reports whether message is nothing but a greeting.
func IsGreeting(message string) bool {
	return greeting.MatchString(strings.ToLower(strings.TrimSpace(message)))
}

// Citation points at a policy source behind a reply.
type Citation struct {
	Title      string   `json:"title"`
	URL        string   `json:"url,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// SessionResponse is returned by POST /api/session.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// MessageResponse is the reply to POST /api/message.
type MessageResponse struct {
	ReplyText string         `json:"reply_text"`
	Citations []Citation     `json:"citations"`
	Metadata  map[string]any `json:"metadata"`
}

// Turn is one entry of a gateway session's history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type session struct {
	createdAt  time.Time
	lastActive time.Time
	history    []Turn
}

// Forwarder sends a message to the tools server.
type Forwarder interface {
	Call(ctx context.Context, sessionID, message string) proxy.Reply
}

// ErrSessionNotFound is returned for unknown gateway session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Gateway holds gateway sessions and routes messages.
type Gateway struct {
	mu       sync.Mutex
	sessions map[string]*session
	forward  Forwarder
	maxBody  int64
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Gateway.
func New(forward Forwarder, maxBody int64, logger *slog.Logger) *Gateway {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		sessions: make(map[string]*session),
		forward:  forward,
		maxBody:  maxBody,
		now:      time.Now,
		logger:   logger,
	}
}

// RegisterRoutes mounts the gateway API.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", g.HandleCreateSession)
		r.Post("/message", g.HandleMessage)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		api.JSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": g.SessionCount()})
	})
}

// CreateSession starts a new gateway session.
func (g *Gateway) CreateSession() SessionResponse {
	now := g.now()
	id := uuid.NewString()
	g.mu.Lock()
	g.sessions[id] = &session{createdAt: now, lastActive: now}
	g.mu.Unlock()
	return SessionResponse{SessionID: id, CreatedAt: now}
}

// Send routes one message and records the exchange in the session history.
func (g *Gateway) Send(ctx context.Context, sessionID, content string) (MessageResponse, error) {
	g.mu.Lock()
	_, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if !ok {
		return MessageResponse{}, ErrSessionNotFound
	}

	var resp MessageResponse
	if IsGreeting(content) {
		resp = MessageResponse{ReplyText: GreetingReply, Metadata: map[string]any{"agent": "system"}}
	} else {
		reply := g.forward.Call(ctx, sessionID, content)
		resp = MessageResponse{ReplyText: reply.Text, Metadata: reply.Metadata}
	}
	resp.Citations = []Citation{}

	g.mu.Lock()
	if sess, ok := g.sessions[sessionID]; ok {
		sess.history = append(sess.history,
			Turn{Role: "user", Content: content},
			Turn{Role: "assistant", Content: resp.ReplyText},
		)
		sess.lastActive = g.now()
	}
	g.mu.Unlock()
	return resp, nil
}

// History returns a copy of a session's history.
func (g *Gateway) History(sessionID string) ([]Turn, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return append([]Turn(nil), sess.history...), true
}

// SessionCount returns the number of gateway sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// EvictIdle drops sessions idle for longer than ttl.
func (g *Gateway) EvictIdle(ttl time.Duration) int {
	cutoff := g.now().Add(-ttl)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, sess := range g.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(g.sessions, id)
			n++
		}
	}
	return n
}

// HandleCreateSession handles POST /api/session.
func (g *Gateway) HandleCreateSession(w http.ResponseWriter, _ *http.Request) {
	resp := g.CreateSession()
	g.logger.Info("Gateway session created", "session_id", resp.SessionID)
	api.JSON(w, http.StatusOK, resp)
}

// HandleMessage handles POST /api/message.
func (g *Gateway) HandleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.maxBody)
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	resp, err := g.Send(r.Context(), req.SessionID, req.Content)
	if errors.Is(err, ErrSessionNotFound) {
		api.Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		g.logger.Error("Gateway message failed", "session_id", req.SessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	g.logger.Info("Gateway message answered", "session_id", req.SessionID, "agent", resp.Metadata["agent"])
	api.JSON(w, http.StatusOK, resp)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
