package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/askhr/internal/api"
	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
	defaultMaxRequestBodySize  = 1 << 20
	diagnosticsSubmissionLimit = 10
)

// Handler serves the chat endpoints of the tools server.
type Handler struct {
	agent          *Service
	rateLimiter    *RateLimiter
	log            ConversationLogger
	maxBodySize    int64
	originPatterns []string
}

// NewHandler creates a chat handler. A nil cfg uses defaults.
func NewHandler(svc *Service, conversationLogger ConversationLogger, cfg *config.Config) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}

	rateLimitRequests := 20
	rateLimitWindow := time.Minute
	maxBodySize := int64(defaultMaxRequestBodySize)
	origins := []string{"*"}
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
		maxBodySize = cfg.MaxRequestBodySize
		if len(cfg.AllowedOrigins) > 0 {
			origins = cfg.AllowedOrigins
		}
	}

	return &Handler{
		agent:          svc,
		rateLimiter:    NewRateLimiter(rateLimitRequests, rateLimitWindow),
		log:            conversationLogger,
		maxBodySize:    maxBodySize,
		originPatterns: origins,
	}
}

// RegisterRoutes registers the chat routes. identity.Middleware must run first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Get("/ws/chat", h.HandleWebSocket)
	r.Post("/reset", h.HandleReset)
	r.Get("/diagnostics", h.HandleDiagnostics)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	h.agent.Connections().CloseAll("server shutting down")
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionKey := identity.SessionKeyFromContext(r.Context())

	if !h.rateLimiter.Allow(sessionKey) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Chat request", "session_id", sessionKey, "remote_ip", identity.IPFromRequest(r), "message_length", len(message))
	h.logUserMessage(userID, sessionKey, "chat_http", message, reqID)

	start := time.Now()
	reply := h.agent.Chat(r.Context(), sessionKey, message)
	h.logAssistantMessage(userID, sessionKey, "chat_http", reply, reqID, time.Since(start))

	api.JSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// HandleWebSocket serves GET /ws/chat: each text frame {"message": "..."} is
// answered with one {"response": "..."} frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionKey := identity.SessionKeyFromContext(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionKey)
		return
	}
	ws.SetReadLimit(h.maxBodySize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionKey)
		}
	}()

	slog.Info("Chat socket opened", "session_id", sessionKey, "remote_ip", identity.IPFromRequest(r))
	conns := h.agent.Connections()
	conns.Register(sessionKey, ws)
	defer conns.Unregister(sessionKey, ws)

	ctx := r.Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sessionKey)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionKey)
			}
			return
		}

		resp := ChatResponse{}
		message := strings.TrimSpace(req.Message)
		switch {
		case message == "":
			resp.Error = "message is required"
		case !h.rateLimiter.Allow(sessionKey):
			resp.Error = "rate limit exceeded"
		default:
			h.logUserMessage(userID, sessionKey, "chat_ws", message, "")
			start := time.Now()
			resp.Response = h.agent.Chat(ctx, sessionKey, message)
			h.logAssistantMessage(userID, sessionKey, "chat_ws", resp.Response, "", time.Since(start))
		}

		if err := wsjson.Write(ctx, ws, resp); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", sessionKey)
			return
		}
	}
}

// HandleReset handles POST /reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.agent.Reset(); err != nil {
		slog.Error("Reset failed", "error", err)
		api.JSON(w, http.StatusInternalServerError, ResetResponse{Success: false, Message: err.Error()})
		return
	}
	api.JSON(w, http.StatusOK, ResetResponse{Success: true, Message: "Session state cleared. The next request will sign in to Workday again."})
}

// HandleDiagnostics handles GET /diagnostics.
func (h *Handler) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.agent.Diagnostics(r.Context())
	if err != nil {
		slog.Warn("Diagnostics failed", "error", err)
		if credential.IsAuthorizationError(err) {
			api.Error(w, http.StatusServiceUnavailable, "workday sign-in did not complete")
			return
		}
		api.Error(w, http.StatusBadGateway, "workday profile unavailable")
		return
	}
	body := map[string]any{
		"status":           "ok",
		"profile_summary":  summary,
		"active_sessions":  h.agent.SessionCount(),
		"open_connections": h.agent.Connections().Count(),
	}
	recent, err := h.agent.RecentSubmissions(r.Context(), diagnosticsSubmissionLimit)
	if err != nil {
		slog.Warn("Failed to list recent submissions", "error", err)
		body["recent_submissions_error"] = "submission ledger unavailable"
	} else if recent != nil {
		body["recent_submissions"] = recent
	}
	api.JSON(w, http.StatusOK, body)
}

func (h *Handler) logUserMessage(userID, sessionID, channel, content, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       map[string]any{"request_id": requestID},
	})
}

func (h *Handler) logAssistantMessage(userID, sessionID, channel, content, requestID string, took time.Duration) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"request_id":  requestID,
			"duration_ms": took.Milliseconds(),
		},
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
