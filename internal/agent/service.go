package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/domain"
	"github.com/ashureev/askhr/internal/llm"
	"github.com/ashureev/askhr/internal/oneshot"
	"github.com/ashureev/askhr/internal/tools"
	"github.com/ashureev/askhr/internal/workday"
)

const defaultMaxIterations = 6

var (
	// letterRequest matches messages that ask for a verification letter.
	letterRequest = regexp.MustCompile(`(?i)employment verification|verification letter|employment letter|proof of employment|\bevl\b`)

	confirmations = map[string]bool{
		"yes":      true,
		"confirm":  true,
		"submit":   true,
		"go ahead": true,
		"proceed":  true,
	}
)

// SubmissionAudit lists recent time-off submissions.
type SubmissionAudit interface {
	RecentSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error)
}

// Options configures a Service.
type Options struct {
	LLM           llm.Client
	Registry      *tools.Registry
	Credentials   tools.Credentials
	Flags         *oneshot.Flags
	Audit         SubmissionAudit // optional
	MaxIterations int
	Temperature   float64
	Now           func() time.Time
	Logger        *slog.Logger
}

// Service is the conversation orchestrator. It owns per-session history and
// drives the reasoning service through tool calls until it produces text.
type Service struct {
	llm         llm.Client
	registry    *tools.Registry
	creds       tools.Credentials
	flags       *oneshot.Flags
	audit       SubmissionAudit
	maxIter     int
	temperature float64
	now         func() time.Time
	logger      *slog.Logger
	sessions    *sessionStore
	conns       *ConnRegistry
}

// NewService creates an orchestrator.
func NewService(opts Options) (*Service, error) {
	if opts.LLM == nil || opts.Registry == nil || opts.Credentials == nil || opts.Flags == nil {
		return nil, errors.New("agent: LLM, Registry, Credentials and Flags are required")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		llm:         opts.LLM,
		registry:    opts.Registry,
		creds:       opts.Credentials,
		flags:       opts.Flags,
		audit:       opts.Audit,
		maxIter:     opts.MaxIterations,
		temperature: opts.Temperature,
		now:         opts.Now,
		logger:      opts.Logger,
		sessions:    newSessionStore(),
		conns:       NewConnRegistry(opts.Logger),
	}, nil
}

// turn tracks gate state within one user turn.
type turn struct {
	confirmed bool // a destructive call is still allowed this turn
	validated bool
	submitted bool
}

// Handle runs one user turn and returns the reply. Rate limits, expired
// authentication and failed sign-in come back as replies; other failures are
// returned as errors.
func (s *Service) Handle(ctx context.Context, sessionID, message string) (string, error) {
	sess := s.sessions.get(sessionID, s.now())
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActive = s.now()

	// The arm only survives until the next user turn, whatever it says.
	armed := sess.armed
	sess.armed = false
	if sess.resetNext {
		sess.history = nil
		sess.resetNext = false
	}

	ctx = tools.WithSessionID(ctx, sessionID)

	if letterRequest.MatchString(message) {
		return s.letterFastPath(ctx), nil
	}

	profile, err := s.profileContext(ctx)
	if err != nil {
		return s.translate(err)
	}

	sess.history = append(sess.history, llm.Message{Role: llm.RoleUser, Content: message})
	t := &turn{confirmed: armed && isConfirmation(message)}

	for i := 0; i < s.maxIter; i++ {
		resp, err := s.llm.Generate(ctx, llm.Request{
			System:      systemInstruction,
			Messages:    withContext(profile, sess.history),
			Tools:       s.registry.Specs(),
			Temperature: s.temperature,
		})
		if err != nil {
			return s.translate(fmt.Errorf("reasoning call: %w", err))
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return FallbackMessage, nil
			}
			sess.history = append(sess.history, llm.Message{Role: llm.RoleModel, Content: text})
			if t.validated && !t.submitted {
				sess.armed = true
			}
			return text, nil
		}

		sess.history = append(sess.history, llm.Message{
			Role:      llm.RoleModel,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		stop := ""
		for _, call := range resp.ToolCalls {
			var res tools.Result
			if stop != "" {
				res = tools.Failure("Not executed: the turn already ended.")
			} else {
				res, stop = s.dispatch(ctx, t, call)
			}
			sess.history = append(sess.history, llm.Message{
				Role:       llm.RoleTool,
				ToolName:   call.Name,
				ToolCallID: call.ID,
				Result:     normalize(res),
			})
		}
		if t.submitted {
			sess.resetNext = true
		}
		if stop != "" {
			sess.history = append(sess.history, llm.Message{Role: llm.RoleModel, Content: stop})
			return stop, nil
		}
	}

	s.logger.Warn("Tool loop hit the iteration limit", "session_id", sessionID, "limit", s.maxIter)
	return FallbackMessage, nil
}

// dispatch runs one tool call through the gates. A non-empty stop ends the
// turn with that reply.
func (s *Service) dispatch(ctx context.Context, t *turn, call llm.ToolCall) (tools.Result, string) {
	tool, err := s.registry.Get(call.Name)
	if err != nil {
		s.logger.Warn("Model requested an unknown tool", "tool", call.Name)
		return s.registry.Execute(ctx, call.Name, call.Args), ""
	}

	if tool.OneShot != "" && s.flags.IsSet(tool.OneShot) {
		return tools.Failure(tools.LetterAlreadySent), tools.LetterAlreadySent
	}

	if tool.Destructive {
		if !t.confirmed {
			s.logger.Info("Blocked unconfirmed destructive tool call", "tool", call.Name)
			return tools.Result{
				"success": false,
				"error":   "confirmation_required",
				"message": "The user has not confirmed this request. Show the summary and ask them to reply with yes, confirm, submit, go ahead or proceed.",
			}, ""
		}
		t.confirmed = false
	}

	res := s.registry.Execute(ctx, call.Name, call.Args)
	if !res.OK() {
		return res, ""
	}
	if tool.OneShot != "" {
		if err := s.flags.Set(tool.OneShot); err != nil {
			s.logger.Warn("Failed to persist one-shot flag", "flag", tool.OneShot, "error", err)
		}
	}
	if tool.Validation {
		t.validated = true
	}
	if tool.Destructive {
		t.submitted = true
	}
	return res, ""
}

// letterFastPath answers letter requests without consulting the model.
func (s *Service) letterFastPath(ctx context.Context) string {
	if s.flags.IsSet(oneshot.LetterSent) {
		return tools.LetterAlreadySent
	}
	res := s.registry.Execute(ctx, tools.NameLetter, nil)
	if !res.OK() {
		if msg := res.Message(); msg != "" {
			return msg
		}
		return "Unable to generate the employment verification letter."
	}
	if err := s.flags.Set(oneshot.LetterSent); err != nil {
		s.logger.Warn("Failed to persist one-shot flag", "flag", oneshot.LetterSent, "error", err)
	}
	if msg := res.Message(); msg != "" {
		return msg
	}
	return "Your employment verification letter has been generated."
}

func (s *Service) profileContext(ctx context.Context) (string, error) {
	rec, err := s.creds.Get(ctx)
	if err != nil {
		return "", err
	}
	return workday.FormatContext(workday.Summarize(rec.Profile), s.now()), nil
}

// translate maps errors with a dedicated reply; anything else is returned.
func (s *Service) translate(err error) (string, error) {
	switch {
	case llm.IsRateLimit(err):
		s.logger.Warn("Reasoning service rate limited", "error", err)
		return RateLimitMessage, nil
	case credential.IsAuthorizationError(err):
		s.logger.Warn("Workday authorization failed", "error", err)
		return tools.SignInMessage, nil
	case workday.IsAuthError(err):
		if invErr := s.creds.Invalidate(); invErr != nil {
			s.logger.Warn("Failed to invalidate credential", "error", invErr)
		}
		return tools.AuthExpiredMessage, nil
	default:
		return "", err
	}
}

// Chat is the outermost boundary: it never fails and never panics.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (reply string) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Chat turn panicked", "session_id", sessionID, "panic", p)
			reply = ErrorMessage
		}
	}()
	reply, err := s.Handle(ctx, sessionID, message)
	if err != nil {
		s.logger.Error("Chat turn failed", "session_id", sessionID, "error", err)
		return ErrorMessage
	}
	return reply
}

// Reset drops the credential, every chat history and every one-shot flag,
// and closes open chat sockets.
func (s *Service) Reset() error {
	var errs []error
	if err := s.creds.Invalidate(); err != nil {
		errs = append(errs, fmt.Errorf("invalidate credential: %w", err))
	}
	n := s.sessions.clear()
	if err := s.flags.ClearAll(); err != nil {
		errs = append(errs, fmt.Errorf("clear one-shot flags: %w", err))
	}
	s.conns.CloseAll("session reset")
	s.logger.Info("Session state reset", "sessions_cleared", n)
	return errors.Join(errs...)
}

// EvictIdle drops sessions idle for longer than ttl and returns how many went.
func (s *Service) EvictIdle(ttl time.Duration) int {
	evicted := s.sessions.evictIdle(s.now().Add(-ttl))
	for _, id := range evicted {
		s.conns.CloseSession(id)
	}
	return len(evicted)
}

// Diagnostics returns the profile summary behind the current credential.
func (s *Service) Diagnostics(ctx context.Context) (domain.ProfileSummary, error) {
	rec, err := s.creds.Get(ctx)
	if err != nil {
		return domain.ProfileSummary{}, err
	}
	return workday.Summarize(rec.Profile), nil
}

// RecentSubmissions returns up to limit ledger rows, newest first. It returns
// nil when no audit source is configured.
func (s *Service) RecentSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.RecentSubmissions(ctx, limit)
}

// Connections returns the registry of open chat sockets.
func (s *Service) Connections() *ConnRegistry {
	return s.conns
}

func isConfirmation(message string) bool {
	return confirmations[strings.ToLower(strings.TrimSpace(message))]
}

func withContext(profile string, history []llm.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: profile})
	return append(msgs, history...)
}

// normalize turns a result into plain JSON values.
func normalize(res tools.Result) map[string]any {
	data, err := json.Marshal(res)
	if err != nil {
		return map[string]any{"success": false, "error": "result could not be serialised"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"success": false, "error": "result could not be serialised"}
	}
	return out
}

// SessionCount returns the number of live conversations.
func (s *Service) SessionCount() int {
	return s.sessions.len()
}
