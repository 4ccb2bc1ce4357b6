package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnRegistry tracks open chat WebSocket connections per session.
type ConnRegistry struct {
	mu     sync.Mutex
	active map[string]map[*websocket.Conn]struct{}
	logger *slog.Logger
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry(logger *slog.Logger) *ConnRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnRegistry{active: make(map[string]map[*websocket.Conn]struct{}), logger: logger}
}

// Register adds conn under sessionID.
func (m *ConnRegistry) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[sessionID]; !ok {
		m.active[sessionID] = make(map[*websocket.Conn]struct{})
	}
	m.active[sessionID][conn] = struct{}{}
	m.logger.Info("Chat socket registered", "session_id", sessionID)
}

// Unregister removes conn.
func (m *ConnRegistry) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns, ok := m.active[sessionID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(m.active, sessionID)
	}
}

// Count returns the number of open connections.
func (m *ConnRegistry) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, conns := range m.active {
		n += len(conns)
	}
	return n
}

// CloseSession closes every connection of sessionID.
func (m *ConnRegistry) CloseSession(sessionID string) {
	m.mu.Lock()
	conns := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()
	for c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "session closed")
	}
}

// CloseAll closes every connection with reason.
func (m *ConnRegistry) CloseAll(reason string) {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]map[*websocket.Conn]struct{})
	m.mu.Unlock()
	for sid, conns := range all {
		for c := range conns {
			_ = c.Close(websocket.StatusNormalClosure, reason)
		}
		m.logger.Info("Chat sockets closed", "session_id", sid, "reason", reason)
	}
}
