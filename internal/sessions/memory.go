package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/pkg/models"
)

// maxMessagesPerSession limits messages stored per session to prevent
// unbounded memory growth. When exceeded, the oldest messages are trimmed.
const maxMessagesPerSession = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]models.Message{},
	}
}

func (m *MemoryStore) EnsureSession(ctx context.Context, sessionID, agentID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[sessionID]; ok {
		return cloneSession(session), nil
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        sessionID,
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	m.sessions[session.ID] = session
	return cloneSession(session), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now().UTC()
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, agentID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if agentID != "" && session.AgentID != agentID {
			continue
		}
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.messages, sessionID)
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" {
		return ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[msg.SessionID]
	if !ok {
		return ErrSessionNotFound
	}

	clone := msg.Clone()
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		msg.ID = clone.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
		msg.CreatedAt = clone.CreatedAt
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], clone)

	if len(m.messages[msg.SessionID]) > maxMessagesPerSession {
		excess := len(m.messages[msg.SessionID]) - maxMessagesPerSession
		m.messages[msg.SessionID] = m.messages[msg.SessionID][excess:]
	}

	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdateMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return ErrMessageNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.messages[msg.SessionID]
	for i := range history {
		if history[i].ID == msg.ID {
			history[i] = msg.Clone()
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.messages[sessionID]
	if len(history) == 0 {
		return []models.Message{}, nil
	}
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	out := make([]models.Message, 0, len(history)-start)
	for i := start; i < len(history); i++ {
		out = append(out, history[i].Clone())
	}
	return out, nil
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.Metadata != nil {
		meta := make(map[string]any, len(session.Metadata))
		for k, v := range session.Metadata {
			meta[k] = v
		}
		clone.Metadata = meta
	}
	return &clone
}
