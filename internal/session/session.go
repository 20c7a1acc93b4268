// Package session keeps per-conversation state: history, the active source filter and the memory window.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lexrag/internal/chain"
	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Asker is the conversation chain as seen by a session.
type Asker interface {
	Run(ctx context.Context, question string, history []models.Turn, filter models.SourceFilter) (chain.Answered, error)
}

type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	history []models.Turn
	filter  models.SourceFilter
	memoryK int
}

func newSession(memoryK int, filter models.SourceFilter) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		filter:    filter,
		memoryK:   memoryK,
	}
}

// Ask runs one question. Turns are recorded only when the chain succeeds.
// Concurrent asks on the same session are serialized.
func (s *Session) Ask(ctx context.Context, asker Asker, question string) (chain.Answered, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := asker.Run(ctx, question, s.history, s.filter)
	if err != nil {
		return out, err
	}
	s.history = trim(append(s.history,
		models.Turn{Role: models.RoleUser, Content: out.Question},
		models.Turn{Role: models.RoleAssistant, Content: out.Answer},
	), s.memoryK)
	return out, nil
}

func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.history...)
}

func (s *Session) Filter() models.SourceFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *Session) SetFilter(f models.SourceFilter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// ClearHistory forgets every turn but keeps the filter.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// trim keeps the last k user turns and the assistant turns that follow them.
func trim(turns []models.Turn, k int) []models.Turn {
	if k <= 0 {
		return nil
	}
	return chain.Window(turns, k)
}

// Manager is the registry of live sessions.
type Manager struct {
	chain   Asker
	memoryK int
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(c Asker, memoryK int, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{chain: c, memoryK: memoryK, log: log, sessions: map[string]*Session{}}
}

func (m *Manager) Create(filter models.SourceFilter) *Session {
	s := newSession(m.memoryK, filter)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Info("session created", zap.String("session_id", s.ID), zap.Int("memory_k", m.memoryK))
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, util.ErrNotFound)
	}
	return s, nil
}

func (m *Manager) End(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, util.ErrNotFound)
	}
	m.log.Info("session ended", zap.String("session_id", id))
	return nil
}

func (m *Manager) SetFilter(id string, f models.SourceFilter) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.SetFilter(f)
	return nil
}

func (m *Manager) Ask(ctx context.Context, id, question string) (chain.Answered, error) {
	s, err := m.Get(id)
	if err != nil {
		return chain.Answered{}, err
	}
	out, err := s.Ask(ctx, m.chain, question)
	if err != nil {
		m.log.Warn("ask failed", zap.String("session_id", id), zap.Error(err))
		return out, err
	}
	m.log.Info("question answered",
		zap.String("session_id", id),
		zap.Int("citations", len(out.Citations)))
	return out, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
