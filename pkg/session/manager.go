package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/havenapp/haven/pkg/logger"
)

// ErrNotFound reports a session identifier with no persisted messages.
var ErrNotFound = errors.New("session not found")

// recentScanWindow bounds how many recent session ids TodaySession
// inspects. Session discovery stays O(recent sessions), not O(all).
const recentScanWindow = 10

// Store is the narrow persistence contract the manager consumes. Calls are
// individually fallible; the manager never assumes atomicity across them.
type Store interface {
	GetHistory(ctx context.Context, sessionID string) ([]Message, error)
	AppendMessage(ctx context.Context, msg Message) error
	GetRecentSessionIDs(ctx context.Context, n int) ([]string, error)
}

// Manager owns conversation identity and lifecycle: create, resume by id,
// resume by recency, fork, persist.
type Manager struct {
	store Store
	clock func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		clock: time.Now,
	}
}

// Create starts a fresh, empty session.
func (m *Manager) Create() *Session {
	now := m.clock()
	return &Session{
		ID:           NewSessionID(now),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Resume reconstructs a session purely from its persisted message
// sequence. CreatedAt is derived from the identifier; LastActiveAt is
// recomputed as the maximum message timestamp.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	createdAt, err := ParseSessionID(id)
	if err != nil {
		return nil, err
	}

	messages, err := m.store.GetHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}

	lastActive := createdAt
	for _, msg := range messages {
		if msg.Timestamp.After(lastActive) {
			lastActive = msg.Timestamp
		}
	}

	return &Session{
		ID:           id,
		CreatedAt:    createdAt,
		LastActiveAt: lastActive,
		Messages:     messages,
		persisted:    len(messages),
	}, nil
}

// Fork copies a session's full message sequence under a new identity and
// records lineage. The source is never mutated. Forking a nonexistent
// session degrades to Create.
func (m *Manager) Fork(ctx context.Context, id string) (*Session, error) {
	src, err := m.Resume(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.InfoCF("session", "Fork source absent, creating fresh session",
				map[string]interface{}{"source": id})
			return m.Create(), nil
		}
		return nil, err
	}

	fork := m.Create()
	fork.ForkedFrom = src.ID
	for _, msg := range src.Messages {
		copied := msg
		copied.ID = "msg-" + uuid.NewString()
		copied.SessionID = fork.ID
		fork.Messages = append(fork.Messages, copied)
		if copied.Timestamp.After(fork.LastActiveAt) {
			fork.LastActiveAt = copied.Timestamp
		}
	}
	return fork, nil
}

// Save appends any messages not yet persisted. LastActiveAt equals the
// most recent message timestamp after a successful save.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	for i := s.persisted; i < len(s.Messages); i++ {
		msg := s.Messages[i]
		if msg.ID == "" {
			msg.ID = "msg-" + uuid.NewString()
			s.Messages[i].ID = msg.ID
		}
		msg.SessionID = s.ID
		if err := m.store.AppendMessage(ctx, msg); err != nil {
			// Earlier appends stay persisted; the tail retries on the
			// next save.
			s.persisted = i
			return fmt.Errorf("append message %d: %w", i, err)
		}
		if msg.Timestamp.After(s.LastActiveAt) {
			s.LastActiveAt = msg.Timestamp
		}
	}
	s.persisted = len(s.Messages)
	return nil
}

// IsFromToday reports whether the session's embedded creation date is the
// device-local today.
func (m *Manager) IsFromToday(id string) bool {
	createdAt, err := ParseSessionID(id)
	if err != nil {
		return false
	}
	return sameLocalDay(createdAt, m.clock())
}

// TodaySession resumes the most recent session created today, scanning
// only a bounded window of recent session ids. Returns ErrNotFound when
// nothing in the window is dated today.
func (m *Manager) TodaySession(ctx context.Context) (*Session, error) {
	ids, err := m.store.GetRecentSessionIDs(ctx, recentScanWindow)
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	for _, id := range ids {
		if !m.IsFromToday(id) {
			continue
		}
		s, err := m.Resume(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		return s, nil
	}
	return nil, ErrNotFound
}
