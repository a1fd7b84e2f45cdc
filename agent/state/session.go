package state

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

var (
	ErrTurnNotClosed = errors.New("turn is not closed")
	ErrTurnOrder     = errors.New("turn is out of order")
)

// Session is the append-only conversation history of one user. Closed turns
// are stored by value and handed out as copies, so any number of readers may
// inspect the history while the owning turn loop appends to it.
type Session struct {
	mu sync.RWMutex

	id        string
	userID    string
	createdAt time.Time
	updatedAt time.Time
	turns     []contractx.Turn
}

// Snapshot is the serialized form of a Session.
type Snapshot struct {
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Turns     []contractx.Turn `json:"turns"`
}

func NewSessionID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func NewSession(id, userID string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		id:        strings.TrimSpace(id),
		userID:    strings.TrimSpace(userID),
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Turns returns deep copies of the closed turns, oldest first.
func (s *Session) Turns() []contractx.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contractx.Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.Clone()
	}
	return out
}

// Append adds a closed, valid turn whose Seq is the next position.
func (s *Session) Append(turn contractx.Turn) error {
	if !turn.Closed() {
		return fmt.Errorf("%w: turn %s", ErrTurnNotClosed, turn.ID)
	}
	if err := turn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.Seq != len(s.turns) {
		return fmt.Errorf("%w: turn seq=%d, next=%d", ErrTurnOrder, turn.Seq, len(s.turns))
	}
	if turn.SessionID != "" && turn.SessionID != s.id {
		return fmt.Errorf("%w: turn belongs to session %s", contractx.ErrValidation, turn.SessionID)
	}
	s.turns = append(s.turns, turn.Clone())
	if turn.ClosedAt.After(s.updatedAt) {
		s.updatedAt = turn.ClosedAt.UTC()
	}
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	created, updated := s.createdAt, s.updatedAt
	s.mu.RUnlock()
	return Snapshot{
		SessionID: s.id,
		UserID:    s.userID,
		CreatedAt: created,
		UpdatedAt: updated,
		Turns:     s.Turns(),
	}
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.id) == "" {
		return ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, t := range s.turns {
		if t.Seq != i {
			return fmt.Errorf("%w: turn %d has seq %d", ErrTurnOrder, i, t.Seq)
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Restore rebuilds a Session from its snapshot, re-checking every turn.
func Restore(snap Snapshot) (*Session, error) {
	s := NewSession(snap.SessionID, snap.UserID, snap.CreatedAt)
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt.UTC()
	}
	for _, t := range snap.Turns {
		if err := s.Append(t); err != nil {
			return nil, fmt.Errorf("restore session %s: %w", snap.SessionID, err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
