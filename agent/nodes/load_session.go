package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	statex "github.com/tanpawarit/support-router/agent/state"
)

func LoadSession(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("load session: graph state is nil")
	}

	s, err := OpenSession(ctx, store, in.SessionID, in.UserID, in.Now)
	if err != nil {
		return nil, err
	}
	in.Session = s
	in.History = s.Turns()
	return in, nil
}

// OpenSession loads a session, creating an empty one on first contact.
func OpenSession(ctx context.Context, store statex.Store, sessionID, userID string, now time.Time) (*statex.Session, error) {
	s, err := store.Load(ctx, sessionID)
	if errors.Is(err, statex.ErrStateNotFound) {
		return statex.NewSession(sessionID, userID, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}
