package nodes

import (
	"strings"
	"time"
)

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}
	if in.Recorder == nil {
		return nil, ErrNoRecorder
	}

	return &GraphState{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(in.UserID),
		Text:      text,
		Now:       nowFn().UTC(),
		Recorder:  in.Recorder,
	}, nil
}
