package contract

import (
	"fmt"
	"time"
)

type TurnOutcome string

const (
	OutcomeReplied  TurnOutcome = "replied"
	OutcomeAnswered TurnOutcome = "answered"
	OutcomeRefused  TurnOutcome = "refused"
	OutcomeTimeout  TurnOutcome = "timeout"
	OutcomeAborted  TurnOutcome = "aborted"
	OutcomeFailed   TurnOutcome = "failed"
)

// Turn is one user message and everything produced in response to it.
// A closed turn is never modified.
type Turn struct {
	ID        string      `json:"id"`
	Seq       int         `json:"seq"`
	SessionID string      `json:"session_id"`
	UserText  string      `json:"user_text"`
	Events    []Event     `json:"events"`
	Outcome   TurnOutcome `json:"outcome"`
	Reply     string      `json:"reply"`
	RoutedTo  AgentName   `json:"routed_to,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	ClosedAt  time.Time   `json:"closed_at"`
}

func (t Turn) Closed() bool { return !t.ClosedAt.IsZero() }

func (t Turn) Clone() Turn {
	out := t
	out.Events = make([]Event, len(t.Events))
	for i, e := range t.Events {
		out.Events[i] = e.Clone()
	}
	return out
}

// Decision returns the turn's delegation decision, if one was recorded.
func (t Turn) Decision() (DelegationDecision, bool) {
	for _, e := range t.Events {
		if e.Kind == EventDelegation && e.Decision != nil {
			return *e.Decision, true
		}
	}
	return DelegationDecision{}, false
}

func (t Turn) ToolRequests() []ToolRequest {
	var out []ToolRequest
	for _, e := range t.Events {
		if e.Kind == EventToolRequest && e.ToolRequest != nil {
			out = append(out, *e.ToolRequest)
		}
	}
	return out
}

func (t Turn) ToolResults() []ToolResult {
	var out []ToolResult
	for _, e := range t.Events {
		if e.Kind == EventToolResult && e.ToolResult != nil {
			out = append(out, *e.ToolResult)
		}
	}
	return out
}

// Validate checks the structural rules of a closed turn: positions are
// consecutive, the transcript opens with the user message and ends with the
// only reply, at most one delegation is present and every tool request is
// answered by exactly one later result with the same call id.
func (t Turn) Validate() error {
	if len(t.Events) < 2 {
		return fmt.Errorf("%w: turn %s has %d events", ErrValidation, t.ID, len(t.Events))
	}
	if t.Events[0].Kind != EventUserMessage {
		return fmt.Errorf("%w: turn %s does not start with a user message", ErrValidation, t.ID)
	}

	pending := map[string]bool{}
	answered := map[string]bool{}
	delegations := 0
	replies := 0
	for i, e := range t.Events {
		if e.Seq != i {
			return fmt.Errorf("%w: event %d has position %d", ErrValidation, i, e.Seq)
		}
		if i > 0 && e.Timestamp.Before(t.Events[i-1].Timestamp) {
			return fmt.Errorf("%w: event %d is older than its predecessor", ErrValidation, i)
		}
		switch e.Kind {
		case EventUserMessage:
			if i != 0 {
				return fmt.Errorf("%w: extra user message at %d", ErrValidation, i)
			}
		case EventAgentReply:
			replies++
		case EventDelegation:
			if e.Decision == nil {
				return fmt.Errorf("%w: delegation at %d: %v", ErrValidation, i, errNilEvent)
			}
			delegations++
		case EventToolRequest:
			if e.ToolRequest == nil {
				return fmt.Errorf("%w: tool request at %d: %v", ErrValidation, i, errNilEvent)
			}
			id := e.ToolRequest.CallID
			if id == "" || pending[id] || answered[id] {
				return fmt.Errorf("%w: tool request at %d has missing or duplicate call id %q", ErrValidation, i, id)
			}
			pending[id] = true
		case EventToolResult:
			if e.ToolResult == nil {
				return fmt.Errorf("%w: tool result at %d: %v", ErrValidation, i, errNilEvent)
			}
			id := e.ToolResult.CallID
			if !pending[id] {
				return fmt.Errorf("%w: tool result at %d has no open request %q", ErrValidation, i, id)
			}
			delete(pending, id)
			answered[id] = true
		default:
			return fmt.Errorf("%w: unknown event kind %q at %d", ErrValidation, e.Kind, i)
		}
	}

	if delegations > 1 {
		return fmt.Errorf("%w: turn %s has %d delegation decisions", ErrValidation, t.ID, delegations)
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: turn %s has %d unanswered tool requests", ErrValidation, t.ID, len(pending))
	}
	if replies != 1 || t.Events[len(t.Events)-1].Kind != EventAgentReply {
		return fmt.Errorf("%w: turn %s must end with exactly one reply", ErrValidation, t.ID)
	}
	return nil
}
