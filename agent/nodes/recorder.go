package nodes

import (
	"fmt"
	"sync"
	"time"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

// TurnRecorder collects the events of one in-flight turn. It is shared by
// the turn pipeline and the caller that enforces the deadline, so every
// method is safe for concurrent use. Once closed, further writes fail with
// contract.ErrTurnClosed.
type TurnRecorder struct {
	mu     sync.Mutex
	now    func() time.Time
	last   time.Time
	turn   contractx.Turn
	closed bool

	// open tool requests by call id, with the agent that issued them
	pending map[string]contractx.AgentName
	seen    map[string]bool
}

func NewTurnRecorder(sessionID, userText string, now func() time.Time) *TurnRecorder {
	if now == nil {
		now = time.Now
	}
	r := &TurnRecorder{
		now:     now,
		pending: map[string]contractx.AgentName{},
		seen:    map[string]bool{},
	}
	at := r.stamp()
	r.turn = contractx.Turn{
		ID:        contractx.NewID(),
		SessionID: sessionID,
		UserText:  userText,
		StartedAt: at,
	}
	r.append(contractx.NewUserMessage(userText, at))
	return r
}

// stamp returns a non-decreasing UTC timestamp.
func (r *TurnRecorder) stamp() time.Time {
	at := r.now().UTC()
	if at.Before(r.last) {
		at = r.last
	}
	r.last = at
	return at
}

func (r *TurnRecorder) append(e contractx.Event) {
	e.Seq = len(r.turn.Events)
	r.turn.Events = append(r.turn.Events, e)
}

func (r *TurnRecorder) Decision(d contractx.DelegationDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return contractx.ErrTurnClosed
	}
	if _, ok := r.turn.Decision(); ok {
		return fmt.Errorf("%w: turn already has a delegation decision", contractx.ErrValidation)
	}
	r.append(contractx.NewDelegationEvent(d, r.stamp()))
	if d.Kind == contractx.DecisionDelegate {
		r.turn.RoutedTo = d.Target
	}
	return nil
}

// ToolRequest records a request and returns it with its final call id. A
// call id that was already used in this turn is replaced so results stay
// unambiguous. When redact is set, the event stores redact(req) instead of
// the request itself.
func (r *TurnRecorder) ToolRequest(
	author contractx.AgentName,
	req contractx.ToolRequest,
	redact func(contractx.ToolRequest) contractx.ToolRequest,
) (contractx.ToolRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return req, contractx.ErrTurnClosed
	}
	if req.CallID == "" || r.seen[req.CallID] {
		req.CallID = "call_" + contractx.NewID()
	}
	r.seen[req.CallID] = true
	r.pending[req.CallID] = author
	stored := req
	if redact != nil {
		stored = redact(req)
		stored.CallID = req.CallID
	}
	r.append(contractx.NewToolRequestEvent(author, stored, r.stamp()))
	return req, nil
}

func (r *TurnRecorder) ToolResult(author contractx.AgentName, res contractx.ToolResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return contractx.ErrTurnClosed
	}
	if _, ok := r.pending[res.CallID]; !ok {
		return fmt.Errorf("%w: no open tool request %q", contractx.ErrValidation, res.CallID)
	}
	delete(r.pending, res.CallID)
	r.append(contractx.NewToolResultEvent(author, res, r.stamp()))
	return nil
}

// Close appends the terminal reply and seals the turn. Tool requests still
// open at this point receive a cancelled result first, since their outcome
// was never observed by the turn.
func (r *TurnRecorder) Close(seq int, author contractx.AgentName, reply string, outcome contractx.TurnOutcome) (contractx.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.turn.Clone(), contractx.ErrTurnClosed
	}

	for _, e := range r.turn.Events {
		if e.Kind != contractx.EventToolRequest {
			continue
		}
		id := e.ToolRequest.CallID
		by, open := r.pending[id]
		if !open {
			continue
		}
		delete(r.pending, id)
		r.append(contractx.NewToolResultEvent(by, contractx.ToolResult{
			CallID:    id,
			Tool:      e.ToolRequest.Tool,
			Status:    contractx.ToolError,
			Message:   "The tool call was interrupted before its result was received.",
			ErrorCode: contractx.CodeCancelled,
		}, r.stamp()))
	}

	at := r.stamp()
	r.append(contractx.NewAgentReply(author, reply, at))
	r.turn.Seq = seq
	r.turn.Reply = reply
	r.turn.Outcome = outcome
	r.turn.ClosedAt = at
	r.closed = true
	return r.turn.Clone(), nil
}

func (r *TurnRecorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Turn returns a copy of the events recorded so far.
func (r *TurnRecorder) Turn() contractx.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn.Clone()
}
