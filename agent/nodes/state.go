// Package nodes holds the steps of the turn pipeline. Each step takes the
// shared *GraphState and returns it, so the orchestrator can wire them into
// a graph.
package nodes

import (
	"errors"
	"time"

	contractx "github.com/tanpawarit/support-router/agent/contract"
	statex "github.com/tanpawarit/support-router/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrNoRecorder     = errors.New("turn recorder is missing")
	ErrNoDecision     = errors.New("delegation decision is missing")
)

type GraphInput struct {
	SessionID string
	UserID    string
	Text      string
	Recorder  *TurnRecorder
}

type GraphOutput struct {
	Turn contractx.Turn
}

type GraphState struct {
	SessionID string
	UserID    string
	Text      string
	Now       time.Time

	Recorder *TurnRecorder
	Session  *statex.Session
	History  []contractx.Turn

	Decision contractx.DelegationDecision
	Author   contractx.AgentName
	Reply    string
	Outcome  contractx.TurnOutcome
}
