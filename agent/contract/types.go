package contract

import (
	"encoding/json"
	"errors"
)

type AgentName string

const (
	AgentCoordinator AgentName = "coordinator"
	AgentTechnical   AgentName = "technical"
	AgentBilling     AgentName = "billing"
)

// AgentProfile is the static description of one agent on the team.
type AgentProfile struct {
	Name        AgentName `json:"name"`
	Description string    `json:"description"`
	Instruction string    `json:"-"`
	Tools       []string  `json:"tools,omitempty"`
}

func (p AgentProfile) HasTool(name string) bool {
	for _, t := range p.Tools {
		if t == name {
			return true
		}
	}
	return false
}

type DecisionKind string

const (
	DecisionAnswer   DecisionKind = "answer"
	DecisionDelegate DecisionKind = "delegate"
	DecisionRefuse   DecisionKind = "refuse"
)

type DelegationDecision struct {
	Kind      DecisionKind `json:"kind"`
	Target    AgentName    `json:"target,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Reply     string       `json:"reply,omitempty"`
	DecidedBy AgentName    `json:"decided_by"`
}

func Answer(by AgentName, reply string) DelegationDecision {
	return DelegationDecision{Kind: DecisionAnswer, Reply: reply, DecidedBy: by}
}

func Delegate(by AgentName, target AgentName, reason string) DelegationDecision {
	return DelegationDecision{Kind: DecisionDelegate, Target: target, Reason: reason, DecidedBy: by}
}

func Refuse(by AgentName, reason string) DelegationDecision {
	return DelegationDecision{Kind: DecisionRefuse, Reason: reason, DecidedBy: by}
}

type RouteRequest struct {
	UserMessage string `json:"user_message"`
	History     []Turn `json:"history,omitempty"`
}

// ToolExchange is one completed request/result pair inside the current turn.
type ToolExchange struct {
	Request ToolRequest `json:"request"`
	Result  ToolResult  `json:"result"`
}

type SpecialistRequest struct {
	Agent       AgentName      `json:"agent"`
	UserMessage string         `json:"user_message"`
	History     []Turn         `json:"history,omitempty"`
	Exchanges   []ToolExchange `json:"exchanges,omitempty"`
}

type SpecialistResponse struct {
	Message      string        `json:"message"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
}

type ToolStatus string

const (
	ToolSuccess ToolStatus = "SUCCESS"
	ToolFailure ToolStatus = "FAILURE"
	ToolError   ToolStatus = "ERROR"
)

type ToolErrorCode string

const (
	CodeUnauthorizedTool ToolErrorCode = "unauthorized_tool"
	CodeInvalidArguments ToolErrorCode = "invalid_arguments"
	CodeExecutionError   ToolErrorCode = "execution_error"
	CodeNotCovered       ToolErrorCode = "not_covered"
	CodeCancelled        ToolErrorCode = "cancelled"
)

type ToolRequest struct {
	CallID string         `json:"call_id"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	// Malformed holds the raw argument text when it could not be decoded.
	Malformed string `json:"malformed,omitempty"`
}

type ToolResult struct {
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Status    ToolStatus     `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	ErrorCode ToolErrorCode  `json:"error_code,omitempty"`
}

// Err maps the result's error code to a sentinel error. SUCCESS, FAILURE and
// uncoded ERROR results return nil or ErrToolExecution respectively.
func (r ToolResult) Err() error {
	switch r.ErrorCode {
	case CodeUnauthorizedTool:
		return ErrUnauthorizedTool
	case CodeInvalidArguments:
		return ErrInvalidArguments
	case CodeCancelled:
		return ErrAborted
	case CodeExecutionError:
		return ErrToolExecution
	}
	if r.Status == ToolError {
		return ErrToolExecution
	}
	return nil
}

// JSON renders the result for the reasoning boundary.
func (r ToolResult) JSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return `{"status":"ERROR","message":"unencodable tool result"}`
	}
	return string(raw)
}

func (r ToolResult) IsSuccess() bool { return r.Status == ToolSuccess }

var errNilEvent = errors.New("event payload is missing")
