package contract

import "context"

// Router decides who handles a user message. It never produces user-visible
// domain content itself except for direct answers and refusals.
type Router interface {
	Route(ctx context.Context, req RouteRequest) (DelegationDecision, error)
}

// Specialist performs one reasoning step: either a terminal message or a
// batch of tool requests to be executed before the next step.
type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

type Registry interface {
	Router() Router
	Specialist(name AgentName) (Specialist, bool)
}

// ToolGateway executes tool requests on behalf of an agent. Failures are
// reported in the result, never as a Go error. Redact returns the form of a
// request that may be stored: secrets such as payment tokens are masked.
type ToolGateway interface {
	Invoke(ctx context.Context, caller AgentName, req ToolRequest) ToolResult
	Redact(req ToolRequest) ToolRequest
}

// TurnSink receives every closed turn, e.g. for auditing.
type TurnSink interface {
	Record(ctx context.Context, userID string, turn Turn) error
}
