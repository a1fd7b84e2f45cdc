package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrConfiguration    = errors.New("invalid team configuration")
	ErrRoutingAmbiguity = errors.New("request could not be routed")
	ErrUnauthorizedTool = errors.New("tool is not declared for agent")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolExecution    = errors.New("tool execution failed")
	ErrTimeout          = errors.New("turn timed out")
	ErrAborted          = errors.New("turn aborted")
	ErrToolCycleLimit   = errors.New("tool cycle limit reached")
	ErrTurnClosed       = errors.New("turn is already closed")
)
