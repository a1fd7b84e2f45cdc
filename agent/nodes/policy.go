package nodes

import (
	"context"
	"errors"
	"strings"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const (
	DefaultRefusal   = "Sorry, I can't help with that here. Our team handles technical support and billing questions."
	AmbiguousRefusal = "I'm not sure which of our specialists should handle this. Could you tell me a bit more about what you need?"
	TimeoutReply     = "Sorry, this is taking longer than expected and the request was stopped. Please try again."
	AbortedReply     = "The request was cancelled before it could be completed."
	FailedReply      = "Sorry, something went wrong while handling your request. Please try again in a moment."
)

// RefusalMessage is the user-facing text for a refuse decision.
func RefusalMessage(d contractx.DelegationDecision) string {
	if reply := strings.TrimSpace(d.Reply); reply != "" {
		return reply
	}
	if strings.Contains(d.Reason, contractx.ErrRoutingAmbiguity.Error()) {
		return AmbiguousRefusal
	}
	return DefaultRefusal
}

// Failure classifies an error that ended a turn early. The returned error
// wraps ErrTimeout or ErrAborted for context errors and is err otherwise.
func Failure(err error) (contractx.TurnOutcome, string, error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, contractx.ErrTimeout):
		return contractx.OutcomeTimeout, TimeoutReply, errors.Join(contractx.ErrTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(err, contractx.ErrAborted):
		return contractx.OutcomeAborted, AbortedReply, errors.Join(contractx.ErrAborted, err)
	default:
		return contractx.OutcomeFailed, FailedReply, err
	}
}
