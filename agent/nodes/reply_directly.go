package nodes

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

// ReplyDirectly closes answer and refuse decisions with the coordinator's
// own text. No specialist or tool is involved on this path.
func ReplyDirectly(_ context.Context, in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("reply directly: graph state is nil")
	}

	d := in.Decision
	in.Author = d.DecidedBy
	switch d.Kind {
	case contractx.DecisionAnswer:
		in.Reply = strings.TrimSpace(d.Reply)
		in.Outcome = contractx.OutcomeAnswered
	case contractx.DecisionRefuse:
		in.Reply = RefusalMessage(d)
		in.Outcome = contractx.OutcomeRefused
	default:
		return nil, fmt.Errorf("%w: decision %q cannot be answered directly", contractx.ErrValidation, d.Kind)
	}
	return in, nil
}
