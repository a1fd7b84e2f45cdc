package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const (
	NodeDispatchSpecialist = "dispatch_specialist"
	NodeReplyDirectly      = "reply_directly"
)

func RouteTurn(ctx context.Context, in *GraphState, router contractx.Router) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("route turn: graph state is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision, err := router.Route(ctx, contractx.RouteRequest{
		UserMessage: in.Text,
		History:     in.History,
	})
	if err != nil {
		return nil, err
	}
	if err := in.Recorder.Decision(decision); err != nil {
		return nil, err
	}
	in.Decision = decision
	return in, nil
}

// RouteBranch picks the next node from the recorded decision.
func RouteBranch(_ context.Context, in *GraphState) (string, error) {
	if in == nil || in.Decision.Kind == "" {
		return "", ErrNoDecision
	}
	if in.Decision.Kind == contractx.DecisionDelegate {
		return NodeDispatchSpecialist, nil
	}
	return NodeReplyDirectly, nil
}
