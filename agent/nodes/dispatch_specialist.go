package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

// DispatchSpecialist runs the delegated specialist until it produces a
// terminal reply. Tool requests are executed one at a time in the order the
// specialist issued them, and each result is fed back before the next step.
func DispatchSpecialist(
	ctx context.Context,
	in *GraphState,
	models contractx.Registry,
	tools contractx.ToolGateway,
	maxCycles int,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("dispatch specialist: graph state is nil")
	}
	target := in.Decision.Target
	specialist, ok := models.Specialist(target)
	if !ok {
		return nil, fmt.Errorf("%w: no specialist registered for %q", contractx.ErrConfiguration, target)
	}

	req := contractx.SpecialistRequest{
		Agent:       target,
		UserMessage: in.Text,
		History:     in.History,
	}

	for cycle := 0; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := specialist.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolRequests) == 0 {
			in.Author = target
			in.Reply = resp.Message
			in.Outcome = contractx.OutcomeReplied
			return in, nil
		}
		if cycle >= maxCycles {
			return nil, fmt.Errorf("%w: specialist=%s after %d cycles", contractx.ErrToolCycleLimit, target, cycle)
		}

		for _, tr := range resp.ToolRequests {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			recorded, err := in.Recorder.ToolRequest(target, tr, tools.Redact)
			if err != nil {
				return nil, err
			}
			result := tools.Invoke(ctx, target, recorded)
			if err := in.Recorder.ToolResult(target, result); err != nil {
				return nil, err
			}
			req.Exchanges = append(req.Exchanges, contractx.ToolExchange{Request: recorded, Result: result})
		}
	}
}
