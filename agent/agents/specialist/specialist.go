package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const historyTurns = 10

type specialistImpl struct {
	profile contractx.AgentProfile
	runner  compose.Runnable[contractx.SpecialistRequest, *schema.Message]
}

// newSpecialist binds exactly the given tool descriptions to the model.
// Requests for any other tool still reach the gateway, which rejects them.
func newSpecialist(
	ctx context.Context,
	profile contractx.AgentProfile,
	chatModel einomodel.ToolCallingChatModel,
	infos []*schema.ToolInfo,
) (*specialistImpl, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: specialist=%s has no chat model", contractx.ErrConfiguration, profile.Name)
	}
	if strings.TrimSpace(profile.Instruction) == "" {
		return nil, fmt.Errorf("%w: specialist=%s has no instruction", contractx.ErrPromptMissing, profile.Name)
	}

	stepModel := einomodel.BaseChatModel(chatModel)
	if len(infos) > 0 {
		bound, err := chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for specialist=%s: %w", contractx.ErrConfiguration, profile.Name, err)
		}
		stepModel = bound
	}

	s := &specialistImpl{profile: profile}
	runner, err := compileStepGraph(ctx, "specialist."+string(profile.Name), s.buildMessages, stepModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrConfiguration, err)
	}
	s.runner = runner
	return s, nil
}

func (s *specialistImpl) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	msg, err := s.runner.Invoke(ctx, req)
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s invoke: %w", contractx.ErrModelInvoke, s.profile.Name, err)
	}
	if msg == nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s returned no message", contractx.ErrSchemaViolation, s.profile.Name)
	}

	requests := toToolRequests(msg.ToolCalls)
	content := strings.TrimSpace(msg.Content)
	if len(requests) == 0 && content == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s returned neither text nor tool calls", contractx.ErrSchemaViolation, s.profile.Name)
	}

	return contractx.SpecialistResponse{Message: content, ToolRequests: requests}, nil
}

func (s *specialistImpl) buildMessages(_ context.Context, req contractx.SpecialistRequest) ([]*schema.Message, error) {
	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	msgs := make([]*schema.Message, 0, 2+2*len(history)+2*len(req.Exchanges))
	msgs = append(msgs, schema.SystemMessage(s.profile.Instruction))
	for _, t := range history {
		if strings.TrimSpace(t.UserText) == "" {
			continue
		}
		msgs = append(msgs, schema.UserMessage(t.UserText))
		if strings.TrimSpace(t.Reply) != "" {
			msgs = append(msgs, schema.AssistantMessage(t.Reply, nil))
		}
	}
	msgs = append(msgs, schema.UserMessage(req.UserMessage))

	for _, ex := range req.Exchanges {
		args, err := encodeArgs(ex.Request)
		if err != nil {
			return nil, fmt.Errorf("%w: encode args for tool=%s: %w", contractx.ErrValidation, ex.Request.Tool, err)
		}
		msgs = append(msgs,
			schema.AssistantMessage("", []schema.ToolCall{{
				ID:   ex.Request.CallID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      ex.Request.Tool,
					Arguments: args,
				},
			}}),
			schema.ToolMessage(ex.Result.JSON(), ex.Request.CallID),
		)
	}
	return msgs, nil
}

func encodeArgs(req contractx.ToolRequest) (string, error) {
	if req.Malformed != "" {
		return req.Malformed, nil
	}
	if req.Args == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(req.Args)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// toToolRequests never fails: undecodable arguments are carried as
// Malformed so the gateway can reject them with a structured result.
func toToolRequests(calls []schema.ToolCall) []contractx.ToolRequest {
	if len(calls) == 0 {
		return nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		req := contractx.ToolRequest{
			CallID: strings.TrimSpace(call.ID),
			Tool:   strings.TrimSpace(call.Function.Name),
		}
		if req.CallID == "" {
			req.CallID = "call_" + contractx.NewID()
		}

		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			args := map[string]any{}
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				req.Malformed = rawArgs
			} else {
				req.Args = args
			}
		}
		reqs = append(reqs, req)
	}
	return reqs
}
