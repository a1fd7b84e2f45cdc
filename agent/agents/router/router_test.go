package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	llmx "github.com/tanpawarit/support-router/agent/llm"
	teamx "github.com/tanpawarit/support-router/agent/team"
)

type fakeChatModel struct {
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func testRoster(t *testing.T) teamx.Config {
	t.Helper()
	roster, err := teamx.New(
		contractx.AgentProfile{Name: contractx.AgentCoordinator, Description: "routes", Instruction: "Route the request."},
		contractx.AgentProfile{Name: contractx.AgentTechnical, Description: teamx.TechnicalDescription, Tools: []string{"reference-lookup"}},
		contractx.AgentProfile{Name: contractx.AgentBilling, Description: teamx.BillingDescription, Tools: []string{"billing-history"}},
	)
	if err != nil {
		t.Fatalf("teamx.New() error = %v", err)
	}
	return roster
}

func newTestRouter(t *testing.T, model *fakeChatModel) *Router {
	t.Helper()
	r, err := New(context.Background(), testRoster(t), model, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNewRejectsMissingModel(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testRoster(t), nil)
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() error = %v, want ErrConfiguration", err)
	}
	_, err = New(context.Background(), teamx.Config{}, &fakeChatModel{})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() with empty roster error = %v, want ErrConfiguration", err)
	}
}

func TestRouteDelegatesToNamedSpecialist(t *testing.T) {
	t.Parallel()

	model := &fakeChatModel{reply: `{"decision":"delegate","agent":"billing","reason":"balance question"}`}
	r := newTestRouter(t, model)

	history := []contractx.Turn{{UserText: "hi", RoutedTo: contractx.AgentTechnical, Reply: "hello"}}
	d, err := r.Route(context.Background(), contractx.RouteRequest{UserMessage: "what's my balance", History: history})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d.Kind != contractx.DecisionDelegate || d.Target != contractx.AgentBilling {
		t.Fatalf("unexpected decision: %#v", d)
	}
	if d.DecidedBy != contractx.AgentCoordinator {
		t.Fatalf("DecidedBy = %q", d.DecidedBy)
	}

	if len(model.inputs) != 1 || len(model.inputs[0]) != 2 {
		t.Fatalf("unexpected model input: %#v", model.inputs)
	}
	if model.inputs[0][0].Content != "Route the request." {
		t.Fatalf("system prompt = %q", model.inputs[0][0].Content)
	}
	var payload struct {
		UserMessage string            `json:"user_message"`
		History     []historyEntry    `json:"history"`
		Specialists []specialistEntry `json:"specialists"`
	}
	if err := json.Unmarshal([]byte(model.inputs[0][1].Content), &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload.UserMessage != "what's my balance" || len(payload.History) != 1 || len(payload.Specialists) != 2 {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if payload.Specialists[1].Description != teamx.BillingDescription {
		t.Fatalf("specialist description not forwarded: %#v", payload.Specialists[1])
	}
}

func TestRouteRefusesMalformedAnswer(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{reply: "billing, probably"})
	d, err := r.Route(context.Background(), contractx.RouteRequest{UserMessage: "hmm"})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d.Kind != contractx.DecisionRefuse {
		t.Fatalf("Kind = %q, want refuse", d.Kind)
	}
	if !strings.Contains(d.Reason, contractx.ErrRoutingAmbiguity.Error()) {
		t.Fatalf("Reason = %q", d.Reason)
	}
}

func TestRouteAcceptsFencedJSON(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{reply: "```json\n{\"decision\":\"delegate\",\"agent\":\"Technical\"}\n```"})
	d, err := r.Route(context.Background(), contractx.RouteRequest{UserMessage: "sync fails"})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d.Target != contractx.AgentTechnical {
		t.Fatalf("Target = %q", d.Target)
	}
}

func TestRouteWrapsModelErrors(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{err: errors.New("boom")})
	_, err := r.Route(context.Background(), contractx.RouteRequest{UserMessage: "x"})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("Route() error = %v, want ErrModelInvoke", err)
	}

	_, err = r.Route(context.Background(), contractx.RouteRequest{UserMessage: "  "})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Route() error = %v, want ErrValidation", err)
	}
}

func TestRouteKeepsModelErrorCause(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{
		fmt.Errorf("%w: model coordinator", llmx.ErrCircuitOpen),
		context.DeadlineExceeded,
	} {
		r := newTestRouter(t, &fakeChatModel{err: cause})
		_, err := r.Route(context.Background(), contractx.RouteRequest{UserMessage: "x"})
		if !errors.Is(err, contractx.ErrModelInvoke) {
			t.Fatalf("Route() error = %v, want ErrModelInvoke", err)
		}
		if !errors.Is(err, cause) {
			t.Fatalf("Route() error = %v, want it to wrap %v", err, cause)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	roster := testRoster(t)
	cases := []struct {
		name   string
		in     Classification
		kind   contractx.DecisionKind
		target contractx.AgentName
	}{
		{name: "technical", in: Classification{Decision: "delegate", Agent: "technical"}, kind: contractx.DecisionDelegate, target: contractx.AgentTechnical},
		{name: "billing upper", in: Classification{Decision: "DELEGATE", Agent: " Billing "}, kind: contractx.DecisionDelegate, target: contractx.AgentBilling},
		{name: "unknown agent", in: Classification{Decision: "delegate", Agent: "chef"}, kind: contractx.DecisionRefuse},
		{name: "self delegation", in: Classification{Decision: "delegate", Agent: "coordinator"}, kind: contractx.DecisionRefuse},
		{name: "answer", in: Classification{Decision: "answer", Reply: "Hello!"}, kind: contractx.DecisionAnswer},
		{name: "answer without reply", in: Classification{Decision: "answer"}, kind: contractx.DecisionRefuse},
		{name: "refuse", in: Classification{Decision: "refuse", Reason: "cooking", Reply: "Sorry."}, kind: contractx.DecisionRefuse},
		{name: "empty", in: Classification{}, kind: contractx.DecisionRefuse},
		{name: "unknown decision", in: Classification{Decision: "escalate"}, kind: contractx.DecisionRefuse},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve(tc.in, roster)
			if got.Kind != tc.kind || got.Target != tc.target {
				t.Fatalf("Resolve() = %#v", got)
			}
			if got.Kind == contractx.DecisionRefuse && got.Reason == "" {
				t.Fatal("refusal without reason")
			}
		})
	}
}
