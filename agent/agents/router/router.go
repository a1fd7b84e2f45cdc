// Package router implements the coordinator: it asks the reasoning model to
// classify a user message against the specialist descriptions and turns the
// answer into an explicit delegation decision.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	teamx "github.com/tanpawarit/support-router/agent/team"
)

const defaultHistoryTurns = 10

var _ contractx.Router = (*Router)(nil)

// Classification is the JSON object the coordinator model answers with.
type Classification struct {
	Decision string `json:"decision"`
	Agent    string `json:"agent"`
	Reason   string `json:"reason"`
	Reply    string `json:"reply"`
}

type Router struct {
	roster       teamx.Config
	runner       compose.Runnable[map[string]any, *schema.Message]
	parser       schema.MessageParser[Classification]
	historyTurns int
	logger       zerolog.Logger
}

type Option func(*Router)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithHistoryTurns limits how many prior turns are shown to the model.
func WithHistoryTurns(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.historyTurns = n
		}
	}
}

func New(ctx context.Context, roster teamx.Config, chatModel einomodel.BaseChatModel, opts ...Option) (*Router, error) {
	if roster.Empty() {
		return nil, fmt.Errorf("%w: router needs at least one specialist", contractx.ErrConfiguration)
	}
	if chatModel == nil {
		return nil, fmt.Errorf("%w: router chat model is nil", contractx.ErrConfiguration)
	}
	instruction := strings.TrimSpace(roster.Coordinator().Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("%w: coordinator instruction is empty", contractx.ErrPromptMissing)
	}

	runner, err := compileRouteGraph(ctx, chatModel, instruction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrConfiguration, err)
	}

	r := &Router{
		roster: roster,
		runner: runner,
		parser: schema.NewMessageJSONParser[Classification](&schema.MessageJSONParseConfig{
			ParseFrom: schema.MessageParseFromContent,
		}),
		historyTurns: defaultHistoryTurns,
		logger:       log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func compileRouteGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add route prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add route model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add route edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add route edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add route edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("router.classify_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile route graph: %w", err)
	}
	return runner, nil
}

func (r *Router) Route(ctx context.Context, req contractx.RouteRequest) (contractx.DelegationDecision, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.DelegationDecision{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	input, err := r.buildInput(req)
	if err != nil {
		return contractx.DelegationDecision{}, err
	}

	msg, err := r.runner.Invoke(ctx, map[string]any{"input": input})
	if err != nil {
		return contractx.DelegationDecision{}, fmt.Errorf("%w: router invoke: %w", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.DelegationDecision{}, fmt.Errorf("%w: router returned no message", contractx.ErrModelInvoke)
	}

	c, err := r.parser.Parse(ctx, &schema.Message{Role: msg.Role, Content: stripCodeFence(msg.Content)})
	if err != nil {
		r.logger.Warn().Err(err).Str("content", msg.Content).Msg("router answer is not valid json")
		return r.ambiguous("the routing answer could not be understood"), nil
	}

	decision := Resolve(c, r.roster)
	r.logger.Debug().
		Str("kind", string(decision.Kind)).
		Str("target", string(decision.Target)).
		Str("reason", decision.Reason).
		Msg("route decided")
	return decision, nil
}

type historyEntry struct {
	User     string `json:"user"`
	RoutedTo string `json:"routed_to,omitempty"`
	Reply    string `json:"reply"`
}

type specialistEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *Router) buildInput(req contractx.RouteRequest) (string, error) {
	history := req.History
	if r.historyTurns >= 0 && len(history) > r.historyTurns {
		history = history[len(history)-r.historyTurns:]
	}
	entries := make([]historyEntry, 0, len(history))
	for _, t := range history {
		entries = append(entries, historyEntry{User: t.UserText, RoutedTo: string(t.RoutedTo), Reply: t.Reply})
	}

	specialists := make([]specialistEntry, 0)
	for _, p := range r.roster.Specialists() {
		specialists = append(specialists, specialistEntry{Name: string(p.Name), Description: p.Description})
	}

	raw, err := json.Marshal(map[string]any{
		"user_message": req.UserMessage,
		"history":      entries,
		"specialists":  specialists,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal router payload: %w", contractx.ErrValidation, err)
	}
	return string(raw), nil
}

func (r *Router) ambiguous(detail string) contractx.DelegationDecision {
	return contractx.Refuse(r.roster.Coordinator().Name, fmt.Sprintf("%v: %s", contractx.ErrRoutingAmbiguity, detail))
}

// Resolve maps a model classification onto the roster. Anything that does
// not name a rostered specialist or a well-formed answer becomes a refusal.
func Resolve(c Classification, roster teamx.Config) contractx.DelegationDecision {
	by := roster.Coordinator().Name
	reason := strings.TrimSpace(c.Reason)
	reply := strings.TrimSpace(c.Reply)
	ambiguous := func(detail string) contractx.DelegationDecision {
		return contractx.Refuse(by, fmt.Sprintf("%v: %s", contractx.ErrRoutingAmbiguity, detail))
	}

	switch strings.ToLower(strings.TrimSpace(c.Decision)) {
	case string(contractx.DecisionDelegate):
		name := contractx.AgentName(strings.ToLower(strings.TrimSpace(c.Agent)))
		if _, ok := roster.Specialist(name); !ok {
			return ambiguous(fmt.Sprintf("no specialist named %q", c.Agent))
		}
		return contractx.Delegate(by, name, reason)
	case string(contractx.DecisionAnswer):
		if reply == "" {
			return ambiguous("answer without reply text")
		}
		d := contractx.Answer(by, reply)
		d.Reason = reason
		return d
	case string(contractx.DecisionRefuse):
		if reason == "" {
			reason = "request is outside every specialist's scope"
		}
		d := contractx.Refuse(by, reason)
		d.Reply = reply
		return d
	case "":
		return ambiguous("no decision was given")
	default:
		return ambiguous(fmt.Sprintf("unknown decision %q", c.Decision))
	}
}

// stripCodeFence removes a surrounding markdown code block, which some
// models add around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
