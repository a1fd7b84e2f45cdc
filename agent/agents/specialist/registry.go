package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	routerx "github.com/tanpawarit/support-router/agent/agents/router"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	llmx "github.com/tanpawarit/support-router/agent/llm"
	teamx "github.com/tanpawarit/support-router/agent/team"
)

var _ contractx.Registry = (*registryImpl)(nil)

type registryImpl struct {
	router      contractx.Router
	specialists map[contractx.AgentName]contractx.Specialist
}

func (r *registryImpl) Router() contractx.Router {
	return r.router
}

func (r *registryImpl) Specialist(name contractx.AgentName) (contractx.Specialist, bool) {
	s, ok := r.specialists[name]
	return s, ok
}

// ToolInfos lists the tool descriptions granted to an agent.
type ToolInfos func(agent contractx.AgentName) []*schema.ToolInfo

// NewRegistry builds one OpenRouter model per agent, guards each with a
// circuit breaker and compiles the router and the specialists.
func NewRegistry(ctx context.Context, cfg llmx.Config, roster teamx.Config, infos ToolInfos, logger zerolog.Logger) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	agents := append([]contractx.AgentProfile{roster.Coordinator()}, roster.Specialists()...)
	models := make(map[contractx.AgentName]einomodel.ToolCallingChatModel, len(agents))
	for _, p := range agents {
		modelCfg := cfg.OpenRouterFor(p.Name)
		m, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %w", contractx.ErrModelInvoke, p.Name, err)
		}
		models[p.Name] = llmx.WithCircuitBreaker(string(p.Name), m, cfg.Breaker, logger)
		logger.Debug().Str("agent", string(p.Name)).Str("model", modelCfg.Model).Msg("model configured")
	}

	return newRegistry(ctx, roster, models, infos, logger)
}

func newRegistry(
	ctx context.Context,
	roster teamx.Config,
	models map[contractx.AgentName]einomodel.ToolCallingChatModel,
	infos ToolInfos,
	logger zerolog.Logger,
) (*registryImpl, error) {
	coordinator := roster.Coordinator()
	coordinatorModel, ok := models[coordinator.Name]
	if !ok || coordinatorModel == nil {
		return nil, fmt.Errorf("%w: no model for %s", contractx.ErrConfiguration, coordinator.Name)
	}
	router, err := routerx.New(ctx, roster, coordinatorModel, routerx.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	specialists := make(map[contractx.AgentName]contractx.Specialist)
	for _, p := range roster.Specialists() {
		var granted []*schema.ToolInfo
		if infos != nil {
			granted = infos(p.Name)
		}
		s, err := newSpecialist(ctx, p, models[p.Name], granted)
		if err != nil {
			return nil, err
		}
		specialists[p.Name] = s
	}

	return &registryImpl{router: router, specialists: specialists}, nil
}
