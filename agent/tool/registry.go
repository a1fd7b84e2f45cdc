package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	teamx "github.com/tanpawarit/support-router/agent/team"
)

var _ contractx.ToolGateway = (*Registry)(nil)

const redactedText = "[redacted]"

// Registry owns every tool and the per-agent grants derived from the team
// roster. It is safe for concurrent use; resource-level serialization is the
// responsibility of the individual tool.
type Registry struct {
	tools  map[string]Tool
	grants map[contractx.AgentName]map[string]struct{}
	order  map[contractx.AgentName][]string
	logger zerolog.Logger
}

type RegistryOption func(*Registry)

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(roster teamx.Config, tools []Tool, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		grants: map[contractx.AgentName]map[string]struct{}{},
		order:  map[contractx.AgentName][]string{},
		logger: log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	for _, t := range tools {
		if t == nil {
			continue
		}
		name := strings.TrimSpace(t.Definition().Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool without a name", contractx.ErrConfiguration)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %q", contractx.ErrConfiguration, name)
		}
		r.tools[name] = t
	}

	for _, profile := range roster.Specialists() {
		granted := make(map[string]struct{}, len(profile.Tools))
		for _, name := range profile.Tools {
			if _, ok := r.tools[name]; !ok {
				return nil, fmt.Errorf("%w: agent %s declares unregistered tool %q", contractx.ErrConfiguration, profile.Name, name)
			}
			granted[name] = struct{}{}
		}
		r.grants[profile.Name] = granted
		r.order[profile.Name] = profile.Tools
	}

	return r, nil
}

// Invoke authorizes, validates and executes one tool request. It never
// panics and never returns a Go error: every failure is a structured
// ERROR result echoing the request's call id.
func (r *Registry) Invoke(ctx context.Context, caller contractx.AgentName, req contractx.ToolRequest) (result contractx.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult(contractx.CodeExecutionError, fmt.Sprintf("tool %s failed unexpectedly: %v", req.Tool, rec))
		}
		result.CallID = req.CallID
		result.Tool = req.Tool
		r.logResult(caller, result)
	}()

	if err := ctx.Err(); err != nil {
		return errorResult(contractx.CodeCancelled, fmt.Sprintf("tool %s was not started: %v", req.Tool, err))
	}
	if !r.allowed(caller, req.Tool) {
		return unavailable(req.Tool, caller)
	}
	t := r.tools[req.Tool]

	if req.Malformed != "" {
		return errorResult(contractx.CodeInvalidArguments,
			fmt.Sprintf("%v: arguments for tool %s are not a JSON object", contractx.ErrInvalidArguments, req.Tool))
	}
	if err := validateArgs(t.Definition(), req.Args); err != nil {
		return errorResult(contractx.CodeInvalidArguments, err.Error())
	}

	return t.Execute(ctx, Args(req.Args))
}

// InfosFor returns the tool descriptions an agent may see, in declaration order.
func (r *Registry) InfosFor(agent contractx.AgentName) []*schema.ToolInfo {
	names := r.order[agent]
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, r.tools[name].Definition().Info())
	}
	return infos
}

// Redact returns a copy of req with sensitive argument values masked. For
// tools with a sensitive param, undecodable raw argument text is replaced.
func (r *Registry) Redact(req contractx.ToolRequest) contractx.ToolRequest {
	t, ok := r.tools[req.Tool]
	if !ok {
		return req
	}
	def := t.Definition()
	sensitive := false
	for _, p := range def.Params {
		if p.Sensitive {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return req
	}

	out := req
	if out.Malformed != "" {
		out.Malformed = redactedText
	}
	if req.Args != nil {
		out.Args = make(map[string]any, len(req.Args))
		for k, v := range req.Args {
			if p, ok := def.param(k); ok && p.Sensitive {
				if s, isString := v.(string); isString {
					v = MaskSecret(s)
				} else {
					v = redactedText
				}
			}
			out.Args[k] = v
		}
	}
	return out
}

func (r *Registry) Definition(name string) (Definition, bool) {
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return t.Definition(), true
}

func (r *Registry) allowed(caller contractx.AgentName, tool string) bool {
	granted, ok := r.grants[caller]
	if !ok {
		return false
	}
	_, ok = granted[tool]
	return ok
}

func (r *Registry) logResult(caller contractx.AgentName, result contractx.ToolResult) {
	level := zerolog.InfoLevel
	if result.Status == contractx.ToolError {
		level = zerolog.WarnLevel
	}
	r.logger.WithLevel(level).
		Str("agent", string(caller)).
		Str("tool", result.Tool).
		Str("call_id", result.CallID).
		Str("status", string(result.Status)).
		Str("error_code", string(result.ErrorCode)).
		Msg("tool invocation finished")
}
