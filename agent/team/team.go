// Package team defines the immutable roster shared by the router, the tool
// registry and the orchestrator.
package team

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/support-router/agent/contract"
	promptx "github.com/tanpawarit/support-router/agent/prompt"
)

const (
	TechnicalDescription = "Handles technical requests, like troubleshooting and giving technical tips."
	BillingDescription   = "Handles billing-related requests like opening support tickets for billing issues, refunds, billing history and payment method updates."
)

// Config is read-only after construction; accessors return copies.
type Config struct {
	coordinator contractx.AgentProfile
	specialists []contractx.AgentProfile
}

func New(coordinator contractx.AgentProfile, specialists ...contractx.AgentProfile) (Config, error) {
	if strings.TrimSpace(string(coordinator.Name)) == "" {
		return Config{}, fmt.Errorf("%w: coordinator name is required", contractx.ErrConfiguration)
	}
	if len(coordinator.Tools) > 0 {
		return Config{}, fmt.Errorf("%w: coordinator must not declare tools", contractx.ErrConfiguration)
	}
	if len(specialists) == 0 {
		return Config{}, fmt.Errorf("%w: specialist roster is empty", contractx.ErrConfiguration)
	}

	seen := map[contractx.AgentName]bool{coordinator.Name: true}
	copied := make([]contractx.AgentProfile, 0, len(specialists))
	for _, p := range specialists {
		if strings.TrimSpace(string(p.Name)) == "" {
			return Config{}, fmt.Errorf("%w: specialist name is required", contractx.ErrConfiguration)
		}
		if seen[p.Name] {
			return Config{}, fmt.Errorf("%w: duplicate agent name %q", contractx.ErrConfiguration, p.Name)
		}
		if strings.TrimSpace(p.Description) == "" {
			return Config{}, fmt.Errorf("%w: specialist %q has no description", contractx.ErrConfiguration, p.Name)
		}
		seen[p.Name] = true
		copied = append(copied, cloneProfile(p))
	}

	return Config{coordinator: cloneProfile(coordinator), specialists: copied}, nil
}

// Default is the technical + billing team.
func Default(prompts promptx.PromptSet) (Config, error) {
	if err := prompts.Validate(); err != nil {
		return Config{}, err
	}
	return New(
		contractx.AgentProfile{
			Name:        contractx.AgentCoordinator,
			Description: "Routes each request to the right specialist.",
			Instruction: prompts.Coordinator,
		},
		contractx.AgentProfile{
			Name:        contractx.AgentTechnical,
			Description: TechnicalDescription,
			Instruction: prompts.Technical,
			Tools:       []string{"reference-lookup"},
		},
		contractx.AgentProfile{
			Name:        contractx.AgentBilling,
			Description: BillingDescription,
			Instruction: prompts.Billing,
			Tools:       []string{"billing-history", "payment-method-update", "submit-ticket", "refund-eligibility"},
		},
	)
}

func (c Config) Coordinator() contractx.AgentProfile { return cloneProfile(c.coordinator) }

func (c Config) Specialists() []contractx.AgentProfile {
	out := make([]contractx.AgentProfile, len(c.specialists))
	for i, p := range c.specialists {
		out[i] = cloneProfile(p)
	}
	return out
}

func (c Config) Specialist(name contractx.AgentName) (contractx.AgentProfile, bool) {
	for _, p := range c.specialists {
		if p.Name == name {
			return cloneProfile(p), true
		}
	}
	return contractx.AgentProfile{}, false
}

func (c Config) Empty() bool { return len(c.specialists) == 0 }

func cloneProfile(p contractx.AgentProfile) contractx.AgentProfile {
	p.Tools = append([]string(nil), p.Tools...)
	return p
}
