package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

var (
	//go:embed template/coordinator.txt
	coordinatorRaw string

	//go:embed template/technical.txt
	technicalRaw string

	//go:embed template/billing.txt
	billingRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Coordinator string
	Technical   string
	Billing     string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Coordinator: strings.TrimSpace(coordinatorRaw),
		Technical:   strings.TrimSpace(technicalRaw),
		Billing:     strings.TrimSpace(billingRaw),
	}
}

func (p PromptSet) Validate() error {
	for name, text := range map[string]string{
		"coordinator": p.Coordinator,
		"technical":   p.Technical,
		"billing":     p.Billing,
	} {
		if text == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
		// Prompts are rendered as FString templates; literal braces would be
		// parsed as placeholders.
		if strings.ContainsAny(text, "{}") {
			return fmt.Errorf("%w: %s prompt contains template braces", contractx.ErrValidation, name)
		}
	}
	return nil
}
