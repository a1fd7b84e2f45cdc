package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	"github.com/tanpawarit/support-router/agent/policy"
)

const RefundEligibilityName = "refund-eligibility"

// RefundEligibility evaluates the refund policy against an injected clock.
type RefundEligibility struct {
	now func() time.Time
}

func NewRefundEligibility(now func() time.Time) *RefundEligibility {
	if now == nil {
		now = time.Now
	}
	return &RefundEligibility{now: now}
}

func (r *RefundEligibility) Definition() Definition {
	return Definition{
		Name:        RefundEligibilityName,
		Description: "Determines whether a purchase qualifies for a FULL, PARTIAL or NONE refund based on the purchase date.",
		Params: []Param{
			{Name: "purchase_date", Type: schema.String, Desc: "Purchase date in YYYY-MM-DD format.", Required: true},
		},
	}
}

func (r *RefundEligibility) Execute(_ context.Context, args Args) contractx.ToolResult {
	raw := args.String("purchase_date")
	purchase, err := policy.ParsePurchaseDate(raw)
	if err != nil {
		return errorResult(contractx.CodeInvalidArguments,
			fmt.Sprintf("%v: parameter %q must be a date in YYYY-MM-DD format, got %q", contractx.ErrInvalidArguments, "purchase_date", raw))
	}

	now := r.now()
	days := policy.ElapsedDays(purchase, now)
	if days < 0 {
		return errorResult(contractx.CodeInvalidArguments,
			fmt.Sprintf("%v: parameter %q is in the future", contractx.ErrInvalidArguments, "purchase_date"))
	}

	eligibility := policy.EligibilityForDays(days)
	return success(
		fmt.Sprintf("Purchase from %s is %d days old: refund eligibility is %s.", purchase.Format(time.DateOnly), days, eligibility),
		map[string]any{
			"purchase_date": purchase.Format(time.DateOnly),
			"elapsed_days":  days,
			"eligibility":   string(eligibility),
		},
	)
}
