package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const (
	PaymentMethodUpdateName = "payment-method-update"
	minTokenLength          = 4
)

// PaymentMethodUpdate simulates updating the primary payment method. Users
// in the rejected set are denied by the processor.
type PaymentMethodUpdate struct {
	rejected map[string]struct{}
}

func NewPaymentMethodUpdate(rejectedUsers ...string) *PaymentMethodUpdate {
	if len(rejectedUsers) == 0 {
		rejectedUsers = []string{"3003-C"}
	}
	rejected := make(map[string]struct{}, len(rejectedUsers))
	for _, id := range rejectedUsers {
		rejected[normalizeKey(id)] = struct{}{}
	}
	return &PaymentMethodUpdate{rejected: rejected}
}

func (p *PaymentMethodUpdate) Definition() Definition {
	return Definition{
		Name: PaymentMethodUpdateName,
		Description: "Updates the user's primary payment method with new details. " +
			"Use it whenever the user asks to change their card, update bank details or set a new payment method.",
		Params: []Param{
			{Name: "user_id", Type: schema.String, Desc: "The unique identifier of the user.", Required: true},
			{Name: "method_type", Type: schema.String, Desc: "The type of payment method, e.g. Visa, Amex, ACH.", Required: true},
			{Name: "token", Type: schema.String, Desc: "A secure token or identifier for the new payment method, e.g. the last 4 digits of a card.", Required: true, Sensitive: true},
		},
	}
}

func (p *PaymentMethodUpdate) Execute(_ context.Context, args Args) contractx.ToolResult {
	userID := args.String("user_id")
	methodType := args.String("method_type")
	token := []rune(args.String("token"))

	if userID == "" {
		return contractx.ToolResult{Status: contractx.ToolError, Message: "User ID is required for updating payment method."}
	}
	if len(token) < minTokenLength {
		return contractx.ToolResult{Status: contractx.ToolError, Message: "Invalid payment token provided. Token must be at least 4 characters."}
	}

	last4 := string(token[len(token)-minTokenLength:])
	if _, denied := p.rejected[normalizeKey(userID)]; denied {
		return failure("", "Payment processor denied the request for security review on this account.", nil)
	}

	return success(
		fmt.Sprintf("Successfully updated payment method for user %s to %s ending in %s.", userID, methodType, last4),
		map[string]any{
			"user_id":     userID,
			"method_type": methodType,
			"last4":       last4,
		},
	)
}
