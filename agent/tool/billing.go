package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const BillingHistoryName = "billing-history"

const (
	TransactionPaid    = "Paid"
	TransactionPending = "Pending"

	AccountCurrent = "Current"
	AccountError   = "Error"
)

type Transaction struct {
	Date        string
	Description string
	Amount      decimal.Decimal
	Status      string
}

func (t Transaction) toMap() map[string]any {
	return map[string]any{
		"date":        t.Date,
		"description": t.Description,
		"amount":      t.Amount.StringFixed(2),
		"status":      t.Status,
	}
}

// BillingHistory is a read-only view over a fixed ledger keyed by user id.
// Lookups ignore case.
type BillingHistory struct {
	ledger map[string][]Transaction
}

func NewBillingHistory(ledger map[string][]Transaction) *BillingHistory {
	normalized := make(map[string][]Transaction, len(ledger))
	for id, txns := range ledger {
		normalized[normalizeKey(id)] = append([]Transaction(nil), txns...)
	}
	return &BillingHistory{ledger: normalized}
}

func DefaultLedger() map[string][]Transaction {
	fee := decimal.RequireFromString("49.99")
	return map[string][]Transaction{
		"1001-A": {
			{Date: "2025-10-27", Description: "Subscription Renewal (27.10-02.11)", Amount: fee, Status: TransactionPaid},
			{Date: "2025-10-20", Description: "Subscription Renewal (20.10-26.10)", Amount: fee, Status: TransactionPaid},
			{Date: "2025-08-15", Description: "One-time service fee", Amount: decimal.RequireFromString("15.00"), Status: TransactionPaid},
		},
		"2002-B": {
			{Date: "2025-11-01", Description: "Subscription Renewal (Overdue)", Amount: fee, Status: TransactionPending},
			{Date: "2025-10-01", Description: "Subscription Renewal", Amount: fee, Status: TransactionPaid},
		},
	}
}

// AccountStatus summarizes pending amounts as a balance due.
func AccountStatus(txns []Transaction) string {
	due := decimal.Zero
	for _, t := range txns {
		if t.Status == TransactionPending {
			due = due.Add(t.Amount)
		}
	}
	if due.IsZero() {
		return AccountCurrent
	}
	return "Balance Due: $" + due.StringFixed(2)
}

func (b *BillingHistory) Definition() Definition {
	return Definition{
		Name: BillingHistoryName,
		Description: "Retrieves the complete billing history, including transactions and payment status, for a given user. " +
			"Use it whenever the user asks about bills, payments, account balance or transaction history.",
		Params: []Param{
			{Name: "user_id", Type: schema.String, Desc: "The unique identifier of the user (e.g. account number 1001-A).", Required: true},
		},
	}
}

func (b *BillingHistory) Execute(_ context.Context, args Args) contractx.ToolResult {
	userID := args.String("user_id")
	txns, ok := b.ledger[normalizeKey(userID)]
	if !ok {
		return contractx.ToolResult{
			Status:  contractx.ToolError,
			Message: "User ID not found in the billing system.",
			Data: map[string]any{
				"user_id":        userID,
				"transactions":   []map[string]any{},
				"account_status": AccountError,
			},
		}
	}

	rows := make([]map[string]any, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, t.toMap())
	}
	return success(
		fmt.Sprintf("Found %d transactions for user %s.", len(rows), userID),
		map[string]any{
			"user_id":        userID,
			"transactions":   rows,
			"account_status": AccountStatus(txns),
		},
	)
}
