package tool

import "time"

// Defaults returns the standard tool set for the support team.
func Defaults(tickets *TicketLog, now func() time.Time) []Tool {
	return []Tool{
		NewBillingHistory(DefaultLedger()),
		NewPaymentMethodUpdate(),
		tickets,
		NewReferenceLookup(),
		NewRefundEligibility(now),
	}
}
