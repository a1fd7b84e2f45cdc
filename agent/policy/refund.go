// Package policy holds deterministic business rules that tools expose to
// the specialists.
package policy

import (
	"errors"
	"strings"
	"time"
)

type Eligibility string

const (
	EligibilityFull    Eligibility = "FULL"
	EligibilityPartial Eligibility = "PARTIAL"
	EligibilityNone    Eligibility = "NONE"
)

const (
	FullRefundWindowDays    = 7
	PartialRefundWindowDays = 30
)

var ErrInvalidDate = errors.New("invalid purchase date")

// ElapsedDays counts whole calendar days between the purchase and the
// evaluation date, both taken in UTC.
func ElapsedDays(purchase, evaluation time.Time) int {
	p := truncateDay(purchase)
	e := truncateDay(evaluation)
	return int(e.Sub(p).Hours() / 24)
}

// EligibilityForDays never improves as days grows.
func EligibilityForDays(days int) Eligibility {
	switch {
	case days <= FullRefundWindowDays:
		return EligibilityFull
	case days <= PartialRefundWindowDays:
		return EligibilityPartial
	default:
		return EligibilityNone
	}
}

func RefundEligibility(purchase, evaluation time.Time) Eligibility {
	return EligibilityForDays(ElapsedDays(purchase, evaluation))
}

// ParsePurchaseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParsePurchaseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
