package model

import "time"

// SubscriptionDuration is the billing cycle of a subscription.
type SubscriptionDuration string

const (
	DurationMonthly SubscriptionDuration = "monthly"
	DurationYearly  SubscriptionDuration = "yearly"
)

// Grace windows past the nominal cycle before a subscription counts as
// expired. Validity is derived on every read and never persisted.
const (
	monthlyGrace = 31 * 24 * time.Hour
	yearlyGrace  = 366 * 24 * time.Hour
)

// Subscription is the singleton record of a paid subscription.
type Subscription struct {
	Provider       string               `json:"provider"`
	CustomerID     string               `json:"customerId"`
	SubscriptionID string               `json:"subscriptionId"`
	StartDate      time.Time            `json:"startDate"`
	Duration       SubscriptionDuration `json:"duration"`
}

// ExpiresAt returns the instant past which the subscription is stale.
func (s *Subscription) ExpiresAt() time.Time {
	if s.Duration == DurationYearly {
		return s.StartDate.Add(yearlyGrace)
	}
	return s.StartDate.Add(monthlyGrace)
}

// ValidAt reports whether the subscription is still inside its grace window.
func (s *Subscription) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt())
}
