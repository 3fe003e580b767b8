package enums

import "fmt"

// BillingSubscriptionStatus mirrors the payment provider's subscription state.
type BillingSubscriptionStatus string

const (
	BillingSubscriptionStatusTrialing          BillingSubscriptionStatus = "trialing"
	BillingSubscriptionStatusActive            BillingSubscriptionStatus = "active"
	BillingSubscriptionStatusPastDue           BillingSubscriptionStatus = "past_due"
	BillingSubscriptionStatusCanceled          BillingSubscriptionStatus = "canceled"
	BillingSubscriptionStatusIncomplete        BillingSubscriptionStatus = "incomplete"
	BillingSubscriptionStatusIncompleteExpired BillingSubscriptionStatus = "incomplete_expired"
	BillingSubscriptionStatusUnpaid            BillingSubscriptionStatus = "unpaid"
)

var validBillingSubscriptionStatuses = []BillingSubscriptionStatus{
	BillingSubscriptionStatusTrialing,
	BillingSubscriptionStatusActive,
	BillingSubscriptionStatusPastDue,
	BillingSubscriptionStatusCanceled,
	BillingSubscriptionStatusIncomplete,
	BillingSubscriptionStatusIncompleteExpired,
	BillingSubscriptionStatusUnpaid,
}

// entitledBillingStatuses are provider states that keep the paid plan in force.
var entitledBillingStatuses = []BillingSubscriptionStatus{
	BillingSubscriptionStatusTrialing,
	BillingSubscriptionStatusActive,
	BillingSubscriptionStatusPastDue,
	BillingSubscriptionStatusUnpaid,
}

// String implements fmt.Stringer.
func (s BillingSubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingSubscriptionStatus) IsValid() bool {
	for _, candidate := range validBillingSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsEntitled reports whether the provider state still entitles the user to
// the paid plan.
func (s BillingSubscriptionStatus) IsEntitled() bool {
	for _, candidate := range entitledBillingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBillingSubscriptionStatus converts raw input into a BillingSubscriptionStatus.
func ParseBillingSubscriptionStatus(value string) (BillingSubscriptionStatus, error) {
	for _, candidate := range validBillingSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing subscription status %q", value)
}
