package enums

import "fmt"

// PlanCode identifies a subscription tier.
type PlanCode string

const (
	PlanFree      PlanCode = "free"
	PlanPro       PlanCode = "pro"
	PlanUnlimited PlanCode = "unlimited"
)

var validPlanCodes = []PlanCode{
	PlanFree,
	PlanPro,
	PlanUnlimited,
}

// String implements fmt.Stringer.
func (p PlanCode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanCode.
func (p PlanCode) IsValid() bool {
	for _, candidate := range validPlanCodes {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank orders the tiers so upgrade/downgrade checks stay total:
// free(0) < pro(1) < unlimited(2). Unknown codes rank below free.
func (p PlanCode) Rank() int {
	switch p {
	case PlanFree:
		return 0
	case PlanPro:
		return 1
	case PlanUnlimited:
		return 2
	default:
		return -1
	}
}

// IsPaid reports whether the plan requires payment to enter.
func (p PlanCode) IsPaid() bool {
	return p == PlanPro || p == PlanUnlimited
}

// ParsePlanCode converts raw input into a PlanCode.
func ParsePlanCode(value string) (PlanCode, error) {
	for _, candidate := range validPlanCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan code %q", value)
}
