package subscriptions

import (
	"github.com/shopspring/decimal"

	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// Plan describes one sellable tier. MonthlyQuota nil means unmetered.
type Plan struct {
	Code         enums.PlanCode `json:"code"`
	MonthlyQuota *int           `json:"monthly_quota"`
	MonthlyCents int64          `json:"monthly_cents"`
	AnnualCents  int64          `json:"annual_cents"`
}

// Catalog derives the plan tiers from pricing configuration. Amounts are USD
// minor units; other currencies are converted with configured rates.
type Catalog struct {
	plans          map[enums.PlanCode]Plan
	annualDiscount decimal.Decimal
	usdToINR       decimal.Decimal
	usdToEUR       decimal.Decimal
}

// NewCatalog builds the catalog from pricing configuration.
func NewCatalog(cfg config.PricingConfig) *Catalog {
	discount := decimal.NewFromFloat(cfg.AnnualDiscount)
	c := &Catalog{
		plans:          make(map[enums.PlanCode]Plan, 3),
		annualDiscount: discount,
		usdToINR:       decimal.NewFromFloat(cfg.USDToINR),
		usdToEUR:       decimal.NewFromFloat(cfg.USDToEUR),
	}

	freeQuota := cfg.FreeMonthlyQuota
	proQuota := cfg.ProMonthlyQuota
	c.plans[enums.PlanFree] = Plan{
		Code:         enums.PlanFree,
		MonthlyQuota: &freeQuota,
	}
	c.plans[enums.PlanPro] = Plan{
		Code:         enums.PlanPro,
		MonthlyQuota: &proQuota,
		MonthlyCents: cfg.ProMonthlyCents,
		AnnualCents:  c.annualCents(cfg.ProMonthlyCents),
	}
	c.plans[enums.PlanUnlimited] = Plan{
		Code:         enums.PlanUnlimited,
		MonthlyCents: cfg.UnlimitedMonthlyCents,
		AnnualCents:  c.annualCents(cfg.UnlimitedMonthlyCents),
	}
	return c
}

// annualCents prices a year as twelve discounted months, rounded to the cent.
func (c *Catalog) annualCents(monthlyCents int64) int64 {
	year := decimal.NewFromInt(monthlyCents).
		Mul(decimal.NewFromInt(12)).
		Mul(decimal.NewFromInt(1).Sub(c.annualDiscount))
	return year.Round(0).IntPart()
}

// Plan looks up a tier by code.
func (c *Catalog) Plan(code enums.PlanCode) (Plan, bool) {
	plan, ok := c.plans[code]
	return plan, ok
}

// List returns the tiers in rank order.
func (c *Catalog) List() []Plan {
	return []Plan{
		c.plans[enums.PlanFree],
		c.plans[enums.PlanPro],
		c.plans[enums.PlanUnlimited],
	}
}

// PriceCents returns the USD amount for the plan and billing cycle.
func (c *Catalog) PriceCents(code enums.PlanCode, cycle enums.BillingCycle) int64 {
	plan, ok := c.plans[code]
	if !ok {
		return 0
	}
	if cycle == enums.BillingCycleAnnual {
		return plan.AnnualCents
	}
	return plan.MonthlyCents
}

// ConvertCents converts a USD minor-unit amount into the target currency's
// minor units using the configured rates.
func (c *Catalog) ConvertCents(usdCents int64, currency enums.Currency) int64 {
	amount := decimal.NewFromInt(usdCents)
	switch currency {
	case enums.CurrencyINR:
		return amount.Mul(c.usdToINR).Round(0).IntPart()
	case enums.CurrencyEUR:
		return amount.Mul(c.usdToEUR).Round(0).IntPart()
	default:
		return usdCents
	}
}
