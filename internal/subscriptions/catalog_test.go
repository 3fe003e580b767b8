package subscriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		ProMonthlyCents:       900,
		UnlimitedMonthlyCents: 1900,
		AnnualDiscount:        0.20,
		USDToINR:              84.0,
		USDToEUR:              0.92,
		FreeMonthlyQuota:      20,
		ProMonthlyQuota:       500,
	}
}

func TestCatalogTiers(t *testing.T) {
	catalog := NewCatalog(testPricing())

	free, ok := catalog.Plan(enums.PlanFree)
	require.True(t, ok)
	require.NotNil(t, free.MonthlyQuota)
	assert.Equal(t, 20, *free.MonthlyQuota)
	assert.EqualValues(t, 0, free.MonthlyCents)

	pro, ok := catalog.Plan(enums.PlanPro)
	require.True(t, ok)
	require.NotNil(t, pro.MonthlyQuota)
	assert.Equal(t, 500, *pro.MonthlyQuota)
	assert.EqualValues(t, 900, pro.MonthlyCents)

	unlimited, ok := catalog.Plan(enums.PlanUnlimited)
	require.True(t, ok)
	assert.Nil(t, unlimited.MonthlyQuota)

	_, ok = catalog.Plan(enums.PlanCode("platinum"))
	assert.False(t, ok)
}

func TestCatalogAnnualPricing(t *testing.T) {
	catalog := NewCatalog(testPricing())

	// 900 * 12 * 0.8
	assert.EqualValues(t, 8640, catalog.PriceCents(enums.PlanPro, enums.BillingCycleAnnual))
	// 1900 * 12 * 0.8
	assert.EqualValues(t, 18240, catalog.PriceCents(enums.PlanUnlimited, enums.BillingCycleAnnual))
	assert.EqualValues(t, 900, catalog.PriceCents(enums.PlanPro, enums.BillingCycleMonthly))
	assert.EqualValues(t, 0, catalog.PriceCents(enums.PlanCode("platinum"), enums.BillingCycleMonthly))
}

func TestCatalogCurrencyConversion(t *testing.T) {
	catalog := NewCatalog(testPricing())

	assert.EqualValues(t, 900, catalog.ConvertCents(900, enums.CurrencyUSD))
	assert.EqualValues(t, 75600, catalog.ConvertCents(900, enums.CurrencyINR))
	assert.EqualValues(t, 828, catalog.ConvertCents(900, enums.CurrencyEUR))
}

func TestCatalogListOrder(t *testing.T) {
	catalog := NewCatalog(testPricing())
	plans := catalog.List()
	require.Len(t, plans, 3)
	assert.Equal(t, enums.PlanFree, plans[0].Code)
	assert.Equal(t, enums.PlanPro, plans[1].Code)
	assert.Equal(t, enums.PlanUnlimited, plans[2].Code)
}
