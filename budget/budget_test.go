package budget_test

import (
	"testing"

	"github.com/c360studio/semtrip/budget"
	"github.com/c360studio/semtrip/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func daysWithCosts(costs ...float64) []trip.DayPlan {
	days := make([]trip.DayPlan, 0, len(costs))
	for i, c := range costs {
		days = append(days, trip.DayPlan{
			Day: i + 1,
			Activities: []trip.Activity{
				{Slot: trip.SlotMorning, Cost: c / 2},
				{Slot: trip.SlotAfternoon, Cost: c / 2},
			},
		})
	}
	return days
}

func TestAggregate_TierMultipliers(t *testing.T) {
	days := daysWithCosts(0, 500, 150, 100)

	comfort := budget.Aggregate(days, trip.TierComfort, 1)
	assert.Equal(t, 750.0, comfort.RawTotal)
	assert.Equal(t, 750.0, comfort.AdjustedTotal)

	luxury := budget.Aggregate(days, trip.TierLuxury, 1)
	assert.Equal(t, 750.0, luxury.RawTotal)
	assert.Equal(t, 1125.0, luxury.AdjustedTotal)
	assert.Equal(t, 1.5, luxury.Multiplier)

	assert.InDelta(t, 600.0, budget.Aggregate(days, trip.TierEconomy, 1).AdjustedTotal, 1e-9)
	assert.Equal(t, 1500.0, budget.Aggregate(days, trip.TierUnlimited, 1).AdjustedTotal)
}

func TestAggregate_Derived(t *testing.T) {
	s := budget.Aggregate(daysWithCosts(400, 400), trip.TierComfort, 4)
	assert.Equal(t, 200.0, s.PerPerson)
	assert.Equal(t, 400.0, s.DailyAverage)
	assert.InDelta(t, 280.0, s.Breakdown.Accommodation, 1e-9)
	assert.InDelta(t, 240.0, s.Breakdown.Food, 1e-9)
	assert.InDelta(t, 200.0, s.Breakdown.Activities, 1e-9)
	assert.InDelta(t, 80.0, s.Breakdown.Transportation, 1e-9)
}

func TestAggregate_IgnoresDayTotalsAndBadCosts(t *testing.T) {
	days := []trip.DayPlan{{
		Day:       1,
		TotalCost: 99999,
		Activities: []trip.Activity{
			{Cost: 100}, {Cost: -20},
		},
	}}
	s := budget.Aggregate(days, trip.TierComfort, 0)
	assert.Equal(t, 100.0, s.RawTotal)
	assert.Equal(t, 100.0, s.PerPerson)
}

func TestAggregate_NoDays(t *testing.T) {
	s := budget.Aggregate(nil, trip.TierComfort, 2)
	assert.Zero(t, s.AdjustedTotal)
	assert.Zero(t, s.DailyAverage)
}

func TestAggregate_Idempotent(t *testing.T) {
	days := daysWithCosts(120, 300, 80)
	first := budget.Aggregate(days, trip.TierLuxury, 3)
	second := budget.Aggregate(days, trip.TierLuxury, 3)
	assert.Equal(t, first, second)
}

func TestAggregate_Advisories(t *testing.T) {
	economy := budget.Aggregate(daysWithCosts(2000, 2000), trip.TierEconomy, 1)
	assert.Equal(t, []string{
		"当前预算较高，建议调整住宿和餐饮标准",
		"建议预留10-20%的应急资金",
		"部分费用可能因季节和实际情况有所变动",
	}, economy.Advisories)
	assert.Len(t, economy.SavingTips, 9)

	luxury := budget.Aggregate(daysWithCosts(1000), trip.TierLuxury, 1)
	assert.Contains(t, luxury.Advisories, "可以考虑升级住宿或增加特色体验项目")
	assert.Len(t, luxury.SavingTips, 5)

	comfort := budget.Aggregate(daysWithCosts(1000), trip.TierComfort, 1)
	assert.Len(t, comfort.Advisories, 2)
}

func TestNewAggregator_CustomRules(t *testing.T) {
	agg, err := budget.NewAggregator([]budget.Rule{
		{Name: "big-group", When: "party_size >= 6 && per_person < 500.0", Message: "团队人均较低"},
		{Name: "long-trip", When: "days > 2", Message: "行程较长"},
	})
	require.NoError(t, err)

	s := agg.Aggregate(daysWithCosts(300, 300, 300), trip.TierComfort, 6)
	assert.Equal(t, []string{"团队人均较低", "行程较长"}, s.Advisories)
}

func TestNewAggregator_RejectsBadRules(t *testing.T) {
	_, err := budget.NewAggregator([]budget.Rule{{Name: "syntax", When: "tier ==", Message: "x"}})
	assert.Error(t, err)

	_, err = budget.NewAggregator([]budget.Rule{{Name: "not-bool", When: "adjusted_total * 2.0", Message: "x"}})
	assert.ErrorContains(t, err, "boolean")

	_, err = budget.NewAggregator([]budget.Rule{{Name: "unknown-var", When: "budget > 1.0", Message: "x"}})
	assert.Error(t, err)
}
