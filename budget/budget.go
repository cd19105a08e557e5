// Package budget rolls activity costs up into a trip budget summary.
package budget

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/c360studio/semtrip/trip"
)

// Breakdown fractions of the adjusted total.
const (
	shareAccommodation  = 0.35
	shareFood           = 0.30
	shareActivities     = 0.25
	shareTransportation = 0.10
)

// Multiplier returns the cost multiplier for a tier. Unknown tiers use 1.0.
func Multiplier(t trip.Tier) float64 {
	switch t {
	case trip.TierEconomy:
		return 0.8
	case trip.TierLuxury:
		return 1.5
	case trip.TierUnlimited:
		return 2.0
	default:
		return 1.0
	}
}

// Rule is an advisory emitted when its CEL condition holds. Conditions see
// tier (string), raw_total, adjusted_total, per_person, daily_average
// (double), days and party_size (int).
type Rule struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	When    string `json:"when" yaml:"when" toml:"when"`
	Message string `json:"message" yaml:"message" toml:"message"`
}

// DefaultRules are the built-in advisories.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "economy-over-ceiling", When: `tier == "economy" && adjusted_total > 3000.0`, Message: "当前预算较高，建议调整住宿和餐饮标准"},
		{Name: "luxury-under-floor", When: `tier == "luxury" && adjusted_total < 5000.0`, Message: "可以考虑升级住宿或增加特色体验项目"},
		{Name: "contingency", When: "true", Message: "建议预留10-20%的应急资金"},
		{Name: "price-variation", When: "true", Message: "部分费用可能因季节和实际情况有所变动"},
	}
}

var baseSavingTips = []string{
	"提前预订可享受早鸟优惠",
	"选择当地公共交通出行",
	"尝试当地平价美食",
	"关注景点免费开放日",
	"购买城市旅游通票",
}

var economySavingTips = []string{
	"选择青年旅社或民宿",
	"自备水和小食",
	"利用免费WiFi避免漫游费",
	"参加免费的城市徒步游",
}

// SavingTips returns money-saving advice for a tier.
func SavingTips(t trip.Tier) []string {
	tips := append([]string(nil), baseSavingTips...)
	if t == trip.TierEconomy {
		tips = append(tips, economySavingTips...)
	}
	return tips
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Aggregator computes budget summaries with a fixed set of advisory rules.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	rules []compiledRule
}

// NewAggregator compiles rules. Every condition must be a boolean
// expression over the documented variables.
func NewAggregator(rules []Rule) (*Aggregator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tier", cel.StringType),
		cel.Variable("raw_total", cel.DoubleType),
		cel.Variable("adjusted_total", cel.DoubleType),
		cel.Variable("per_person", cel.DoubleType),
		cel.Variable("daily_average", cel.DoubleType),
		cel.Variable("days", cel.IntType),
		cel.Variable("party_size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	a := &Aggregator{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, iss := env.Compile(r.When)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %q must be a boolean expression, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", r.Name, err)
		}
		a.rules = append(a.rules, compiledRule{Rule: r, program: prg})
	}
	return a, nil
}

var defaultAggregator = mustDefault()

func mustDefault() *Aggregator {
	a, err := NewAggregator(DefaultRules())
	if err != nil {
		panic(err)
	}
	return a
}

// Aggregate summarizes days with the default rules.
func Aggregate(days []trip.DayPlan, tier trip.Tier, partySize int) trip.BudgetSummary {
	return defaultAggregator.Aggregate(days, tier, partySize)
}

// Aggregate sums every activity cost across days, applies the tier
// multiplier and splits the result. Activity costs are authoritative; day
// totals are ignored. partySize below 1 is treated as 1.
func (a *Aggregator) Aggregate(days []trip.DayPlan, tier trip.Tier, partySize int) trip.BudgetSummary {
	var raw float64
	for _, d := range days {
		for _, act := range d.Activities {
			raw += trip.SanitizeCost(act.Cost)
		}
	}
	if partySize < 1 {
		partySize = 1
	}

	mult := Multiplier(tier)
	adjusted := raw * mult
	s := trip.BudgetSummary{
		RawTotal:      raw,
		Multiplier:    mult,
		AdjustedTotal: adjusted,
		PerPerson:     adjusted / float64(partySize),
		Breakdown: trip.BudgetBreakdown{
			Accommodation:  adjusted * shareAccommodation,
			Food:           adjusted * shareFood,
			Activities:     adjusted * shareActivities,
			Transportation: adjusted * shareTransportation,
		},
		SavingTips: SavingTips(tier),
	}
	if len(days) > 0 {
		s.DailyAverage = adjusted / float64(len(days))
	}
	s.Advisories = a.advisories(s, tier, len(days), partySize)
	return s
}

func (a *Aggregator) advisories(s trip.BudgetSummary, tier trip.Tier, days, partySize int) []string {
	vars := map[string]any{
		"tier":           string(tier),
		"raw_total":      s.RawTotal,
		"adjusted_total": s.AdjustedTotal,
		"per_person":     s.PerPerson,
		"daily_average":  s.DailyAverage,
		"days":           int64(days),
		"party_size":     int64(partySize),
	}
	out := []string{}
	for _, r := range a.rules {
		val, _, err := r.program.Eval(vars)
		if err != nil {
			continue
		}
		if ok, isBool := val.Value().(bool); isBool && ok {
			out = append(out, r.Message)
		}
	}
	return out
}
