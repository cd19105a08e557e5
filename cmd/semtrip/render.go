package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/c360studio/semtrip/trip"
)

var (
	accentColor = lipgloss.Color("#2E86AB")
	subtleColor = lipgloss.Color("#6C6C6C")
	warnColor   = lipgloss.Color("#F18F01")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	dayStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	subtleStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtleColor).
			Padding(0, 1)
)

// renderPlan formats a finished plan for the terminal.
func renderPlan(p *trip.FinishedPlan) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(p.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s → %s · %d人 · %s\n\n",
		p.StartDate, p.EndDate, p.PartySize, p.Tier.Label())

	for _, day := range p.Itinerary {
		b.WriteString(renderDay(day))
		b.WriteString("\n")
	}

	b.WriteString(boxStyle.Render(renderBudget(p.Budget)))
	b.WriteString("\n")

	if len(p.Recommendations) > 0 {
		b.WriteString(dayStyle.Render("旅行建议"))
		b.WriteString("\n")
		for _, r := range p.Recommendations {
			fmt.Fprintf(&b, "  • %s\n", r)
		}
	}
	if len(p.CulturalTips) > 0 {
		b.WriteString(dayStyle.Render("当地贴士"))
		b.WriteString("\n")
		for _, t := range p.CulturalTips {
			fmt.Fprintf(&b, "  • %s\n", t)
		}
	}
	if c := p.Collaboration; c != nil {
		b.WriteString(dayStyle.Render("团队协作"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  决策方式：%s；预算管理：%s；行程弹性：%s\n",
			c.DecisionMaking, c.BudgetManagement, c.ScheduleFlexibility)
	}
	if len(p.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("部分数据使用了默认值（%d）", len(p.Errors))))
		b.WriteString("\n")
		for _, e := range p.Errors {
			b.WriteString(subtleStyle.Render("  " + e.Error()))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderDay(d trip.DayPlan) string {
	var b strings.Builder
	b.WriteString(dayStyle.Render(fmt.Sprintf("第%d天 %s  %s", d.Day, d.Date, d.Theme)))
	b.WriteString("\n")
	if d.WeatherNote != "" {
		b.WriteString(subtleStyle.Render("  " + d.WeatherNote))
		b.WriteString("\n")
	}
	for _, a := range d.Activities {
		line := fmt.Sprintf("  %s  %s", a.Time, a.Name)
		if a.Location.Name != "" && a.Location.Name != a.Name {
			line += " @ " + a.Location.Name
		}
		if a.Cost > 0 {
			line += fmt.Sprintf("  ¥%.0f", a.Cost)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if a.Tips != "" {
			b.WriteString(warnStyle.Render("      " + a.Tips))
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "  小计 ¥%.0f\n", d.TotalCost)
	if d.Notes != "" {
		b.WriteString(subtleStyle.Render("  " + d.Notes))
		b.WriteString("\n")
	}
	return b.String()
}

func renderBudget(s trip.BudgetSummary) string {
	lines := []string{
		fmt.Sprintf("预算合计 ¥%.0f（系数 %.1f，原始 ¥%.0f）", s.AdjustedTotal, s.Multiplier, s.RawTotal),
		fmt.Sprintf("人均 ¥%.0f · 日均 ¥%.0f", s.PerPerson, s.DailyAverage),
		fmt.Sprintf("住宿 ¥%.0f · 餐饮 ¥%.0f · 活动 ¥%.0f · 交通 ¥%.0f",
			s.Breakdown.Accommodation, s.Breakdown.Food, s.Breakdown.Activities, s.Breakdown.Transportation),
	}
	for _, a := range s.Advisories {
		lines = append(lines, "! "+a)
	}
	return strings.Join(lines, "\n")
}
