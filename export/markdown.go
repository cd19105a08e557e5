package export

import (
	"fmt"
	"strings"

	"github.com/c360studio/semtrip/trip"
)

// Markdown converts a finished plan into a Markdown document.
func Markdown(p *trip.FinishedPlan) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(p.Title)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "- **目的地:** %s\n", p.Destination)
	fmt.Fprintf(&sb, "- **日期:** %s 至 %s\n", p.StartDate, p.EndDate)
	fmt.Fprintf(&sb, "- **人数:** %d\n", p.PartySize)
	fmt.Fprintf(&sb, "- **预算:** %s\n\n", p.Tier.Label())

	if p.Info != nil && p.Info.Analysis != "" {
		writeHeading(&sb, "目的地概况", 2)
		sb.WriteString(strings.TrimSpace(p.Info.Analysis))
		sb.WriteString("\n\n")
	}

	if p.Weather != nil && p.Weather.Analysis.Summary != "" {
		writeHeading(&sb, "天气", 2)
		sb.WriteString(p.Weather.Analysis.Summary)
		sb.WriteString("\n\n")
		writeList(&sb, p.Weather.Recommendations)
	}

	writeHeading(&sb, "行程安排", 2)
	for _, d := range p.Itinerary {
		writeDay(&sb, d)
	}

	writeHeading(&sb, "预算", 2)
	b := p.Budget
	sb.WriteString("| 项目 | 金额 |\n|---|---:|\n")
	fmt.Fprintf(&sb, "| 住宿 | ¥%.0f |\n", b.Breakdown.Accommodation)
	fmt.Fprintf(&sb, "| 餐饮 | ¥%.0f |\n", b.Breakdown.Food)
	fmt.Fprintf(&sb, "| 活动 | ¥%.0f |\n", b.Breakdown.Activities)
	fmt.Fprintf(&sb, "| 交通 | ¥%.0f |\n", b.Breakdown.Transportation)
	fmt.Fprintf(&sb, "| **合计** | **¥%.0f** |\n\n", b.AdjustedTotal)
	fmt.Fprintf(&sb, "人均 ¥%.0f，日均 ¥%.0f。\n\n", b.PerPerson, b.DailyAverage)
	writeList(&sb, b.Advisories)
	writeList(&sb, b.SavingTips)

	if len(p.Recommendations) > 0 {
		writeHeading(&sb, "旅行建议", 2)
		writeList(&sb, p.Recommendations)
	}
	if len(p.CulturalTips) > 0 {
		writeHeading(&sb, "当地贴士", 2)
		writeList(&sb, p.CulturalTips)
	}

	if c := p.Collaboration; c != nil {
		writeHeading(&sb, "团队协作", 2)
		fmt.Fprintf(&sb, "- **决策方式:** %s\n", c.DecisionMaking)
		fmt.Fprintf(&sb, "- **预算管理:** %s\n", c.BudgetManagement)
		fmt.Fprintf(&sb, "- **行程弹性:** %s\n", c.ScheduleFlexibility)
		if len(c.CommunicationTools) > 0 {
			fmt.Fprintf(&sb, "- **沟通工具:** %s\n", strings.Join(c.CommunicationTools, "、"))
		}
		if len(c.Emergency.MeetingPoints) > 0 {
			fmt.Fprintf(&sb, "- **集合点:** %s\n", strings.Join(c.Emergency.MeetingPoints, "、"))
		}
		sb.WriteString("\n")
		writeList(&sb, c.Tips)
	}

	if len(p.Errors) > 0 {
		sb.WriteString("---\n\n")
		sb.WriteString("**部分内容使用了默认数据:**\n\n")
		for _, e := range p.Errors {
			fmt.Fprintf(&sb, "- %s\n", e.Error())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeDay(sb *strings.Builder, d trip.DayPlan) {
	title := fmt.Sprintf("第%d天 · %s", d.Day, d.Date)
	if d.Theme != "" {
		title += " · " + d.Theme
	}
	writeHeading(sb, title, 3)
	if d.WeatherNote != "" {
		fmt.Fprintf(sb, "> %s\n\n", d.WeatherNote)
	}
	sb.WriteString("| 时间 | 安排 | 地点 | 费用 |\n|---|---|---|---:|\n")
	for _, a := range d.Activities {
		fmt.Fprintf(sb, "| %s | %s | %s | ¥%.0f |\n",
			a.Time, escapeCell(a.Name), escapeCell(a.Location.Name), a.Cost)
	}
	fmt.Fprintf(sb, "\n小计 ¥%.0f\n\n", d.TotalCost)

	var tips []string
	for _, a := range d.Activities {
		if a.Tips != "" {
			tips = append(tips, fmt.Sprintf("%s：%s", a.Name, a.Tips))
		}
	}
	writeList(sb, tips)
	if d.Notes != "" {
		sb.WriteString(d.Notes)
		sb.WriteString("\n\n")
	}
}

func writeHeading(sb *strings.Builder, title string, level int) {
	sb.WriteString(strings.Repeat("#", level))
	sb.WriteString(" ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
}

func writeList(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		return
	}
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// escapeCell keeps pipes and newlines from breaking a table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
