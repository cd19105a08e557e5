package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/trip"
)

func samplePlan() *trip.FinishedPlan {
	start := trip.NewDate(2026, time.May, 1)
	return &trip.FinishedPlan{
		PlanID:      "p-123",
		Title:       "杭州之旅",
		Destination: "杭州",
		StartDate:   start,
		EndDate:     start,
		PartySize:   2,
		Tier:        trip.TierComfort,
		Itinerary: []trip.DayPlan{{
			Day:   1,
			Date:  start,
			Theme: "抵达适应日",
			Activities: []trip.Activity{
				{Slot: trip.SlotBreakfast, Time: "08:00", Name: "知味观", Location: trip.Location{Name: "知味观"}, Cost: 30},
				{Slot: trip.SlotMorning, Time: "09:30", Name: "游览西湖", Location: trip.Location{Name: "西湖", Coordinate: &trip.Coordinate{Lat: 30.2590, Lng: 120.1388}}},
				{Slot: trip.SlotLunch, Time: "12:00", Name: "楼外楼 | 西湖醋鱼", Location: trip.Location{Name: "楼外楼", Address: "孤山路30号"}, Cost: 100, Tips: "建议提前订位"},
			},
			TotalCost: 130,
		}},
		Budget: trip.BudgetSummary{
			RawTotal:      130,
			Multiplier:    1,
			AdjustedTotal: 130,
			PerPerson:     65,
			DailyAverage:  130,
			Advisories:    []string{"建议预留10-20%的应急资金"},
		},
		Recommendations: []string{"提前预订门票"},
		CreatedAt:       time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "MD": FormatMarkdown, " ical ": FormatICS} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ics, json, markdown")
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, samplePlan(), FormatJSON))

	var decoded trip.FinishedPlan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "杭州之旅", decoded.Title)
	assert.Len(t, decoded.Itinerary[0].Activities, 3)
}

func TestWrite_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, nil, FormatJSON))
	assert.Error(t, Write(&buf, samplePlan(), Format("pdf")))
}

func TestMarkdown(t *testing.T) {
	md := Markdown(samplePlan())

	assert.True(t, strings.HasPrefix(md, "# 杭州之旅\n\n"))
	assert.Contains(t, md, "### 第1天 · 2026-05-01 · 抵达适应日")
	assert.Contains(t, md, `| 12:00 | 楼外楼 \| 西湖醋鱼 | 楼外楼 | ¥100 |`)
	assert.Contains(t, md, "| **合计** | **¥130** |")
	assert.Contains(t, md, "- 楼外楼 | 西湖醋鱼：建议提前订位")
	assert.Contains(t, md, "## 旅行建议\n\n- 提前预订门票")
	assert.NotContains(t, md, "团队协作", "single-person sections are omitted without a collaboration plan")
}

func TestCalendar(t *testing.T) {
	ics := Calendar(samplePlan())
	lines := strings.Split(strings.TrimSuffix(ics, "\r\n"), "\r\n")

	assert.Equal(t, "BEGIN:VCALENDAR", lines[0])
	assert.Equal(t, "END:VCALENDAR", lines[len(lines)-1])
	assert.Equal(t, 3, strings.Count(ics, "BEGIN:VEVENT"))

	assert.Contains(t, ics, "UID:p-123-d1-0@semtrip")
	assert.Contains(t, ics, "DTSTAMP:20260401T080000Z")
	// breakfast is one hour long
	assert.Contains(t, ics, "DTSTART:20260501T080000\r\nDTEND:20260501T090000")
	assert.Contains(t, ics, "DTSTART:20260501T093000\r\nDTEND:20260501T113000")
	assert.Contains(t, ics, `LOCATION:楼外楼\, 孤山路30号`)
	assert.Contains(t, ics, "GEO:30.259000;120.138800")

	for _, l := range lines {
		assert.LessOrEqual(t, len(l), maxLineOctets, "line not folded: %q", l)
	}
}

func TestICSLineFolding(t *testing.T) {
	var w icsWriter
	w.prop("SUMMARY", strings.Repeat("西湖", 30))
	out := w.String()

	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	require.Greater(t, len(lines), 1)
	var joined strings.Builder
	for i, l := range lines {
		assert.LessOrEqual(t, len(l), maxLineOctets)
		if i > 0 {
			require.True(t, strings.HasPrefix(l, " "))
			l = l[1:]
		}
		joined.WriteString(l)
	}
	assert.Equal(t, "SUMMARY:"+strings.Repeat("西湖", 30), joined.String())
}

func TestCalendar_OverlapTrimmed(t *testing.T) {
	p := samplePlan()
	p.Itinerary[0].Activities[1].Time = "10:00"
	p.Itinerary[0].Activities[2].Time = "11:00"

	ics := Calendar(p)
	assert.Contains(t, ics, "DTSTART:20260501T100000\r\nDTEND:20260501T110000")
}

func TestFilename(t *testing.T) {
	p := samplePlan()
	assert.Equal(t, "semtrip-p-123.ics", Filename(p, FormatICS))
	p.PlanID = ""
	p.RunID = "r-9"
	assert.Equal(t, "semtrip-r-9.md", Filename(p, FormatMarkdown))
}
