package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/trip"
)

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "semtrip version 0.1.0 (build: dev)\n", out.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("Shown", "run_id", "r1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"Shown"`)
	assert.Contains(t, out, `"run_id":"r1"`)

	buf.Reset()
	newLogger(&buf, "debug", "text").Debug("Visible")
	assert.Contains(t, buf.String(), "msg=Visible")
}

func TestSeedCheck(t *testing.T) {
	dir := t.TempDir()
	overlay := `destinations:
  大理:
    attractions: [洱海, 大理古城]
    cuisine: [乳扇]
    transportation: [电动车]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yunnan.yaml"), []byte(overlay), 0644))

	var out bytes.Buffer
	require.NoError(t, seedCheck(&out, dir, nil))
	assert.Contains(t, out.String(), "overlay files:  1")
	assert.Contains(t, out.String(), "大理")
	assert.Contains(t, out.String(), "yunnan.yaml")
}

func TestSeedCheck_BadOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("destinations: [\n"), 0644))
	var out bytes.Buffer
	assert.Error(t, seedCheck(&out, dir, nil))
}

func TestRenderPlan(t *testing.T) {
	start := trip.NewDate(2026, time.May, 1)
	plan := &trip.FinishedPlan{
		Title:     "杭州之旅",
		StartDate: start,
		EndDate:   start.AddDays(1),
		PartySize: 2,
		Tier:      trip.TierComfort,
		Itinerary: []trip.DayPlan{
			{
				Day:         1,
				Date:        start,
				Theme:       "抵达适应日",
				WeatherNote: "天气晴朗，适合户外活动",
				Activities: []trip.Activity{
					{Time: "09:30", Name: "西湖", Location: trip.Location{Name: "西湖"}, Cost: 0},
					{Time: "14:00", Name: "灵隐寺祈福", Location: trip.Location{Name: "灵隐寺"}, Cost: 75, Tips: "今日有降水"},
				},
				TotalCost: 75,
			},
		},
		Budget: trip.BudgetSummary{
			RawTotal:      75,
			Multiplier:    1,
			AdjustedTotal: 75,
			Advisories:    []string{"建议预留10-20%的应急资金"},
		},
		Recommendations: []string{"提前预订门票"},
		Collaboration:   &trip.CollaborationPlan{DecisionMaking: "轮流决策", BudgetManagement: "AA制", ScheduleFlexibility: "高"},
		Errors:          []trip.StageError{{Stage: trip.StageAnalyzing, Message: "weather unavailable"}},
	}

	out := renderPlan(plan)
	for _, want := range []string{
		"杭州之旅",
		"2026-05-01 → 2026-05-02",
		"第1天 2026-05-01  抵达适应日",
		"灵隐寺祈福 @ 灵隐寺  ¥75",
		"今日有降水",
		"预算合计 ¥75",
		"建议预留10-20%的应急资金",
		"提前预订门票",
		"轮流决策",
		"analyzing: weather unavailable",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
	assert.NotContains(t, out, "西湖 @ 西湖", "location equal to the name is not repeated")
}
