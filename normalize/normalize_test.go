package normalize_test

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/c360studio/semtrip/normalize"
	"github.com/c360studio/semtrip/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertComplete(t *testing.T, s normalize.DaySchedule) {
	t.Helper()
	require.Len(t, s.Slots, 6)
	for _, slot := range trip.Slots() {
		d := s.Slot(slot)
		assert.NotEmpty(t, d.Location, "slot %s has no location", slot)
		assert.NotEmpty(t, d.Activity, "slot %s has no activity", slot)
		assert.False(t, math.IsNaN(d.Cost) || math.IsInf(d.Cost, 0))
		assert.GreaterOrEqual(t, d.Cost, 0.0)
	}
}

func TestNormalize_JSON(t *testing.T) {
	raw := "好的，以下是行程：\n```json\n" + `{
  "breakfast": {"restaurant": "知味观", "cost": "人均35元", "recommended_dishes": ["小笼包", "片儿川"]},
  "morning": {"activity": "游览西湖", "location": "西湖", "cost": 0, "opening_hours": "全天"},
  "lunch": {"name": "楼外楼", "location": "楼外楼", "cost": 150},
  "afternoon": {"activity": "灵隐寺祈福", "location": "灵隐寺", "ticket_price": "75元", "cost": "75"},
  "dinner": "晚餐在河坊街品尝小吃，约100元",
  "transportation": "地铁+步行",
  "estimated_cost": "400元",
}` + "\n```"

	s := normalize.Normalize(raw, 2)
	assert.Equal(t, normalize.MethodJSON, s.Method)
	assert.Equal(t, 2, s.Day)
	assertComplete(t, s)

	b := s.Slot(trip.SlotBreakfast)
	assert.Equal(t, "知味观", b.Name)
	assert.Equal(t, 35.0, b.Cost)
	assert.Equal(t, "小笼包、片儿川", b.Specialties)
	assert.Equal(t, "免费", b.TicketPrice)

	assert.Equal(t, "全天", s.Slot(trip.SlotMorning).OpenTime)
	assert.Equal(t, "75元", s.Slot(trip.SlotAfternoon).TicketPrice)
	assert.Equal(t, 75.0, s.Slot(trip.SlotAfternoon).Cost)

	dinner := s.Slot(trip.SlotDinner)
	assert.Equal(t, "河坊街", dinner.Location)
	assert.Equal(t, 100.0, dinner.Cost)

	// evening was missing and comes from the template
	assert.Equal(t, "2小时", s.Slot(trip.SlotEvening).Duration)
	assert.Equal(t, "地铁+步行", s.Transportation)
	assert.Equal(t, "400元", s.EstimatedCost)
	assert.Equal(t, 360.0, s.TotalCost())
}

func TestNormalize_WrappedJSON(t *testing.T) {
	s := normalize.Normalize(`{"schedule": {"evening": {"activity": "夜游", "location": "钱塘江"}}}`, 1)
	assert.Equal(t, normalize.MethodJSON, s.Method)
	assert.Equal(t, "钱塘江", s.Slot(trip.SlotEvening).Location)
}

func TestNormalize_JSONWithoutSlotsFallsBack(t *testing.T) {
	s := normalize.Normalize(`{"foo": "bar"}`, 1)
	assert.Equal(t, normalize.MethodHeuristic, s.Method)
	assertComplete(t, s)
}

func TestNormalize_Heuristic(t *testing.T) {
	raw := `## 第1天
**早餐**：08:00 知味观（百年老店）约30元
上午：参观浙江省博物馆，了解吴越文化
中午：
在外婆家用餐，人均80元
下午 14:00-17:00 漫步西湖
晚餐：楼外楼，约200元
晚上：河坊街夜市
交通：地铁+步行`

	s := normalize.Normalize(raw, 1)
	assert.Equal(t, normalize.MethodHeuristic, s.Method)
	assertComplete(t, s)

	assert.Equal(t, 30.0, s.Slot(trip.SlotBreakfast).Cost)
	assert.Equal(t, "知味观", s.Slot(trip.SlotBreakfast).Activity)
	assert.Equal(t, "浙江省博物馆", s.Slot(trip.SlotMorning).Location)
	assert.Equal(t, "外婆家", s.Slot(trip.SlotLunch).Location)
	assert.Equal(t, 80.0, s.Slot(trip.SlotLunch).Cost)
	assert.Equal(t, "西湖", s.Slot(trip.SlotAfternoon).Location)
	assert.Equal(t, "楼外楼", s.Slot(trip.SlotDinner).Location)
	assert.Equal(t, 200.0, s.Slot(trip.SlotDinner).Cost)
	assert.Equal(t, "河坊街", s.Slot(trip.SlotEvening).Location)
	assert.Equal(t, "地铁+步行", s.Transportation)
}

func TestNormalize_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "```\n```", "null", "[]"} {
		s := normalize.Normalize(raw, 3)
		assertComplete(t, s)
		assert.Equal(t, 3, s.Day)
	}
}

func TestNormalize_NeverNegativeCost(t *testing.T) {
	s := normalize.Normalize(`{"lunch": {"location": "餐厅", "cost": -50}}`, 1)
	assert.Equal(t, 0.0, s.Slot(trip.SlotLunch).Cost)
}

func TestNormalize_Totality(t *testing.T) {
	alphabet := []rune("{}[]\":,上午下午晚上早餐午餐晚餐元（）()**#-\n0123456789abc西湖寺在地址：")
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		n := rng.IntN(200)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			sb.WriteRune(alphabet[rng.IntN(len(alphabet))])
		}
		s := normalize.Normalize(sb.String(), 1)
		assertComplete(t, s)
	}
}

func TestExtractLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"参观西湖", "西湖"},
		{"前往灵隐寺祈福", "灵隐寺"},
		{"品尝外婆家餐厅", "外婆家餐厅"},
		{"地址：延安路98号，近地铁站", "延安路"},
		{"位置：解放路口", "解放路"},
		{"在知味观用餐", "知味观"},
		{"品尝当地美食", "当地特色餐厅"},
		{"自由购物", "购物中心"},
		{"休息一下", "市区景点"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.ExtractLocation(tt.in))
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "楼外楼", normalize.Clean("**晚餐**：18:00 楼外楼（西湖醋鱼）约200元。"))
	assert.Equal(t, "参观博物馆", normalize.Clean("1. 上午: 参观博物馆"))
}

func TestCoerceCost(t *testing.T) {
	assert.Equal(t, 35.5, normalize.CoerceCost("约35.5元"))
	assert.Equal(t, 0.0, normalize.CoerceCost("免费"))
	assert.Equal(t, 12.0, normalize.CoerceCost(12.0))
	assert.Equal(t, 0.0, normalize.CoerceCost(nil))
	assert.Equal(t, 0.0, normalize.CoerceCost(math.Inf(1)))
}
