package pipeline

import (
	"fmt"
	"strings"

	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

// tierCosts is the per-item price list used by template days.
type tierCosts struct {
	Accommodation float64
	Breakfast     float64
	Lunch         float64
	Dinner        float64
	Morning       float64
	Afternoon     float64
	Evening       float64
}

var costTable = map[trip.Tier]tierCosts{
	trip.TierEconomy:   {Accommodation: 200, Breakfast: 30, Lunch: 50, Dinner: 80, Morning: 100, Afternoon: 80, Evening: 60},
	trip.TierComfort:   {Accommodation: 500, Breakfast: 60, Lunch: 100, Dinner: 150, Morning: 200, Afternoon: 150, Evening: 120},
	trip.TierLuxury:    {Accommodation: 1000, Breakfast: 120, Lunch: 200, Dinner: 300, Morning: 400, Afternoon: 300, Evening: 250},
	trip.TierUnlimited: {Accommodation: 2000, Breakfast: 200, Lunch: 400, Dinner: 600, Morning: 800, Afternoon: 600, Evening: 500},
}

func costsFor(t trip.Tier) tierCosts {
	if c, ok := costTable[t]; ok {
		return c
	}
	return costTable[trip.TierComfort]
}

// styleDay is the sightseeing pair of a full template day.
type styleDay struct {
	Theme     string
	Morning   [3]string // activity, location suffix, description
	Afternoon [3]string
}

var styleDays = map[string]styleDay{
	"文化探索": {
		Theme:     "文化体验日",
		Morning:   [3]string{"参观历史博物馆", "博物馆", "了解当地历史文化"},
		Afternoon: [3]string{"游览古迹名胜", "古城", "户外游览历史街区"},
	},
	"美食之旅": {
		Theme:     "美食探索日",
		Morning:   [3]string{"逛当地早市", "早市", "品尝地道小吃"},
		Afternoon: [3]string{"美食街区探索", "美食街", "寻访特色老字号"},
	},
	"休闲度假": {
		Theme:     "休闲放松日",
		Morning:   [3]string{"公园休闲漫步", "公园", "户外慢节奏游览"},
		Afternoon: [3]string{"特色街区闲逛", "步行街", "咖啡小憩与购物"},
	},
	"冒险刺激": {
		Theme:     "探险体验日",
		Morning:   [3]string{"户外徒步探险", "郊野公园", "户外徒步，注意安全"},
		Afternoon: [3]string{"极限运动体验", "户外运动基地", "户外项目，听从教练指导"},
	},
	"摄影打卡": {
		Theme:     "精彩游览日",
		Morning:   [3]string{"地标建筑拍摄", "地标", "户外取景，早晨光线最佳"},
		Afternoon: [3]string{"网红景点打卡", "网红街区", "寻找特色机位"},
	},
}

var defaultStyleDay = styleDay{
	Theme:     "精彩游览日",
	Morning:   [3]string{"游览热门景点", "著名景点", "户外观光游览"},
	Afternoon: [3]string{"城市观光", "市中心", "感受城市风貌"},
}

func styleDayFor(req trip.PlanRequest) styleDay {
	for _, s := range req.Styles {
		if d, ok := styleDays[s]; ok {
			return d
		}
	}
	return defaultStyleDay
}

// dayTheme names a day: arrival, departure, or the style of a full day.
func dayTheme(req trip.PlanRequest, day, total int) string {
	switch {
	case day == 1:
		return "抵达适应日"
	case day == total:
		return "告别纪念日"
	default:
		return fmt.Sprintf("%s - 第%d站", styleDayFor(req).Theme, day-1)
	}
}

// dayNotes builds the notes line of a day.
func dayNotes(req trip.PlanRequest, day int) string {
	notes := []string{fmt.Sprintf("第%d天行程安排，注意合理安排时间和体力。", day)}
	if req.HasStyle("冒险刺激") {
		notes = append(notes, "参加户外项目请注意安全，购买相应保险。")
	}
	if req.HasStyle("美食之旅") {
		notes = append(notes, "注意饮食卫生，适量品尝。")
	}
	if req.HasStyle("摄影打卡") {
		notes = append(notes, "留意日出日落时间，备好相机电池。")
	}
	return strings.Join(notes, "")
}

func activity(slot trip.Slot, name, location string, cost float64, duration, description string) trip.Activity {
	return trip.Activity{
		Slot:        slot,
		Time:        slot.ClockTime(),
		Name:        name,
		Location:    trip.Location{Name: location},
		Cost:        cost,
		Duration:    duration,
		Description: description,
	}
}

// templateActivities is the fixed schedule used when no usable itinerary
// came back for a day. Locations are names only; coordinates are filled
// in later.
func templateActivities(req trip.PlanRequest, day, total int) []trip.Activity {
	dest := req.Destination
	c := costsFor(req.Tier)

	switch {
	case day == 1:
		return []trip.Activity{
			activity(trip.SlotMorning, "抵达目的地", dest+"机场", 0, "2小时", "抵达"+dest+"，前往酒店"),
			activity(trip.SlotLunch, "欢迎午餐", dest+"特色餐厅", c.Lunch, "1.5小时", "品尝当地特色菜"),
			activity(trip.SlotAfternoon, "住宿安排", dest+"酒店", c.Accommodation, "1小时", "办理入住，稍作休息"),
			activity(trip.SlotEvening, "城市初探", dest+"市中心", 50, "2小时", "在酒店附近散步，熟悉环境"),
		}
	case day == total:
		return []trip.Activity{
			activity(trip.SlotBreakfast, "告别早餐", "酒店餐厅", c.Breakfast, "1小时", "享用最后一顿早餐"),
			activity(trip.SlotMorning, "纪念品采购", dest+"特产商店", 200, "2小时", "选购当地特产和纪念品"),
			activity(trip.SlotLunch, "退房整理", dest+"酒店", 0, "1小时", "整理行李，办理退房"),
			activity(trip.SlotAfternoon, "返程准备", dest+"机场", 0, "2小时", "前往机场或车站返程"),
		}
	}

	sd := styleDayFor(req)
	acts := []trip.Activity{
		activity(trip.SlotBreakfast, "酒店早餐", "酒店餐厅", c.Breakfast, "1小时", "补充体力"),
		activity(trip.SlotMorning, sd.Morning[0], dest+sd.Morning[1], c.Morning, "3小时", sd.Morning[2]),
		activity(trip.SlotLunch, "特色午餐", dest+"特色餐厅", c.Lunch, "1.5小时", "品尝当地风味"),
		activity(trip.SlotAfternoon, sd.Afternoon[0], dest+sd.Afternoon[1], c.Afternoon, "3.5小时", sd.Afternoon[2]),
		activity(trip.SlotDinner, "风味晚餐", dest+"美食街", c.Dinner, "1.5小时", "体验当地夜市美食"),
	}
	if req.HasStyle("夜生活") || req.HasStyle("文化探索") {
		acts = append(acts, activity(trip.SlotEvening, "夜游", dest+"夜景", c.Evening, "2小时", "户外欣赏城市夜景"))
	}
	return acts
}

// adjustForWeather appends warnings to activities on wet or extreme days.
func adjustForWeather(acts []trip.Activity, note string) {
	wet := weather.IsWet(note)
	extreme := weather.IsExtreme(note)
	if !wet && !extreme {
		return
	}
	for i := range acts {
		if wet && strings.Contains(acts[i].Description, "户外") {
			acts[i].Tips = joinTip(acts[i].Tips, "今日有降水，户外活动请备好雨具或调整为室内项目")
		}
		if extreme {
			acts[i].Tips = joinTip(acts[i].Tips, "今日气温极端，注意防暑保暖")
		}
	}
}

func joinTip(existing, tip string) string {
	if existing == "" {
		return tip
	}
	return existing + "；" + tip
}
