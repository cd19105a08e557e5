package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/trip"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Normalize converts raw model output for day into a schedule. It is
// total: every input, including the empty string, yields six filled slots
// with finite, non-negative costs.
func Normalize(raw string, day int) (out DaySchedule) {
	defer func() {
		if r := recover(); r != nil {
			out = Template(day)
		}
	}()

	if sched, ok := parseJSON(raw, day); ok {
		return sched
	}
	return parseHeuristic(raw, day)
}

// slotKeys lists the JSON keys accepted for each slot.
var slotKeys = map[trip.Slot][]string{
	trip.SlotBreakfast: {"breakfast", "早餐"},
	trip.SlotMorning:   {"morning", "上午"},
	trip.SlotLunch:     {"lunch", "午餐"},
	trip.SlotAfternoon: {"afternoon", "下午"},
	trip.SlotDinner:    {"dinner", "晚餐"},
	trip.SlotEvening:   {"evening", "晚上"},
}

func parseJSON(raw string, day int) (DaySchedule, bool) {
	extracted := llm.ExtractJSON(raw)
	if extracted == "" {
		return DaySchedule{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(extracted), &obj); err != nil {
		return DaySchedule{}, false
	}
	for _, wrapper := range []string{"schedule", "itinerary", "activities"} {
		if inner, ok := obj[wrapper].(map[string]any); ok {
			for k, v := range inner {
				obj[k] = v
			}
		}
	}

	sched := Template(day)
	found := false
	for _, slot := range trip.Slots() {
		for _, key := range slotKeys[slot] {
			v, ok := obj[key]
			if !ok {
				continue
			}
			var detail SlotDetail
			switch val := v.(type) {
			case map[string]any:
				detail = slotFromObject(val)
			case string:
				detail = slotFromLine(val)
			default:
				continue
			}
			sched.Slots[slot] = merge(sched.Slots[slot], detail)
			found = true
			break
		}
	}
	if !found {
		return DaySchedule{}, false
	}

	if s := stringField(obj, "transportation", "transport"); s != "" {
		sched.Transportation = s
	}
	if s := stringField(obj, "estimated_cost", "total_cost"); s != "" {
		sched.EstimatedCost = s
	}
	sched.Method = MethodJSON
	return sched, true
}

func slotFromObject(obj map[string]any) SlotDetail {
	d := SlotDetail{
		Name:        stringField(obj, "name", "restaurant", "activity"),
		Activity:    stringField(obj, "activity", "name"),
		Location:    stringField(obj, "location", "place", "restaurant"),
		Address:     stringField(obj, "address"),
		Duration:    stringField(obj, "duration"),
		Description: stringField(obj, "description"),
		Specialties: stringField(obj, "specialties", "recommended_dishes"),
		Features:    stringField(obj, "features"),
		Tips:        stringField(obj, "tips"),
		OpenTime:    stringField(obj, "openTime", "opening_hours"),
		TicketPrice: stringField(obj, "ticketPrice", "ticket_price"),
	}
	for _, key := range []string{"cost", "estimated_cost", "price"} {
		if v, ok := obj[key]; ok {
			d.Cost = CoerceCost(v)
			break
		}
	}
	return d
}

// stringField returns the first non-empty value among keys, joining
// arrays with 、.
func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			s = strings.Join(parts, "、")
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// CoerceCost turns a JSON cost value into a finite, non-negative number.
// Strings use their first numeric substring.
func CoerceCost(v any) float64 {
	switch val := v.(type) {
	case float64:
		return trip.SanitizeCost(val)
	case int:
		return trip.SanitizeCost(float64(val))
	case string:
		m := numberPattern.FindString(val)
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return trip.SanitizeCost(f)
	default:
		return 0
	}
}
