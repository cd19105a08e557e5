// Package normalize turns free-form itinerary text from a language model
// into a fixed six-slot day schedule. Normalize never fails: when the text
// is not usable JSON it falls back to heuristic rules, and any slot still
// empty is filled from the template.
package normalize

import (
	"strconv"

	"github.com/c360studio/semtrip/trip"
)

// Method records which path produced a schedule.
type Method string

const (
	MethodJSON      Method = "json"
	MethodHeuristic Method = "heuristic"
	MethodTemplate  Method = "template"
)

// SlotDetail is the normalized content of one slot.
type SlotDetail struct {
	Name        string  `json:"name"`
	Activity    string  `json:"activity"`
	Location    string  `json:"location"`
	Address     string  `json:"address"`
	Duration    string  `json:"duration"`
	Cost        float64 `json:"cost"`
	Description string  `json:"description"`
	Specialties string  `json:"specialties"`
	Features    string  `json:"features"`
	Tips        string  `json:"tips"`
	OpenTime    string  `json:"openTime"`
	TicketPrice string  `json:"ticketPrice"`
}

// DaySchedule is a normalized day with exactly one entry per slot.
type DaySchedule struct {
	Day            int                      `json:"day"`
	Slots          map[trip.Slot]SlotDetail `json:"slots"`
	Transportation string                   `json:"transportation"`
	EstimatedCost  string                   `json:"estimated_cost"`
	Method         Method                   `json:"method"`
}

// Slot returns the detail for s.
func (d DaySchedule) Slot(s trip.Slot) SlotDetail {
	return d.Slots[s]
}

// TotalCost sums slot costs.
func (d DaySchedule) TotalCost() float64 {
	var total float64
	for _, s := range trip.Slots() {
		total += d.Slots[s].Cost
	}
	return total
}

var slotDefaults = map[trip.Slot]SlotDetail{
	trip.SlotBreakfast: {Activity: "当地特色早餐", Location: "当地特色餐厅", Duration: "1小时", TicketPrice: "免费"},
	trip.SlotMorning:   {Activity: "市区景点游览", Location: "市区景点", Duration: "3小时"},
	trip.SlotLunch:     {Activity: "当地特色午餐", Location: "当地特色餐厅", Duration: "1.5小时", TicketPrice: "免费"},
	trip.SlotAfternoon: {Activity: "城市漫步", Location: "城市公园", Duration: "3.5小时"},
	trip.SlotDinner:    {Activity: "当地特色晚餐", Location: "当地特色餐厅", Duration: "1.5小时", TicketPrice: "免费"},
	trip.SlotEvening:   {Activity: "夜游休闲", Location: "市区景点", Duration: "2小时"},
}

// Template returns the default schedule for a day.
func Template(day int) DaySchedule {
	slots := make(map[trip.Slot]SlotDetail, len(slotDefaults))
	for _, s := range trip.Slots() {
		d := slotDefaults[s]
		d.Name = d.Activity
		d.Description = "第" + strconv.Itoa(day) + "天" + s.Label() + "：" + d.Activity
		slots[s] = d
	}
	return DaySchedule{
		Day:            day,
		Slots:          slots,
		Transportation: "公共交通/步行",
		EstimatedCost:  "200-500元",
		Method:         MethodTemplate,
	}
}

// merge overlays the non-empty fields of src onto dst.
func merge(dst, src SlotDetail) SlotDetail {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Name, src.Name)
	set(&dst.Activity, src.Activity)
	set(&dst.Location, src.Location)
	set(&dst.Address, src.Address)
	set(&dst.Duration, src.Duration)
	set(&dst.Description, src.Description)
	set(&dst.Specialties, src.Specialties)
	set(&dst.Features, src.Features)
	set(&dst.Tips, src.Tips)
	set(&dst.OpenTime, src.OpenTime)
	set(&dst.TicketPrice, src.TicketPrice)
	if src.Cost > 0 {
		dst.Cost = src.Cost
	}
	if dst.Name == "" {
		dst.Name = dst.Activity
	}
	if dst.Activity == "" {
		dst.Activity = dst.Name
	}
	return dst
}
