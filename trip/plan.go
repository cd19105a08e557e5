package trip

import (
	"math"
	"time"
)

// Slot is a time-of-day position in a day's schedule.
type Slot string

const (
	SlotBreakfast Slot = "breakfast"
	SlotMorning   Slot = "morning"
	SlotLunch     Slot = "lunch"
	SlotAfternoon Slot = "afternoon"
	SlotDinner    Slot = "dinner"
	SlotEvening   Slot = "evening"
)

// Slots returns the six schedule slots in chronological order.
func Slots() []Slot {
	return []Slot{SlotBreakfast, SlotMorning, SlotLunch, SlotAfternoon, SlotDinner, SlotEvening}
}

// ClockTime is the start time assigned to the slot.
func (s Slot) ClockTime() string {
	switch s {
	case SlotBreakfast:
		return "08:00"
	case SlotMorning:
		return "09:30"
	case SlotLunch:
		return "12:00"
	case SlotAfternoon:
		return "14:00"
	case SlotDinner:
		return "18:00"
	case SlotEvening:
		return "20:00"
	default:
		return ""
	}
}

// Label is the Chinese display label of the slot.
func (s Slot) Label() string {
	switch s {
	case SlotBreakfast:
		return "早餐"
	case SlotMorning:
		return "上午"
	case SlotLunch:
		return "午餐"
	case SlotAfternoon:
		return "下午"
	case SlotDinner:
		return "晚餐"
	case SlotEvening:
		return "晚上"
	default:
		return string(s)
	}
}

// IsMeal reports whether the slot is a meal.
func (s Slot) IsMeal() bool {
	return s == SlotBreakfast || s == SlotLunch || s == SlotDinner
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is where an activity happens.
type Location struct {
	Name       string      `json:"name"`
	Address    string      `json:"address,omitempty"`
	Coordinate *Coordinate `json:"coordinates,omitempty"`
}

// LocationSource records which step of the resolver produced a location.
type LocationSource string

const (
	SourcePOI       LocationSource = "poi"
	SourceBroadPOI  LocationSource = "poi_broad"
	SourceCityTable LocationSource = "city_table"
	SourceDefault   LocationSource = "default"
)

// ResolvedLocation is the resolver's answer for a free-text place.
type ResolvedLocation struct {
	Name       string         `json:"name"`
	Keyword    string         `json:"keyword"`
	Address    string         `json:"address"`
	Coordinate Coordinate     `json:"coordinates"`
	Source     LocationSource `json:"source"`
	Info       string         `json:"info,omitempty"`
}

// Location converts the resolution into an activity location.
func (r ResolvedLocation) Location() Location {
	c := r.Coordinate
	return Location{Name: r.Name, Address: r.Address, Coordinate: &c}
}

// Activity is one scheduled item in a day.
type Activity struct {
	Slot        Slot     `json:"slot"`
	Time        string   `json:"time"`
	Name        string   `json:"activity"`
	Location    Location `json:"location"`
	Cost        float64  `json:"cost"`
	Duration    string   `json:"duration,omitempty"`
	Description string   `json:"description,omitempty"`
	Tips        string   `json:"tips,omitempty"`
}

// DayPlan is the schedule for one trip day.
type DayPlan struct {
	Day            int        `json:"day"`
	Date           Date       `json:"date"`
	Theme          string     `json:"theme"`
	Activities     []Activity `json:"activities"`
	TotalCost      float64    `json:"total_cost"`
	Notes          string     `json:"notes,omitempty"`
	Transportation string     `json:"transportation,omitempty"`
	WeatherNote    string     `json:"weather_note,omitempty"`
}

// Recalculate sets TotalCost to the sum of activity costs.
func (d *DayPlan) Recalculate() {
	var total float64
	for _, a := range d.Activities {
		total += a.Cost
	}
	d.TotalCost = total
}

// SanitizeCost clamps a parsed cost into the valid range.
func SanitizeCost(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// DestinationInfo collects analysis results for the destination.
type DestinationInfo struct {
	Name         string      `json:"name"`
	Analysis     string      `json:"analysis"`
	Attractions  []string    `json:"attractions,omitempty"`
	Cuisine      []string    `json:"cuisine,omitempty"`
	Airport      string      `json:"airport,omitempty"`
	Transport    string      `json:"transport,omitempty"`
	Climate      string      `json:"climate,omitempty"`
	GuideTitle   string      `json:"guide_title,omitempty"`
	GuideExcerpt string      `json:"guide_excerpt,omitempty"`
	Coordinate   *Coordinate `json:"coordinates,omitempty"`
}

// DailyWeather is one forecast day.
type DailyWeather struct {
	Date        string  `json:"date"`
	TempMax     float64 `json:"temp_max"`
	TempMin     float64 `json:"temp_min"`
	TempAvg     float64 `json:"temp_avg"`
	Description string  `json:"description"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// CurrentWeather is a point-in-time observation.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Pressure    int     `json:"pressure"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
	Visibility  float64 `json:"visibility"`
}

// WeatherAnalysis summarizes a forecast.
type WeatherAnalysis struct {
	Summary   string `json:"summary"`
	TempRange string `json:"temp_range"`
	Pattern   string `json:"weather_pattern"`
	RainyDays int    `json:"rainy_days"`
	SunnyDays int    `json:"sunny_days"`
}

// WeatherSnapshot is the weather data attached to a plan.
type WeatherSnapshot struct {
	Current         CurrentWeather  `json:"current"`
	Forecast        []DailyWeather  `json:"forecast"`
	Analysis        WeatherAnalysis `json:"analysis"`
	Recommendations []string        `json:"recommendations"`
	Fallback        bool            `json:"fallback,omitempty"`
}

// ForDay returns the forecast entry for a 1-based day, cycling when the
// forecast is shorter than the trip.
func (w *WeatherSnapshot) ForDay(day int) (DailyWeather, bool) {
	if w == nil || len(w.Forecast) == 0 || day < 1 {
		return DailyWeather{}, false
	}
	return w.Forecast[(day-1)%len(w.Forecast)], true
}

// BudgetBreakdown splits the adjusted total into categories.
type BudgetBreakdown struct {
	Accommodation  float64 `json:"accommodation"`
	Food           float64 `json:"food"`
	Activities     float64 `json:"activities"`
	Transportation float64 `json:"transportation"`
}

// BudgetSummary is the result of budget aggregation.
type BudgetSummary struct {
	RawTotal      float64         `json:"total_cost"`
	Multiplier    float64         `json:"budget_multiplier"`
	AdjustedTotal float64         `json:"adjusted_cost"`
	PerPerson     float64         `json:"per_person_cost"`
	DailyAverage  float64         `json:"daily_average"`
	Breakdown     BudgetBreakdown `json:"cost_breakdown"`
	SavingTips    []string        `json:"saving_tips"`
	Advisories    []string        `json:"budget_alerts"`
}

// CollaborationPlan coordinates a multi-person group.
type CollaborationPlan struct {
	CommunicationTools  []string      `json:"communication_tools"`
	DecisionMaking      string        `json:"decision_making"`
	Emergency           EmergencyPlan `json:"emergency_plan"`
	BudgetManagement    string        `json:"budget_management"`
	ScheduleFlexibility string        `json:"schedule_flexibility"`
	Tips                []string      `json:"tips"`
}

// EmergencyPlan lists meeting points and contact methods.
type EmergencyPlan struct {
	Contact       string   `json:"contact_method"`
	MeetingPoints []string `json:"meeting_points"`
	Backup        string   `json:"backup_plan"`
}

// FinishedPlan is the immutable output of a completed run.
type FinishedPlan struct {
	PlanID          string             `json:"plan_id"`
	RunID           string             `json:"run_id,omitempty"`
	Title           string             `json:"title"`
	Destination     string             `json:"destination"`
	StartDate       Date               `json:"start_date"`
	EndDate         Date               `json:"end_date"`
	PartySize       int                `json:"group_size"`
	Tier            Tier               `json:"budget_range"`
	BudgetEstimate  float64            `json:"budget_estimate"`
	Itinerary       []DayPlan          `json:"itinerary"`
	Recommendations []string           `json:"recommendations"`
	Weather         *WeatherSnapshot   `json:"weather_info,omitempty"`
	CulturalTips    []string           `json:"cultural_tips"`
	Info            *DestinationInfo   `json:"destination_info,omitempty"`
	Budget          BudgetSummary      `json:"budget_breakdown"`
	Collaboration   *CollaborationPlan `json:"collaboration_plan,omitempty"`
	Errors          []StageError       `json:"errors,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}
