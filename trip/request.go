// Package trip defines the travel planning domain: requests, the mutable
// plan state threaded through the pipeline, and the finished plan record.
package trip

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component.
type Date struct {
	time.Time
}

// NewDate truncates t to midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of calendar days from d to other. Both
// dates are compared at UTC midnight, so zone offsets and DST changes do
// not shift the count.
func (d Date) DaysUntil(other Date) int {
	return int(utcMidnight(other.Time).Sub(utcMidnight(d.Time)) / (24 * time.Hour))
}

func utcMidnight(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.Time.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Tier is the budget level chosen for a trip.
type Tier string

const (
	// TierEconomy scales costs down.
	TierEconomy Tier = "economy"
	// TierComfort is the baseline.
	TierComfort Tier = "comfort"
	// TierLuxury scales costs up.
	TierLuxury Tier = "luxury"
	// TierUnlimited doubles costs.
	TierUnlimited Tier = "unlimited"
)

// tierLabels maps accepted aliases to tiers.
var tierLabels = map[string]Tier{
	"economy":   TierEconomy,
	"经济型":       TierEconomy,
	"comfort":   TierComfort,
	"舒适型":       TierComfort,
	"luxury":    TierLuxury,
	"豪华型":       TierLuxury,
	"unlimited": TierUnlimited,
	"不限预算":      TierUnlimited,
}

// ParseTier converts a label to a Tier. The empty string means Comfort.
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TierComfort, nil
	}
	if t, ok := tierLabels[strings.ToLower(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown budget tier %q", s)
}

// IsValid reports whether t is one of the four tiers.
func (t Tier) IsValid() bool {
	switch t {
	case TierEconomy, TierComfort, TierLuxury, TierUnlimited:
		return true
	}
	return false
}

// Label returns the display name used in prompts and output.
func (t Tier) Label() string {
	switch t {
	case TierEconomy:
		return "经济型"
	case TierLuxury:
		return "豪华型"
	case TierUnlimited:
		return "不限预算"
	default:
		return "舒适型"
	}
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// UnmarshalJSON accepts any alias understood by ParseTier.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PlanRequest is what a caller asks the planner to produce.
// It is not modified once a run has accepted it.
type PlanRequest struct {
	Destination string   `json:"destination"`
	StartDate   Date     `json:"start_date"`
	EndDate     Date     `json:"end_date"`
	PartySize   int      `json:"party_size"`
	Tier        Tier     `json:"budget_range"`
	Styles      []string `json:"travel_styles,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Notes       string   `json:"special_requirements,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	GuideURL    string   `json:"guide_url,omitempty"`
}

// Days returns the trip length in days, inclusive of both ends.
// A non-positive value means the dates are inverted.
func (r PlanRequest) Days() int {
	return r.StartDate.DaysUntil(r.EndDate) + 1
}

// HasStyle reports whether style is among the requested travel styles.
func (r PlanRequest) HasStyle(style string) bool {
	for _, s := range r.Styles {
		if s == style {
			return true
		}
	}
	return false
}

// PrimaryStyle returns the first travel style or the empty string.
func (r PlanRequest) PrimaryStyle() string {
	if len(r.Styles) == 0 {
		return ""
	}
	return r.Styles[0]
}
