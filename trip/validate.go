package trip

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxTripDays bounds the itinerary length unless configured.
const DefaultMaxTripDays = 30

// Validate checks a request against DefaultMaxTripDays.
func (r PlanRequest) Validate() error {
	return r.ValidateWithin(DefaultMaxTripDays)
}

// ValidateWithin checks a request and returns every problem joined
// together. Each element is a *ValidationError. maxDays below 1 means
// DefaultMaxTripDays.
func (r PlanRequest) ValidateWithin(maxDays int) error {
	if maxDays < 1 {
		maxDays = DefaultMaxTripDays
	}
	var errs []error
	if strings.TrimSpace(r.Destination) == "" {
		errs = append(errs, &ValidationError{Field: "destination", Message: "is required"})
	}
	if r.StartDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "start_date", Message: "is required"})
	}
	if r.EndDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "end_date", Message: "is required"})
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() {
		switch days := r.Days(); {
		case days <= 0:
			errs = append(errs, &ValidationError{Field: "end_date", Message: "must not be before start_date"})
		case days > maxDays:
			errs = append(errs, &ValidationError{Field: "end_date", Message: fmt.Sprintf("trip is longer than %d days", maxDays)})
		}
	}
	if r.PartySize < 1 {
		errs = append(errs, &ValidationError{Field: "party_size", Message: "must be at least 1"})
	}
	if r.Tier != "" && !r.Tier.IsValid() {
		errs = append(errs, &ValidationError{Field: "budget_range", Message: "unknown tier " + string(r.Tier)})
	}
	return errors.Join(errs...)
}

// Normalized returns a copy with defaults applied and whitespace trimmed.
func (r PlanRequest) Normalized() PlanRequest {
	out := r
	out.Destination = strings.TrimSpace(r.Destination)
	if out.Tier == "" {
		out.Tier = TierComfort
	}
	out.Styles = append([]string(nil), r.Styles...)
	out.Interests = append([]string(nil), r.Interests...)
	return out
}
