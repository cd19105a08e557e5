// Package model provides capability-based model selection for plan
// generation. Pipeline stages ask for a capability (destination analysis,
// itinerary writing, travel tips) and the registry resolves it to a chain
// of configured endpoints.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityAnalysis writes the destination overview.
	CapabilityAnalysis Capability = "analysis"

	// CapabilityItinerary writes one day's schedule as structured JSON.
	CapabilityItinerary Capability = "itinerary"

	// CapabilityTips produces short practical travel tips.
	CapabilityTips Capability = "tips"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityAnalysis, CapabilityItinerary, CapabilityTips:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}

// Sampling returns the temperature and token limit used for a capability.
func (c Capability) Sampling() (temperature float64, maxTokens int) {
	switch c {
	case CapabilityAnalysis:
		return 0.7, 2000
	case CapabilityItinerary:
		return 0.8, 1500
	case CapabilityTips:
		return 0.6, 800
	default:
		return 0.7, 1000
	}
}
