// Package export writes finished plans in the formats offered to users:
// JSON for programs, Markdown for reading and iCalendar for calendar apps.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/c360studio/semtrip/trip"
)

// Format identifies an export format.
type Format string

const (
	// FormatJSON is the plan record as indented JSON.
	FormatJSON Format = "json"

	// FormatMarkdown is a readable document.
	FormatMarkdown Format = "markdown"

	// FormatICS is an iCalendar file with one event per activity.
	FormatICS Format = "ics"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name        Format
	MIMEType    string
	Extension   string
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "Plan record as JSON",
	},
	FormatMarkdown: {
		Name:        FormatMarkdown,
		MIMEType:    "text/markdown; charset=utf-8",
		Extension:   ".md",
		Description: "Readable itinerary document",
	},
	FormatICS: {
		Name:        FormatICS,
		MIMEType:    "text/calendar; charset=utf-8",
		Extension:   ".ics",
		Description: "iCalendar events for every activity",
	},
}

// aliases maps accepted spellings to formats.
var aliases = map[string]Format{
	"json":     FormatJSON,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
	"ics":      FormatICS,
	"ical":     FormatICS,
	"calendar": FormatICS,
}

// ParseFormat resolves a user supplied format name.
func ParseFormat(s string) (Format, error) {
	if f, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (supported: %s)", s, strings.Join(Names(), ", "))
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// Names lists the canonical format names.
func Names() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Write renders plan to w in the given format.
func Write(w io.Writer, plan *trip.FinishedPlan, format Format) error {
	if plan == nil {
		return fmt.Errorf("export: nil plan")
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(plan))
		return err
	case FormatICS:
		_, err := io.WriteString(w, Calendar(plan))
		return err
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Filename suggests a download name for the plan.
func Filename(plan *trip.FinishedPlan, format Format) string {
	info := FormatRegistry[format]
	id := plan.PlanID
	if id == "" {
		id = plan.RunID
	}
	if id == "" {
		id = "plan"
	}
	return fmt.Sprintf("semtrip-%s%s", id, info.Extension)
}
