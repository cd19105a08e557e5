package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/semtrip/trip"
)

const (
	icsDateTime = "20060102T150405"
	icsStamp    = "20060102T150405Z"
	// maxLineOctets is the RFC 5545 content line limit, excluding CRLF.
	maxLineOctets = 75
)

// Calendar renders the itinerary as an iCalendar document. Activity times
// are floating local times at the destination.
func Calendar(p *trip.FinishedPlan) string {
	var w icsWriter
	w.line("BEGIN:VCALENDAR")
	w.line("VERSION:2.0")
	w.line("PRODID:-//semtrip//itinerary//ZH")
	w.line("CALSCALE:GREGORIAN")
	w.prop("X-WR-CALNAME", p.Title)

	stamp := p.CreatedAt.UTC()
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	uidBase := p.PlanID
	if uidBase == "" {
		uidBase = p.RunID
	}

	for _, d := range p.Itinerary {
		for i, a := range d.Activities {
			start, ok := activityStart(d.Date, a)
			if !ok {
				continue
			}
			end := start.Add(slotLength(a.Slot))
			if i+1 < len(d.Activities) {
				if next, ok := activityStart(d.Date, d.Activities[i+1]); ok && next.After(start) && next.Before(end) {
					end = next
				}
			}

			w.line("BEGIN:VEVENT")
			w.line(fmt.Sprintf("UID:%s-d%d-%d@semtrip", uidBase, d.Day, i))
			w.line("DTSTAMP:" + stamp.Format(icsStamp))
			w.line("DTSTART:" + start.Format(icsDateTime))
			w.line("DTEND:" + end.Format(icsDateTime))
			w.prop("SUMMARY", a.Name)
			if loc := a.Location.Name; loc != "" {
				if a.Location.Address != "" {
					loc += ", " + a.Location.Address
				}
				w.prop("LOCATION", loc)
			}
			if c := a.Location.Coordinate; c != nil {
				w.line(fmt.Sprintf("GEO:%.6f;%.6f", c.Lat, c.Lng))
			}
			if desc := eventDescription(d, a); desc != "" {
				w.prop("DESCRIPTION", desc)
			}
			w.line("END:VEVENT")
		}
	}
	w.line("END:VCALENDAR")
	return w.String()
}

func activityStart(day trip.Date, a trip.Activity) (time.Time, bool) {
	clock := a.Time
	if clock == "" {
		clock = a.Slot.ClockTime()
	}
	t, err := time.Parse("15:04", clock)
	if err != nil || day.Time.IsZero() {
		return time.Time{}, false
	}
	y, m, dd := day.Date()
	return time.Date(y, m, dd, t.Hour(), t.Minute(), 0, 0, time.UTC), true
}

func slotLength(s trip.Slot) time.Duration {
	if s.IsMeal() {
		return time.Hour
	}
	return 2 * time.Hour
}

func eventDescription(d trip.DayPlan, a trip.Activity) string {
	var parts []string
	if d.Theme != "" {
		parts = append(parts, fmt.Sprintf("第%d天 %s", d.Day, d.Theme))
	}
	if a.Description != "" {
		parts = append(parts, a.Description)
	}
	if a.Cost > 0 {
		parts = append(parts, fmt.Sprintf("预计费用 ¥%.0f", a.Cost))
	}
	if a.Tips != "" {
		parts = append(parts, a.Tips)
	}
	return strings.Join(parts, "\n")
}

type icsWriter struct {
	sb strings.Builder
}

func (w *icsWriter) prop(name, value string) {
	w.line(name + ":" + escapeText(value))
}

// line writes one content line, folding it at the octet limit without
// splitting a UTF-8 sequence.
func (w *icsWriter) line(s string) {
	limit := maxLineOctets
	for len(s) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		w.sb.WriteString(s[:cut])
		w.sb.WriteString("\r\n ")
		s = s[cut:]
		// continuation lines start with a space
		limit = maxLineOctets - 1
	}
	w.sb.WriteString(s)
	w.sb.WriteString("\r\n")
}

func (w *icsWriter) String() string {
	return w.sb.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)
	return r.Replace(s)
}
