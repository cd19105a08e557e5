package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/semtrip/trip"
)

// bucketRule assigns a line to a slot when its pattern matches. Rules are
// tried in order and the first match wins.
type bucketRule struct {
	slot    trip.Slot
	pattern *regexp.Regexp
}

var bucketRules = []bucketRule{
	{trip.SlotBreakfast, regexp.MustCompile(`(?i)早餐|早饭|早点|breakfast`)},
	{trip.SlotMorning, regexp.MustCompile(`(?i)上午|早上|清晨|morning`)},
	{trip.SlotLunch, regexp.MustCompile(`(?i)中午|午餐|午饭|lunch`)},
	{trip.SlotAfternoon, regexp.MustCompile(`(?i)下午|afternoon`)},
	{trip.SlotDinner, regexp.MustCompile(`(?i)晚餐|晚饭|dinner`)},
	{trip.SlotEvening, regexp.MustCompile(`(?i)晚上|傍晚|夜晚|夜游|evening`)},
}

// locationRule extracts a place name. When group is set the submatch is
// used, otherwise the whole match.
type locationRule struct {
	pattern *regexp.Regexp
	group   bool
}

var locationRules = []locationRule{
	{regexp.MustCompile(`\p{Han}+(?:博物馆|风景区|景区|公园|广场|中心|寺|庙|塔|楼|山|湖|河|街|路)`), false},
	{regexp.MustCompile(`\p{Han}+(?:餐厅|酒店|饭店|茶楼|咖啡厅|小吃店|美食城)`), false},
	{regexp.MustCompile(`\p{Han}+(?:大学|学院|图书馆|剧院|影院|商场|市场)`), false},
	{regexp.MustCompile(`地址[：:](.*?)(?:[，,。]|$)`), true},
	{regexp.MustCompile(`位置[：:](.*?)(?:[，,。]|$)`), true},
	{regexp.MustCompile(`在(\p{Han}+?)(?:游览|参观|用餐|品尝|享用|购物|[，,。\s]|$)`), true},
}

// verbPrefix strips leading action verbs from an extracted place so that
// "参观西湖" yields "西湖".
var verbPrefix = regexp.MustCompile(`^(?:前往|参观|游览|漫步|品尝|享用|打卡|逛逛|逛|去|到|在)+`)

// noiseRules are removed from a line before it is used as a description.
var noiseRules = []*regexp.Regexp{
	regexp.MustCompile(`\*\*|__`),
	regexp.MustCompile(`^\s*#+\s*`),
	regexp.MustCompile(`^\s*(?:[-*•]|\d+[.、)])\s*`),
	regexp.MustCompile(`(?i)^(?:早餐|早饭|上午|早上|清晨|中午|午餐|午饭|下午|晚餐|晚饭|晚上|傍晚|夜晚|breakfast|morning|lunch|afternoon|dinner|evening)\s*[：:]?\s*`),
	regexp.MustCompile(`\d{1,2}[：:]\d{2}(?:\s*[-~—至]\s*\d{1,2}[：:]\d{2})?`),
	regexp.MustCompile(`(?:约|人均)?\d+(?:\.\d+)?\s*元(?:/人)?`),
	regexp.MustCompile(`[（(].*?[）)]`),
	regexp.MustCompile(`\*`),
}

// categoryRule supplies a default location from keywords in the line.
type categoryRule struct {
	pattern  *regexp.Regexp
	location string
}

var categoryRules = []categoryRule{
	{regexp.MustCompile(`餐|吃|美食`), "当地特色餐厅"},
	{regexp.MustCompile(`博物馆`), "博物馆"},
	{regexp.MustCompile(`公园|漫步`), "城市公园"},
	{regexp.MustCompile(`购物|商场`), "购物中心"},
}

const fallbackLocation = "市区景点"

var (
	pricePattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*元`)
	transportPattern = regexp.MustCompile(`交通(?:方式)?[：:]\s*(.+)`)
)

// parseHeuristic buckets lines by time-of-day markers and derives one slot
// from the first usable line of each bucket.
func parseHeuristic(raw string, day int) DaySchedule {
	sched := Template(day)
	sched.Method = MethodHeuristic

	buckets := make(map[trip.Slot][]string)
	var current trip.Slot
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if m := transportPattern.FindStringSubmatch(line); len(m) > 1 {
			sched.Transportation = trimPunct(m[1])
			continue
		}
		if slot, ok := bucketFor(line); ok {
			current = slot
		}
		if current != "" {
			buckets[current] = append(buckets[current], line)
		}
	}

	for _, slot := range trip.Slots() {
		for _, line := range buckets[slot] {
			detail := slotFromLine(line)
			if detail.Activity == "" {
				continue
			}
			sched.Slots[slot] = merge(sched.Slots[slot], detail)
			break
		}
	}
	return sched
}

func bucketFor(line string) (trip.Slot, bool) {
	for _, r := range bucketRules {
		if r.pattern.MatchString(line) {
			return r.slot, true
		}
	}
	return "", false
}

// slotFromLine derives a slot from one line of text.
func slotFromLine(line string) SlotDetail {
	cleaned := Clean(line)
	d := SlotDetail{
		Activity:    cleaned,
		Name:        cleaned,
		Description: cleaned,
	}
	if cleaned == "" {
		return SlotDetail{}
	}
	d.Location = ExtractLocation(cleaned)
	if m := pricePattern.FindStringSubmatch(line); len(m) > 1 {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			d.Cost = trip.SanitizeCost(f)
		}
	}
	return d
}

// Clean strips markdown, time-of-day prefixes, clock times, prices and
// parentheticals from a line.
func Clean(line string) string {
	for _, r := range noiseRules {
		line = r.ReplaceAllString(line, "")
	}
	return trimPunct(line)
}

func trimPunct(s string) string {
	return strings.Trim(strings.TrimSpace(s), "，,。.：: \t")
}

// ExtractLocation returns the first place name found by the location
// rules, or a category default.
func ExtractLocation(text string) string {
	for _, r := range locationRules {
		m := r.pattern.FindStringSubmatch(text)
		if len(m) == 0 {
			continue
		}
		candidate := m[0]
		if r.group && len(m) > 1 {
			candidate = m[1]
		}
		candidate = trimPunct(verbPrefix.ReplaceAllString(trimPunct(candidate), ""))
		if utf8.RuneCountInString(candidate) > 1 {
			return candidate
		}
	}
	for _, r := range categoryRules {
		if r.pattern.MatchString(text) {
			return r.location
		}
	}
	return fallbackLocation
}
