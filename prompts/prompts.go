// Package prompts builds the language model prompts used by the planning
// stages and parses their loosely formatted answers.
package prompts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Preferences is the traveler profile embedded in every prompt.
type Preferences struct {
	Styles    []string `json:"travel_styles,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Budget    string   `json:"budget_level,omitempty"`
	PartySize int      `json:"group_size,omitempty"`
	Weather   string   `json:"weather_info,omitempty"`
	Notes     string   `json:"special_requirements,omitempty"`
}

func (p Preferences) render() string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// AnalysisSystemPrompt returns the system prompt for destination analysis.
func AnalysisSystemPrompt() string {
	return `你是一个专业的旅行顾问。请根据用户提供的目的地和偏好，生成详细的目的地分析报告。
报告应包括：
1. 目的地概况
2. 最佳旅行时间
3. 主要景点和活动
4. 当地文化和特色
5. 交通和住宿建议
6. 预算参考

请用中文回答，内容要详实且实用。`
}

// AnalysisUserPrompt returns the user prompt for destination analysis.
// guide, when non-empty, is reference material about the destination.
func AnalysisUserPrompt(destination string, prefs Preferences, guide string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "目的地：%s\n用户偏好：%s\n", destination, prefs.render())
	if guide = strings.TrimSpace(guide); guide != "" {
		b.WriteString("\n参考资料（目的地攻略摘录）：\n")
		b.WriteString(guide)
		b.WriteString("\n")
	}
	b.WriteString("\n请为这个目的地生成详细的分析报告。")
	return b.String()
}

// FallbackAnalysis is used when the analysis call fails.
func FallbackAnalysis(destination string) string {
	return fmt.Sprintf("目的地 %s 是一个值得探索的地方，具有丰富的文化和自然景观。", destination)
}

// ItinerarySystemPrompt returns the system prompt for one day of the
// itinerary. It asks for a strict JSON object with the six schedule slots.
func ItinerarySystemPrompt() string {
	return `你是一个专业的旅行规划师。请根据提供的信息生成详细的每日行程安排。

请直接返回以下JSON格式的数据，不要添加任何其他文字说明：

` + "```json" + `
{
  "day": 1,
  "breakfast": {
    "name": "[具体餐厅名称]",
    "activity": "在[餐厅名称]用餐",
    "location": "[具体餐厅名称]",
    "address": "[详细地址]",
    "duration": "1小时",
    "cost": 50,
    "description": "[餐厅简介和推荐理由]",
    "specialties": "[推荐菜品和特色美食]",
    "features": "[餐厅特色亮点]",
    "tips": "[用餐贴心提示]",
    "openTime": "[营业时间]",
    "ticketPrice": "免费"
  },
  "morning": {
    "name": "[具体景点名称]",
    "activity": "游览[景点名称]",
    "location": "[具体景点名称]",
    "address": "[详细地址]",
    "duration": "3小时",
    "cost": 80,
    "description": "[景点简介和游览价值]",
    "features": "[景点特色亮点和必看景观]",
    "tips": "[游览贴心提示和注意事项]",
    "openTime": "[开放时间]",
    "ticketPrice": "[门票价格信息]"
  },
  "lunch": { "...": "同breakfast" },
  "afternoon": { "...": "同morning" },
  "dinner": { "...": "同breakfast" },
  "evening": {
    "name": "[具体活动或地点名称]",
    "activity": "[具体活动名称]",
    "location": "[具体地点名称]",
    "duration": "2小时",
    "cost": 60
  },
  "transportation": "[主要交通方式]",
  "estimated_cost": "[全天预估费用]"
}
` + "```" + `

重要要求：
1. 所有cost字段必须是数字，不要包含货币符号
2. 必须包含name、openTime、ticketPrice、specialties、features、tips等详细字段
3. 确保所有推荐都是真实存在的，提供准确的地址和价格信息
4. 只返回JSON数据，不要添加任何解释文字`
}

// ItineraryInput describes the day being planned.
type ItineraryInput struct {
	Destination string
	Day         int
	TotalDays   int
	Budget      string
	Prefs       Preferences
	// Avoid lists places already scheduled on earlier days.
	Avoid []string
}

// ItineraryUserPrompt returns the user prompt for one day.
func ItineraryUserPrompt(in ItineraryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请为以下旅行安排生成第%d天的详细行程：\n\n", in.Day)
	fmt.Fprintf(&b, "目的地：%s\n总行程天数：%d天\n当前是第%d天\n", in.Destination, in.TotalDays, in.Day)
	fmt.Fprintf(&b, "用户偏好：%s\n预算水平：%s\n", in.Prefs.render(), in.Budget)
	if len(in.Avoid) > 0 {
		fmt.Fprintf(&b, "前几天已安排：%s，请避免重复\n", strings.Join(in.Avoid, "、"))
	}
	b.WriteString("\n请生成具体的行程安排，包括真实的景点名称、地址和活动建议。")
	return b.String()
}

// TipsSystemPrompt returns the system prompt for travel tips.
func TipsSystemPrompt() string {
	return `你是一个经验丰富的旅行顾问。请根据目的地和用户偏好，生成实用的旅行贴士。

贴士应该包括：
1. 当地文化注意事项
2. 安全提醒
3. 实用建议
4. 省钱技巧
5. 特色体验推荐

每个贴士要简洁明了，用中文回答。`
}

// TipsUserPrompt returns the user prompt for travel tips.
func TipsUserPrompt(destination string, prefs Preferences) string {
	return fmt.Sprintf("目的地：%s\n用户偏好：%s\n\n请生成5-8个实用的旅行贴士。", destination, prefs.render())
}

// MaxTips caps the number of parsed tips.
const MaxTips = 8

var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.+?)\*`)
	codePattern   = regexp.MustCompile("`(.+?)`")
	headerPattern = regexp.MustCompile(`^#+\s*`)
	linkPattern   = regexp.MustCompile(`\[(.+?)\]\(.+?\)`)
)

// CleanMarkdown removes inline markdown formatting from a line.
func CleanMarkdown(s string) string {
	s = boldPattern.ReplaceAllString(s, "$1")
	s = italicPattern.ReplaceAllString(s, "$1")
	s = codePattern.ReplaceAllString(s, "$1")
	s = linkPattern.ReplaceAllString(s, "$1")
	s = headerPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseTips extracts bullet or numbered lines from a tips answer, cleaned
// of markdown and capped at MaxTips. It returns nil when no line qualifies.
func ParseTips(content string) []string {
	var tips []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)[0]
		if r != '•' && r != '-' && r != '*' && !unicode.IsDigit(r) {
			continue
		}
		tip := strings.TrimSpace(strings.TrimLeft(CleanMarkdown(line), "•-*0123456789.、) "))
		if tip == "" {
			continue
		}
		tips = append(tips, tip)
		if len(tips) == MaxTips {
			break
		}
	}
	return tips
}

// FallbackTips is used when the tips call fails or yields nothing usable.
func FallbackTips(destination string) []string {
	return []string{fmt.Sprintf("在%s旅行时，建议提前了解当地文化和习俗。", destination)}
}
