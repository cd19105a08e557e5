package weather

import (
	"fmt"
	"math"
	"strings"

	"github.com/c360studio/semtrip/trip"
)

var fallbackDescriptions = []string{"多云", "晴", "小雨"}

// FallbackCurrent is used when current conditions are unavailable.
func FallbackCurrent() trip.CurrentWeather {
	return trip.CurrentWeather{
		Temperature: 22,
		FeelsLike:   24,
		Humidity:    65,
		Pressure:    1013,
		Description: "多云",
		WindSpeed:   3.5,
		Visibility:  10,
	}
}

// FallbackForecast synthesizes days of mild weather starting at start,
// cycling through cloudy, sunny and light rain.
func FallbackForecast(start trip.Date, days int) []trip.DailyWeather {
	if days < 1 {
		days = 1
	}
	out := make([]trip.DailyWeather, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, trip.DailyWeather{
			Date:        start.AddDays(i).String(),
			TempMax:     float64(25 + i%3),
			TempMin:     float64(18 + i%2),
			TempAvg:     float64(22 + i%2),
			Description: fallbackDescriptions[i%len(fallbackDescriptions)],
			Humidity:    float64(60 + i%20),
			WindSpeed:   2.5 + float64(i%3),
		})
	}
	return out
}

// Analyze summarizes a forecast.
func Analyze(forecast []trip.DailyWeather) trip.WeatherAnalysis {
	if len(forecast) == 0 {
		return trip.WeatherAnalysis{Summary: "天气数据不足"}
	}
	avgs := make([]float64, 0, len(forecast))
	descriptions := make([]string, 0, len(forecast))
	lo, hi := math.Inf(1), math.Inf(-1)
	a := trip.WeatherAnalysis{}
	for _, d := range forecast {
		avgs = append(avgs, d.TempAvg)
		descriptions = append(descriptions, d.Description)
		lo = math.Min(lo, d.TempMin)
		hi = math.Max(hi, d.TempMax)
		if strings.Contains(d.Description, "雨") {
			a.RainyDays++
		}
		if strings.Contains(d.Description, "晴") || strings.Contains(d.Description, "多云") {
			a.SunnyDays++
		}
	}
	a.Summary = fmt.Sprintf("平均气温 %.0f°C", math.Round(mean(avgs)))
	a.TempRange = fmt.Sprintf("%.0f°C - %.0f°C", lo, hi)
	a.Pattern = dominant(descriptions)
	return a
}

// Recommendations derives packing advice from a forecast.
func Recommendations(forecast []trip.DailyWeather) []string {
	if len(forecast) == 0 {
		return []string{"建议关注当地天气预报"}
	}
	avgs := make([]float64, 0, len(forecast))
	rainy, windy := false, false
	for _, d := range forecast {
		avgs = append(avgs, d.TempAvg)
		rainy = rainy || strings.Contains(d.Description, "雨")
		windy = windy || d.WindSpeed > 5
	}

	var recs []string
	switch avg := mean(avgs); {
	case avg < 10:
		recs = append(recs, "气温较低，建议携带厚外套和保暖衣物")
	case avg > 30:
		recs = append(recs, "气温较高，建议携带防晒用品和轻薄衣物")
	default:
		recs = append(recs, "气温适宜，建议携带适中厚度的衣物")
	}
	if rainy {
		recs = append(recs, "预计有降雨，建议携带雨具")
	}
	if windy {
		recs = append(recs, "部分时间风力较大，注意保暖和安全")
	}
	return recs
}

// Thresholds above and below which a day note flags extreme temperature.
const (
	hotThreshold  = 35
	coldThreshold = 0
)

// NoteForDay returns the weather note for a trip day, or "" when the
// snapshot has no matching forecast. Forecast entries are matched by date;
// fallback snapshots cycle by day number instead.
func NoteForDay(snap *trip.WeatherSnapshot, date trip.Date, day int) string {
	if snap == nil {
		return ""
	}
	var (
		entry trip.DailyWeather
		found bool
	)
	for _, d := range snap.Forecast {
		if d.Date == date.String() {
			entry, found = d, true
			break
		}
	}
	if !found && snap.Fallback {
		entry, found = snap.ForDay(day)
	}
	if !found {
		return ""
	}

	var b strings.Builder
	b.WriteString(entry.Description)
	if entry.TempMax != 0 || entry.TempMin != 0 {
		fmt.Fprintf(&b, "，%.0f°C - %.0f°C", entry.TempMin, entry.TempMax)
	}
	switch desc := entry.Description; {
	case strings.Contains(desc, "雨"), strings.Contains(desc, "雪"):
		b.WriteString("，建议携带雨具")
	case strings.Contains(desc, "晴"):
		b.WriteString("，适合户外活动")
	case strings.Contains(desc, "阴"), strings.Contains(desc, "云"):
		b.WriteString("，适合室内外活动")
	}
	if entry.TempMax >= hotThreshold {
		b.WriteString("，高温注意防暑")
	}
	if entry.TempMin <= coldThreshold && entry.TempMax != 0 {
		b.WriteString("，低温注意保暖")
	}
	return b.String()
}

// IsWet reports whether a day note describes rain or snow.
func IsWet(note string) bool {
	return strings.Contains(note, "雨") || strings.Contains(note, "雪")
}

// IsExtreme reports whether a day note flags extreme temperature.
func IsExtreme(note string) bool {
	return strings.Contains(note, "高温") || strings.Contains(note, "低温")
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	if math.IsInf(m, 0) {
		return 0
	}
	return m
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		m = math.Min(m, x)
	}
	if math.IsInf(m, 0) {
		return 0
	}
	return m
}

// dominant returns the most frequent string. Ties go to the value that
// reached the count first.
func dominant(xs []string) string {
	counts := make(map[string]int, len(xs))
	best, bestCount := "", 0
	for _, x := range xs {
		counts[x]++
		if counts[x] > bestCount {
			best, bestCount = x, counts[x]
		}
	}
	return best
}
