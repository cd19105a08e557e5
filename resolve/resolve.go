// Package resolve maps free-text place names to an address and coordinate.
// Resolve always returns a location: POI search is tried with a normalized
// keyword, then with a broad keyword, then the seed city table, then a
// global default.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
)

// POISearcher is the subset of the map client the resolver needs.
type POISearcher interface {
	SearchPOI(ctx context.Context, keyword, city string, limit int) ([]geo.POI, error)
}

// searchLimit is the number of POIs requested per search; only the first
// is used.
const searchLimit = 5

var (
	placeholders = []string{"待定", "TBD", "tbd", "未定", "暂定"}
	genericWords = []string{"景点", "餐厅", "饭店", "酒店", "商场", "公园", "博物馆", "寺庙", "市场"}
	vagueWords   = []string{"当地", "附近", "周边"}
)

// extractors pull the specific part out of a name that embeds a generic
// word, e.g. "楼外楼餐厅" -> "楼外楼". Tried in order.
var extractors = []*regexp.Regexp{
	regexp.MustCompile(`(\p{Han}+)(?:景点|餐厅|饭店|酒店|商场|公园|博物馆|寺庙|市场)`),
	regexp.MustCompile(`(\p{Han}{2,})(?:的|附近)`),
	regexp.MustCompile(`在(\p{Han}{2,})(?:游览|参观|用餐|购物)`),
}

// KeywordRule rewrites a place name into a search keyword. It returns false
// when it does not apply.
type KeywordRule struct {
	Name  string
	Apply func(name, destination string) (string, bool)
}

// KeywordRules is the ordered rule chain used by Keyword. The first rule
// that applies produces the keyword; the vague-word rule then runs on that
// result.
var KeywordRules = []KeywordRule{
	{Name: "placeholder", Apply: func(name, dest string) (string, bool) {
		if name == "" || slices.Contains(placeholders, name) {
			return dest + "景点", true
		}
		return "", false
	}},
	{Name: "generic", Apply: func(name, dest string) (string, bool) {
		if slices.Contains(genericWords, name) {
			return dest + name, true
		}
		return "", false
	}},
	{Name: "embedded", Apply: func(name, _ string) (string, bool) {
		if !containsAny(name, genericWords) {
			return "", false
		}
		for _, re := range extractors {
			m := re.FindStringSubmatch(name)
			if len(m) < 2 {
				continue
			}
			if specific := strings.TrimSpace(m[1]); utf8.RuneCountInString(specific) >= 2 {
				return specific, true
			}
		}
		return "", false
	}},
}

// Keyword normalizes a place name into a POI search keyword.
func Keyword(name, destination string) string {
	name = strings.TrimSpace(name)
	keyword := name
	for _, rule := range KeywordRules {
		if out, ok := rule.Apply(name, destination); ok {
			keyword = out
			break
		}
	}
	if utf8.RuneCountInString(keyword) < 2 || slices.Contains(vagueWords, keyword) {
		keyword = destination + "著名景点"
	}
	return keyword
}

// Resolver resolves place names against a POI searcher and the seed tables.
type Resolver struct {
	search POISearcher
	seeds  *seed.Store
	logger *slog.Logger
}

// New creates a resolver. search may be nil, in which case only the seed
// tables are consulted.
func New(search POISearcher, seeds *seed.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if seeds == nil {
		seeds, _ = seed.NewStore("", logger)
	}
	return &Resolver{search: search, seeds: seeds, logger: logger}
}

// Resolve maps name, a place in destination, to a location. It never
// returns an empty result.
func (r *Resolver) Resolve(ctx context.Context, name, destination string) trip.ResolvedLocation {
	keyword := Keyword(name, destination)

	if r.search != nil {
		if loc, ok := r.searchFirst(ctx, keyword, destination, trip.SourcePOI); ok {
			return loc
		}
		if ctx.Err() == nil {
			broad := destination + "热门景点"
			if loc, ok := r.searchFirst(ctx, broad, destination, trip.SourceBroadPOI); ok {
				loc.Keyword = keyword
				return loc
			}
		}
	}
	return r.fallback(keyword, destination)
}

func (r *Resolver) searchFirst(ctx context.Context, keyword, city string, source trip.LocationSource) (trip.ResolvedLocation, bool) {
	pois, err := r.search.SearchPOI(ctx, keyword, city, searchLimit)
	if err != nil {
		if !errors.Is(err, geo.ErrNotConfigured) {
			r.logger.Debug("POI search failed", "keyword", keyword, "city", city, "error", err)
		}
		return trip.ResolvedLocation{}, false
	}
	if len(pois) == 0 {
		return trip.ResolvedLocation{}, false
	}
	poi := pois[0]
	address := poi.Address
	if address == "" {
		address = keyword
	}
	rating := poi.Rating
	if rating == "" {
		rating = "N/A"
	}
	return trip.ResolvedLocation{
		Name:       poi.Name,
		Keyword:    keyword,
		Address:    address,
		Coordinate: poi.Coordinate,
		Source:     source,
		Info:       fmt.Sprintf("地址: %s\n评分: %s\n类型: %s", poi.Address, rating, poi.Type),
	}, true
}

// fallback answers from the seed city table or the global default.
func (r *Resolver) fallback(keyword, destination string) trip.ResolvedLocation {
	if city, ok := r.seeds.Data().CityFor(destination); ok {
		area := city.Name + "市中心"
		return trip.ResolvedLocation{
			Name:       keyword,
			Keyword:    keyword,
			Address:    area + "附近",
			Coordinate: city.Coordinate(),
			Source:     trip.SourceCityTable,
			Info:       "位置: " + area + "\n类型: 城市中心区域\n说明: 备用位置信息",
		}
	}
	area := destination + "市中心"
	return trip.ResolvedLocation{
		Name:       keyword,
		Keyword:    keyword,
		Address:    area,
		Coordinate: seed.DefaultCoordinate,
		Source:     trip.SourceDefault,
		Info:       "位置: " + area + "\n类型: 城市中心区域\n说明: 备用位置信息",
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
