// Package advise synthesizes the personalized recommendations and group
// coordination advice attached to a plan. Everything here is a pure
// function of the request and the data gathered by earlier stages.
package advise

import (
	"strings"

	"github.com/c360studio/semtrip/trip"
)

// MaxRecommendations caps the recommendation list.
const MaxRecommendations = 15

var styleAdvice = map[string][]string{
	"美食之旅": {
		"推荐尝试当地特色小吃街和夜市",
		"预约知名餐厅需提前1-2天订位",
		"可以参加当地烹饪课程体验",
		"准备肠胃药以防水土不服",
	},
	"文化探索": {
		"建议购买博物馆和景点通票",
		"可以预约当地文化导览服务",
		"关注当地节庆活动和文化演出",
		"准备舒适的步行鞋",
	},
	"摄影打卡": {
		"推荐最佳拍照时间：日出和日落",
		"准备充电宝和备用存储卡",
		"了解当地拍照礼仪和禁忌",
		"下载修图和滤镜应用",
	},
	"购物血拼": {
		"了解当地退税政策和流程",
		"准备足够的行李空间",
		"关注当地购物节和折扣信息",
		"学习基本的砍价技巧",
	},
	"休闲度假": {
		"选择交通便利的住宿地点",
		"安排充足的休息时间",
		"准备休闲娱乐用品",
		"关注当地SPA和按摩服务",
	},
	"冒险刺激": {
		"购买旅行保险和意外险",
		"准备必要的防护装备",
		"了解当地安全注意事项",
		"确认身体状况适合参与活动",
	},
}

// interestRule maps an interest keyword to advice. The first matching rule
// per interest wins.
type interestRule struct {
	keyword string
	advice  []string
}

var interestRules = []interestRule{
	{"历史", []string{"推荐参观历史遗迹和古建筑", "可以聘请专业历史导游"}},
	{"自然", []string{"安排户外自然景观游览", "准备防晒和防虫用品"}},
	{"艺术", []string{"参观当地艺术馆和画廊", "关注当地艺术家工作室开放日"}},
	{"科技", []string{"参观科技馆和创新中心", "体验当地高科技项目"}},
}

var generalAdvice = []string{
	"建议下载当地地图和翻译APP",
	"准备常用药品和个人护理用品",
	"了解当地紧急联系方式",
	"保持手机电量充足，准备充电宝",
	"购买旅行保险保障安全",
	"准备现金和确认银行卡境外使用",
	"提前了解当地天气准备合适衣物",
	"备份重要证件和联系方式",
}

// Recommend builds the recommendation list from the request styles and
// interests, party size, destination facts and weather, followed by
// general advice. Duplicates are dropped and the list is capped at
// MaxRecommendations.
func Recommend(req trip.PlanRequest, info trip.DestinationInfo, weather *trip.WeatherSnapshot) []string {
	var recs []string
	for _, style := range req.Styles {
		recs = append(recs, styleAdvice[style]...)
	}
	recs = append(recs, InterestAdvice(req.Interests)...)
	recs = append(recs, PartyAdvice(req.PartySize)...)
	recs = append(recs, DestinationAdvice(info)...)
	if weather != nil {
		recs = append(recs, weather.Recommendations...)
	}
	recs = append(recs, generalAdvice...)
	return dedupe(recs, MaxRecommendations)
}

// InterestAdvice maps free-text interests to advice.
func InterestAdvice(interests []string) []string {
	var out []string
	for _, interest := range interests {
		for _, r := range interestRules {
			if strings.Contains(interest, r.keyword) {
				out = append(out, r.advice...)
				break
			}
		}
	}
	return out
}

// PartyAdvice returns advice for the party size.
func PartyAdvice(size int) []string {
	switch {
	case size == 1:
		return []string{
			"单人旅行注意安全，保持与家人联系",
			"可以参加当地旅行团结识朋友",
			"选择安全性较高的住宿区域",
		}
	case size == 2:
		return []string{
			"情侣/朋友出行可以选择浪漫/有趣的活动",
			"预订双人间或情侣套餐",
			"安排一些私密的体验项目",
		}
	case size >= 3:
		return []string{
			"团体出行建议创建群聊方便沟通",
			"提前确认每个人的兴趣偏好",
			"安排集合时间和地点",
			"考虑不同的预算需求",
			"可以预订团体票享受优惠",
		}
	default:
		return nil
	}
}

// DestinationAdvice turns destination facts into advice.
func DestinationAdvice(info trip.DestinationInfo) []string {
	var out []string
	if info.Transport != "" {
		out = append(out, "推荐使用"+info.Transport+"出行")
	}
	if len(info.Cuisine) > 0 {
		out = append(out, "必尝当地特色："+strings.Join(first(info.Cuisine, 2), ", "))
	}
	if len(info.Attractions) > 0 {
		out = append(out, "热门景点推荐："+strings.Join(first(info.Attractions, 3), ", "))
	}
	return out
}

func first(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func dedupe(xs []string, limit int) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, min(len(xs), limit))
	for _, x := range xs {
		if _, ok := seen[x]; ok || x == "" {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
		if len(out) == limit {
			break
		}
	}
	return out
}
