package advise

import "github.com/c360studio/semtrip/trip"

// Collaborate returns coordination tips and a plan for a group. Solo
// travelers get neither.
func Collaborate(partySize int) ([]string, *trip.CollaborationPlan) {
	if partySize <= 1 {
		return nil, nil
	}

	tips := []string{
		"建议创建旅行群聊方便实时沟通",
		"提前确认每个人的兴趣偏好和预算",
		"安排明确的集合时间和地点",
		"准备所有人的应急联系方式",
		"轮流负责不同环节的决策避免分歧",
	}
	if partySize >= 4 {
		tips = append(tips,
			"大团体建议指定1-2名协调员",
			"制定详细的时间表和集合规则",
			"考虑分组活动满足不同需求",
		)
	}
	if partySize >= 6 {
		tips = append(tips,
			"预订团体票和包车服务",
			"安排专门的行李和物品管理",
			"制定紧急情况应对预案",
		)
	}

	plan := &trip.CollaborationPlan{
		CommunicationTools: []string{"微信群", "共享日历", "位置共享"},
		DecisionMaking:     "轮流决策",
		Emergency: trip.EmergencyPlan{
			Contact:       "群聊 + 电话",
			MeetingPoints: []string{"酒店大堂", "主要景点入口"},
			Backup:        "分组行动，晚上酒店汇合",
		},
		BudgetManagement:    "AA制",
		ScheduleFlexibility: "高",
		Tips:                tips,
	}
	if partySize > 4 {
		plan.DecisionMaking = "指定协调员"
		plan.BudgetManagement = "指定财务管理员"
	}
	if partySize > 3 {
		plan.ScheduleFlexibility = "中等"
	}
	return tips, plan
}
