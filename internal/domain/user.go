package domain

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

// planRank orders plans by entitlement.
var planRank = map[UserPlan]int{
	UserPlanFree: 0,
	UserPlanPro:  1,
}

// ParsePlan maps a raw claim to a plan, defaulting to free.
func ParsePlan(raw string) UserPlan {
	switch UserPlan(raw) {
	case UserPlanPro:
		return UserPlanPro
	default:
		return UserPlanFree
	}
}

// Satisfies reports whether p grants everything required grants.
func (p UserPlan) Satisfies(required UserPlan) bool {
	if required == "" {
		return true
	}
	return planRank[p] >= planRank[required]
}
