package swipe

import "github.com/oggyb/soulmate-hub/internal/db"

// Unlimited marks a quota with no cap.
const Unlimited = -1

// Limits is the per-day allowance of a role.
type Limits struct {
	Likes      int `json:"likes"`
	SuperLikes int `json:"super_likes"`
}

var dailyLimits = map[db.Role]Limits{
	db.RoleRegistered: {Likes: 10, SuperLikes: 1},
	db.RoleSilver:     {Likes: 50, SuperLikes: 5},
	db.RoleGold:       {Likes: 100, SuperLikes: 10},
	db.RolePlatinum:   {Likes: Unlimited, SuperLikes: Unlimited},
	db.RoleModerator:  {Likes: Unlimited, SuperLikes: 25},
	db.RoleAdmin:      {Likes: Unlimited, SuperLikes: Unlimited},
}

// DailyLimits returns the allowance for role. Unknown roles get the
// registered allowance.
func DailyLimits(role db.Role) Limits {
	if l, ok := dailyLimits[role]; ok {
		return l
	}
	return dailyLimits[db.RoleRegistered]
}
