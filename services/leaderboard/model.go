package leaderboard

import (
	"time"

	"github.com/shopspring/decimal"
)

type Period string

var (
	PeriodAllTime Period = "all_time"
	PeriodWeekly  Period = "weekly"
	PeriodDaily   Period = "daily"
)

var Periods = []Period{PeriodAllTime, PeriodWeekly, PeriodDaily}

func (p Period) String() string {
	switch p {
	case PeriodAllTime, PeriodWeekly, PeriodDaily:
		return string(p)
	default:
		return ""
	}
}

// Window is how far back a period looks. Zero means no bound.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

type Entry struct {
	ID          string          `gorm:"column:id;primaryKey" json:"-"`
	Period      Period          `gorm:"column:period;uniqueIndex:idx_leaderboard_period_user" json:"period"`
	UserID      string          `gorm:"column:user_id;uniqueIndex:idx_leaderboard_period_user" json:"user_id"`
	Rank        int             `gorm:"column:board_rank" json:"rank"`
	TotalPoints decimal.Decimal `gorm:"column:total_points;type:decimal(20,2)" json:"total_points"`
	RewardCount int64           `gorm:"column:reward_count" json:"reward_count"`
	ComputedAt  time.Time       `gorm:"column:computed_at" json:"computed_at"`
}

func (Entry) TableName() string {
	return "leaderboard_entries"
}

func Models() []any {
	return []any{&Entry{}}
}
