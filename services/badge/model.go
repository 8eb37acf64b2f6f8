package badge

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

var (
	KindFirstWin          Kind = "first_win"
	KindFiveWins          Kind = "five_wins"
	KindTenWins           Kind = "ten_wins"
	KindTopArgument       Kind = "top_argument"
	KindTopArgument3x     Kind = "top_argument_3x"
	KindActiveParticipant Kind = "active_participant"
	KindDedicatedVoter    Kind = "dedicated_voter"
)

// Metric is the counter a badge threshold is measured against.
type Metric string

var (
	MetricWins           Metric = "wins"
	MetricTopArguments   Metric = "top_arguments"
	MetricParticipations Metric = "participations"
	MetricVotes          Metric = "votes"
)

type Definition struct {
	Kind        Kind            `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	BonusPoints decimal.Decimal `json:"bonus_points"`
	Metric      Metric          `json:"metric"`
	Target      int64           `json:"target"`
}

var Definitions = []Definition{
	{Kind: KindFirstWin, Name: "First Victory", Description: "Won your first case", Icon: "🏆", BonusPoints: decimal.NewFromInt(50), Metric: MetricWins, Target: 1},
	{Kind: KindFiveWins, Name: "Winning Streak", Description: "Won 5 cases", Icon: "🔥", BonusPoints: decimal.NewFromInt(200), Metric: MetricWins, Target: 5},
	{Kind: KindTenWins, Name: "Champion", Description: "Won 10 cases", Icon: "👑", BonusPoints: decimal.NewFromInt(500), Metric: MetricWins, Target: 10},
	{Kind: KindTopArgument, Name: "Master Debater", Description: "Had an argument in the top 3", Icon: "💬", BonusPoints: decimal.NewFromInt(100), Metric: MetricTopArguments, Target: 1},
	{Kind: KindTopArgument3x, Name: "Persuasion Expert", Description: "Had 3 arguments in the top 3", Icon: "🎯", BonusPoints: decimal.NewFromInt(300), Metric: MetricTopArguments, Target: 3},
	{Kind: KindActiveParticipant, Name: "Active Member", Description: "Participated in 20 cases", Icon: "⭐", BonusPoints: decimal.NewFromInt(150), Metric: MetricParticipations, Target: 20},
	{Kind: KindDedicatedVoter, Name: "Dedicated Voter", Description: "Voted in 50 cases", Icon: "🗳️", BonusPoints: decimal.NewFromInt(250), Metric: MetricVotes, Target: 50},
}

func Lookup(kind Kind) (Definition, bool) {
	for _, d := range Definitions {
		if d.Kind == kind {
			return d, true
		}
	}
	return Definition{}, false
}

// Badge is an awarded achievement. A user holds each kind at most once.
type Badge struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	UserID      string          `gorm:"column:user_id;uniqueIndex:idx_badges_user_kind;index" json:"user_id"`
	Kind        Kind            `gorm:"column:kind;type:varchar(50);uniqueIndex:idx_badges_user_kind" json:"kind"`
	BonusPoints decimal.Decimal `gorm:"column:bonus_points;type:decimal(20,2)" json:"bonus_points"`
	LedgerRef   string          `gorm:"column:ledger_ref" json:"-"`
	EarnedAt    time.Time       `gorm:"column:earned_at;index" json:"earned_at"`
}

func Models() []any {
	return []any{&Badge{}}
}

// Stats are the per-user counters the badge thresholds are checked against.
// Wins, top arguments and participations count completed rewards only.
type Stats struct {
	Wins           int64 `json:"wins"`
	TopArguments   int64 `json:"top_arguments"`
	Participations int64 `json:"participations"`
	Votes          int64 `json:"votes"`
}

func (s Stats) Value(m Metric) int64 {
	switch m {
	case MetricWins:
		return s.Wins
	case MetricTopArguments:
		return s.TopArguments
	case MetricParticipations:
		return s.Participations
	case MetricVotes:
		return s.Votes
	default:
		return 0
	}
}
