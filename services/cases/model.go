package cases

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

var (
	StatusPendingModeration Status = "pending_moderation"
	StatusActive            Status = "active"
	StatusClosed            Status = "closed"
)

func (s Status) String() string {
	switch s {
	case StatusPendingModeration, StatusActive, StatusClosed:
		return string(s)
	default:
		return ""
	}
}

type Side string

var (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts yes/no in any case and surrounding whitespace.
func ParseSide(v string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(v))) {
	case SideYes:
		return SideYes, true
	case SideNo:
		return SideNo, true
	default:
		return "", false
	}
}

type Case struct {
	ID                   string          `gorm:"column:id;primaryKey" json:"id"`
	Code                 string          `gorm:"column:code;uniqueIndex" json:"code"`
	Slug                 string          `gorm:"column:slug" json:"slug"`
	Title                string          `gorm:"column:title" json:"title"`
	Context              string          `gorm:"column:context" json:"context"`
	Status               Status          `gorm:"column:status;index" json:"status"`
	VerdictHash          string          `gorm:"column:verdict_hash" json:"verdict_hash,omitempty"`
	Verdict              Side            `gorm:"column:verdict" json:"verdict,omitempty"`
	VerdictReasoning     string          `gorm:"column:verdict_reasoning" json:"verdict_reasoning,omitempty"`
	VerdictConfidence    *float64        `gorm:"column:verdict_confidence" json:"verdict_confidence,omitempty"`
	YesVotes             int64           `gorm:"column:yes_votes" json:"yes_votes"`
	NoVotes              int64           `gorm:"column:no_votes" json:"no_votes"`
	TotalParticipants    int64           `gorm:"column:total_participants" json:"total_participants"`
	RewardPool           decimal.Decimal `gorm:"column:reward_pool;type:decimal(20,2)" json:"reward_pool"`
	CreatedBy            *string         `gorm:"column:created_by;index" json:"created_by,omitempty"`
	IsAIGenerated        bool            `gorm:"column:is_ai_generated" json:"is_ai_generated"`
	ModerationReason     string          `gorm:"column:moderation_reason" json:"moderation_reason,omitempty"`
	LedgerRef            string          `gorm:"column:ledger_ref" json:"ledger_ref,omitempty"`
	CommitmentVerifiedAt *time.Time      `gorm:"column:commitment_verified_at" json:"commitment_verified_at,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at" json:"updated_at"`
	ClosesAt             *time.Time      `gorm:"column:closes_at;index" json:"closes_at,omitempty"`
	ClosedAt             *time.Time      `gorm:"column:closed_at" json:"closed_at,omitempty"`
}

// IsOpen reports whether the case accepts votes at now.
func (c *Case) IsOpen(now time.Time) bool {
	return c.Status == StatusActive && c.ClosesAt != nil && c.ClosesAt.After(now)
}

// Revealed returns a copy safe for read paths: verdict fields are cleared
// until the case is closed.
func (c *Case) Revealed() *Case {
	out := *c
	if c.Status != StatusClosed {
		out.Verdict = ""
		out.VerdictReasoning = ""
		out.VerdictConfidence = nil
	}
	return &out
}

type Vote struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	UserID          string    `gorm:"column:user_id;uniqueIndex:idx_votes_user_case" json:"user_id"`
	CaseID          string    `gorm:"column:case_id;uniqueIndex:idx_votes_user_case;index" json:"case_id"`
	Side            Side      `gorm:"column:side" json:"side"`
	LikeCount       int64     `gorm:"column:like_count" json:"like_count"`
	HasSubmittedArg bool      `gorm:"column:has_submitted_arg" json:"has_submitted_arg"`
	VotedAt         time.Time `gorm:"column:voted_at" json:"voted_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`

	// LikedArguments is derived from ArgumentLike rows, oldest first.
	LikedArguments []string `gorm:"-" json:"liked_arguments"`
}

type Argument struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CaseID    string    `gorm:"column:case_id;index" json:"case_id"`
	AuthorID  string    `gorm:"column:author_id;index" json:"author_id"`
	Content   string    `gorm:"column:content" json:"content"`
	Side      Side      `gorm:"column:side" json:"side"`
	LikeCount int64     `gorm:"column:like_count" json:"like_count"`
	IsTop3    bool      `gorm:"column:is_top3" json:"is_top3"`
	TopRank   int       `gorm:"column:top_rank" json:"top_rank,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

type ArgumentLike struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	UserID     string    `gorm:"column:user_id;uniqueIndex:idx_argument_likes_user_argument" json:"user_id"`
	ArgumentID string    `gorm:"column:argument_id;uniqueIndex:idx_argument_likes_user_argument;index" json:"argument_id"`
	CaseID     string    `gorm:"column:case_id;index" json:"case_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// Models lists the tables owned by this package for migrations.
func Models() []any {
	return []any{&Case{}, &Vote{}, &Argument{}, &ArgumentLike{}}
}

// RankTopArguments orders arguments by like count descending, then oldest
// first, then id, and returns at most three. The input is not modified.
func RankTopArguments(args []*Argument) []*Argument {
	ranked := make([]*Argument, len(args))
	copy(ranked, args)
	sortArguments(ranked)
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return ranked
}
