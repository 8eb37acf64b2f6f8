package reward

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

var (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return string(s)
	default:
		return ""
	}
}

type Category string

var (
	CategoryWinningVoter Category = "winning_voter"
	CategoryTopArgument  Category = "top_argument"
	CategoryParticipant  Category = "participant"
	CategoryCreator      Category = "creator"
)

type Reward struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	UserID        string          `gorm:"column:user_id;uniqueIndex:idx_rewards_user_case;index" json:"user_id"`
	CaseID        string          `gorm:"column:case_id;uniqueIndex:idx_rewards_user_case;index" json:"case_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	Status        Status          `gorm:"column:status;index" json:"status"`
	Breakdown     datatypes.JSON  `gorm:"column:breakdown" json:"breakdown,omitempty"`
	LedgerRef     string          `gorm:"column:ledger_ref" json:"ledger_ref,omitempty"`
	FailureReason string          `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
	ClaimedAt     *time.Time      `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CompletedAt   *time.Time      `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
}

func Models() []any {
	return []any{&Reward{}}
}
