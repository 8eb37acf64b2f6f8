package httpapi

import (
	"context"

	"moralduel-controlplane/services/badge"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/participation"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/settlement"
	"moralduel-controlplane/services/task"
)

type CaseAPI interface {
	CreateUserCase(ctx context.Context, req cases.CreateCaseRequest) (*cases.Case, error)
	Get(ctx context.Context, caseID, viewerID string) (*cases.CaseDetail, error)
	List(ctx context.Context, req cases.ListRequest) (*cases.ListResponse, error)
	VoteOf(ctx context.Context, userID, caseID string) (*cases.Vote, error)
	Activate(ctx context.Context, caseID, role string) (*cases.Case, error)
	Moderate(ctx context.Context, caseID, role string) (*cases.Case, cases.ModerationResult, error)
}

type ParticipationAPI interface {
	Vote(ctx context.Context, req participation.VoteRequest) (*participation.VoteResult, error)
	LikeArgument(ctx context.Context, req participation.LikeRequest) (*participation.LikeResult, error)
	UnlikeArgument(ctx context.Context, req participation.LikeRequest) (*participation.LikeResult, error)
	SubmitArgument(ctx context.Context, req participation.SubmitRequest) (*cases.Argument, error)
}

type RewardAPI interface {
	ListByUser(ctx context.Context, req reward.ListRequest) (*reward.ListResponse, error)
	Get(ctx context.Context, userID, rewardID string) (*reward.Reward, error)
	Summary(ctx context.Context, userID string) (*reward.Summary, error)
}

type SettlementAPI interface {
	Claim(ctx context.Context, req settlement.ClaimRequest) (*reward.Reward, error)
	ClaimPending(ctx context.Context, userID string) (settlement.ClaimSummary, error)
}

type LeaderboardAPI interface {
	Get(ctx context.Context, period leaderboard.Period, limit int) ([]*leaderboard.Entry, error)
	GetUserRank(ctx context.Context, userID string, period leaderboard.Period) (*leaderboard.UserRank, error)
}

type LedgerAPI interface {
	GetBalance(ctx context.Context, userID string) (*ledger.Balance, error)
	ListEntries(ctx context.Context, userID string) ([]*ledger.LedgerEntry, error)
	VerifyChain(ctx context.Context, userID string) (ledger.VerifyResult, error)
}

type JobAPI interface {
	Trigger(ctx context.Context, name, role string) (string, error)
	History(ctx context.Context, name string, limit int) ([]*task.Job, error)
	ModerateLater(ctx context.Context, caseID string) error
	ReconcileLater(ctx context.Context, caseID string) error
}

type BadgeAPI interface {
	List(ctx context.Context, userID string) ([]*badge.View, error)
	Progress(ctx context.Context, userID string) (*badge.Progress, error)
}
