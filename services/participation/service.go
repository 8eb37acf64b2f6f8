package participation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/cases"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxLikes is both the like cap per case and the number of likes needed
// before a user may submit an argument.
const MaxLikes = 3

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	config *config.Config
	now    func() time.Time

	cases     repository.Repository[cases.Case]
	votes     repository.Repository[cases.Vote]
	arguments repository.Repository[cases.Argument]
	likes     repository.Repository[cases.ArgumentLike]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		config: p.Config,
		now:    time.Now,

		cases:     repository.ProvideStore[cases.Case](p.DB),
		votes:     repository.ProvideStore[cases.Vote](p.DB),
		arguments: repository.ProvideStore[cases.Argument](p.DB),
		likes:     repository.ProvideStore[cases.ArgumentLike](p.DB),
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func invalid(field, msg string) error {
	return errutil.ValidationFailed("invalid request", nil, errutil.WithDetails(errutil.Detail{
		Field:   field,
		Message: msg,
	}))
}

// passthrough keeps named errors intact and wraps anything else as internal.
func passthrough(msg string, err error) error {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}
	return errutil.Internal(msg, err)
}

func (s *Service) lockCase(ctx context.Context, tx *gorm.DB, caseID string) (*cases.Case, error) {
	if caseID == "" {
		return nil, ErrCaseNotFound
	}
	c, err := s.cases.WithTrx(tx).FindOne(ctx, &cases.Case{ID: caseID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCaseNotFound
	}
	return c, nil
}

func (s *Service) lockVote(ctx context.Context, tx *gorm.DB, userID, caseID string) (*cases.Vote, error) {
	return s.votes.WithTrx(tx).FindOne(ctx, &cases.Vote{UserID: userID, CaseID: caseID}, option.WithLockingUpdate())
}

type VoteRequest struct {
	UserID string
	CaseID string
	Side   string
}

type VoteResult struct {
	Case *cases.Case `json:"case"`
	Vote *cases.Vote `json:"vote"`
}

// Vote records the user's side on an open case and bumps the case counters
// in the same transaction.
func (s *Service) Vote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", req.CaseID), zap.String("user_id", req.UserID))

	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}
	side, ok := cases.ParseSide(req.Side)
	if !ok {
		return nil, invalid("side", "must be YES or NO")
	}

	var result VoteResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCase(ctx, tx, req.CaseID)
		if err != nil {
			return err
		}

		now := s.clock()
		if c.Status != cases.StatusActive {
			return ErrCaseNotActive
		}
		if !c.IsOpen(now) {
			return ErrVotingClosed
		}

		existing, err := s.lockVote(ctx, tx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateVote
		}

		vote := &cases.Vote{
			ID:      s.node.Generate().String(),
			UserID:  req.UserID,
			CaseID:  req.CaseID,
			Side:    side,
			VotedAt: now,
		}
		if err := s.votes.WithTrx(tx).Create(ctx, vote); err != nil {
			return err
		}

		counter := "no_votes"
		if side == cases.SideYes {
			counter = "yes_votes"
		}
		updates := map[string]any{
			"total_participants": gorm.Expr("total_participants + ?", 1),
			counter:              gorm.Expr(fmt.Sprintf("%s + ?", counter), 1),
		}
		if err := s.cases.WithTrx(tx).Update(ctx, c.ID, &updates); err != nil {
			return err
		}

		updated, err := s.cases.WithTrx(tx).FindOne(ctx, &cases.Case{ID: c.ID})
		if err != nil {
			return err
		}

		vote.LikedArguments = []string{}
		result.Case = updated.Revealed()
		result.Vote = vote
		return nil
	})
	if err != nil {
		zapLog.Debug("vote rejected", zap.Error(err))
		return nil, passthrough("failed to record vote", err)
	}

	zapLog.Info("vote recorded", zap.String("side", string(side)))
	return &result, nil
}

type LikeRequest struct {
	UserID     string
	CaseID     string
	ArgumentID string
}

type LikeResult struct {
	Argument *cases.Argument `json:"argument"`
	Vote     *cases.Vote     `json:"vote"`
}

// loadArgument reads the argument without a row lock. Callers lock the case
// before writing to the argument so every writer takes case then argument.
func (s *Service) loadArgument(ctx context.Context, tx *gorm.DB, req LikeRequest) (*cases.Argument, error) {
	if req.ArgumentID == "" {
		return nil, ErrArgumentNotFound
	}
	arg, err := s.arguments.WithTrx(tx).FindOne(ctx, &cases.Argument{ID: req.ArgumentID})
	if err != nil {
		return nil, err
	}
	if arg == nil {
		return nil, ErrArgumentNotFound
	}
	if arg.CaseID != req.CaseID {
		return nil, ErrArgumentCaseMismatch
	}
	return arg, nil
}

// LikeArgument adds one of the user's three likes on a case.
func (s *Service) LikeArgument(ctx context.Context, req LikeRequest) (*LikeResult, error) {
	zapLog := logger.FromContext(ctx).With(
		zap.String("case_id", req.CaseID),
		zap.String("argument_id", req.ArgumentID),
		zap.String("user_id", req.UserID),
	)

	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}

	var result LikeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		arg, err := s.loadArgument(ctx, tx, req)
		if err != nil {
			return err
		}

		c, err := s.lockCase(ctx, tx, req.CaseID)
		if err != nil {
			return err
		}
		if !c.IsOpen(s.clock()) {
			return ErrCaseNotActive
		}

		vote, err := s.lockVote(ctx, tx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		if vote == nil {
			return ErrNotVoted
		}

		existing, err := s.likes.WithTrx(tx).FindOne(ctx, &cases.ArgumentLike{UserID: req.UserID, ArgumentID: arg.ID})
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateLike
		}

		if vote.LikeCount >= MaxLikes {
			return ErrLikeLimitExceeded
		}

		like := &cases.ArgumentLike{
			ID:         s.node.Generate().String(),
			UserID:     req.UserID,
			ArgumentID: arg.ID,
			CaseID:     req.CaseID,
			CreatedAt:  s.clock(),
		}
		if err := s.likes.WithTrx(tx).Create(ctx, like); err != nil {
			return err
		}

		argUpdates := map[string]any{"like_count": gorm.Expr("like_count + ?", 1)}
		if err := s.arguments.WithTrx(tx).Update(ctx, arg.ID, &argUpdates); err != nil {
			return err
		}

		voteUpdates := map[string]any{"like_count": gorm.Expr("like_count + ?", 1)}
		if err := s.votes.WithTrx(tx).Update(ctx, vote.ID, &voteUpdates); err != nil {
			return err
		}

		return s.fillLikeResult(ctx, tx, &result, arg.ID, req)
	})
	if err != nil {
		zapLog.Debug("like rejected", zap.Error(err))
		return nil, passthrough("failed to like argument", err)
	}

	zapLog.Info("argument liked", zap.Int64("like_count", result.Argument.LikeCount))
	return &result, nil
}

// UnlikeArgument removes an existing like. The argument's like count never
// drops below zero.
func (s *Service) UnlikeArgument(ctx context.Context, req LikeRequest) (*LikeResult, error) {
	zapLog := logger.FromContext(ctx).With(
		zap.String("case_id", req.CaseID),
		zap.String("argument_id", req.ArgumentID),
		zap.String("user_id", req.UserID),
	)

	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}

	var result LikeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		arg, err := s.loadArgument(ctx, tx, req)
		if err != nil {
			return err
		}
		if _, err := s.lockCase(ctx, tx, req.CaseID); err != nil {
			return err
		}

		like, err := s.likes.WithTrx(tx).FindOne(ctx, &cases.ArgumentLike{UserID: req.UserID, ArgumentID: arg.ID})
		if err != nil {
			return err
		}
		if like == nil {
			return ErrLikeNotFound
		}

		if err := tx.WithContext(ctx).Delete(&cases.ArgumentLike{}, "id = ?", like.ID).Error; err != nil {
			return err
		}

		decrement := gorm.Expr("CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END")

		argUpdates := map[string]any{"like_count": decrement}
		if err := s.arguments.WithTrx(tx).Update(ctx, arg.ID, &argUpdates); err != nil {
			return err
		}

		vote, err := s.lockVote(ctx, tx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		if vote != nil {
			voteUpdates := map[string]any{"like_count": decrement}
			if err := s.votes.WithTrx(tx).Update(ctx, vote.ID, &voteUpdates); err != nil {
				return err
			}
		}

		return s.fillLikeResult(ctx, tx, &result, arg.ID, req)
	})
	if err != nil {
		zapLog.Debug("unlike rejected", zap.Error(err))
		return nil, passthrough("failed to unlike argument", err)
	}

	zapLog.Info("argument unliked", zap.Int64("like_count", result.Argument.LikeCount))
	return &result, nil
}

func (s *Service) fillLikeResult(ctx context.Context, tx *gorm.DB, result *LikeResult, argumentID string, req LikeRequest) error {
	arg, err := s.arguments.WithTrx(tx).FindOne(ctx, &cases.Argument{ID: argumentID})
	if err != nil {
		return err
	}

	vote, err := s.votes.WithTrx(tx).FindOne(ctx, &cases.Vote{UserID: req.UserID, CaseID: req.CaseID})
	if err != nil {
		return err
	}
	if vote != nil {
		liked, err := s.likedArguments(ctx, tx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		vote.LikedArguments = liked
	}

	result.Argument = arg
	result.Vote = vote
	return nil
}

func (s *Service) likedArguments(ctx context.Context, tx *gorm.DB, userID, caseID string) ([]string, error) {
	likes, err := s.likes.WithTrx(tx).Find(ctx, &cases.ArgumentLike{UserID: userID, CaseID: caseID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(likes))
	for _, l := range likes {
		ids = append(ids, l.ArgumentID)
	}
	return ids, nil
}

type SubmitRequest struct {
	UserID  string
	CaseID  string
	Content string
	Side    string
}

// SubmitArgument lets a voter who has used all three likes post a single
// argument on the case.
func (s *Service) SubmitArgument(ctx context.Context, req SubmitRequest) (*cases.Argument, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", req.CaseID), zap.String("user_id", req.UserID))

	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}

	cc := config.Current(s.config).Case
	content := normalizeContent(req.Content)
	if n := contentLen(content); n < cc.ArgumentMin || n > cc.ArgumentMax {
		return nil, invalid("content", fmt.Sprintf("must be between %d and %d characters", cc.ArgumentMin, cc.ArgumentMax))
	}
	side, ok := cases.ParseSide(req.Side)
	if !ok {
		return nil, invalid("side", "must be YES or NO")
	}

	var arg *cases.Argument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCase(ctx, tx, req.CaseID)
		if err != nil {
			return err
		}
		if !c.IsOpen(s.clock()) {
			return ErrCaseNotActive
		}

		vote, err := s.lockVote(ctx, tx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		if vote == nil {
			return ErrNotVoted
		}
		if vote.HasSubmittedArg {
			return ErrAlreadySubmitted
		}
		if vote.LikeCount < MaxLikes {
			return ErrInsufficientLikes
		}

		arg = &cases.Argument{
			ID:        s.node.Generate().String(),
			CaseID:    req.CaseID,
			AuthorID:  req.UserID,
			Content:   content,
			Side:      side,
			CreatedAt: s.clock(),
		}
		if err := s.arguments.WithTrx(tx).Create(ctx, arg); err != nil {
			return err
		}

		updates := map[string]any{"has_submitted_arg": true}
		return s.votes.WithTrx(tx).Update(ctx, vote.ID, &updates)
	})
	if err != nil {
		zapLog.Debug("argument rejected", zap.Error(err))
		return nil, passthrough("failed to submit argument", err)
	}

	zapLog.Info("argument submitted", zap.String("argument_id", arg.ID))
	return arg, nil
}
