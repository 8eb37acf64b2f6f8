package cases

import (
	"context"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/db/pagination"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"

	"go.uber.org/zap"
)

type CaseDetail struct {
	Case      *Case       `json:"case"`
	Arguments []*Argument `json:"arguments"`
	MyVote    *Vote       `json:"my_vote,omitempty"`
}

type ListRequest struct {
	Status Status
	pagination.Pagination
}

type ListResponse struct {
	Cases    []*Case              `json:"cases"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// Get returns a case with its arguments ordered by likes and, when viewerID is
// set, the viewer's vote. Verdict fields stay hidden until closure.
func (s *Service) Get(ctx context.Context, caseID, viewerID string) (*CaseDetail, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))

	c, err := s.findCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	args, err := s.arguments.Find(ctx, &Argument{CaseID: caseID})
	if err != nil {
		zapLog.Error("failed to load arguments", zap.Error(err))
		return nil, errutil.Internal("failed to load arguments", err)
	}
	sortArguments(args)

	detail := &CaseDetail{
		Case:      c.Revealed(),
		Arguments: args,
	}

	if viewerID != "" {
		vote, err := s.VoteOf(ctx, viewerID, caseID)
		if err != nil {
			return nil, err
		}
		detail.MyVote = vote
	}

	return detail, nil
}

// VoteOf returns the user's vote on the case with its liked arguments, or nil.
func (s *Service) VoteOf(ctx context.Context, userID, caseID string) (*Vote, error) {
	if userID == "" || caseID == "" {
		return nil, nil
	}
	vote, err := s.votes.FindOne(ctx, &Vote{UserID: userID, CaseID: caseID})
	if err != nil {
		return nil, errutil.Internal("failed to load vote", err)
	}
	if vote == nil {
		return nil, nil
	}

	likes, err := s.likes.Find(ctx, &ArgumentLike{UserID: userID, CaseID: caseID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load likes", err)
	}

	vote.LikedArguments = make([]string, 0, len(likes))
	for _, l := range likes {
		vote.LikedArguments = append(vote.LikedArguments, l.ArgumentID)
	}
	return vote, nil
}

// List pages through cases newest first.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if req.Status != "" && req.Status.String() == "" {
		return nil, errutil.ValidationFailed("invalid status", nil, errutil.WithDetails(errutil.Detail{
			Field:   "status",
			Message: "must be one of pending_moderation, active, closed",
		}))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	req.Limit = limit

	out, err := s.cases.Find(ctx, &Case{Status: req.Status}, option.ApplyPagination(req.Pagination))
	if err != nil {
		logger.FromContext(ctx).Error("failed to list cases", zap.Error(err))
		return nil, errutil.Internal("failed to list cases", err)
	}

	out, pageInfo := pagination.BuildCursorPageInfo(out, limit, func(c *Case) string {
		return pagination.CursorOf(c.CreatedAt, c.ID)
	})

	for i, c := range out {
		out[i] = c.Revealed()
	}

	return &ListResponse{Cases: out, PageInfo: pageInfo}, nil
}
