package badge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/reward"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const scanBatch = 500

// Crediter books badge bonuses inside the award transaction.
type Crediter interface {
	Credit(ctx context.Context, tx *gorm.DB, req ledger.CreditRequest) (*ledger.LedgerEntry, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	crediter Crediter
	now      func() time.Time

	badges repository.Repository[Badge]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		crediter: p.Ledger,
		now:      time.Now,

		badges: repository.ProvideStore[Badge](p.DB),
	}
}

// CreditReference is the ledger reference of a badge bonus. It is stable per
// user and kind so a bonus is booked at most once.
func CreditReference(userID string, kind Kind) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("badge:"+userID+":"+string(kind))).String()
}

type countRow struct {
	Owner string
	Total int64
}

// collect builds the stats of the given users, or of every user with a
// completed reward or a vote when no ids are passed.
func (s *Service) collect(ctx context.Context, userIDs ...string) (map[string]*Stats, error) {
	out := map[string]*Stats{}
	get := func(userID string) *Stats {
		st, ok := out[userID]
		if !ok {
			st = &Stats{}
			out[userID] = st
		}
		return st
	}

	last := ""
	for {
		q := s.db.WithContext(ctx).
			Model(&reward.Reward{}).
			Select("id, user_id, breakdown").
			Where("status = ? AND id > ?", reward.StatusCompleted, last)
		if len(userIDs) > 0 {
			q = q.Where("user_id IN ?", userIDs)
		}

		var rows []*reward.Reward
		if err := q.Order("id ASC").Limit(scanBatch).Find(&rows).Error; err != nil {
			return nil, err
		}

		for _, r := range rows {
			var breakdown map[string]json.RawMessage
			if len(r.Breakdown) > 0 {
				if err := json.Unmarshal(r.Breakdown, &breakdown); err != nil {
					return nil, fmt.Errorf("decode breakdown of reward %s: %w", r.ID, err)
				}
			}
			st := get(r.UserID)
			_, won := breakdown[string(reward.CategoryWinningVoter)]
			_, top := breakdown[string(reward.CategoryTopArgument)]
			_, took := breakdown[string(reward.CategoryParticipant)]
			if won {
				st.Wins++
			}
			if top {
				st.TopArguments++
			}
			if won || took {
				st.Participations++
			}
		}

		if len(rows) < scanBatch {
			break
		}
		last = rows[len(rows)-1].ID
	}

	q := s.db.WithContext(ctx).
		Model(&cases.Vote{}).
		Select("user_id AS owner, COUNT(*) AS total").
		Group("user_id")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	var votes []countRow
	if err := q.Scan(&votes).Error; err != nil {
		return nil, err
	}
	for _, v := range votes {
		get(v.Owner).Votes = v.Total
	}

	return out, nil
}

func (s *Service) held(ctx context.Context, userIDs ...string) (map[string]map[Kind]bool, error) {
	q := s.db.WithContext(ctx).Model(&Badge{}).Select("user_id, kind")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}

	var rows []*Badge
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := map[string]map[Kind]bool{}
	for _, b := range rows {
		if out[b.UserID] == nil {
			out[b.UserID] = map[Kind]bool{}
		}
		out[b.UserID][b.Kind] = true
	}
	return out, nil
}

// Due lists the badges the stats qualify for that are not held yet.
func Due(st Stats, held map[Kind]bool) []Definition {
	var out []Definition
	for _, d := range Definitions {
		if held[d.Kind] || st.Value(d.Metric) < d.Target {
			continue
		}
		out = append(out, d)
	}
	return out
}

type CheckResult struct {
	Users   int `json:"users"`
	Awarded int `json:"awarded"`
	Failed  int `json:"failed"`
}

// Check awards every badge a user has qualified for and not yet received.
// A failed award is logged and the remaining users are still checked.
func (s *Service) Check(ctx context.Context) (CheckResult, error) {
	zapLog := logger.FromContext(ctx)
	var result CheckResult

	stats, err := s.collect(ctx)
	if err != nil {
		zapLog.Error("[Badge] failed to collect stats", zap.Error(err))
		return result, errutil.Internal("failed to collect badge stats", err)
	}
	held, err := s.held(ctx)
	if err != nil {
		zapLog.Error("[Badge] failed to load awarded badges", zap.Error(err))
		return result, errutil.Internal("failed to load badges", err)
	}

	users := make([]string, 0, len(stats))
	for userID := range stats {
		users = append(users, userID)
	}
	sort.Strings(users)
	result.Users = len(users)

	for _, userID := range users {
		for _, d := range Due(*stats[userID], held[userID]) {
			b, err := s.award(ctx, userID, d)
			if err != nil {
				result.Failed++
				zapLog.Warn("[Badge] award failed",
					zap.String("user_id", userID),
					zap.String("badge", string(d.Kind)),
					zap.Error(err),
				)
				continue
			}
			if b != nil {
				result.Awarded++
			}
		}
	}

	if result.Awarded > 0 || result.Failed > 0 {
		zapLog.Info("[Badge] check finished",
			zap.Int("users", result.Users),
			zap.Int("awarded", result.Awarded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

var errAlreadyHeld = errors.New("badge already held")

// award stores the badge and books its bonus in one transaction. It returns
// nil when the user already holds the badge.
func (s *Service) award(ctx context.Context, userID string, d Definition) (*Badge, error) {
	b := &Badge{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		Kind:        d.Kind,
		BonusPoints: d.BonusPoints,
		LedgerRef:   CreditReference(userID, d.Kind),
		EarnedAt:    s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.badges.WithTrx(tx).FindOne(ctx, &Badge{UserID: userID, Kind: d.Kind}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyHeld
		}
		if err := s.badges.WithTrx(tx).Create(ctx, b); err != nil {
			return err
		}
		if !d.BonusPoints.IsPositive() {
			return nil
		}
		_, err = s.crediter.Credit(ctx, tx, ledger.CreditRequest{
			UserID:      userID,
			Amount:      d.BonusPoints,
			ReferenceID: b.LedgerRef,
			Description: "badge bonus: " + d.Name,
			Metadata:    map[string]any{"badge": string(d.Kind)},
		})
		return err
	})
	if errors.Is(err, errAlreadyHeld) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("[Badge] awarded",
		zap.String("user_id", userID),
		zap.String("badge", string(d.Kind)),
		zap.String("bonus_points", d.BonusPoints.StringFixed(2)),
	)
	return b, nil
}

type View struct {
	*Badge
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// List returns the user's badges, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*View, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	rows, err := s.badges.Find(ctx, &Badge{UserID: userID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "earned_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"earned_at": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to list badges", err)
	}

	out := make([]*View, 0, len(rows))
	for _, b := range rows {
		v := &View{Badge: b, Name: string(b.Kind), Icon: "🏅"}
		if d, ok := Lookup(b.Kind); ok {
			v.Name, v.Description, v.Icon = d.Name, d.Description, d.Icon
		}
		out = append(out, v)
	}
	return out, nil
}

type ProgressDetail struct {
	Definition
	Earned  bool  `json:"earned"`
	Current int64 `json:"current"`
}

type Progress struct {
	Earned  int              `json:"earned"`
	Total   int              `json:"total"`
	Stats   Stats            `json:"stats"`
	Details []ProgressDetail `json:"progress_details"`
}

// Progress reports the user's counters against every badge threshold.
func (s *Service) Progress(ctx context.Context, userID string) (*Progress, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	stats, err := s.collect(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to collect badge stats", err)
	}
	held, err := s.held(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to load badges", err)
	}

	var st Stats
	if p, ok := stats[userID]; ok {
		st = *p
	}

	out := &Progress{Total: len(Definitions), Stats: st}
	for _, d := range Definitions {
		earned := held[userID][d.Kind]
		if earned {
			out.Earned++
		}
		out.Details = append(out.Details, ProgressDetail{
			Definition: d,
			Earned:     earned,
			Current:    st.Value(d.Metric),
		})
	}
	return out, nil
}
