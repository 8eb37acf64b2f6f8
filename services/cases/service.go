package cases

import (
	"context"
	"fmt"
	"time"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/pkg/security"
	"moralduel-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	seq    sequence.Generator
	config *config.Config
	authz  authz.Authorizer
	ledger chain.Client

	content     ContentGenerator
	verdict     VerdictGenerator
	moderator   Moderator
	distributor Distributor
	archiver    Archiver

	now Clock

	cases     repository.Repository[Case]
	votes     repository.Repository[Vote]
	arguments repository.Repository[Argument]
	likes     repository.Repository[ArgumentLike]
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Seq         sequence.Generator `optional:"true"`
	Config      *config.Config
	Authz       authz.Authorizer
	Ledger      chain.Client
	Content     ContentGenerator
	Verdict     VerdictGenerator
	Moderator   Moderator
	Distributor Distributor `optional:"true"`
	Archiver    Archiver    `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		seq:         p.Seq,
		config:      p.Config,
		authz:       p.Authz,
		ledger:      p.Ledger,
		content:     p.Content,
		verdict:     p.Verdict,
		moderator:   p.Moderator,
		distributor: p.Distributor,
		archiver:    p.Archiver,
		now:         time.Now,

		cases:     repository.ProvideStore[Case](p.DB),
		votes:     repository.ProvideStore[Vote](p.DB),
		arguments: repository.ProvideStore[Argument](p.DB),
		likes:     repository.ProvideStore[ArgumentLike](p.DB),
	}
}

func (s *Service) cfg() *config.Config {
	return config.Current(s.config)
}

func ledgerTimeout(cfg *config.Config) time.Duration {
	if cfg.Ledger.Timeout <= 0 {
		return 10 * time.Second
	}
	return cfg.Ledger.Timeout
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) nextCode(ctx context.Context, id string) string {
	if s.seq != nil {
		code, err := s.seq.NextCaseCode(ctx)
		if err == nil {
			return code
		}
		zap.L().Warn("failed to generate case code, falling back to id", zap.Error(err))
	}
	return fmt.Sprintf("CASE-%s", id)
}

func (s *Service) defaultRewardPool() decimal.Decimal {
	pool, err := decimal.NewFromString(s.cfg().Case.DefaultRewardPool)
	if err != nil || pool.IsNegative() {
		return decimal.NewFromInt(1000)
	}
	return pool
}

type CreateCaseRequest struct {
	UserID  string
	Title   string
	Context string
}

func (s *Service) validateCase(title, body string) error {
	cc := s.cfg().Case

	var details []errutil.Detail
	if n := runeLen(title); n < cc.TitleMin || n > cc.TitleMax {
		details = append(details, errutil.Detail{
			Field:   "title",
			Message: fmt.Sprintf("must be between %d and %d characters", cc.TitleMin, cc.TitleMax),
		})
	}
	if n := runeLen(body); n < cc.ContextMin || n > cc.ContextMax {
		details = append(details, errutil.Detail{
			Field:   "context",
			Message: fmt.Sprintf("must be between %d and %d characters", cc.ContextMin, cc.ContextMax),
		})
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid case", nil, errutil.WithDetails(details...))
	}
	return nil
}

// CreateUserCase stores a user submitted case awaiting moderation.
func (s *Service) CreateUserCase(ctx context.Context, req CreateCaseRequest) (*Case, error) {
	zapLog := logger.FromContext(ctx)

	title := normalize(req.Title)
	body := normalize(req.Context)
	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}
	if err := s.validateCase(title, body); err != nil {
		return nil, err
	}

	id := s.node.Generate().String()
	createdBy := req.UserID
	c := &Case{
		ID:         id,
		Code:       s.nextCode(ctx, id),
		Slug:       slug.Make(title),
		Title:      title,
		Context:    body,
		Status:     StatusPendingModeration,
		RewardPool: s.defaultRewardPool(),
		CreatedBy:  &createdBy,
		CreatedAt:  s.clock(),
	}

	if err := s.cases.Create(ctx, c); err != nil {
		zapLog.Error("failed to create case", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, errutil.Internal("failed to create case", err)
	}

	zapLog.Info("case submitted for moderation", zap.String("case_id", c.ID), zap.String("user_id", req.UserID))
	return c.Revealed(), nil
}

// CreateSystemCase generates content and a sealed verdict, then stores the
// case already active. Committing the hash to the external ledger is best
// effort.
func (s *Service) CreateSystemCase(ctx context.Context) (*Case, error) {
	zapLog := logger.FromContext(ctx)

	generated, err := s.content.GenerateCase(ctx)
	if err != nil {
		zapLog.Error("failed to generate case content", zap.Error(err))
		return nil, ErrContentFailed.Wrap(err)
	}

	title := normalize(generated.Title)
	body := normalize(generated.Context)
	if title == "" || body == "" {
		return nil, ErrContentFailed.Wrap(fmt.Errorf("empty title or context"))
	}

	verdict, err := s.verdict.GenerateVerdict(ctx, title, body)
	if err != nil {
		zapLog.Error("failed to generate verdict", zap.Error(err))
		return nil, ErrVerdictFailed.Wrap(err)
	}

	now := s.clock()
	closesAt := now.Add(s.cfg().Case.Duration)
	confidence := verdict.Confidence
	id := s.node.Generate().String()

	c := &Case{
		ID:                id,
		Code:              s.nextCode(ctx, id),
		Slug:              slug.Make(title),
		Title:             title,
		Context:           body,
		Status:            StatusActive,
		VerdictHash:       security.Commitment(string(verdict.Verdict), verdict.Reasoning),
		Verdict:           verdict.Verdict,
		VerdictReasoning:  verdict.Reasoning,
		VerdictConfidence: &confidence,
		RewardPool:        s.defaultRewardPool(),
		IsAIGenerated:     true,
		CreatedAt:         now,
		ClosesAt:          &closesAt,
	}

	if err := s.cases.Create(ctx, c); err != nil {
		zapLog.Error("failed to create system case", zap.Error(err))
		return nil, errutil.Internal("failed to create case", err)
	}

	s.commitVerdict(ctx, c)

	zapLog.Info("system case created",
		zap.String("case_id", c.ID),
		zap.String("code", c.Code),
		zap.Timep("closes_at", c.ClosesAt),
	)
	return c, nil
}

// commitVerdict records the verdict hash on the external ledger. Failures are
// logged and the case keeps no reference.
func (s *Service) commitVerdict(ctx context.Context, c *Case) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", c.ID))

	ctx, cancel := context.WithTimeout(ctx, ledgerTimeout(s.cfg()))
	defer cancel()

	ref, err := s.ledger.Commit(ctx, c.ID, c.VerdictHash, s.clock())
	if err != nil {
		zapLog.Warn("failed to commit verdict hash to ledger", zap.Error(err))
		return
	}

	updates := map[string]any{"ledger_ref": ref}
	if err := s.cases.Update(ctx, c.ID, &updates); err != nil {
		zapLog.Warn("failed to store ledger reference", zap.String("ledger_ref", ref), zap.Error(err))
		return
	}
	c.LedgerRef = ref
}
