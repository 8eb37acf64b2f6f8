package ledger

import (
	"context"
	"encoding/json"
	"time"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "amount must be greater than zero"}
	ErrMissingRef    = errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "reference_id is required"}
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	ledger  repository.Repository[LedgerEntry]
	balance repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		now:  time.Now,

		ledger:  repository.ProvideStore[LedgerEntry](p.DB),
		balance: repository.ProvideStore[Balance](p.DB),
	}
}

var sequenceDesc = option.WithSortBy(option.QuerySortBy{
	SortBy:  "sequence",
	OrderBy: "desc",
	Allow:   map[string]bool{"sequence": true},
})

var sequenceAsc = option.WithSortBy(option.QuerySortBy{
	SortBy:  "sequence",
	OrderBy: "asc",
	Allow:   map[string]bool{"sequence": true},
})

func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	zapLog := logger.FromContext(ctx)
	if userID == "" {
		return &Balance{Balance: decimal.Zero}, nil
	}

	balance, err := s.balance.FindOne(ctx, &Balance{UserID: userID})
	if err != nil {
		zapLog.Error("failed to query balance", zap.Error(err))
		return nil, errutil.Internal("failed to query balance", err)
	}
	if balance == nil {
		return &Balance{UserID: userID, Balance: decimal.Zero}, nil
	}
	return balance, nil
}

type CreditRequest struct {
	UserID      string
	Amount      decimal.Decimal
	ReferenceID string
	Description string
	Metadata    map[string]any
}

// Credit appends a CREDIT entry to the user's chain and increments their
// balance. When tx is non-nil the write joins the caller's transaction.
// A repeated ReferenceID returns the existing entry without crediting twice.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req CreditRequest) (*LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.ReferenceID == "" {
		return nil, ErrMissingRef
	}

	if tx != nil {
		return s.processCredit(ctx, tx, req)
	}

	var entry *LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.processCredit(ctx, tx, req)
		return err
	})
	return entry, err
}

func (s *Service) processCredit(ctx context.Context, tx *gorm.DB, req CreditRequest) (*LedgerEntry, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("user_id", req.UserID), zap.String("reference_id", req.ReferenceID))

	balanceTx := s.balance.WithTrx(tx)
	ledgerTx := s.ledger.WithTrx(tx)

	existing, err := ledgerTx.FindOne(ctx, &LedgerEntry{ReferenceID: req.ReferenceID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		zapLog.Warn("reference_id already credited")
		return existing, nil
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	balance, err := balanceTx.FindOne(ctx, &Balance{UserID: req.UserID}, option.WithLockingUpdate())
	if err != nil {
		zapLog.Error("failed to query balance", zap.Error(err))
		return nil, err
	}
	if balance == nil {
		balance = &Balance{
			ID:        s.node.Generate().String(),
			UserID:    req.UserID,
			Balance:   decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := balanceTx.Create(ctx, balance); err != nil {
			return nil, err
		}
	}

	last, err := ledgerTx.FindOne(ctx, &LedgerEntry{UserID: req.UserID}, sequenceDesc)
	if err != nil {
		return nil, err
	}

	previousHash := GenesisHash
	var sequence int64 = 1
	if last != nil {
		previousHash = last.Hash
		sequence = last.Sequence + 1
	}

	transactionID, err := GenerateTransactionID(now)
	if err != nil {
		zapLog.Error("failed to generate transactionId", zap.Error(err))
		return nil, err
	}

	var meta datatypes.JSON
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, err
		}
		meta = datatypes.JSON(b)
	}

	entry := NewLedgerEntry(LedgerParams{
		LedgerID:      s.node.Generate().String(),
		UserID:        req.UserID,
		Sequence:      sequence,
		Type:          EntryTypeCredit,
		Amount:        req.Amount.Round(2),
		TransactionID: transactionID,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		PreviousHash:  previousHash,
		Metadata:      meta,
		CreatedAt:     now,
	})
	entry.Hash = entry.GenerateHash()

	if err := ledgerTx.Create(ctx, entry); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"balance":    gorm.Expr("balance + ?", entry.Amount),
		"updated_at": now,
	}
	if err := balanceTx.Update(ctx, balance.ID, &updates); err != nil {
		return nil, err
	}

	zapLog.Info("points credited", zap.String("amount", entry.Amount.StringFixed(2)), zap.Int64("sequence", sequence))
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, userID string) ([]*LedgerEntry, error) {
	entries, err := s.ledger.Find(ctx, &LedgerEntry{UserID: userID}, sequenceAsc)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query list entries", zap.Error(err))
		return nil, errutil.Internal("failed to list entries", err)
	}
	return entries, nil
}

type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt string `json:"broken_at,omitempty"`
}

// VerifyChain recomputes every hash in the user's chain and checks the
// previous-hash links and that the balance equals the sum of entries.
func (s *Service) VerifyChain(ctx context.Context, userID string) (VerifyResult, error) {
	entries, err := s.ListEntries(ctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Valid: true, Entries: len(entries)}
	lastHash := GenesisHash
	total := decimal.Zero
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			result.Valid = false
			result.BrokenAt = entry.ID
			return result, nil
		}
		lastHash = entry.Hash
		total = total.Add(entry.Amount)
	}

	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}
	if !balance.Balance.Equal(total) {
		result.Valid = false
		result.BrokenAt = "balance"
	}
	return result, nil
}
