package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	updateWhereFn func(ctx context.Context, resourceID string, where *T, resource any) (int64, error)
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) UpdateWhere(ctx context.Context, resourceID string, where *T, resource any) (int64, error) {
	if m.updateWhereFn != nil {
		return m.updateWhereFn(ctx, resourceID, where, resource)
	}
	return 1, nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query, opts...)
	}
	return 0, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func chain(t *testing.T, amounts ...int64) []*LedgerEntry {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := GenesisHash

	out := make([]*LedgerEntry, 0, len(amounts))
	for i, amount := range amounts {
		e := &LedgerEntry{
			ID:           fmt.Sprintf("entry-%d", i+1),
			UserID:       "user-1",
			Sequence:     int64(i + 1),
			Type:         EntryTypeCredit,
			Amount:       decimal.NewFromInt(amount),
			ReferenceID:  fmt.Sprintf("reward:%d", i+1),
			PreviousHash: prev,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}
		e.Hash = e.GenerateHash()
		prev = e.Hash
		out = append(out, e)
	}
	return out
}

func TestNewService(t *testing.T) {
	svc := newTestService(t)

	require.NotNil(t, svc.ledger)
	require.NotNil(t, svc.balance)
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	svc := &Service{balance: &repoMock[Balance]{}}

	balance, err := svc.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, balance.Balance.IsZero())
	require.Equal(t, "user-1", balance.UserID)
}

func TestGetBalanceEmptyUserSkipsQuery(t *testing.T) {
	svc := &Service{balance: &repoMock[Balance]{
		findOneFn: func(ctx context.Context, query *Balance, opts ...option.QueryOption) (*Balance, error) {
			t.Fatalf("unexpected balance query for %+v", query)
			return nil, nil
		},
	}}

	balance, err := svc.GetBalance(context.Background(), "")
	require.NoError(t, err)
	require.True(t, balance.Balance.IsZero())
}

func TestCreditRejectsInvalidRequest(t *testing.T) {
	svc := &Service{}

	_, err := svc.Credit(context.Background(), nil, CreditRequest{UserID: "u", Amount: decimal.Zero, ReferenceID: "r"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Credit(context.Background(), nil, CreditRequest{UserID: "u", Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrMissingRef)
}

func TestCreditBuildsChainAndBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Credit(ctx, nil, CreditRequest{
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("133.33"),
		ReferenceID: "reward:1",
		Metadata:    map[string]any{"case_id": "case-1"},
	})
	require.NoError(t, err)
	require.Equal(t, GenesisHash, first.PreviousHash)
	require.Equal(t, int64(1), first.Sequence)

	second, err := svc.Credit(ctx, nil, CreditRequest{
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("60"),
		ReferenceID: "reward:2",
	})
	require.NoError(t, err)
	require.Equal(t, first.Hash, second.PreviousHash)
	require.Equal(t, int64(2), second.Sequence)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "193.33", balance.Balance.StringFixed(2))

	res, err := svc.VerifyChain(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, 2, res.Entries)
}

func TestCreditIsIdempotentOnReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	req := CreditRequest{UserID: "user-1", Amount: decimal.NewFromInt(10), ReferenceID: "reward:1"}

	first, err := svc.Credit(ctx, nil, req)
	require.NoError(t, err)
	again, err := svc.Credit(ctx, nil, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "10.00", balance.Balance.StringFixed(2))
}

func TestCreditConcurrent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, nil, CreditRequest{UserID: "user-1", Amount: decimal.NewFromInt(1), ReferenceID: "seed"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Credit(ctx, nil, CreditRequest{
				UserID:      "user-1",
				Amount:      decimal.NewFromInt(5),
				ReferenceID: fmt.Sprintf("reward:%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "51.00", balance.Balance.StringFixed(2))

	res, err := svc.VerifyChain(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, 11, res.Entries)
}

func TestVerifyChainValid(t *testing.T) {
	entries := chain(t, 100, 50)
	svc := &Service{
		ledger: &repoMock[LedgerEntry]{
			findFn: func(ctx context.Context, _ *LedgerEntry, opts ...option.QueryOption) ([]*LedgerEntry, error) {
				return entries, nil
			},
		},
		balance: &repoMock[Balance]{
			findOneFn: func(ctx context.Context, _ *Balance, opts ...option.QueryOption) (*Balance, error) {
				return &Balance{UserID: "user-1", Balance: decimal.NewFromInt(150)}, nil
			},
		},
	}

	res, err := svc.VerifyChain(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestVerifyChainInvalid(t *testing.T) {
	entries := chain(t, 100, 50)
	entries[1].Hash = "invalid"

	svc := &Service{
		ledger: &repoMock[LedgerEntry]{
			findFn: func(ctx context.Context, _ *LedgerEntry, opts ...option.QueryOption) ([]*LedgerEntry, error) {
				return entries, nil
			},
		},
		balance: &repoMock[Balance]{},
	}

	res, err := svc.VerifyChain(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "entry-2", res.BrokenAt)
}

func TestVerifyChainBalanceMismatch(t *testing.T) {
	entries := chain(t, 100)
	svc := &Service{
		ledger: &repoMock[LedgerEntry]{
			findFn: func(ctx context.Context, _ *LedgerEntry, opts ...option.QueryOption) ([]*LedgerEntry, error) {
				return entries, nil
			},
		},
		balance: &repoMock[Balance]{
			findOneFn: func(ctx context.Context, _ *Balance, opts ...option.QueryOption) (*Balance, error) {
				return &Balance{UserID: "user-1", Balance: decimal.NewFromInt(999)}, nil
			},
		},
	}

	res, err := svc.VerifyChain(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "balance", res.BrokenAt)
}
