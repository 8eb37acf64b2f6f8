package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"moralduel-controlplane/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("chain", fx.Provide(ProvideClient))

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusNotFound  Status = "not_found"
	StatusError     Status = "error"
)

type Receipt struct {
	Ref           string
	Status        Status
	Confirmations int64
	BlockHeight   int64
	Message       string
}

// Client is the external ledger the engine commits verdict hashes to and
// polls for settlement confirmations.
type Client interface {
	Commit(ctx context.Context, caseID, hash string, ts time.Time) (string, error)
	GetStatus(ctx context.Context, ref string) (Receipt, error)
}

type Params struct {
	fx.In
	Config *config.Config
}

func ProvideClient(p Params) Client {
	cfg := p.Config.Ledger
	if !cfg.Enabled || cfg.RPCURL == "" {
		zap.L().Warn("[Ledger] external ledger disabled, using simulation")
		return NewSimulation()
	}

	zap.L().Info("[Ledger] external ledger enabled", zap.String("rpc_url", cfg.RPCURL))
	return NewRPC(cfg.RPCURL, cfg.Contract, cfg.Timeout)
}

// Simulation stands in for the external ledger in development. Every
// reference it hands out reports as confirmed.
type Simulation struct {
	now func() time.Time
}

func NewSimulation() *Simulation {
	return &Simulation{now: time.Now}
}

func (s *Simulation) Commit(ctx context.Context, caseID, hash string, ts time.Time) (string, error) {
	return MockRef(caseID, hash, s.now().UTC()), nil
}

func (s *Simulation) GetStatus(ctx context.Context, ref string) (Receipt, error) {
	if ref == "" {
		return Receipt{Status: StatusNotFound}, nil
	}
	return Receipt{
		Ref:           ref,
		Status:        StatusConfirmed,
		Confirmations: 1,
	}, nil
}

// MockRef returns sha256("caseID:hash:timestamp") as lowercase hex.
func MockRef(caseID, hash string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", caseID, hash, ts.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])
}
