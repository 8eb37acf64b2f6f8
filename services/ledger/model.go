package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EntryType string

var (
	EntryTypeCredit EntryType = "CREDIT"
)

// GenesisHash is the previous hash of the first entry in a user's chain.
const GenesisHash = "GENESIS"

type Balance struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	UserID    string          `gorm:"column:user_id;uniqueIndex" json:"user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2)" json:"balance"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

type LedgerEntry struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	UserID        string          `gorm:"column:user_id;index" json:"user_id"`
	Sequence      int64           `gorm:"column:sequence" json:"sequence"`
	Type          EntryType       `gorm:"column:type" json:"type"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	TransactionID string          `gorm:"column:transaction_id" json:"transaction_id"`
	ReferenceID   string          `gorm:"column:reference_id;uniqueIndex" json:"reference_id"`
	Description   string          `gorm:"column:description" json:"description"`
	PreviousHash  string          `gorm:"column:previous_hash" json:"previous_hash"`
	Hash          string          `gorm:"column:hash" json:"hash"`
	Metadata      datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func Models() []any {
	return []any{&Balance{}, &LedgerEntry{}}
}

type LedgerParams struct {
	LedgerID      string
	UserID        string
	Sequence      int64
	Type          EntryType
	Amount        decimal.Decimal
	ReferenceID   string
	TransactionID string
	Description   string
	PreviousHash  string
	Metadata      datatypes.JSON
	CreatedAt     time.Time
}

func NewLedgerEntry(p LedgerParams) *LedgerEntry {
	return &LedgerEntry{
		ID:            p.LedgerID,
		UserID:        p.UserID,
		Sequence:      p.Sequence,
		Type:          p.Type,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		PreviousHash:  p.PreviousHash,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
	}
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"user_id":        m.UserID,
		"sequence":       fmt.Sprintf("%d", m.Sequence),
		"type":           string(m.Type),
		"amount":         m.Amount.StringFixed(2),
		"transaction_id": m.TransactionID,
		"reference_id":   m.ReferenceID,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

// GenerateHash hashes the sorted k=v fields joined by "|".
func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

func GenerateTransactionID(now time.Time) (string, error) {
	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(r))), nil
}
