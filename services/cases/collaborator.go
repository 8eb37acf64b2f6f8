package cases

import (
	"context"
	"time"
)

type GeneratedCase struct {
	Title   string
	Context string
}

type Verdict struct {
	Verdict    Side
	Reasoning  string
	Confidence float64
}

type ModerationResult struct {
	Approved bool
	Reason   string
}

type ContentGenerator interface {
	GenerateCase(ctx context.Context) (GeneratedCase, error)
}

type VerdictGenerator interface {
	GenerateVerdict(ctx context.Context, title, context string) (Verdict, error)
}

type Moderator interface {
	ModerateCase(ctx context.Context, title, context string) (ModerationResult, error)
}

// Distributor computes and persists rewards for a closed case.
type Distributor interface {
	Distribute(ctx context.Context, c *Case, votes []*Vote, args []*Argument) (int, error)
}

// Archiver schedules the snapshot upload of a closed case.
type Archiver interface {
	ArchiveLater(ctx context.Context, caseID string) error
}

// Clock is swapped in tests.
type Clock func() time.Time
