package reward

import (
	"cmp"
	"slices"

	"moralduel-controlplane/pkg/celengine"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/services/cases"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

type Policy struct {
	WinningVotersPercent   int64
	TopArgumentsPercent    int64
	AllParticipantsPercent int64
	CreatorPercent         int64
	TopWeights             []int64
	CreatorThreshold       int64
	CreatorExpression      string
}

func PolicyFromConfig(rc config.RewardConfig) Policy {
	return Policy{
		WinningVotersPercent:   rc.WinningVotersPercent,
		TopArgumentsPercent:    rc.TopArgumentsPercent,
		AllParticipantsPercent: rc.AllParticipantsPercent,
		CreatorPercent:         rc.CreatorPercent,
		TopWeights:             rc.TopWeights,
		CreatorThreshold:       rc.CreatorThreshold,
		CreatorExpression:      rc.CreatorExpression,
	}
}

func (p Policy) Validate() error {
	sum := p.WinningVotersPercent + p.TopArgumentsPercent + p.AllParticipantsPercent + p.CreatorPercent
	if sum != 100 {
		return ErrInvalidPolicy
	}
	for _, pct := range []int64{p.WinningVotersPercent, p.TopArgumentsPercent, p.AllParticipantsPercent, p.CreatorPercent} {
		if pct < 0 {
			return ErrInvalidPolicy
		}
	}
	return nil
}

// Allocation is one user's share of a case's pool summed across categories.
type Allocation struct {
	UserID    string                       `json:"user_id"`
	Amount    decimal.Decimal              `json:"amount"`
	Breakdown map[Category]decimal.Decimal `json:"breakdown"`
}

type allocator struct {
	byUser map[string]*Allocation
}

func (a *allocator) add(userID string, category Category, amount decimal.Decimal) {
	if userID == "" || !amount.IsPositive() {
		return
	}
	cur, ok := a.byUser[userID]
	if !ok {
		cur = &Allocation{UserID: userID, Amount: decimal.Zero, Breakdown: map[Category]decimal.Decimal{}}
		a.byUser[userID] = cur
	}
	cur.Amount = cur.Amount.Add(amount)
	cur.Breakdown[category] = cur.Breakdown[category].Add(amount)
}

func (a *allocator) result() []Allocation {
	out := make([]Allocation, 0, len(a.byUser))
	for _, v := range a.byUser {
		out = append(out, *v)
	}
	slices.SortFunc(out, func(x, y Allocation) int { return cmp.Compare(x.UserID, y.UserID) })
	return out
}

func percentOf(pool decimal.Decimal, pct int64) decimal.Decimal {
	return pool.Mul(decimal.NewFromInt(pct)).Div(hundred).RoundFloor(2)
}

// split divides pool equally between n members, flooring each share to the
// cent. The remainder stays unallocated.
func split(pool decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return pool.Div(decimal.NewFromInt(int64(n))).RoundFloor(2)
}

// Calculate distributes the case's reward pool. It has no side effects and
// returns the same allocations for the same inputs.
func Calculate(c *cases.Case, votes []*cases.Vote, args []*cases.Argument, p Policy) ([]Allocation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !c.RewardPool.IsPositive() {
		return nil, nil
	}

	a := &allocator{byUser: map[string]*Allocation{}}

	var winners []string
	if c.Verdict != "" {
		for _, v := range votes {
			if v.Side == c.Verdict {
				winners = append(winners, v.UserID)
			}
		}
	}
	winnerShare := split(percentOf(c.RewardPool, p.WinningVotersPercent), len(winners))
	for _, userID := range winners {
		a.add(userID, CategoryWinningVoter, winnerShare)
	}

	topPool := percentOf(c.RewardPool, p.TopArgumentsPercent)
	for i, arg := range topArguments(args) {
		if i >= len(p.TopWeights) {
			break
		}
		a.add(arg.AuthorID, CategoryTopArgument, percentOf(topPool, p.TopWeights[i]))
	}

	participants := participantsOf(votes, args)
	participantShare := split(percentOf(c.RewardPool, p.AllParticipantsPercent), len(participants))
	for _, userID := range participants {
		a.add(userID, CategoryParticipant, participantShare)
	}

	if creatorEligible(c, p) {
		a.add(*c.CreatedBy, CategoryCreator, percentOf(c.RewardPool, p.CreatorPercent))
	}

	return a.result(), nil
}

// topArguments returns the flagged arguments in rank order.
func topArguments(args []*cases.Argument) []*cases.Argument {
	var top []*cases.Argument
	for _, arg := range args {
		if arg.IsTop3 {
			top = append(top, arg)
		}
	}
	ranked := cases.RankTopArguments(top)
	if slices.ContainsFunc(ranked, func(a *cases.Argument) bool { return a.TopRank == 0 }) {
		return ranked
	}
	slices.SortStableFunc(ranked, func(x, y *cases.Argument) int {
		return cmp.Compare(x.TopRank, y.TopRank)
	})
	return ranked
}

func participantsOf(votes []*cases.Vote, args []*cases.Argument) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range votes {
		if _, ok := seen[v.UserID]; !ok {
			seen[v.UserID] = struct{}{}
			out = append(out, v.UserID)
		}
	}
	for _, arg := range args {
		if _, ok := seen[arg.AuthorID]; !ok {
			seen[arg.AuthorID] = struct{}{}
			out = append(out, arg.AuthorID)
		}
	}
	slices.Sort(out)
	return out
}

func creatorAttrs(c *cases.Case, threshold int64) map[string]any {
	return map[string]any{
		"total_participants": c.TotalParticipants,
		"yes_votes":          c.YesVotes,
		"no_votes":           c.NoVotes,
		"creator_threshold":  threshold,
		"is_ai_generated":    c.IsAIGenerated,
	}
}

// CheckCreatorExpression compiles expr against the attributes a closing case
// exposes to the creator rule.
func CheckCreatorExpression(expr string) error {
	if expr == "" {
		return nil
	}
	env, err := celengine.GetOrBuildEnv(creatorAttrs(&cases.Case{}, 0))
	if err != nil {
		return err
	}
	return celengine.ValidateExpression(env, expr)
}

func creatorEligible(c *cases.Case, p Policy) bool {
	if c.CreatedBy == nil || *c.CreatedBy == "" {
		return false
	}

	fallback := c.TotalParticipants >= p.CreatorThreshold
	if p.CreatorExpression == "" {
		return fallback
	}

	ok, err := celengine.Evaluate(p.CreatorExpression, creatorAttrs(c, p.CreatorThreshold))
	if err != nil {
		zap.L().Warn("creator expression failed, using threshold",
			zap.String("case_id", c.ID),
			zap.String("expression", p.CreatorExpression),
			zap.Error(err),
		)
		return fallback
	}
	return ok
}
