package scenario

import (
	"math/rand/v2"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	rollSides = 100

	// Upper bounds of each roll band, inclusive.
	maxRollA = 80
	maxRollB = 90

	// Scenario A sends half of the pool to a buyback and splits the rest.
	buybackShare   = 2
	scenarioAPicks = 3
)

// Source is the random source of the selector. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Selection is a drawn scenario resolved into payout instructions.
// Instructions are ordered for execution: the buyback (if any) first, then
// transfers in selection order.
type Selection struct {
	Scenario     domain.Scenario
	Roll         int
	Instructions []domain.PayoutInstruction
}

// Buyback returns the buyback instruction of the selection, if any.
func (s Selection) Buyback() (domain.PayoutInstruction, bool) {
	for _, in := range s.Instructions {
		if in.Kind == domain.PayoutBuyback {
			return in, true
		}
	}
	return domain.PayoutInstruction{}, false
}

// Transfers returns the transfer instructions in execution order.
func (s Selection) Transfers() []domain.PayoutInstruction {
	out := make([]domain.PayoutInstruction, 0, len(s.Instructions))
	for _, in := range s.Instructions {
		if in.Kind == domain.PayoutTransfer {
			out = append(out, in)
		}
	}
	return out
}

// Selector draws weighted scenarios. It is deterministic for a given Source.
type Selector struct {
	src  Source
	team domain.Account
}

// New creates a Selector paying scenario C to team. A nil src uses a
// randomly seeded PCG generator.
func New(src Source, team domain.Account) *Selector {
	if src == nil {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{src: src, team: team}
}

// ScenarioFor maps a roll in [1,100] to its scenario.
func ScenarioFor(roll int) domain.Scenario {
	switch {
	case roll <= maxRollA:
		return domain.ScenarioA
	case roll <= maxRollB:
		return domain.ScenarioB
	default:
		return domain.ScenarioC
	}
}

// Select draws a roll and resolves it against pool (lamports) and holders.
// holders is never modified.
func (s *Selector) Select(pool decimal.Decimal, holders domain.HolderSet) Selection {
	roll := s.src.IntN(rollSides) + 1
	pool = pool.Floor()

	sel := Selection{Scenario: ScenarioFor(roll), Roll: roll}
	switch sel.Scenario {
	case domain.ScenarioA:
		sel.Instructions = s.splitWithBuyback(pool, holders)
	case domain.ScenarioB:
		if len(holders) > 0 {
			winner := holders[s.src.IntN(len(holders))]
			sel.Instructions = appendTransfer(nil, winner, winner.String(), pool)
		}
	case domain.ScenarioC:
		sel.Instructions = appendTransfer(nil, s.team, domain.TeamRecipient, pool)
	}
	return sel
}

// splitWithBuyback builds scenario A. With fewer than three holders every
// available holder still receives one third of the transfer half; the
// unassigned shares stay in the wallet for the next cycle.
func (s *Selector) splitWithBuyback(pool decimal.Decimal, holders domain.HolderSet) []domain.PayoutInstruction {
	buyback := pool.Div(decimal.NewFromInt(buybackShare)).Floor()
	share := pool.Sub(buyback).Div(decimal.NewFromInt(scenarioAPicks)).Floor()

	var out []domain.PayoutInstruction
	if buyback.IsPositive() {
		out = append(out, domain.PayoutInstruction{
			Label:  string(domain.PayoutBuyback),
			Amount: buyback,
			Kind:   domain.PayoutBuyback,
		})
	}
	for _, winner := range Sample(s.src, holders, scenarioAPicks) {
		out = appendTransfer(out, winner, winner.String(), share)
	}
	return out
}

func appendTransfer(out []domain.PayoutInstruction, to domain.Account, label string, amount decimal.Decimal) []domain.PayoutInstruction {
	if !amount.IsPositive() {
		return out
	}
	return append(out, domain.PayoutInstruction{
		Recipient: to,
		Label:     label,
		Amount:    amount,
		Kind:      domain.PayoutTransfer,
	})
}

// Sample picks min(k, len(holders)) distinct holders uniformly without
// replacement using a partial Fisher-Yates shuffle over a copy.
func Sample(src Source, holders domain.HolderSet, k int) []domain.Account {
	n := len(holders)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	pool := append(domain.HolderSet(nil), holders...)
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
