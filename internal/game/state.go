package game

import (
	"fmt"
	"math"
)

const (
	DEFAULT_START_BALANCE int64 = 1000
	LOSS_MESSAGE                = "You lost. Try again!"
)

// GameState owns balance, the staked bet and the spin phase of one session.
// It is not safe for concurrent use; a Session serializes access to it.
type GameState struct {
	balance    int64
	pendingBet int64
	phase      Phase
	lastNumber *int
	lastResult string
}

func NewGameState(startBalance int64) *GameState {
	if startBalance < 0 {
		startBalance = 0
	}
	return &GameState{
		balance: startBalance,
		phase:   PhaseIdle,
	}
}

// PlaceBet records amount as the pending bet. Balance is not debited until Spin.
func (g *GameState) PlaceBet(amount int64) error {
	if g.phase == PhaseSpinning {
		return ErrSpinInProgress
	}
	if !stakeable(amount, g.balance) {
		return fmt.Errorf("%w: %d with balance %d", ErrInvalidBet, amount, g.balance)
	}
	g.pendingBet = amount
	return nil
}

// Spin escrows the pending bet and moves to PhaseSpinning. It returns the
// committed stake for the SpinEngine.
func (g *GameState) Spin() (int64, error) {
	if g.phase == PhaseSpinning {
		return 0, ErrSpinInProgress
	}
	if !stakeable(g.pendingBet, g.balance) {
		return 0, fmt.Errorf("%w: %d with balance %d", ErrInvalidBet, g.pendingBet, g.balance)
	}
	g.balance -= g.pendingBet
	g.phase = PhaseSpinning
	return g.pendingBet, nil
}

func (g *GameState) ApplyOutcome(o Outcome) error {
	if g.phase != PhaseSpinning {
		return ErrNoSpinInProgress
	}
	if o.Payout < 0 || o.Payout > math.MaxInt64-g.balance {
		return fmt.Errorf("%w: payout %d on balance %d", ErrInvalidOutcome, o.Payout, g.balance)
	}
	number := o.Number
	g.lastNumber = &number
	if o.Payout > 0 {
		g.balance += o.Payout
		g.lastResult = fmt.Sprintf("You won %d!", o.Payout)
	} else {
		g.lastResult = LOSS_MESSAGE
	}
	g.pendingBet = 0
	g.phase = PhaseIdle
	return nil
}

func (g *GameState) DismissResult() {
	g.lastResult = ""
}

// CanSpin mirrors Spin's preconditions so a view can disable its button.
func (g *GameState) CanSpin() bool {
	return g.phase == PhaseIdle && stakeable(g.pendingBet, g.balance)
}

// MaxBet is the largest stake on balance whose zero payout still fits in
// the balance.
func MaxBet(balance int64) int64 {
	if balance <= 0 {
		return 0
	}
	limit := (math.MaxInt64 - balance) / (ZERO_PAYOUT_RATIO - 1)
	if limit < balance {
		return limit
	}
	return balance
}

func stakeable(bet, balance int64) bool {
	return bet > 0 && bet <= MaxBet(balance)
}

func (g *GameState) Balance() int64 { return g.balance }

func (g *GameState) Phase() Phase { return g.phase }

func (g *GameState) PendingBet() int64 { return g.pendingBet }

func (g *GameState) Snapshot() Snapshot {
	s := Snapshot{
		Balance:    g.balance,
		Phase:      g.phase,
		PendingBet: g.pendingBet,
		LastResult: g.lastResult,
		CanSpin:    g.CanSpin(),
	}
	if g.lastNumber != nil {
		n := *g.lastNumber
		s.LastNumber = &n
	}
	return s
}
