package game

import (
	"time"
)

// Phase is the spin status of a session.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseSpinning Phase = "SPINNING"
)

// Outcome is produced once per accepted spin and consumed once by ApplyOutcome.
type Outcome struct {
	Number int   `json:"number"`
	Payout int64 `json:"payout"`
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	SessionID  string `json:"session_id,omitempty"`
	Balance    int64  `json:"balance"`
	Phase      Phase  `json:"phase"`
	PendingBet int64  `json:"pending_bet"`
	LastNumber *int   `json:"last_number"`
	LastResult string `json:"last_result,omitempty"`
	CanSpin    bool   `json:"can_spin"`

	Fairness *Fairness `json:"fairness,omitempty"`
}

// Fairness is the public half of a seeded session's draw commitment.
type Fairness struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int    `json:"nonce"`
}

// SpinRecord describes a resolved spin for recorders.
type SpinRecord struct {
	SessionID    string    `json:"session_id"`
	Bet          int64     `json:"bet"`
	Number       int       `json:"number"`
	Payout       int64     `json:"payout"`
	BalanceAfter int64     `json:"balance_after"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

func (r SpinRecord) Won() bool {
	return r.Payout > 0
}

// SpinRequest is the body of bet and spin calls. A nil Amount on spin
// spins the pending bet.
type SpinRequest struct {
	Amount *int64 `json:"amount,omitempty"`
}

type ActionResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Snapshot Snapshot `json:"state"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
